package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pgx404/RegretMarket/internal/core"
	"github.com/pgx404/RegretMarket/internal/errcode"
	"github.com/pgx404/RegretMarket/internal/oracle"
	"github.com/pgx404/RegretMarket/internal/state"
)

// Operation names, also the last token of a command subject.
const (
	OpInitializeConfig     = "initialize_config"
	OpUpdateConfig         = "update_config"
	OpSetPaused            = "set_paused"
	OpCreatePool           = "create_pool"
	OpFundPool             = "fund_pool"
	OpOpenMarket           = "open_market"
	OpUpdateMarket         = "update_market"
	OpRegisterTrader       = "register_trader"
	OpClaimVirtualBalance  = "claim_virtual_balance"
	OpOpenPosition         = "open_position"
	OpClosePosition        = "close_position"
	OpAccrueFunding        = "accrue_funding"
	OpRebalancePosition    = "rebalance_position"
	OpLiquidatePosition    = "liquidate_position"
	OpRebalanceOrLiquidate = "rebalance_or_liquidate"
	OpStoreFundingSnapshot = "store_funding_snapshot"
)

// Command is a parsed operation request. Params holds the request type the
// matching Processor method takes.
type Command struct {
	Op        string
	RequestID string
	Params    any
}

// PoolParams names a vault.
type PoolParams struct {
	TokenMint string `json:"token_mint"`
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers.

type commandJSON struct {
	RequestID string          `json:"request_id"`
	Params    json.RawMessage `json:"params"`
}

type priceJSON struct {
	FeedID        string `json:"feed_id"`
	Price         int64  `json:"price"`
	Conf          uint64 `json:"conf"`
	Exponent      int32  `json:"exponent"`
	PublishTimeUs int64  `json:"publish_time_us"`
}

type fundingJSON struct {
	RequestID string `json:"request_id"`
	Pair      string `json:"pair"`
	EpochID   int64  `json:"epoch_id"`
	RateBps   int64  `json:"rate_bps"`
	MarkPrice uint64 `json:"mark_price"`
}

// ParseCommand decodes a command body for op.
func ParseCommand(op string, data []byte) (Command, error) {
	var j commandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return Command{}, fmt.Errorf("parse %s: %v: %w", op, err, errcode.InvalidInput)
	}
	params, err := parseParams(op, j.Params)
	if err != nil {
		return Command{}, err
	}
	return Command{Op: op, RequestID: j.RequestID, Params: params}, nil
}

func parseParams(op string, raw json.RawMessage) (any, error) {
	switch op {
	case OpInitializeConfig:
		return decode[core.InitializeRequest](op, raw)
	case OpUpdateConfig:
		return decode[core.UpdateConfigRequest](op, raw)
	case OpSetPaused:
		return decode[core.PauseRequest](op, raw)
	case OpCreatePool, OpFundPool:
		p, err := decode[PoolParams](op, raw)
		if err == nil && p.TokenMint == "" {
			err = fmt.Errorf("parse %s: token_mint is required: %w", op, errcode.InvalidInput)
		}
		return p, err
	case OpOpenMarket:
		return decode[core.OpenMarketRequest](op, raw)
	case OpUpdateMarket:
		return decode[core.UpdateMarketRequest](op, raw)
	case OpRegisterTrader, OpClaimVirtualBalance:
		return decode[core.TraderRequest](op, raw)
	case OpOpenPosition:
		return decode[core.OpenRequest](op, raw)
	case OpClosePosition:
		return decode[core.CloseRequest](op, raw)
	case OpRebalancePosition:
		return decode[core.RebalanceRequest](op, raw)
	case OpAccrueFunding, OpLiquidatePosition, OpRebalanceOrLiquidate:
		return decode[core.PositionRef](op, raw)
	case OpStoreFundingSnapshot:
		return decode[state.FundingSnapshot](op, raw)
	default:
		return nil, fmt.Errorf("unknown operation %q: %w", op, errcode.InvalidInput)
	}
}

// decode rejects unknown fields so a misspelled parameter fails loudly
// instead of defaulting to zero.
func decode[T any](op string, raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, fmt.Errorf("parse %s: params are required: %w", op, errcode.InvalidInput)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("parse %s: %v: %w", op, err, errcode.InvalidInput)
	}
	return v, nil
}

// ParsePrice decodes a price message.
func ParsePrice(data []byte) (oracle.PriceData, error) {
	var j priceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return oracle.PriceData{}, fmt.Errorf("parse price: %v: %w", err, errcode.InvalidInput)
	}
	if j.FeedID == "" {
		return oracle.PriceData{}, fmt.Errorf("parse price: feed_id is required: %w", errcode.InvalidInput)
	}
	return oracle.PriceData{
		FeedID:      j.FeedID,
		Price:       j.Price,
		Conf:        j.Conf,
		Exponent:    j.Exponent,
		PublishTime: time.UnixMicro(j.PublishTimeUs).UTC(),
	}, nil
}

// ParseFunding decodes a funding snapshot message and the request id it
// carries.
func ParseFunding(data []byte) (state.FundingSnapshot, string, error) {
	var j fundingJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return state.FundingSnapshot{}, "", fmt.Errorf("parse funding: %v: %w", err, errcode.InvalidInput)
	}
	if j.Pair == "" || j.EpochID < 0 {
		return state.FundingSnapshot{}, "", fmt.Errorf("parse funding: pair and epoch_id are required: %w", errcode.InvalidInput)
	}
	return state.FundingSnapshot{
		Pair:      j.Pair,
		EpochID:   j.EpochID,
		RateBps:   j.RateBps,
		MarkPrice: j.MarkPrice,
	}, j.RequestID, nil
}

// opFromSubject returns the last token of a command subject.
func opFromSubject(subject string) string {
	if i := strings.LastIndexByte(subject, '.'); i >= 0 {
		return subject[i+1:]
	}
	return subject
}
