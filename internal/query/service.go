package query

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pgx404/RegretMarket/internal/core"
	fpmath "github.com/pgx404/RegretMarket/internal/math"
	"github.com/pgx404/RegretMarket/internal/oracle"
	"github.com/pgx404/RegretMarket/internal/persistence"
	"github.com/pgx404/RegretMarket/internal/risk"
	"github.com/pgx404/RegretMarket/internal/state"
)

// FundingRates reports the current funding rate of a market.
type FundingRates interface {
	CurrentRate(pair string) int64
}

// EventLog pages through the persisted event log.
type EventLog interface {
	LoadEventsFrom(ctx context.Context, fromSequence uint64, limit int) ([]persistence.EventRow, error)
}

// QueryService provides read-only views over the record store. Values are
// converted to decimals here so clients never see raw fixed-point units.
type QueryService struct {
	store  persistence.Store
	feed   oracle.PriceFeed
	rates  FundingRates
	events EventLog
}

// NewQueryService builds a query service. rates and events may be nil.
func NewQueryService(store persistence.Store, feed oracle.PriceFeed, rates FundingRates, events EventLog) *QueryService {
	return &QueryService{store: store, feed: feed, rates: rates, events: events}
}

// GetPosition returns one position, valued at the live oracle price when
// it is open and a fresh price exists.
func (qs *QueryService) GetPosition(ctx context.Context, ref core.PositionRef) (*PositionView, error) {
	var (
		cfg state.Config
		m   state.Market
		pos state.Position
	)
	err := qs.store.View(ctx, func(tx persistence.Tx) error {
		var err error
		if cfg, err = persistence.LoadConfig(tx); err != nil {
			return err
		}
		if m, err = persistence.LoadMarket(tx, ref.Pair); err != nil {
			return err
		}
		pos, err = persistence.LoadPosition(tx, ref.Pair, ref.Owner, ref.PositionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	view := positionView(&pos, m.Decimals)
	if pos.IsOpen() {
		view.Live = qs.valuate(ctx, &pos, &cfg, &m)
	}
	return view, nil
}

// ListPositions returns an owner's positions in a market, ordered by id.
// Closed positions are included when includeClosed is set.
func (qs *QueryService) ListPositions(ctx context.Context, owner uuid.UUID, pair string, includeClosed bool) ([]PositionView, error) {
	var (
		cfg       state.Config
		m         state.Market
		positions []state.Position
	)
	err := qs.store.View(ctx, func(tx persistence.Tx) error {
		var err error
		if cfg, err = persistence.LoadConfig(tx); err != nil {
			return err
		}
		if m, err = persistence.LoadMarket(tx, pair); err != nil {
			return err
		}
		positions, err = persistence.ListPositions(tx, pair)
		return err
	})
	if err != nil {
		return nil, err
	}

	views := make([]PositionView, 0, len(positions))
	for i := range positions {
		pos := &positions[i]
		if pos.Owner != owner || (!includeClosed && !pos.IsOpen()) {
			continue
		}
		v := positionView(pos, m.Decimals)
		if pos.IsOpen() {
			v.Live = qs.valuate(ctx, pos, &cfg, &m)
		}
		views = append(views, *v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].PositionID < views[j].PositionID })
	return views, nil
}

func (qs *QueryService) GetVault(ctx context.Context, tokenMint string) (*VaultView, error) {
	var v state.Vault
	err := qs.store.View(ctx, func(tx persistence.Tx) error {
		var err error
		v, err = persistence.LoadVault(tx, tokenMint)
		return err
	})
	if err != nil {
		return nil, err
	}

	utilization := decimal.Zero
	if v.LPDeposit > 0 {
		utilization = decimal.NewFromUint64(v.TotalBorrowed).
			DivRound(decimal.NewFromUint64(v.LPDeposit), 6)
	}

	return &VaultView{
		TokenMint:          v.TokenMint,
		LPDeposit:          USD(v.LPDeposit),
		TotalBorrowed:      USD(v.TotalBorrowed),
		Available:          USD(fpmath.SaturatingSub(v.LPDeposit, v.TotalBorrowed)),
		Utilization:        utilization,
		TraderCollateral:   USD(v.TraderCollateral),
		AccumulatedFees:    USD(v.AccumulatedFees),
		AccumulatedLPFees:  USD(v.AccumulatedLPFees),
		LiquidationRewards: USD(v.AccumulatedLiquidationRewards),
		InsuranceReserve:   USD(v.InsuranceReserve),
		IsPaused:           v.IsPaused,
	}, nil
}

func (qs *QueryService) GetBalance(ctx context.Context, owner uuid.UUID, tokenMint string) (*BalanceView, error) {
	var b state.TraderBalance
	err := qs.store.View(ctx, func(tx persistence.Tx) error {
		var err error
		b, err = persistence.LoadBalance(tx, owner, tokenMint)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &BalanceView{
		Owner:     b.Owner,
		TokenMint: b.TokenMint,
		Balance:   USD(b.Balance),
		Locked:    USD(b.LockedBalance),
		Available: USD(b.AvailableBalance()),
	}, nil
}

// ListMarkets returns every listed market with its current funding rate.
func (qs *QueryService) ListMarkets(ctx context.Context) ([]MarketView, error) {
	var markets []state.Market
	err := qs.store.View(ctx, func(tx persistence.Tx) error {
		var err error
		markets, err = persistence.ListMarkets(tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	views := make([]MarketView, 0, len(markets))
	for _, m := range markets {
		v := MarketView{
			Pair:            m.Pair,
			Decimals:        m.Decimals,
			FeedID:          m.FeedID,
			ActivePositions: m.TotalActivePositions,
			IsPaused:        m.IsPaused,
			FundingRateBps:  state.DefaultFundingRateBps,
		}
		if qs.rates != nil {
			v.FundingRateBps = qs.rates.CurrentRate(m.Pair)
		}
		views = append(views, v)
	}
	return views, nil
}

// GetConfig returns the protocol parameters.
func (qs *QueryService) GetConfig(ctx context.Context) (*state.Config, error) {
	var cfg state.Config
	err := qs.store.View(ctx, func(tx persistence.Tx) error {
		var err error
		cfg, err = persistence.LoadConfig(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// --- Admin APIs ---

const integrityPageSize = 1000

// VerifyIntegrity walks the event log from the first sequence and checks
// that sequences are contiguous and every event links to its predecessor's
// hash. The first event must link to the genesis hash.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	if qs.events == nil {
		return nil, fmt.Errorf("event log not configured")
	}

	report := &IntegrityReport{}
	genesis := sha256.Sum256([]byte(core.GenesisHashSeed))
	prevHash := genesis[:]
	var prevSeq uint64

	for from := uint64(1); ; {
		rows, err := qs.events.LoadEventsFrom(ctx, from, integrityPageSize)
		if err != nil {
			return nil, fmt.Errorf("load events from %d: %w", from, err)
		}
		for _, row := range rows {
			seq := uint64(row.Sequence)
			if seq != prevSeq+1 {
				report.SequenceGaps = append(report.SequenceGaps, seq)
			}
			if !bytes.Equal(row.PrevHash, prevHash) {
				report.HashChainBreaks = append(report.HashChainBreaks, seq)
			}
			prevSeq, prevHash = seq, row.StateHash
			report.EventsChecked++
		}
		if len(rows) < integrityPageSize {
			break
		}
		from = prevSeq + 1
	}

	report.LastSequence = prevSeq
	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.SequenceGaps) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) valuate(ctx context.Context, pos *state.Position, cfg *state.Config, m *state.Market) *LiveValuation {
	if qs.feed == nil {
		return nil
	}
	price, err := oracle.GetNormalizedPrice(ctx, qs.feed, m.FeedID)
	if err != nil {
		return nil
	}
	pnl, err := risk.CalculatePnL(pos, price, m.Decimals)
	if err != nil {
		return nil
	}
	health, err := risk.CalculateHealthRatio(pos, price, cfg, m.Decimals)
	if err != nil {
		return nil
	}

	live := &LiveValuation{
		Price:         USD(price),
		UnrealizedPnL: decimal.New(pnl.SignedNetPnL(), -fpmath.PriceDecimals),
		HealthBps:     health,
		HealthStatus:  state.ClassifyHealth(health).String(),
		TargetReached: pos.TargetReached(price),
	}
	if health != state.HealthInfinite {
		h := decimal.NewFromUint64(health).Shift(-4)
		live.Health = &h
	}
	return live
}

func positionView(pos *state.Position, decimals uint8) *PositionView {
	return &PositionView{
		Owner:          pos.Owner,
		Pair:           pos.Pair,
		PositionID:     pos.PositionID,
		Side:           pos.Side(),
		Status:         strings.ToLower(pos.Status.String()),
		TokenMint:      pos.TokenMint,
		Size:           Tokens(pos.ActualSize, decimals),
		EntryPrice:     USD(pos.ActualEnteredPrice),
		TargetPrice:    USD(pos.CurrentTargetPrice),
		Collateral:     USD(pos.Collateral),
		PositionValue:  USD(pos.PositionValue),
		Leverage:       decimal.NewFromUint64(pos.Leverage).Shift(-4),
		FundingPaid:    USD(pos.CumulativeFundingPaid),
		RealizedProfit: USD(pos.RealizedProfit),
		RebalanceCount: pos.RebalanceCount,
		EnteredAt:      pos.EnteredAt,
		ClosedAt:       pos.ClosedAt,
	}
}

// USD converts a 6-decimal fixed-point amount to dollars.
func USD(v uint64) decimal.Decimal {
	return decimal.NewFromUint64(v).Shift(-fpmath.PriceDecimals)
}

// Tokens converts an amount in the smallest token unit to whole tokens.
func Tokens(v uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromUint64(v).Shift(-int32(decimals))
}
