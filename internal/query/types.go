package query

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PositionView is a position with values derived at query time. USD
// amounts are decimal dollars; Size is in whole tokens.
type PositionView struct {
	Owner          uuid.UUID       `json:"owner"`
	Pair           string          `json:"pair"`
	PositionID     uint64          `json:"position_id"`
	Side           string          `json:"side"`
	Status         string          `json:"status"`
	TokenMint      string          `json:"token_mint"`
	Size           decimal.Decimal `json:"size"`
	EntryPrice     decimal.Decimal `json:"entry_price"`
	TargetPrice    decimal.Decimal `json:"target_price"`
	Collateral     decimal.Decimal `json:"collateral"`
	PositionValue  decimal.Decimal `json:"position_value"`
	Leverage       decimal.Decimal `json:"leverage"` // e.g. 5 for 5x
	FundingPaid    decimal.Decimal `json:"funding_paid"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	RebalanceCount uint64          `json:"rebalance_count"`
	EnteredAt      uint64          `json:"entered_at"`
	ClosedAt       uint64          `json:"closed_at,omitempty"`

	// Derived from the live oracle price; nil when no fresh price exists
	// or the position is closed.
	Live *LiveValuation `json:"live,omitempty"`
}

// LiveValuation values an open position at the current price.
type LiveValuation struct {
	Price         decimal.Decimal  `json:"price"`
	UnrealizedPnL decimal.Decimal  `json:"unrealized_pnl"`   // signed, after funding
	Health        *decimal.Decimal `json:"health,omitempty"` // equity / maintenance margin; nil when no margin is required
	HealthBps     uint64           `json:"health_bps"`
	HealthStatus  string           `json:"health_status"`
	TargetReached bool             `json:"target_reached"`
}

// VaultView is a pool's accounting in decimal dollars.
type VaultView struct {
	TokenMint          string          `json:"token_mint"`
	LPDeposit          decimal.Decimal `json:"lp_deposit"`
	TotalBorrowed      decimal.Decimal `json:"total_borrowed"`
	Available          decimal.Decimal `json:"available"`
	Utilization        decimal.Decimal `json:"utilization"` // borrowed / lp_deposit
	TraderCollateral   decimal.Decimal `json:"trader_collateral"`
	AccumulatedFees    decimal.Decimal `json:"accumulated_fees"`
	AccumulatedLPFees  decimal.Decimal `json:"accumulated_lp_fees"`
	LiquidationRewards decimal.Decimal `json:"liquidation_rewards"`
	InsuranceReserve   decimal.Decimal `json:"insurance_reserve"`
	IsPaused           bool            `json:"is_paused"`
}

// BalanceView is a trader's balance in one collateral asset.
type BalanceView struct {
	Owner     uuid.UUID       `json:"owner"`
	TokenMint string          `json:"token_mint"`
	Balance   decimal.Decimal `json:"balance"`
	Locked    decimal.Decimal `json:"locked"`
	Available decimal.Decimal `json:"available"`
}

// MarketView is a market with its current funding rate.
type MarketView struct {
	Pair            string `json:"pair"`
	Decimals        uint8  `json:"decimals"`
	FeedID          string `json:"feed_id"`
	ActivePositions uint64 `json:"active_positions"`
	IsPaused        bool   `json:"is_paused"`
	FundingRateBps  int64  `json:"funding_rate_bps"` // per 8h
}

// IntegrityReport is the result of walking the event log's hash chain.
type IntegrityReport struct {
	IsHealthy       bool     `json:"is_healthy"`
	EventsChecked   int      `json:"events_checked"`
	LastSequence    uint64   `json:"last_sequence"`
	HashChainBreaks []uint64 `json:"hash_chain_breaks,omitempty"`
	SequenceGaps    []uint64 `json:"sequence_gaps,omitempty"`
}
