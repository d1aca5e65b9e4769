package event

import "github.com/pgx404/RegretMarket/internal/state"

// FundingAccrued is emitted when a position's funding watermark advances.
// Calls at or behind the watermark emit nothing.
type FundingAccrued struct {
	PositionRef
	RateBps               int64  `json:"rate_bps"`
	Amount                uint64 `json:"amount"`
	IsPayment             bool   `json:"is_payment"`
	FromTick              uint64 `json:"from_tick"`
	ToTick                uint64 `json:"to_tick"`
	CumulativeFundingPaid uint64 `json:"cumulative_funding_paid"`
}

func (f *FundingAccrued) EventType() EventType { return EventTypeFundingAccrued }

func (f *FundingAccrued) MarketID() *string {
	s := f.Pair
	return &s
}

// FundingRateSnapshot is a new funding epoch for a market.
// Idempotency key: "{pair}:{epoch_id}".
type FundingRateSnapshot struct {
	state.FundingSnapshot
}

func (f *FundingRateSnapshot) EventType() EventType { return EventTypeFundingRateSnapshot }

func (f *FundingRateSnapshot) MarketID() *string {
	s := f.Pair
	return &s
}
