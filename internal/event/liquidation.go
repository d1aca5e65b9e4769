package event

import "github.com/google/uuid"

// PositionLiquidated is emitted when an unhealthy position is force
// closed. LiquidationID is fresh per liquidation.
type PositionLiquidated struct {
	PositionRef
	LiquidationID      uuid.UUID `json:"liquidation_id"`
	Price              uint64    `json:"price"`
	HealthBps          uint64    `json:"health_bps"`
	NetPnL             int64     `json:"net_pnl"`
	Fee                uint64    `json:"fee"`
	Reward             uint64    `json:"reward"`
	AmountReturned     uint64    `json:"amount_returned"`
	Deficit            uint64    `json:"deficit"`
	CoveredByInsurance uint64    `json:"covered_by_insurance"`
	BadDebt            uint64    `json:"bad_debt"`
}

func (l *PositionLiquidated) EventType() EventType { return EventTypePositionLiquidated }

func (l *PositionLiquidated) MarketID() *string {
	s := l.Pair
	return &s
}
