package event

import "github.com/google/uuid"

// PositionRef identifies the position an event is about.
type PositionRef struct {
	Owner      uuid.UUID `json:"owner"`
	Pair       string    `json:"pair"`
	PositionID uint64    `json:"position_id"`
}

// PositionOpened is emitted when collateral is locked and pool liquidity
// is lent against a new position.
type PositionOpened struct {
	PositionRef
	TokenMint   string `json:"token_mint"`
	IsLong      bool   `json:"is_long"`
	Price       uint64 `json:"price"`
	ActualSize  uint64 `json:"actual_size"`
	Collateral  uint64 `json:"collateral"` // after the opening fee
	LeverageBps uint64 `json:"leverage_bps"`
	Value       uint64 `json:"value"`
	TargetPrice uint64 `json:"target_price"`
	Borrowed    uint64 `json:"borrowed"`
	Fee         uint64 `json:"fee"`
	ProtocolFee uint64 `json:"protocol_fee"`
	LPFee       uint64 `json:"lp_fee"`
}

func (p *PositionOpened) EventType() EventType { return EventTypePositionOpened }

func (p *PositionOpened) MarketID() *string {
	s := p.Pair
	return &s
}

// PositionClosed is emitted on a voluntary close.
type PositionClosed struct {
	PositionRef
	Price          uint64 `json:"price"`
	NetPnL         int64  `json:"net_pnl"`
	FundingPaid    uint64 `json:"funding_paid"`
	Fee            uint64 `json:"fee"`
	AmountReturned uint64 `json:"amount_returned"`
	PoolGain       uint64 `json:"pool_gain"`
	PoolLoss       uint64 `json:"pool_loss"`
	Deficit        uint64 `json:"deficit"`
}

func (p *PositionClosed) EventType() EventType { return EventTypePositionClosed }

func (p *PositionClosed) MarketID() *string {
	s := p.Pair
	return &s
}

// PositionRebalanced is emitted when a position crosses its target and
// starts a new cycle at the current price.
type PositionRebalanced struct {
	PositionRef
	Price             uint64 `json:"price"`
	NewActualSize     uint64 `json:"new_actual_size"`
	NewTargetPrice    uint64 `json:"new_target_price"`
	NewLeverageBps    uint64 `json:"new_leverage_bps"`
	NewValue          uint64 `json:"new_value"`
	ProfitRealized    uint64 `json:"profit_realized"`
	TraderPayout      uint64 `json:"trader_payout"`
	ExcessToInsurance uint64 `json:"excess_to_insurance"`
	RebalanceCount    uint64 `json:"rebalance_count"`
}

func (p *PositionRebalanced) EventType() EventType { return EventTypePositionRebalanced }

func (p *PositionRebalanced) MarketID() *string {
	s := p.Pair
	return &s
}
