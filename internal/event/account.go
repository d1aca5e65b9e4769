package event

import "github.com/google/uuid"

// PoolCreated is emitted when a collateral vault is seeded.
type PoolCreated struct {
	TokenMint string `json:"token_mint"`
	LPDeposit uint64 `json:"lp_deposit"`
}

func (p *PoolCreated) EventType() EventType { return EventTypePoolCreated }
func (p *PoolCreated) MarketID() *string    { return nil }

// PoolFunded is emitted for every liquidity top-up.
type PoolFunded struct {
	TokenMint string `json:"token_mint"`
	Amount    uint64 `json:"amount"`
	LPDeposit uint64 `json:"lp_deposit"`
}

func (p *PoolFunded) EventType() EventType { return EventTypePoolFunded }
func (p *PoolFunded) MarketID() *string    { return nil }

// TraderRegistered is emitted when a trader and its seeded balance are
// created.
type TraderRegistered struct {
	Owner     uuid.UUID `json:"owner"`
	TokenMint string    `json:"token_mint"`
	Balance   uint64    `json:"balance"`
}

func (t *TraderRegistered) EventType() EventType { return EventTypeTraderRegistered }
func (t *TraderRegistered) MarketID() *string    { return nil }

// VirtualBalanceClaimed is emitted for every balance top-up.
type VirtualBalanceClaimed struct {
	Owner     uuid.UUID `json:"owner"`
	TokenMint string    `json:"token_mint"`
	Amount    uint64    `json:"amount"`
	Balance   uint64    `json:"balance"`
}

func (v *VirtualBalanceClaimed) EventType() EventType { return EventTypeVirtualBalanceClaimed }
func (v *VirtualBalanceClaimed) MarketID() *string    { return nil }
