// internal/state/balance.go
package state

import (
	"github.com/google/uuid"

	fpmath "github.com/pgx404/RegretMarket/internal/math"
)

const (
	// InitialVirtualBalance is credited on registration: $100,000.
	InitialVirtualBalance uint64 = 100_000_000_000

	// VirtualBalanceClaim is credited per claim: $10,000.
	VirtualBalanceClaim uint64 = 10_000_000_000
)

// TraderBalance is a trader's balance in one collateral asset.
type TraderBalance struct {
	Owner         uuid.UUID `json:"owner"`
	TokenMint     string    `json:"token_mint"`
	Balance       uint64    `json:"balance"`
	LockedBalance uint64    `json:"locked_balance"` // collateral of open positions
}

// AvailableBalance returns free balance, floored at zero.
func (b *TraderBalance) AvailableBalance() uint64 {
	return fpmath.SaturatingSub(b.Balance, b.LockedBalance)
}

// CanonicalBytes for deterministic hashing
func (b *TraderBalance) CanonicalBytes() []byte {
	buf := make([]byte, 0, 64)

	// owner (16 bytes)
	buf = append(buf, b.Owner[:]...)

	// token_mint (length-prefixed)
	buf = appendString(buf, b.TokenMint)

	buf = appendUint64LE(buf, b.Balance)
	buf = appendUint64LE(buf, b.LockedBalance)

	return buf
}

func (b *TraderBalance) Key() string {
	return TraderBalanceKey(b.Owner, b.TokenMint)
}
