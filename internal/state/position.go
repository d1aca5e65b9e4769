package state

import (
	"encoding/binary"

	"github.com/google/uuid"

	fpmath "github.com/pgx404/RegretMarket/internal/math"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus int32

const (
	PositionStatusOpen PositionStatus = iota
	PositionStatusClosed
	PositionStatusLiquidated
)

func (s PositionStatus) String() string {
	switch s {
	case PositionStatusOpen:
		return "Open"
	case PositionStatusClosed:
		return "Closed"
	case PositionStatusLiquidated:
		return "Liquidated"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates state transitions. Terminal states have none.
func (s PositionStatus) CanTransitionTo(next PositionStatus) bool {
	return s == PositionStatusOpen &&
		(next == PositionStatusClosed || next == PositionStatusLiquidated)
}

// Position is one opened trade. Prices are USD units, sizes token units,
// ticks come from the external clock. ClosedAt == 0 means open.
type Position struct {
	Owner                 uuid.UUID      `json:"owner"`
	PositionID            uint64         `json:"position_id"`
	IsLong                bool           `json:"is_long"`
	Pair                  string         `json:"pair"`
	TokenMint             string         `json:"token_mint"`
	EnteredAt             uint64         `json:"entered_at"`
	ClosedAt              uint64         `json:"closed_at"`
	LastFundingSlot       uint64         `json:"last_funding_slot"`
	CumulativeFundingPaid uint64         `json:"cumulative_funding_paid"`
	DesiredEntryPrice     uint64         `json:"desired_entry_price"`
	DesiredSize           uint64         `json:"desired_size"`
	CurrentTargetPrice    uint64         `json:"current_target_price"`
	Collateral            uint64         `json:"collateral"` // post-fee, locked
	ActualSize            uint64         `json:"actual_size"`
	ActualEnteredPrice    uint64         `json:"actual_entered_price"`
	CurrentPrice          uint64         `json:"current_price"`
	PositionValue         uint64         `json:"position_value"`
	Leverage              uint64         `json:"leverage"` // bps
	RealizedProfit        uint64         `json:"realized_profit"`
	RebalanceCount        uint64         `json:"rebalance_count"`
	Status                PositionStatus `json:"status"`
	LastUpdated           uint64         `json:"last_updated"`
}

// IsOpen reports whether the position is still active.
func (p *Position) IsOpen() bool {
	return p.ClosedAt == 0
}

// Side returns "long" or "short".
func (p *Position) Side() string {
	if p.IsLong {
		return "long"
	}
	return "short"
}

// Key returns the store key of the position.
func (p *Position) Key() string {
	return PositionKey(p.Pair, p.Owner, p.PositionID)
}

// TargetReached reports whether price has crossed the current target:
// at or above it for longs, at or below it for shorts.
func (p *Position) TargetReached(price uint64) bool {
	if p.IsLong {
		return price >= p.CurrentTargetPrice
	}
	return price <= p.CurrentTargetPrice
}

// UpdateFunding accrues funding from LastFundingSlot to tick and advances
// the watermark. A tick at or below the watermark is a no-op, so replaying
// the same tick never double-accrues and the watermark never moves back.
//
// A positive rate adds to CumulativeFundingPaid; a negative rate credits
// the position, saturating at zero.
func (p *Position) UpdateFunding(
	tick uint64,
	price uint64,
	rateBps int64,
	decimals uint8,
) (fpmath.FundingPayment, error) {
	if tick <= p.LastFundingSlot {
		return fpmath.FundingPayment{IsPayment: rateBps > 0}, nil
	}

	funding, err := fpmath.ComputeFundingPayment(
		p.ActualSize,
		price,
		rateBps,
		tick-p.LastFundingSlot,
		decimals,
	)
	if err != nil {
		return fpmath.FundingPayment{}, err
	}

	paid := p.CumulativeFundingPaid
	if funding.IsPayment {
		paid, err = fpmath.CheckedAdd(paid, funding.Amount)
		if err != nil {
			return fpmath.FundingPayment{}, err
		}
	} else {
		paid = fpmath.SaturatingSub(paid, funding.Amount)
	}

	p.CumulativeFundingPaid = paid
	p.LastFundingSlot = tick

	return funding, nil
}

// CanonicalBytes returns deterministic serialization for hashing
func (p *Position) CanonicalBytes() []byte {
	buf := make([]byte, 0, 224)

	// owner (16 bytes UUID binary)
	buf = append(buf, p.Owner[:]...)
	buf = appendUint64LE(buf, p.PositionID)
	buf = appendBool(buf, p.IsLong)

	// pair, token_mint (length-prefixed)
	buf = appendString(buf, p.Pair)
	buf = appendString(buf, p.TokenMint)

	buf = appendUint64LE(buf, p.EnteredAt)
	buf = appendUint64LE(buf, p.ClosedAt)
	buf = appendUint64LE(buf, p.LastFundingSlot)
	buf = appendUint64LE(buf, p.CumulativeFundingPaid)
	buf = appendUint64LE(buf, p.DesiredEntryPrice)
	buf = appendUint64LE(buf, p.DesiredSize)
	buf = appendUint64LE(buf, p.CurrentTargetPrice)
	buf = appendUint64LE(buf, p.Collateral)
	buf = appendUint64LE(buf, p.ActualSize)
	buf = appendUint64LE(buf, p.ActualEnteredPrice)
	buf = appendUint64LE(buf, p.CurrentPrice)
	buf = appendUint64LE(buf, p.PositionValue)
	buf = appendUint64LE(buf, p.Leverage)
	buf = appendUint64LE(buf, p.RealizedProfit)
	buf = appendUint64LE(buf, p.RebalanceCount)

	// status (1 byte)
	buf = append(buf, byte(p.Status))

	buf = appendUint64LE(buf, p.LastUpdated)

	return buf
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	}
	return append(buf, 0)
}
