// Package risk holds the pure position math: input validation, synthetic
// leverage sizing, rebalance, PnL and margin health. Nothing here touches
// storage or mutates a record.
package risk

import (
	"math"

	"github.com/pgx404/RegretMarket/internal/errcode"
)

const (
	MinCollateral    uint64 = 10_000_000         // $10
	MaxCollateral    uint64 = 1_000_000_000_000  // $1,000,000
	MinPositionValue uint64 = 10_000_000         // $10
	MaxPositionValue uint64 = 10_000_000_000_000 // $10,000,000
	MaxSafePrice     uint64 = math.MaxUint64 / 200
)

// ValidatePrice rejects zero and prices above MaxSafePrice.
func ValidatePrice(price uint64) error {
	if price == 0 {
		return errcode.InvalidPrice
	}
	if price > MaxSafePrice {
		return errcode.PriceTooHigh
	}
	return nil
}

// ValidateCollateral enforces [MinCollateral, MaxCollateral].
func ValidateCollateral(collateral uint64) error {
	if collateral < MinCollateral {
		return errcode.CollateralTooLow
	}
	if collateral > MaxCollateral {
		return errcode.CollateralTooHigh
	}
	return nil
}

// ValidatePositionSize rejects zero sizes.
func ValidatePositionSize(size uint64) error {
	if size == 0 {
		return errcode.InvalidPositionSize
	}
	return nil
}

// ValidatePositionValue enforces [MinPositionValue, MaxPositionValue].
func ValidatePositionValue(value uint64) error {
	if value < MinPositionValue {
		return errcode.PositionValueTooLow
	}
	if value > MaxPositionValue {
		return errcode.PositionValueTooHigh
	}
	return nil
}
