package risk

import (
	"github.com/pgx404/RegretMarket/internal/errcode"
	fpmath "github.com/pgx404/RegretMarket/internal/math"
)

const (
	longTargetPercent  uint64 = 110
	shortTargetPercent uint64 = 90
)

// PositionParams is the output of the sizing algorithm.
type PositionParams struct {
	ActualSize    uint64 // token units
	LeverageBps   uint64
	PositionValue uint64 // USD units
	TargetPrice   uint64
}

// InitialTargetPrice returns 110% of price for longs and 90% for shorts,
// scaled then truncated.
func InitialTargetPrice(currentPrice uint64, isLong bool) (uint64, error) {
	pct := shortTargetPercent
	if isLong {
		pct = longTargetPercent
	}
	return fpmath.Of(currentPrice).
		Mul(pct).
		Mul(fpmath.Precision).
		Div(100).
		Div(fpmath.Precision).
		Uint64()
}

// CalculatePosition dispatches to the long or short sizing rule.
func CalculatePosition(
	isLong bool,
	desiredEntryPrice, desiredSize, currentPrice, targetPrice, collateral uint64,
	decimals uint8,
) (PositionParams, error) {
	if isLong {
		return CalculateLongPosition(desiredEntryPrice, desiredSize, currentPrice, targetPrice, collateral, decimals)
	}
	return CalculateShortPosition(desiredEntryPrice, desiredSize, currentPrice, targetPrice, collateral, decimals)
}

// CalculateLongPosition sizes a long so that the profit on actual_size from
// current to target equals the profit on desired_size from desired entry
// to target:
//
//	actual_size = desired_size * (target - desired_entry) / (target - current)
func CalculateLongPosition(
	desiredEntryPrice, desiredSize, currentPrice, targetPrice, collateral uint64,
	decimals uint8,
) (PositionParams, error) {
	if currentPrice <= desiredEntryPrice {
		return PositionParams{}, errcode.InvalidPriceForLong
	}
	if targetPrice <= currentPrice {
		return PositionParams{}, errcode.InvalidTargetPrice
	}
	if desiredSize == 0 || collateral == 0 {
		return PositionParams{}, errcode.InvalidInput
	}

	profitRange := fpmath.Of(targetPrice).Sub(desiredEntryPrice)
	movement := fpmath.Of(targetPrice).Sub(currentPrice)

	return size(desiredSize, profitRange, movement, currentPrice, targetPrice, collateral, decimals)
}

// CalculateShortPosition mirrors CalculateLongPosition:
//
//	actual_size = desired_size * (desired_entry - target) / (current - target)
func CalculateShortPosition(
	desiredEntryPrice, desiredSize, currentPrice, targetPrice, collateral uint64,
	decimals uint8,
) (PositionParams, error) {
	if currentPrice >= desiredEntryPrice {
		return PositionParams{}, errcode.InvalidPriceForShort
	}
	if targetPrice >= desiredEntryPrice {
		return PositionParams{}, errcode.InvalidTargetPrice
	}
	if desiredSize == 0 || collateral == 0 {
		return PositionParams{}, errcode.InvalidInput
	}

	profitRange := fpmath.Of(desiredEntryPrice).Sub(targetPrice)
	movement := fpmath.Of(currentPrice).Sub(targetPrice)

	return size(desiredSize, profitRange, movement, currentPrice, targetPrice, collateral, decimals)
}

func size(
	desiredSize uint64,
	profitRange, movement *fpmath.Wide,
	currentPrice, targetPrice, collateral uint64,
	decimals uint8,
) (PositionParams, error) {
	if err := movement.Err(); err != nil {
		return PositionParams{}, err
	}
	if movement.IsZero() {
		return PositionParams{}, errcode.InvalidTargetPrice
	}

	actualSize, err := fpmath.Of(desiredSize).
		MulWide(profitRange).
		Mul(fpmath.Precision).
		DivWide(movement).
		Div(fpmath.Precision).
		Uint64()
	if err != nil {
		return PositionParams{}, err
	}

	valueScaled := fpmath.ScaledTokenValue(actualSize, currentPrice, decimals)

	positionValue, err := valueScaled.Clone().Div(fpmath.Precision).Uint64()
	if err != nil {
		return PositionParams{}, err
	}

	leverageBps, err := valueScaled.
		Mul(fpmath.BasisPoints).
		Div(collateral).
		Div(fpmath.Precision).
		Uint64()
	if err != nil {
		return PositionParams{}, err
	}

	return PositionParams{
		ActualSize:    actualSize,
		LeverageBps:   leverageBps,
		PositionValue: positionValue,
		TargetPrice:   targetPrice,
	}, nil
}
