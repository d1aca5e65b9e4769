package risk

import (
	fpmath "github.com/pgx404/RegretMarket/internal/math"
	"github.com/pgx404/RegretMarket/internal/state"
)

// RebalanceResult describes the next sizing cycle of a position whose
// target has been crossed. ShouldRebalance = false means nothing changes.
type RebalanceResult struct {
	ShouldRebalance   bool
	NewActualSize     uint64
	NewTargetPrice    uint64
	NewLeverageBps    uint64
	NewPositionValue  uint64
	ProfitRealized    uint64 // leveraged profit of the finished cycle
	ExcessToInsurance uint64 // profit beyond what the trader was promised
}

// TraderPayout is the part of the realized profit owed to the trader.
func (r RebalanceResult) TraderPayout() uint64 {
	return r.ProfitRealized - r.ExcessToInsurance
}

// CalculateRebalance evaluates a position at price. When the current target
// is crossed it measures the cycle's leveraged profit from the actual entry,
// the profit the trader expected on desired_size from the desired entry
// (less what earlier cycles already paid), and re-sizes against a new
// target targetBps away from price.
func CalculateRebalance(
	pos *state.Position,
	currentPrice uint64,
	targetBps uint64,
	decimals uint8,
) (RebalanceResult, error) {
	noop := RebalanceResult{
		NewActualSize:  pos.ActualSize,
		NewTargetPrice: pos.CurrentTargetPrice,
	}

	if !pos.TargetReached(currentPrice) {
		return noop, nil
	}
	if pos.ActualSize == 0 || currentPrice == 0 {
		return noop, nil
	}

	divisor := fpmath.Pow10(decimals)

	currentValue := fpmath.Of(pos.ActualSize).Mul(currentPrice).DivWide(divisor)
	entryValue := fpmath.Of(pos.ActualSize).Mul(pos.ActualEnteredPrice).DivWide(divisor)

	var actualProfit uint64
	var err error
	if pos.IsLong {
		actualProfit, err = currentValue.SaturatingSubWide(entryValue).Uint64()
	} else {
		actualProfit, err = entryValue.SaturatingSubWide(currentValue).Uint64()
	}
	if err != nil {
		return RebalanceResult{}, err
	}

	var priceDiff uint64
	if pos.IsLong {
		priceDiff = fpmath.SaturatingSub(currentPrice, pos.DesiredEntryPrice)
	} else {
		priceDiff = fpmath.SaturatingSub(pos.DesiredEntryPrice, currentPrice)
	}
	virtualTotal, err := fpmath.Of(pos.DesiredSize).Mul(priceDiff).DivWide(divisor).Uint64()
	if err != nil {
		return RebalanceResult{}, err
	}
	virtualProfit := fpmath.SaturatingSub(virtualTotal, pos.RealizedProfit)

	excess := fpmath.SaturatingSub(actualProfit, virtualProfit)

	priceChange, err := fpmath.ApplyBps(currentPrice, targetBps)
	if err != nil {
		return RebalanceResult{}, err
	}

	var newTarget uint64
	if pos.IsLong {
		newTarget, err = fpmath.CheckedAdd(currentPrice, priceChange)
	} else {
		newTarget, err = fpmath.CheckedSub(currentPrice, priceChange)
	}
	if err != nil {
		return RebalanceResult{}, err
	}

	params, err := CalculatePosition(
		pos.IsLong,
		pos.DesiredEntryPrice,
		pos.DesiredSize,
		currentPrice,
		newTarget,
		pos.Collateral,
		decimals,
	)
	if err != nil {
		return RebalanceResult{}, err
	}

	return RebalanceResult{
		ShouldRebalance:   true,
		NewActualSize:     params.ActualSize,
		NewTargetPrice:    newTarget,
		NewLeverageBps:    params.LeverageBps,
		NewPositionValue:  params.PositionValue,
		ProfitRealized:    actualProfit,
		ExcessToInsurance: excess,
	}, nil
}
