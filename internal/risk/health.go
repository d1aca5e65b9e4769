package risk

import (
	fpmath "github.com/pgx404/RegretMarket/internal/math"
	"github.com/pgx404/RegretMarket/internal/state"
)

// CalculateHealthRatio returns equity / required maintenance margin in bps.
// 10000 is 100%; below that the position is liquidatable.
//
// Zero size or price, and a zero required margin, report state.HealthInfinite.
// Zero equity reports 0.
func CalculateHealthRatio(
	pos *state.Position,
	currentPrice uint64,
	cfg *state.Config,
	decimals uint8,
) (uint64, error) {
	if pos.ActualSize == 0 || currentPrice == 0 {
		return state.HealthInfinite, nil
	}

	pnl, err := CalculatePnL(pos, currentPrice, decimals)
	if err != nil {
		return 0, err
	}

	var equity *fpmath.Wide
	if pnl.IsProfit {
		equity = fpmath.Of(pos.Collateral).Add(pnl.NetPnL)
	} else {
		equity = fpmath.Of(pos.Collateral).SaturatingSubWide(fpmath.Of(pnl.NetPnL))
	}
	if err := equity.Err(); err != nil {
		return 0, err
	}
	if equity.IsZero() {
		return 0, nil
	}

	requiredScaled := fpmath.ScaledTokenValue(pos.ActualSize, currentPrice, decimals).
		Mul(cfg.MaintenanceMargin).
		Div(fpmath.BasisPoints)
	if err := requiredScaled.Err(); err != nil {
		return 0, err
	}

	required := requiredScaled.Clone().Div(fpmath.Precision)
	if err := required.Err(); err != nil {
		return 0, err
	}
	if required.IsZero() {
		return state.HealthInfinite, nil
	}

	// requiredScaled already carries one Precision factor.
	return equity.
		Mul(fpmath.Precision).
		Mul(fpmath.BasisPoints).
		DivWide(requiredScaled).
		Uint64()
}
