package risk

import (
	fpmath "github.com/pgx404/RegretMarket/internal/math"
	"github.com/pgx404/RegretMarket/internal/state"
)

// PnLResult is unsigned PnL with a direction flag.
type PnLResult struct {
	GrossPnL uint64
	NetPnL   uint64 // after funding
	IsProfit bool   // true only when NetPnL > 0 on the profit side
}

// SignedNetPnL returns NetPnL with the sign of IsProfit.
func (r PnLResult) SignedNetPnL() int64 {
	if r.IsProfit {
		return int64(r.NetPnL)
	}
	return -int64(r.NetPnL)
}

// CalculatePnL values the position at price against its actual entry.
// In profit, funding paid is subtracted saturating at zero; in loss it is
// added, checked.
func CalculatePnL(pos *state.Position, currentPrice uint64, decimals uint8) (PnLResult, error) {
	if pos.ActualSize == 0 {
		return PnLResult{}, nil
	}

	divisor := fpmath.Pow10(decimals)

	currentValue := fpmath.Of(pos.ActualSize).Mul(currentPrice).DivWide(divisor)
	entryValue := fpmath.Of(pos.ActualSize).Mul(pos.ActualEnteredPrice).DivWide(divisor)
	if err := currentValue.Err(); err != nil {
		return PnLResult{}, err
	}
	if err := entryValue.Err(); err != nil {
		return PnLResult{}, err
	}

	rising := currentValue.Cmp(entryValue) >= 0
	falling := entryValue.Cmp(currentValue) >= 0

	var gross *fpmath.Wide
	var inProfit bool
	switch {
	case pos.IsLong && rising:
		gross, inProfit = currentValue.SubWide(entryValue), true
	case pos.IsLong:
		gross, inProfit = entryValue.SubWide(currentValue), false
	case falling:
		gross, inProfit = entryValue.SubWide(currentValue), true
	default:
		gross, inProfit = currentValue.SubWide(entryValue), false
	}

	grossPnL, err := gross.Uint64()
	if err != nil {
		return PnLResult{}, err
	}

	if inProfit {
		net := fpmath.SaturatingSub(grossPnL, pos.CumulativeFundingPaid)
		return PnLResult{GrossPnL: grossPnL, NetPnL: net, IsProfit: net > 0}, nil
	}

	net, err := fpmath.CheckedAdd(grossPnL, pos.CumulativeFundingPaid)
	if err != nil {
		return PnLResult{}, err
	}
	return PnLResult{GrossPnL: grossPnL, NetPnL: net}, nil
}
