package settlement

import (
	"github.com/pgx404/RegretMarket/internal/errcode"
	fpmath "github.com/pgx404/RegretMarket/internal/math"
	"github.com/pgx404/RegretMarket/internal/risk"
	"github.com/pgx404/RegretMarket/internal/state"
)

// ApplyRebalance pays out a finished cycle and moves the position into the
// next one at price.
//
// The vault pays the cycle's whole realized profit out of lp_deposit. The
// trader's share goes to their free balance and the excess to the insurance
// reserve. Borrowing is rebased to the new position value and must fit in
// the remaining liquidity.
func ApplyRebalance(
	r risk.RebalanceResult,
	price, tick uint64,
	cfg *state.Config,
	pos *state.Position,
	v *state.Vault,
	b *state.TraderBalance,
) error {
	if !r.ShouldRebalance {
		return nil
	}

	if err := risk.ValidatePositionValue(r.NewPositionValue); err != nil {
		return err
	}
	if err := risk.ValidatePositionSize(r.NewActualSize); err != nil {
		return err
	}
	if r.NewLeverageBps > cfg.MaxLeverage {
		return errcode.ExcessiveLeverage
	}

	oldBorrowed, err := BorrowedAmount(pos.PositionValue, pos.Collateral)
	if err != nil {
		return err
	}
	newBorrowed, err := BorrowedAmount(r.NewPositionValue, pos.Collateral)
	if err != nil {
		return err
	}

	totalBorrowed, err := fpmath.CheckedSub(v.TotalBorrowed, oldBorrowed)
	if err != nil {
		return err
	}

	if fpmath.SaturatingSub(v.LPDeposit, totalBorrowed) < r.ProfitRealized {
		return errcode.InsufficientLiquidity
	}
	lpDeposit := v.LPDeposit - r.ProfitRealized

	if fpmath.SaturatingSub(lpDeposit, totalBorrowed) < newBorrowed {
		return errcode.InsufficientLiquidity
	}
	totalBorrowed += newBorrowed

	reserve, err := fpmath.CheckedAdd(v.InsuranceReserve, r.ExcessToInsurance)
	if err != nil {
		return err
	}
	payout := r.TraderPayout()
	balance, err := fpmath.CheckedAdd(b.Balance, payout)
	if err != nil {
		return err
	}
	realized, err := fpmath.CheckedAdd(pos.RealizedProfit, payout)
	if err != nil {
		return err
	}

	v.LPDeposit = lpDeposit
	v.TotalBorrowed = totalBorrowed
	v.InsuranceReserve = reserve
	b.Balance = balance

	pos.ActualEnteredPrice = price
	pos.CurrentPrice = price
	pos.ActualSize = r.NewActualSize
	pos.CurrentTargetPrice = r.NewTargetPrice
	pos.Leverage = r.NewLeverageBps
	pos.PositionValue = r.NewPositionValue
	pos.RealizedProfit = realized
	pos.RebalanceCount++
	pos.LastUpdated = tick
	return nil
}
