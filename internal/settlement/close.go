package settlement

import (
	"github.com/pgx404/RegretMarket/internal/errcode"
	fpmath "github.com/pgx404/RegretMarket/internal/math"
	"github.com/pgx404/RegretMarket/internal/risk"
	"github.com/pgx404/RegretMarket/internal/state"
)

// CloseSettlement is the full outcome of closing a position at a price.
// Funding must already be accrued on the position.
type CloseSettlement struct {
	Price          uint64         `json:"price"`
	PnL            risk.PnLResult `json:"pnl"`
	Split          FeeSplit       `json:"closing_fee"`
	Borrowed       uint64         `json:"borrowed"`
	AmountToReturn uint64         `json:"amount_to_return"`
	PoolGain       uint64         `json:"pool_gain"` // credited to lp_deposit
	PoolLoss       uint64         `json:"pool_loss"` // debited from lp_deposit
	Deficit        uint64         `json:"deficit"`   // loss not covered by collateral
}

// ComputeClose values the position and sizes the payout.
//
//	profit: amount = collateral + sat(net - fee)
//	loss:   amount = collateral - (net + fee), or 0 once that reaches collateral
//
// The pool moves by (collateral - amount) - fee, so trader balance,
// lp_deposit and the fee counters always sum to the same total.
func ComputeClose(pos *state.Position, price uint64, cfg *state.Config, decimals uint8) (CloseSettlement, error) {
	pnl, err := risk.CalculatePnL(pos, price, decimals)
	if err != nil {
		return CloseSettlement{}, err
	}

	fee, err := ComputeFee(pos.PositionValue, cfg.ClosingFee)
	if err != nil {
		return CloseSettlement{}, err
	}
	split, err := SplitFee(fee, cfg.ProtocolFeeShare)
	if err != nil {
		return CloseSettlement{}, err
	}

	borrowed, err := BorrowedAmount(pos.PositionValue, pos.Collateral)
	if err != nil {
		return CloseSettlement{}, err
	}

	s := CloseSettlement{
		Price:    price,
		PnL:      pnl,
		Split:    split,
		Borrowed: borrowed,
	}

	if pnl.IsProfit {
		amount, err := fpmath.CheckedAdd(pos.Collateral, fpmath.SaturatingSub(pnl.NetPnL, fee))
		if err != nil {
			return CloseSettlement{}, err
		}
		s.AmountToReturn = amount
	} else {
		deduction, err := fpmath.CheckedAdd(pnl.NetPnL, fee)
		if err != nil {
			return CloseSettlement{}, err
		}
		if deduction >= pos.Collateral {
			s.Deficit = deduction - pos.Collateral
		} else {
			s.AmountToReturn = pos.Collateral - deduction
		}
	}

	if s.AmountToReturn >= pos.Collateral {
		s.PoolLoss, err = fpmath.CheckedAdd(s.AmountToReturn-pos.Collateral, fee)
		if err != nil {
			return CloseSettlement{}, err
		}
		return s, nil
	}
	traderLoss := pos.Collateral - s.AmountToReturn
	if traderLoss >= fee {
		s.PoolGain = traderLoss - fee
	} else {
		s.PoolLoss = fee - traderLoss
	}
	return s, nil
}

// ApplyClose releases the position's borrowing and collateral, accrues the
// closing fee, settles PnL against lp_deposit and credits the trader.
// The trader's balance ends at balance - collateral + amount_to_return.
func ApplyClose(s CloseSettlement, pos *state.Position, v *state.Vault, b *state.TraderBalance) error {
	totalBorrowed, err := fpmath.CheckedSub(v.TotalBorrowed, s.Borrowed)
	if err != nil {
		return err
	}
	traderCollateral, err := fpmath.CheckedSub(v.TraderCollateral, pos.Collateral)
	if err != nil {
		return err
	}

	lpDeposit := v.LPDeposit
	if s.PoolLoss > 0 {
		if fpmath.SaturatingSub(lpDeposit, totalBorrowed) < s.PoolLoss {
			return errcode.InsufficientLiquidity
		}
		lpDeposit -= s.PoolLoss
	}
	lpDeposit, err = fpmath.CheckedAdd(lpDeposit, s.PoolGain)
	if err != nil {
		return err
	}

	locked, err := fpmath.CheckedSub(b.LockedBalance, pos.Collateral)
	if err != nil {
		return err
	}
	balance, err := fpmath.CheckedSub(b.Balance, pos.Collateral)
	if err != nil {
		return err
	}
	balance, err = fpmath.CheckedAdd(balance, s.AmountToReturn)
	if err != nil {
		return err
	}

	if err := AccrueFees(v, s.Split); err != nil {
		return err
	}

	v.TotalBorrowed = totalBorrowed
	v.TraderCollateral = traderCollateral
	v.LPDeposit = lpDeposit
	b.LockedBalance = locked
	b.Balance = balance
	return nil
}
