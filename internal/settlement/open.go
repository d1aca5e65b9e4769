package settlement

import (
	fpmath "github.com/pgx404/RegretMarket/internal/math"
	"github.com/pgx404/RegretMarket/internal/state"
)

// ApplyOpen moves the money for a new position: the opening fee leaves the
// trader's balance, effective collateral is locked, and the vault lends
// borrowing. Callers pass copies and commit only on success.
func ApplyOpen(charge OpeningCharge, borrowing uint64, v *state.Vault, b *state.TraderBalance) error {
	balance, err := fpmath.CheckedSub(b.Balance, charge.Split.Fee)
	if err != nil {
		return err
	}
	locked, err := fpmath.CheckedAdd(b.LockedBalance, charge.EffectiveCollateral)
	if err != nil {
		return err
	}
	traderCollateral, err := fpmath.CheckedAdd(v.TraderCollateral, charge.EffectiveCollateral)
	if err != nil {
		return err
	}
	borrowed, err := fpmath.CheckedAdd(v.TotalBorrowed, borrowing)
	if err != nil {
		return err
	}
	if err := AccrueFees(v, charge.Split); err != nil {
		return err
	}

	b.Balance = balance
	b.LockedBalance = locked
	v.TraderCollateral = traderCollateral
	v.TotalBorrowed = borrowed
	return nil
}
