// Package settlement computes fees and payouts and moves money between a
// trader's balance, the vault and the position being settled.
package settlement

import (
	"github.com/pgx404/RegretMarket/internal/errcode"
	fpmath "github.com/pgx404/RegretMarket/internal/math"
	"github.com/pgx404/RegretMarket/internal/risk"
	"github.com/pgx404/RegretMarket/internal/state"
)

// FeeSplit is a fee divided between the protocol and liquidity providers.
// ProtocolFee + LPFee == Fee always.
type FeeSplit struct {
	Fee         uint64 `json:"fee"`
	ProtocolFee uint64 `json:"protocol_fee"`
	LPFee       uint64 `json:"lp_fee"`
}

// ComputeFee returns amount * feeBps / 10000, truncated.
func ComputeFee(amount, feeBps uint64) (uint64, error) {
	return fpmath.ApplyBps(amount, feeBps)
}

// SplitFee gives the protocol fee * shareBps / 10000 and the LPs the rest.
func SplitFee(fee, protocolShareBps uint64) (FeeSplit, error) {
	protocolFee, err := fpmath.ApplyBps(fee, protocolShareBps)
	if err != nil {
		return FeeSplit{}, err
	}
	lpFee, err := fpmath.CheckedSub(fee, protocolFee)
	if err != nil {
		return FeeSplit{}, err
	}
	return FeeSplit{Fee: fee, ProtocolFee: protocolFee, LPFee: lpFee}, nil
}

// AccrueFees adds a split to the vault's fee counters.
func AccrueFees(v *state.Vault, split FeeSplit) error {
	protocol, err := fpmath.CheckedAdd(v.AccumulatedFees, split.ProtocolFee)
	if err != nil {
		return err
	}
	lp, err := fpmath.CheckedAdd(v.AccumulatedLPFees, split.LPFee)
	if err != nil {
		return err
	}
	v.AccumulatedFees = protocol
	v.AccumulatedLPFees = lp
	return nil
}

// OpeningCharge is the fee taken from collateral when a position opens.
type OpeningCharge struct {
	Split               FeeSplit
	EffectiveCollateral uint64
}

// ComputeOpeningCharge takes the opening fee out of collateral. A fee that
// truncates to zero fails FeeTooLow; what remains must be at least half of
// risk.MinCollateral.
func ComputeOpeningCharge(collateral uint64, cfg *state.Config) (OpeningCharge, error) {
	fee, err := ComputeFee(collateral, cfg.OpeningFee)
	if err != nil {
		return OpeningCharge{}, err
	}
	if fee == 0 {
		return OpeningCharge{}, errcode.FeeTooLow
	}

	if fee > collateral {
		return OpeningCharge{}, errcode.InsufficientCollateralForFees
	}
	effective := collateral - fee
	if effective < risk.MinCollateral/2 {
		return OpeningCharge{}, errcode.EffectiveCollateralTooLow
	}

	split, err := SplitFee(fee, cfg.ProtocolFeeShare)
	if err != nil {
		return OpeningCharge{}, err
	}
	return OpeningCharge{Split: split, EffectiveCollateral: effective}, nil
}

// BorrowedAmount is the part of position value funded by the vault.
func BorrowedAmount(positionValue, collateral uint64) (uint64, error) {
	return fpmath.CheckedSub(positionValue, collateral)
}

// CheckLiquidity fails InsufficientLiquidity when the vault cannot lend
// borrowing.
func CheckLiquidity(v *state.Vault, borrowing uint64) error {
	if v.AvailableLiquidity() < borrowing {
		return errcode.InsufficientLiquidity
	}
	return nil
}
