package settlement

import (
	fpmath "github.com/pgx404/RegretMarket/internal/math"
	"github.com/pgx404/RegretMarket/internal/state"
)

// LiquidationSettlement is a close settlement with a liquidation reward
// taken from the trader's return and any deficit routed to the insurance
// reserve.
type LiquidationSettlement struct {
	CloseSettlement
	HealthBps          uint64 `json:"health_bps"`
	Reward             uint64 `json:"reward"`
	CoveredByInsurance uint64 `json:"covered_by_insurance"`
	BadDebt            uint64 `json:"bad_debt"` // absorbed by lp_deposit
}

// ComputeLiquidation sizes a forced close. The reward is
// collateral * liquidation_fee / 10000, capped at what the trader would
// have received.
func ComputeLiquidation(
	pos *state.Position,
	v *state.Vault,
	price uint64,
	healthBps uint64,
	cfg *state.Config,
	decimals uint8,
	fund *state.InsuranceFund,
) (LiquidationSettlement, error) {
	closing, err := ComputeClose(pos, price, cfg, decimals)
	if err != nil {
		return LiquidationSettlement{}, err
	}

	reward, err := fpmath.ApplyBps(pos.Collateral, cfg.LiquidationFee)
	if err != nil {
		return LiquidationSettlement{}, err
	}
	if reward > closing.AmountToReturn {
		reward = closing.AmountToReturn
	}
	closing.AmountToReturn -= reward

	covered, remaining := fund.ComputeCoverage(v.InsuranceReserve, closing.Deficit)

	return LiquidationSettlement{
		CloseSettlement:    closing,
		HealthBps:          healthBps,
		Reward:             reward,
		CoveredByInsurance: covered,
		BadDebt:            remaining,
	}, nil
}

// ApplyLiquidation applies the close, credits the reward and moves the
// covered deficit from the insurance reserve into lp_deposit.
func ApplyLiquidation(s LiquidationSettlement, pos *state.Position, v *state.Vault, b *state.TraderBalance) error {
	if err := ApplyClose(s.CloseSettlement, pos, v, b); err != nil {
		return err
	}

	rewards, err := fpmath.CheckedAdd(v.AccumulatedLiquidationRewards, s.Reward)
	if err != nil {
		return err
	}
	reserve, err := fpmath.CheckedSub(v.InsuranceReserve, s.CoveredByInsurance)
	if err != nil {
		return err
	}
	lpDeposit, err := fpmath.CheckedAdd(v.LPDeposit, s.CoveredByInsurance)
	if err != nil {
		return err
	}

	v.AccumulatedLiquidationRewards = rewards
	v.InsuranceReserve = reserve
	v.LPDeposit = lpDeposit
	return nil
}
