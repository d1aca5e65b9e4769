package state

import fpmath "github.com/pgx404/RegretMarket/internal/math"

const (
	// InitialPoolDeposit seeds a new vault: $100,000,000.
	InitialPoolDeposit uint64 = 100_000_000_000_000

	// PoolFundingAmount is added per FundPool call: $1,000,000.
	PoolFundingAmount uint64 = 1_000_000_000_000
)

// Vault is the liquidity pool for one collateral asset. It is the
// counterparty to every position funded in that asset.
type Vault struct {
	TokenMint                     string `json:"token_mint"`
	LPDeposit                     uint64 `json:"lp_deposit"`
	TotalLPShares                 uint64 `json:"total_lp_shares"`
	AccumulatedLPFees             uint64 `json:"accumulated_lp_fees"`
	TraderDeposit                 uint64 `json:"trader_deposit"`
	TraderCollateral              uint64 `json:"trader_collateral"`
	TotalBorrowed                 uint64 `json:"total_borrowed"`
	AccumulatedFees               uint64 `json:"accumulated_fees"`
	AccumulatedLiquidationRewards uint64 `json:"accumulated_liquidation_rewards"`
	InsuranceReserve              uint64 `json:"insurance_reserve"`
	IsPaused                      bool   `json:"is_paused"`
}

// NewVault returns a pool seeded with InitialPoolDeposit.
func NewVault(tokenMint string) Vault {
	return Vault{
		TokenMint: tokenMint,
		LPDeposit: InitialPoolDeposit,
	}
}

// AvailableLiquidity is lp_deposit - total_borrowed, floored at zero.
func (v *Vault) AvailableLiquidity() uint64 {
	return fpmath.SaturatingSub(v.LPDeposit, v.TotalBorrowed)
}

// CanonicalBytes returns deterministic serialization for hashing
func (v *Vault) CanonicalBytes() []byte {
	buf := make([]byte, 0, 112)
	buf = appendString(buf, v.TokenMint)
	buf = appendUint64LE(buf, v.LPDeposit)
	buf = appendUint64LE(buf, v.TotalLPShares)
	buf = appendUint64LE(buf, v.AccumulatedLPFees)
	buf = appendUint64LE(buf, v.TraderDeposit)
	buf = appendUint64LE(buf, v.TraderCollateral)
	buf = appendUint64LE(buf, v.TotalBorrowed)
	buf = appendUint64LE(buf, v.AccumulatedFees)
	buf = appendUint64LE(buf, v.AccumulatedLiquidationRewards)
	buf = appendUint64LE(buf, v.InsuranceReserve)
	buf = appendBool(buf, v.IsPaused)
	return buf
}

func (v *Vault) Key() string {
	return VaultKey(v.TokenMint)
}
