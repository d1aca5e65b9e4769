package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/pgx404/RegretMarket/internal/state"
)

// Bucket is a place money can sit in.
type Bucket uint8

const (
	// Trader scope
	BucketTraderBalance Bucket = iota

	// Vault scope
	BucketLPDeposit
	BucketProtocolFees
	BucketLPFees
	BucketLiquidationRewards
	BucketInsuranceReserve

	// External scope: money entering the system (virtual balance grants,
	// pool seeding).
	BucketExternal
)

func (b Bucket) String() string {
	switch b {
	case BucketTraderBalance:
		return "balance"
	case BucketLPDeposit:
		return "lp_deposit"
	case BucketProtocolFees:
		return "protocol_fees"
	case BucketLPFees:
		return "lp_fees"
	case BucketLiquidationRewards:
		return "liquidation_rewards"
	case BucketInsuranceReserve:
		return "insurance_reserve"
	case BucketExternal:
		return "external"
	default:
		return "unknown"
	}
}

// AccountKey names one bucket. Owner is set for trader buckets only.
type AccountKey struct {
	Bucket    Bucket
	Owner     uuid.UUID
	TokenMint string
}

func NewTraderAccountKey(owner uuid.UUID, tokenMint string) AccountKey {
	return AccountKey{Bucket: BucketTraderBalance, Owner: owner, TokenMint: tokenMint}
}

func NewVaultAccountKey(b Bucket, tokenMint string) AccountKey {
	return AccountKey{Bucket: b, TokenMint: tokenMint}
}

// AccountPath returns the string representation for logging.
func (k AccountKey) AccountPath() string {
	switch k.Bucket {
	case BucketTraderBalance:
		return fmt.Sprintf("trader:%s:%s:%s", k.Owner, k.TokenMint, k.Bucket)
	case BucketExternal:
		return fmt.Sprintf("external:%s", k.TokenMint)
	default:
		return fmt.Sprintf("vault:%s:%s", k.TokenMint, k.Bucket)
	}
}

// less orders keys by bucket, token, then owner.
func (k AccountKey) less(o AccountKey) bool {
	if k.Bucket != o.Bucket {
		return k.Bucket < o.Bucket
	}
	if k.TokenMint != o.TokenMint {
		return k.TokenMint < o.TokenMint
	}
	return k.Owner.String() < o.Owner.String()
}

// Holdings is the amount in each bucket at one point in time.
type Holdings map[AccountKey]uint64

// HoldingsOf reads the buckets of a vault and any number of trader
// balances in the same token.
func HoldingsOf(v *state.Vault, balances ...*state.TraderBalance) Holdings {
	h := Holdings{
		NewVaultAccountKey(BucketLPDeposit, v.TokenMint):          v.LPDeposit,
		NewVaultAccountKey(BucketProtocolFees, v.TokenMint):       v.AccumulatedFees,
		NewVaultAccountKey(BucketLPFees, v.TokenMint):             v.AccumulatedLPFees,
		NewVaultAccountKey(BucketLiquidationRewards, v.TokenMint): v.AccumulatedLiquidationRewards,
		NewVaultAccountKey(BucketInsuranceReserve, v.TokenMint):   v.InsuranceReserve,
	}
	for _, b := range balances {
		h[NewTraderAccountKey(b.Owner, b.TokenMint)] = b.Balance
	}
	return h
}
