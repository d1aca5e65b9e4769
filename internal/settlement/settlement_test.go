package settlement_test

import (
	"errors"
	"testing"

	"github.com/pgx404/RegretMarket/internal/errcode"
	"github.com/pgx404/RegretMarket/internal/risk"
	"github.com/pgx404/RegretMarket/internal/settlement"
	"github.com/pgx404/RegretMarket/internal/state"
)

const (
	usd         uint64 = 1_000_000
	btcDecimals uint8  = 8
)

func defaultConfig() state.Config {
	var cfg state.Config
	cfg.Apply(state.DefaultConfigParams)
	return cfg
}

// 0.11 BTC entered at $50,000 with $1,000 collateral: value $5,500.
func openLong() state.Position {
	return state.Position{
		IsLong:             true,
		Pair:               "BTC-USD",
		TokenMint:          "USDC",
		DesiredEntryPrice:  49_500 * usd,
		DesiredSize:        10_000_000,
		ActualSize:         11_000_000,
		ActualEnteredPrice: 50_000 * usd,
		CurrentPrice:       50_000 * usd,
		CurrentTargetPrice: 55_000 * usd,
		Collateral:         1_000 * usd,
		PositionValue:      5_500 * usd,
		Leverage:           55_000,
		Status:             state.PositionStatusOpen,
	}
}

// vault and balance as they stand right after openLong was opened.
func openBooks() (state.Vault, state.TraderBalance) {
	v := state.NewVault("USDC")
	v.TraderCollateral = 1_000 * usd
	v.TotalBorrowed = 4_500 * usd
	b := state.TraderBalance{
		TokenMint:     "USDC",
		Balance:       100_000 * usd,
		LockedBalance: 1_000 * usd,
	}
	return v, b
}

// total is every bucket money can sit in. Settlement only moves money
// between them.
func total(v *state.Vault, b *state.TraderBalance) uint64 {
	return b.Balance + v.LPDeposit + v.AccumulatedFees + v.AccumulatedLPFees +
		v.AccumulatedLiquidationRewards + v.InsuranceReserve
}

// ============================================================================
// Test: Fees
// ============================================================================

func TestSplitFee_SumsToFee(t *testing.T) {
	fees := []uint64{0, 1, 7, 999, 5_500_000, 123_456_789}
	for share := uint64(0); share <= 10_000; share++ {
		for _, fee := range fees {
			split, err := settlement.SplitFee(fee, share)
			if err != nil {
				t.Fatalf("share %d fee %d: %v", share, fee, err)
			}
			if split.ProtocolFee+split.LPFee != fee {
				t.Fatalf("share %d fee %d: %d + %d != fee", share, fee, split.ProtocolFee, split.LPFee)
			}
		}
	}
}

func TestComputeOpeningCharge(t *testing.T) {
	cfg := defaultConfig()

	charge, err := settlement.ComputeOpeningCharge(1_000*usd, &cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if charge.Split.Fee != 1*usd {
		t.Errorf("fee: got %d, want %d", charge.Split.Fee, 1*usd)
	}
	if charge.EffectiveCollateral != 999*usd {
		t.Errorf("effective: got %d, want %d", charge.EffectiveCollateral, 999*usd)
	}
	if charge.Split.ProtocolFee != 200_000 || charge.Split.LPFee != 800_000 {
		t.Errorf("split: got %+v", charge.Split)
	}
}

func TestComputeOpeningCharge_Errors(t *testing.T) {
	tests := []struct {
		name       string
		openingFee uint64
		collateral uint64
		want       error
	}{
		{"zero fee rate", 0, 1_000 * usd, errcode.FeeTooLow},
		{"fee truncates to zero", 10, 999, errcode.FeeTooLow},
		{"effective below half minimum", 6_000, 10 * usd, errcode.EffectiveCollateralTooLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.OpeningFee = tt.openingFee
			_, err := settlement.ComputeOpeningCharge(tt.collateral, &cfg)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestApplyOpen(t *testing.T) {
	cfg := defaultConfig()
	v := state.NewVault("USDC")
	b := state.TraderBalance{TokenMint: "USDC", Balance: 100_000 * usd}
	before := total(&v, &b)

	charge, err := settlement.ComputeOpeningCharge(1_000*usd, &cfg)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if err := settlement.ApplyOpen(charge, 4_501*usd, &v, &b); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if b.Balance != 99_999*usd || b.LockedBalance != 999*usd {
		t.Errorf("balance: got %d locked %d", b.Balance, b.LockedBalance)
	}
	if v.TraderCollateral != 999*usd || v.TotalBorrowed != 4_501*usd {
		t.Errorf("vault: collateral %d borrowed %d", v.TraderCollateral, v.TotalBorrowed)
	}
	if got := total(&v, &b); got != before {
		t.Errorf("total moved: got %d, want %d", got, before)
	}
}

func TestCheckLiquidity(t *testing.T) {
	v := state.Vault{LPDeposit: 100 * usd, TotalBorrowed: 60 * usd}
	if err := settlement.CheckLiquidity(&v, 40*usd); err != nil {
		t.Errorf("exact fit: %v", err)
	}
	if err := settlement.CheckLiquidity(&v, 40*usd+1); !errors.Is(err, errcode.InsufficientLiquidity) {
		t.Errorf("over: got %v", err)
	}
}

// ============================================================================
// Test: Close
// ============================================================================

func TestComputeClose(t *testing.T) {
	tests := []struct {
		name        string
		price       uint64
		wantAmount  uint64
		wantGain    uint64
		wantLoss    uint64
		wantDeficit uint64
	}{
		// fee is 0.1% of $5,500; at a flat price the trader pays exactly the
		// fee and the pool does not move
		{"flat round trip", 50_000 * usd, 994_500_000, 0, 0, 0},
		{"profit", 51_000 * usd, 1_104_500_000, 0, 110 * usd, 0},
		{"profit below fee", 50_040 * usd, 1_000 * usd, 0, 5_500_000, 0},
		{"partial loss", 49_000 * usd, 884_500_000, 110 * usd, 0, 0},
		{"total loss", 40_000 * usd, 0, 994_500_000, 0, 105_500_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			pos := openLong()
			got, err := settlement.ComputeClose(&pos, tt.price, &cfg, btcDecimals)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.AmountToReturn != tt.wantAmount {
				t.Errorf("amount: got %d, want %d", got.AmountToReturn, tt.wantAmount)
			}
			if got.PoolGain != tt.wantGain || got.PoolLoss != tt.wantLoss {
				t.Errorf("pool: got +%d -%d, want +%d -%d", got.PoolGain, got.PoolLoss, tt.wantGain, tt.wantLoss)
			}
			if got.Deficit != tt.wantDeficit {
				t.Errorf("deficit: got %d, want %d", got.Deficit, tt.wantDeficit)
			}
			if got.Borrowed != 4_500*usd {
				t.Errorf("borrowed: got %d, want %d", got.Borrowed, 4_500*usd)
			}
		})
	}
}

func TestApplyClose_ConservesMoney(t *testing.T) {
	for _, price := range []uint64{40_000 * usd, 49_000 * usd, 50_000 * usd, 51_000 * usd, 60_000 * usd} {
		cfg := defaultConfig()
		pos := openLong()
		v, b := openBooks()
		before := total(&v, &b)

		s, err := settlement.ComputeClose(&pos, price, &cfg, btcDecimals)
		if err != nil {
			t.Fatalf("price %d: compute: %v", price, err)
		}
		if err := settlement.ApplyClose(s, &pos, &v, &b); err != nil {
			t.Fatalf("price %d: apply: %v", price, err)
		}

		if got := total(&v, &b); got != before {
			t.Errorf("price %d: total got %d, want %d", price, got, before)
		}
		if v.TotalBorrowed != 0 || v.TraderCollateral != 0 || b.LockedBalance != 0 {
			t.Errorf("price %d: position not released: %+v %+v", price, v, b)
		}
		if b.Balance != 99_000*usd+s.AmountToReturn {
			t.Errorf("price %d: balance got %d, want %d", price, b.Balance, 99_000*usd+s.AmountToReturn)
		}
	}
}

func TestApplyClose_InsufficientLiquidityLeavesBooks(t *testing.T) {
	cfg := defaultConfig()
	pos := openLong()
	v, b := openBooks()
	v.LPDeposit = 9_050 * usd
	v.TotalBorrowed = 13_500 * usd // $50 free once this position's borrowing is released
	wantV, wantB := v, b

	s, err := settlement.ComputeClose(&pos, 51_000*usd, &cfg, btcDecimals)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	err = settlement.ApplyClose(s, &pos, &v, &b)
	if !errors.Is(err, errcode.InsufficientLiquidity) {
		t.Fatalf("got %v, want InsufficientLiquidity", err)
	}
	if v != wantV || b != wantB {
		t.Error("failed close mutated books")
	}
}

// ============================================================================
// Test: Liquidation
// ============================================================================

func TestLiquidation_RewardCappedAtReturn(t *testing.T) {
	cfg := defaultConfig()
	pos := openLong()
	v, b := openBooks()
	before := total(&v, &b)

	s, err := settlement.ComputeLiquidation(&pos, &v, 41_000*usd, 0, &cfg, btcDecimals, state.NewInsuranceFund())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// $1,000 - $990 loss - $5.50 fee leaves $4.50, less than the $50 reward.
	if s.Reward != 4_500_000 || s.AmountToReturn != 0 {
		t.Errorf("reward %d amount %d", s.Reward, s.AmountToReturn)
	}
	if err := settlement.ApplyLiquidation(s, &pos, &v, &b); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if v.AccumulatedLiquidationRewards != 4_500_000 {
		t.Errorf("rewards: got %d", v.AccumulatedLiquidationRewards)
	}
	if got := total(&v, &b); got != before {
		t.Errorf("total got %d, want %d", got, before)
	}
}

func TestLiquidation_FullReward(t *testing.T) {
	cfg := defaultConfig()
	pos := openLong()
	v, _ := openBooks()

	s, err := settlement.ComputeLiquidation(&pos, &v, 45_000*usd, 0, &cfg, btcDecimals, state.NewInsuranceFund())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// $1,000 - $550 loss - $5.50 fee = $444.50, minus 5% of collateral.
	if s.Reward != 50*usd {
		t.Errorf("reward: got %d, want %d", s.Reward, 50*usd)
	}
	if s.AmountToReturn != 394_500_000 {
		t.Errorf("amount: got %d, want 394500000", s.AmountToReturn)
	}
}

func TestLiquidation_DeficitCoverage(t *testing.T) {
	cfg := defaultConfig()
	pos := openLong()
	v, b := openBooks()
	v.InsuranceReserve = 100 * usd
	before := total(&v, &b)
	lpBefore := v.LPDeposit

	s, err := settlement.ComputeLiquidation(&pos, &v, 40_000*usd, 0, &cfg, btcDecimals, state.NewInsuranceFund())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if s.Deficit != 105_500_000 {
		t.Fatalf("deficit: got %d", s.Deficit)
	}
	if s.CoveredByInsurance != 100*usd || s.BadDebt != 5_500_000 {
		t.Errorf("covered %d bad debt %d", s.CoveredByInsurance, s.BadDebt)
	}
	if err := settlement.ApplyLiquidation(s, &pos, &v, &b); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if v.InsuranceReserve != 0 {
		t.Errorf("reserve: got %d, want 0", v.InsuranceReserve)
	}
	if v.LPDeposit != lpBefore+994_500_000+100*usd {
		t.Errorf("lp: got %d", v.LPDeposit)
	}
	if got := total(&v, &b); got != before {
		t.Errorf("total got %d, want %d", got, before)
	}
}

// ============================================================================
// Test: Rebalance
// ============================================================================

func TestApplyRebalance(t *testing.T) {
	cfg := defaultConfig()
	pos := openLong()
	pos.Collateral = 2_000 * usd
	pos.Leverage = 27_500
	v, b := openBooks()
	v.TraderCollateral = 2_000 * usd
	v.TotalBorrowed = 3_500 * usd
	b.LockedBalance = 2_000 * usd
	before := total(&v, &b)

	r, err := risk.CalculateRebalance(&pos, 55_000*usd, cfg.RebalanceTarget, btcDecimals)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if err := settlement.ApplyRebalance(r, 55_000*usd, 42, &cfg, &pos, &v, &b); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if b.Balance != 100_550*usd {
		t.Errorf("balance: got %d, want %d", b.Balance, 100_550*usd)
	}
	if v.TotalBorrowed != 9_000*usd {
		t.Errorf("borrowed: got %d, want %d", v.TotalBorrowed, 9_000*usd)
	}
	if pos.ActualSize != 20_000_000 || pos.CurrentTargetPrice != 60_500*usd {
		t.Errorf("position: size %d target %d", pos.ActualSize, pos.CurrentTargetPrice)
	}
	if pos.ActualEnteredPrice != 55_000*usd || pos.RebalanceCount != 1 || pos.LastUpdated != 42 {
		t.Errorf("position: %+v", pos)
	}
	if pos.RealizedProfit != 550*usd {
		t.Errorf("realized: got %d", pos.RealizedProfit)
	}
	if got := total(&v, &b); got != before {
		t.Errorf("total got %d, want %d", got, before)
	}
}

func TestApplyRebalance_ExcessiveLeverage(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxLeverage = 50_000
	pos := openLong()
	pos.Collateral = 2_000 * usd
	v, b := openBooks()
	v.TotalBorrowed = 3_500 * usd
	wantPos := pos

	r, err := risk.CalculateRebalance(&pos, 55_000*usd, cfg.RebalanceTarget, btcDecimals)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	err = settlement.ApplyRebalance(r, 55_000*usd, 42, &cfg, &pos, &v, &b)
	if !errors.Is(err, errcode.ExcessiveLeverage) {
		t.Fatalf("got %v, want ExcessiveLeverage", err)
	}
	if pos != wantPos {
		t.Error("failed rebalance mutated position")
	}
}

func TestApplyRebalance_NotReachedIsNoop(t *testing.T) {
	cfg := defaultConfig()
	pos := openLong()
	v, b := openBooks()
	wantV, wantB := v, b

	r, err := risk.CalculateRebalance(&pos, 52_000*usd, cfg.RebalanceTarget, btcDecimals)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if err := settlement.ApplyRebalance(r, 52_000*usd, 1, &cfg, &pos, &v, &b); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if v != wantV || b != wantB || pos.RebalanceCount != 0 {
		t.Error("no-op rebalance mutated state")
	}
}
