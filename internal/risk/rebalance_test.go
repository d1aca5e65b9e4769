package risk_test

import (
	"testing"

	"github.com/pgx404/RegretMarket/internal/risk"
)

const targetBps uint64 = 1_000

func TestCalculateRebalance_NotReached(t *testing.T) {
	pos := longFixture()
	got, err := risk.CalculateRebalance(&pos, 54_999*usd, targetBps, btcDecimals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ShouldRebalance {
		t.Error("target not reached should not rebalance")
	}
	if got.NewActualSize != pos.ActualSize || got.NewTargetPrice != pos.CurrentTargetPrice {
		t.Errorf("no-op should echo current sizing, got %+v", got)
	}
}

func TestCalculateRebalance_LongFirstCycle(t *testing.T) {
	pos := longFixture()
	pos.Collateral = 2_000 * usd

	got, err := risk.CalculateRebalance(&pos, 55_000*usd, targetBps, btcDecimals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.ShouldRebalance {
		t.Fatal("target reached should rebalance")
	}
	// 0.11 BTC * $5,000 == 0.1 BTC * $5,500
	if got.ProfitRealized != 550*usd {
		t.Errorf("profit: got %d, want %d", got.ProfitRealized, 550*usd)
	}
	if got.ExcessToInsurance != 0 {
		t.Errorf("excess: got %d, want 0", got.ExcessToInsurance)
	}
	if got.TraderPayout() != 550*usd {
		t.Errorf("payout: got %d, want %d", got.TraderPayout(), 550*usd)
	}
	if got.NewTargetPrice != 60_500*usd {
		t.Errorf("new target: got %d, want %d", got.NewTargetPrice, 60_500*usd)
	}
	// 0.1 * (60,500 - 49,500) / (60,500 - 55,000) = 0.2 BTC
	if got.NewActualSize != 20_000_000 {
		t.Errorf("new size: got %d, want 20000000", got.NewActualSize)
	}
	if got.NewPositionValue != 11_000*usd {
		t.Errorf("new value: got %d, want %d", got.NewPositionValue, 11_000*usd)
	}
	if got.NewLeverageBps != 55_000 {
		t.Errorf("new leverage: got %d, want 55000", got.NewLeverageBps)
	}
}

func TestCalculateRebalance_LaterCycleExcludesPaidProfit(t *testing.T) {
	pos := longFixture()
	pos.Collateral = 2_000 * usd
	pos.ActualSize = 20_000_000
	pos.ActualEnteredPrice = 55_000 * usd
	pos.CurrentTargetPrice = 60_500 * usd
	pos.RealizedProfit = 550 * usd

	got, err := risk.CalculateRebalance(&pos, 60_500*usd, targetBps, btcDecimals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// cycle profit 0.2 * 5,500 = 1,100; promised total 0.1 * 11,000 = 1,100,
	// of which 550 was already paid.
	if got.ProfitRealized != 1_100*usd {
		t.Errorf("profit: got %d, want %d", got.ProfitRealized, 1_100*usd)
	}
	if got.ExcessToInsurance != 550*usd {
		t.Errorf("excess: got %d, want %d", got.ExcessToInsurance, 550*usd)
	}
	if got.TraderPayout() != 550*usd {
		t.Errorf("payout: got %d, want %d", got.TraderPayout(), 550*usd)
	}
}

func TestCalculateRebalance_Short(t *testing.T) {
	pos := shortFixture()
	pos.Collateral = 2_000 * usd

	got, err := risk.CalculateRebalance(&pos, 45_000*usd, targetBps, btcDecimals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.ShouldRebalance {
		t.Fatal("short target reached should rebalance")
	}
	if got.ProfitRealized != 550*usd {
		t.Errorf("profit: got %d, want %d", got.ProfitRealized, 550*usd)
	}
	if got.NewTargetPrice != 40_500*usd {
		t.Errorf("new target: got %d, want %d", got.NewTargetPrice, 40_500*usd)
	}
	if got.NewTargetPrice >= 45_000*usd {
		t.Error("short target must move down")
	}
}

func TestCalculateRebalance_ZeroSizeIsNoOp(t *testing.T) {
	pos := longFixture()
	pos.ActualSize = 0
	got, err := risk.CalculateRebalance(&pos, 60_000*usd, targetBps, btcDecimals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ShouldRebalance {
		t.Error("zero size should not rebalance")
	}
}
