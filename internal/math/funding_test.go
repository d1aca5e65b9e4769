package math_test

import (
	stdmath "math"
	"testing"

	fpmath "github.com/pgx404/RegretMarket/internal/math"
)

const (
	oneBTC   uint64 = 100_000_000
	btcPrice uint64 = 50_000_000000
)

func TestComputeFundingPayment_FullPeriod(t *testing.T) {
	// 0.1% of $50,000 over one 8h period
	fp, err := fpmath.ComputeFundingPayment(oneBTC, btcPrice, 10, fpmath.TicksPer8Hours, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp.Amount != 50_000000 {
		t.Errorf("amount: got %d, want %d", fp.Amount, 50_000000)
	}
	if !fp.IsPayment {
		t.Error("positive rate should be a payment")
	}
}

func TestComputeFundingPayment_PartialPeriod(t *testing.T) {
	fp, err := fpmath.ComputeFundingPayment(oneBTC, btcPrice, 10, fpmath.TicksPer8Hours/2, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp.Amount != 25_000000 {
		t.Errorf("amount: got %d, want %d", fp.Amount, 25_000000)
	}
}

func TestComputeFundingPayment_NegativeRateReceives(t *testing.T) {
	fp, err := fpmath.ComputeFundingPayment(oneBTC, btcPrice, -10, fpmath.TicksPer8Hours, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp.IsPayment {
		t.Error("negative rate should not be a payment")
	}
	if fp.Amount != 50_000000 {
		t.Errorf("amount: got %d, want %d", fp.Amount, 50_000000)
	}
}

func TestComputeFundingPayment_ZeroInputs(t *testing.T) {
	tests := []struct {
		name      string
		size      uint64
		price     uint64
		rate      int64
		elapsed   uint64
		isPayment bool
	}{
		{"zero size", 0, btcPrice, 10, 100, true},
		{"zero price", oneBTC, 0, 10, 100, true},
		{"zero rate", oneBTC, btcPrice, 0, 100, false},
		{"zero elapsed", oneBTC, btcPrice, 10, 0, true},
		{"zero elapsed negative rate", oneBTC, btcPrice, -10, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp, err := fpmath.ComputeFundingPayment(tt.size, tt.price, tt.rate, tt.elapsed, 8)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if fp.Amount != 0 {
				t.Errorf("amount: got %d, want 0", fp.Amount)
			}
			if fp.IsPayment != tt.isPayment {
				t.Errorf("is_payment: got %v, want %v", fp.IsPayment, tt.isPayment)
			}
		})
	}
}

func TestComputeFundingPayment_MinInt64Rate(t *testing.T) {
	// |MinInt64| must not wrap; the product overflows instead.
	_, err := fpmath.ComputeFundingPayment(oneBTC, btcPrice, stdmath.MinInt64, fpmath.TicksPer8Hours, 8)
	if err == nil {
		t.Fatal("expected overflow for an absurd rate")
	}
}
