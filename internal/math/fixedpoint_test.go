package math_test

import (
	"errors"
	stdmath "math"
	"testing"

	"github.com/pgx404/RegretMarket/internal/errcode"
	fpmath "github.com/pgx404/RegretMarket/internal/math"
)

// ============================================================================
// Test: Wide chain
// ============================================================================

func TestWide_ScaleThenDivide(t *testing.T) {
	// $1000 at 10 bps = $1
	got, err := fpmath.Of(1_000_000000).
		Mul(10).
		Mul(fpmath.Precision).
		Div(fpmath.BasisPoints).
		Div(fpmath.Precision).
		Uint64()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1_000000 {
		t.Errorf("got %d, want %d", got, 1_000000)
	}
}

func TestWide_FullWidthProductFits(t *testing.T) {
	// (2^64-1)^2 < 2^128
	w := fpmath.Of(stdmath.MaxUint64).Mul(stdmath.MaxUint64)
	if w.Err() != nil {
		t.Fatalf("unexpected error: %v", w.Err())
	}
	got, err := w.Div(stdmath.MaxUint64).Uint64()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != stdmath.MaxUint64 {
		t.Errorf("got %d, want %d", got, uint64(stdmath.MaxUint64))
	}
}

func TestWide_Overflow128(t *testing.T) {
	_, err := fpmath.Of(stdmath.MaxUint64).Mul(stdmath.MaxUint64).Mul(2).Uint64()
	if !errors.Is(err, errcode.MathOverflow) {
		t.Errorf("got %v, want MathOverflow", err)
	}
}

func TestWide_NarrowingOverflow(t *testing.T) {
	_, err := fpmath.Of(stdmath.MaxUint64).Mul(2).Uint64()
	if !errors.Is(err, errcode.MathOverflow) {
		t.Errorf("got %v, want MathOverflow", err)
	}
}

func TestWide_ErrorIsSticky(t *testing.T) {
	// Later division cannot rescue an earlier overflow.
	_, err := fpmath.Of(stdmath.MaxUint64).
		Mul(stdmath.MaxUint64).
		Mul(4).
		Div(stdmath.MaxUint64).
		Div(stdmath.MaxUint64).
		Uint64()
	if !errors.Is(err, errcode.MathOverflow) {
		t.Errorf("got %v, want MathOverflow", err)
	}
}

func TestWide_SubUnderflow(t *testing.T) {
	_, err := fpmath.Of(5).Sub(6).Uint64()
	if !errors.Is(err, errcode.MathOverflow) {
		t.Errorf("got %v, want MathOverflow", err)
	}
}

func TestWide_SaturatingSub(t *testing.T) {
	got, err := fpmath.Of(5).SaturatingSubWide(fpmath.Of(6)).Uint64()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestWide_DivideByZero(t *testing.T) {
	_, err := fpmath.Of(5).Div(0).Uint64()
	if !errors.Is(err, errcode.MathOverflow) {
		t.Errorf("got %v, want MathOverflow", err)
	}
}

func TestWide_DivisionTruncates(t *testing.T) {
	got, _ := fpmath.Of(9_999).Div(10_000).Uint64()
	if got != 0 {
		t.Errorf("got %d, want 0", got)
	}
	got, _ = fpmath.Of(19_999).Div(10_000).Uint64()
	if got != 1 {
		t.Errorf("got %d, want 1", got)
	}
}

func TestPow10(t *testing.T) {
	got, err := fpmath.Pow10(8).Uint64()
	if err != nil || got != 100_000_000 {
		t.Errorf("got %d (%v), want 100000000", got, err)
	}
	if fpmath.Pow10(38).Err() != nil {
		t.Error("10^38 should fit in 128 bits")
	}
	if !errors.Is(fpmath.Pow10(39).Err(), errcode.MathOverflow) {
		t.Error("10^39 should overflow")
	}
}

// ============================================================================
// Test: 64-bit helpers
// ============================================================================

func TestCheckedAdd(t *testing.T) {
	if _, err := fpmath.CheckedAdd(stdmath.MaxUint64, 1); !errors.Is(err, errcode.MathOverflow) {
		t.Errorf("got %v, want MathOverflow", err)
	}
	got, err := fpmath.CheckedAdd(2, 3)
	if err != nil || got != 5 {
		t.Errorf("got %d (%v), want 5", got, err)
	}
}

func TestCheckedSub(t *testing.T) {
	if _, err := fpmath.CheckedSub(1, 2); !errors.Is(err, errcode.MathOverflow) {
		t.Errorf("got %v, want MathOverflow", err)
	}
}

func TestSaturatingSub(t *testing.T) {
	if got := fpmath.SaturatingSub(1, 2); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
	if got := fpmath.SaturatingSub(7, 2); got != 5 {
		t.Errorf("got %d, want 5", got)
	}
}

func TestApplyBps(t *testing.T) {
	tests := []struct {
		amount, bps, want uint64
	}{
		{1_000_000000, 10, 1_000000},
		{1_000_000000, 10_000, 1_000_000000},
		{1_000_000000, 0, 0},
		{9_999, 1, 0}, // truncates
		{60_000_000000, 5, 30_000000},
	}
	for _, tt := range tests {
		got, err := fpmath.ApplyBps(tt.amount, tt.bps)
		if err != nil {
			t.Fatalf("ApplyBps(%d, %d): %v", tt.amount, tt.bps, err)
		}
		if got != tt.want {
			t.Errorf("ApplyBps(%d, %d): got %d, want %d", tt.amount, tt.bps, got, tt.want)
		}
	}
}

func TestTokenValue(t *testing.T) {
	// 1.2 BTC at $50,000
	got, err := fpmath.TokenValue(120_000_000, 50_000_000000, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 60_000_000000 {
		t.Errorf("got %d, want %d", got, uint64(60_000_000000))
	}
}
