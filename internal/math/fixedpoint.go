// internal/math/fixedpoint.go
package math

import (
	"github.com/holiman/uint256"

	"github.com/pgx404/RegretMarket/internal/errcode"
)

const (
	// Precision is the intermediate scaling factor applied before any ratio
	// division so that truncation happens once, at the end.
	Precision uint64 = 1_000_000

	// BasisPoints is 100% expressed in bps.
	BasisPoints uint64 = 10_000

	// PriceDecimals is the USD unit exponent: $1 = 1_000_000.
	PriceDecimals = 6

	// MaxDecimals is the largest token decimals a market may declare.
	MaxDecimals uint8 = 18

	// wideBits bounds every intermediate. Results wider than this are
	// reported as MathOverflow even though uint256 could hold them.
	wideBits = 128

	// maxPow10 is the largest exponent whose power of ten fits in wideBits.
	maxPow10 = 38
)

// Wide is an unsigned intermediate value bounded to 128 bits.
//
// Operations chain and carry the first failure forward, so a computation
// can be written in the same order as its formula and checked once when
// narrowed back to 64 bits:
//
//	fee, err := Of(collateral).Mul(bps).Mul(Precision).Div(BasisPoints).Div(Precision).Uint64()
//
// Division truncates toward zero. Division by zero, subtraction below zero
// and any product wider than 128 bits all fail with errcode.MathOverflow.
type Wide struct {
	v   uint256.Int
	err error
}

// Of starts a computation from a 64-bit operand.
func Of(x uint64) *Wide {
	w := &Wide{}
	w.v.SetUint64(x)
	return w
}

// Pow10 returns 10^n as a wide value.
func Pow10(n uint8) *Wide {
	if n > maxPow10 {
		return &Wide{err: errcode.MathOverflow}
	}
	w := Of(1)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < n; i++ {
		w.v.Mul(&w.v, ten)
	}
	return w
}

// Err returns the first failure recorded in the chain.
func (w *Wide) Err() error {
	return w.err
}

func (w *Wide) fail(err error) *Wide {
	if w.err == nil {
		w.err = err
	}
	return w
}

// Mul multiplies by a 64-bit operand.
func (w *Wide) Mul(x uint64) *Wide {
	return w.MulWide(Of(x))
}

// MulWide multiplies by another wide value.
func (w *Wide) MulWide(o *Wide) *Wide {
	if w.err != nil {
		return w
	}
	if o.err != nil {
		return w.fail(o.err)
	}
	if _, overflow := w.v.MulOverflow(&w.v, &o.v); overflow || w.v.BitLen() > wideBits {
		return w.fail(errcode.MathOverflow)
	}
	return w
}

// Add adds a 64-bit operand.
func (w *Wide) Add(x uint64) *Wide {
	return w.AddWide(Of(x))
}

// AddWide adds another wide value.
func (w *Wide) AddWide(o *Wide) *Wide {
	if w.err != nil {
		return w
	}
	if o.err != nil {
		return w.fail(o.err)
	}
	if _, overflow := w.v.AddOverflow(&w.v, &o.v); overflow || w.v.BitLen() > wideBits {
		return w.fail(errcode.MathOverflow)
	}
	return w
}

// Sub subtracts a 64-bit operand; going below zero fails.
func (w *Wide) Sub(x uint64) *Wide {
	return w.SubWide(Of(x))
}

// SubWide subtracts another wide value; going below zero fails.
func (w *Wide) SubWide(o *Wide) *Wide {
	if w.err != nil {
		return w
	}
	if o.err != nil {
		return w.fail(o.err)
	}
	if _, underflow := w.v.SubOverflow(&w.v, &o.v); underflow {
		return w.fail(errcode.MathOverflow)
	}
	return w
}

// SaturatingSubWide subtracts and clamps at zero.
func (w *Wide) SaturatingSubWide(o *Wide) *Wide {
	if w.err != nil {
		return w
	}
	if o.err != nil {
		return w.fail(o.err)
	}
	if w.v.Lt(&o.v) {
		w.v.Clear()
		return w
	}
	w.v.Sub(&w.v, &o.v)
	return w
}

// Div divides by a 64-bit operand, truncating.
func (w *Wide) Div(x uint64) *Wide {
	return w.DivWide(Of(x))
}

// DivWide divides by another wide value, truncating.
func (w *Wide) DivWide(o *Wide) *Wide {
	if w.err != nil {
		return w
	}
	if o.err != nil {
		return w.fail(o.err)
	}
	if o.v.IsZero() {
		return w.fail(errcode.MathOverflow)
	}
	w.v.Div(&w.v, &o.v)
	return w
}

// Clone copies the value and its error state.
func (w *Wide) Clone() *Wide {
	c := &Wide{err: w.err}
	c.v.Set(&w.v)
	return c
}

// IsZero reports whether the value is zero. A failed chain is not zero.
func (w *Wide) IsZero() bool {
	return w.err == nil && w.v.IsZero()
}

// Cmp compares two successful values: -1, 0 or +1.
func (w *Wide) Cmp(o *Wide) int {
	return w.v.Cmp(&o.v)
}

// Uint64 narrows the result to 64 bits.
func (w *Wide) Uint64() (uint64, error) {
	if w.err != nil {
		return 0, w.err
	}
	if !w.v.IsUint64() {
		return 0, errcode.MathOverflow
	}
	return w.v.Uint64(), nil
}

// FitsUint64 reports whether the value narrows without loss.
func (w *Wide) FitsUint64() bool {
	return w.err == nil && w.v.IsUint64()
}

// --- 64-bit helpers ---

// CheckedAdd returns a + b or MathOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, errcode.MathOverflow
	}
	return sum, nil
}

// CheckedSub returns a - b or MathOverflow when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, errcode.MathOverflow
	}
	return a - b, nil
}

// SaturatingSub returns a - b clamped at zero.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// ApplyBps returns amount * bps / 10000 computed through the Precision
// intermediate, truncated.
func ApplyBps(amount, bps uint64) (uint64, error) {
	return Of(amount).
		Mul(bps).
		Mul(Precision).
		Div(BasisPoints).
		Div(Precision).
		Uint64()
}

// TokenValue converts a token quantity into USD units:
// size * price / 10^decimals, truncated.
func TokenValue(size, price uint64, decimals uint8) (uint64, error) {
	return Of(size).
		Mul(price).
		DivWide(Pow10(decimals)).
		Uint64()
}

// ScaledTokenValue is TokenValue kept at Precision scale for follow-on
// ratio math.
func ScaledTokenValue(size, price uint64, decimals uint8) *Wide {
	return Of(size).
		Mul(price).
		Mul(Precision).
		DivWide(Pow10(decimals))
}
