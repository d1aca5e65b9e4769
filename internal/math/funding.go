// internal/math/funding.go
package math

const (
	// TicksPerHour assumes 400ms ticks.
	TicksPerHour uint64 = 9_000

	// TicksPer8Hours is one funding period.
	TicksPer8Hours uint64 = 72_000
)

// FundingPayment is the funding owed over an interval.
// IsPayment = true means the position pays the pool; false means it receives.
type FundingPayment struct {
	Amount    uint64
	IsPayment bool
}

// ComputeFundingPayment calculates funding for a position held over elapsed ticks.
//
//	notional = size * price * P / 10^decimals
//	periods  = elapsed * P / TicksPer8Hours
//	funding  = notional * |rateBps| * periods / (BasisPoints * P * P)
//
// Partial periods accrue pro rata. Any zero input yields a zero payment whose
// direction still follows the sign of the rate.
func ComputeFundingPayment(
	actualSize uint64, // token units, 10^decimals
	currentPrice uint64, // USD units
	fundingRateBps int64, // per 8h period, signed
	elapsedTicks uint64,
	decimals uint8,
) (FundingPayment, error) {
	isPayment := fundingRateBps > 0

	if actualSize == 0 || currentPrice == 0 || fundingRateBps == 0 || elapsedTicks == 0 {
		return FundingPayment{IsPayment: isPayment}, nil
	}

	notional := Of(actualSize).
		Mul(currentPrice).
		Mul(Precision).
		DivWide(Pow10(decimals))

	periods := Of(elapsedTicks).
		Mul(Precision).
		Div(TicksPer8Hours)

	divisor := Of(BasisPoints).Mul(Precision).Mul(Precision)

	amount, err := notional.
		Mul(absRate(fundingRateBps)).
		MulWide(periods).
		DivWide(divisor).
		Uint64()
	if err != nil {
		return FundingPayment{}, err
	}

	return FundingPayment{Amount: amount, IsPayment: isPayment}, nil
}

// absRate is |rate| without overflowing on math.MinInt64.
func absRate(rate int64) uint64 {
	if rate < 0 {
		return uint64(-(rate + 1)) + 1
	}
	return uint64(rate)
}
