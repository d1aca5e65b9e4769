// Package oracle reads raw feed prices and turns them into trusted prices
// in 6-decimal USD units.
package oracle

import (
	"context"
	"time"

	"github.com/pgx404/RegretMarket/internal/errcode"
	fpmath "github.com/pgx404/RegretMarket/internal/math"
)

const (
	// MaxConfidenceBps is the widest confidence interval accepted, as a
	// share of price: 1%.
	MaxConfidenceBps uint64 = 100

	// MaxPriceAge is how old a published price may be.
	MaxPriceAge = 60 * time.Second
)

// PriceData is one raw feed observation: the real price is
// Price * 10^Exponent, give or take Conf in the same units.
type PriceData struct {
	FeedID      string    `json:"feed_id"`
	Price       int64     `json:"price"`
	Conf        uint64    `json:"conf"`
	Exponent    int32     `json:"exponent"`
	PublishTime time.Time `json:"publish_time"`
}

// PriceFeed returns the latest observation for a feed no older than maxAge,
// or errcode.StalePrice.
type PriceFeed interface {
	GetPrice(ctx context.Context, feedID string, maxAge time.Duration) (PriceData, error)
}

// GetNormalizedPrice reads feedID and returns a validated price in USD
// units.
func GetNormalizedPrice(ctx context.Context, feed PriceFeed, feedID string) (uint64, error) {
	data, err := feed.GetPrice(ctx, feedID, MaxPriceAge)
	if err != nil {
		return 0, err
	}
	if data.Price <= 0 {
		return 0, errcode.InvalidPrice
	}
	if err := ValidateConfidence(data); err != nil {
		return 0, err
	}
	return Normalize(data)
}

// ValidateConfidence rejects observations whose conf / price exceeds
// MaxConfidenceBps.
func ValidateConfidence(data PriceData) error {
	if data.Price <= 0 {
		return errcode.InvalidPrice
	}
	confBps, err := fpmath.Of(data.Conf).
		Mul(fpmath.BasisPoints).
		Div(uint64(data.Price)).
		Uint64()
	if err != nil {
		return err
	}
	if confBps > MaxConfidenceBps {
		return errcode.PriceConfidenceTooHigh
	}
	return nil
}

// Normalize rescales price * 10^exponent to 6 decimals, truncating when
// the feed carries more precision.
func Normalize(data PriceData) (uint64, error) {
	if data.Price <= 0 {
		return 0, errcode.InvalidPrice
	}

	shift := int64(fpmath.PriceDecimals) + int64(data.Exponent)
	price := fpmath.Of(uint64(data.Price))

	switch {
	case shift >= 0:
		if shift > 38 {
			return 0, errcode.PriceOverflow
		}
		price = price.MulWide(fpmath.Pow10(uint8(shift)))
	default:
		if -shift > 38 {
			return 0, nil
		}
		price = price.DivWide(fpmath.Pow10(uint8(-shift)))
	}

	if err := price.Err(); err != nil {
		return 0, errcode.PriceOverflow
	}
	if !price.FitsUint64() {
		return 0, errcode.PriceOverflow
	}
	return price.Uint64()
}
