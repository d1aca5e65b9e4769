package state

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/pgx404/RegretMarket/internal/errcode"
	fpmath "github.com/pgx404/RegretMarket/internal/math"
)

// Config is the protocol-wide parameter record. All fee and margin fields
// are in basis points.
type Config struct {
	IsPaused          bool      `json:"is_paused"`
	Admin             uuid.UUID `json:"admin"`
	MaxLeverage       uint64    `json:"max_leverage"`
	LiquidationFee    uint64    `json:"liquidation_fee"`
	MaintenanceMargin uint64    `json:"maintenance_margin"`
	OpeningFee        uint64    `json:"opening_fee"`
	ClosingFee        uint64    `json:"closing_fee"`
	PrivacyFee        uint64    `json:"privacy_fee"`
	ProtocolFeeShare  uint64    `json:"protocol_fee_share"`
	RebalanceTarget   uint64    `json:"rebalance_target"` // distance of the next target from price, bps
	LastUpdated       uint64    `json:"last_updated"`
}

// ConfigParams are the admin-settable fields of Config.
type ConfigParams struct {
	MaxLeverage       uint64 `json:"max_leverage"`
	LiquidationFee    uint64 `json:"liquidation_fee"`
	MaintenanceMargin uint64 `json:"maintenance_margin"`
	OpeningFee        uint64 `json:"opening_fee"`
	ClosingFee        uint64 `json:"closing_fee"`
	PrivacyFee        uint64 `json:"privacy_fee"`
	ProtocolFeeShare  uint64 `json:"protocol_fee_share"`
	RebalanceTarget   uint64 `json:"rebalance_target"`
}

// DefaultConfigParams: 10x leverage cap, 5% maintenance margin, 0.1% fees,
// 20% of fees to the protocol, next target 10% away.
var DefaultConfigParams = ConfigParams{
	MaxLeverage:       100_000,
	LiquidationFee:    500,
	MaintenanceMargin: 500,
	OpeningFee:        10,
	ClosingFee:        10,
	PrivacyFee:        0,
	ProtocolFeeShare:  2_000,
	RebalanceTarget:   1_000,
}

// ValidateConfig checks that parameters are within valid ranges:
// max_leverage > 0, every bps field <= 10000, 0 < rebalance_target < 10000.
func ValidateConfig(p ConfigParams) error {
	if p.MaxLeverage == 0 {
		return fmt.Errorf("max_leverage must be > 0: %w", errcode.InvalidInput)
	}

	bounded := []struct {
		name  string
		value uint64
	}{
		{"liquidation_fee", p.LiquidationFee},
		{"maintenance_margin", p.MaintenanceMargin},
		{"opening_fee", p.OpeningFee},
		{"closing_fee", p.ClosingFee},
		{"privacy_fee", p.PrivacyFee},
		{"protocol_fee_share", p.ProtocolFeeShare},
	}
	for _, f := range bounded {
		if f.value > fpmath.BasisPoints {
			return fmt.Errorf("%s must be <= %d, got %d: %w",
				f.name, fpmath.BasisPoints, f.value, errcode.InvalidInput)
		}
	}

	if p.RebalanceTarget == 0 || p.RebalanceTarget >= fpmath.BasisPoints {
		return fmt.Errorf("rebalance_target must be in (0, %d), got %d: %w",
			fpmath.BasisPoints, p.RebalanceTarget, errcode.InvalidInput)
	}
	return nil
}

// NewConfig builds the singleton from validated params.
func NewConfig(admin uuid.UUID, p ConfigParams, tick uint64) Config {
	c := Config{Admin: admin, LastUpdated: tick}
	c.Apply(p)
	return c
}

// Apply overwrites the settable fields.
func (c *Config) Apply(p ConfigParams) {
	c.MaxLeverage = p.MaxLeverage
	c.LiquidationFee = p.LiquidationFee
	c.MaintenanceMargin = p.MaintenanceMargin
	c.OpeningFee = p.OpeningFee
	c.ClosingFee = p.ClosingFee
	c.PrivacyFee = p.PrivacyFee
	c.ProtocolFeeShare = p.ProtocolFeeShare
	c.RebalanceTarget = p.RebalanceTarget
}

// Params returns the settable fields.
func (c *Config) Params() ConfigParams {
	return ConfigParams{
		MaxLeverage:       c.MaxLeverage,
		LiquidationFee:    c.LiquidationFee,
		MaintenanceMargin: c.MaintenanceMargin,
		OpeningFee:        c.OpeningFee,
		ClosingFee:        c.ClosingFee,
		PrivacyFee:        c.PrivacyFee,
		ProtocolFeeShare:  c.ProtocolFeeShare,
		RebalanceTarget:   c.RebalanceTarget,
	}
}

// CanonicalBytes returns deterministic serialization for hashing
func (c *Config) CanonicalBytes() []byte {
	buf := make([]byte, 0, 96)
	buf = appendBool(buf, c.IsPaused)
	buf = append(buf, c.Admin[:]...)
	buf = appendUint64LE(buf, c.MaxLeverage)
	buf = appendUint64LE(buf, c.LiquidationFee)
	buf = appendUint64LE(buf, c.MaintenanceMargin)
	buf = appendUint64LE(buf, c.OpeningFee)
	buf = appendUint64LE(buf, c.ClosingFee)
	buf = appendUint64LE(buf, c.PrivacyFee)
	buf = appendUint64LE(buf, c.ProtocolFeeShare)
	buf = appendUint64LE(buf, c.RebalanceTarget)
	buf = appendUint64LE(buf, c.LastUpdated)
	return buf
}
