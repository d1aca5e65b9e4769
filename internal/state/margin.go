package state

import "math"

const (
	// HealthLiquidationThreshold is 100% in bps. Below it a position is
	// liquidatable.
	HealthLiquidationThreshold uint64 = 10_000

	// HealthAtRiskThreshold is 150% in bps.
	HealthAtRiskThreshold uint64 = 15_000

	// HealthInfinite is reported when no margin is required.
	HealthInfinite uint64 = math.MaxUint64
)

// HealthStatus represents a position's margin health
type HealthStatus int

const (
	HealthStatusHealthy HealthStatus = iota
	HealthStatusAtRisk
	HealthStatusLiquidatable
)

func (hs HealthStatus) String() string {
	switch hs {
	case HealthStatusHealthy:
		return "Healthy"
	case HealthStatusAtRisk:
		return "AtRisk"
	case HealthStatusLiquidatable:
		return "Liquidatable"
	default:
		return "Unknown"
	}
}

// ClassifyHealth maps a health ratio in bps to a status.
func ClassifyHealth(healthBps uint64) HealthStatus {
	if healthBps < HealthLiquidationThreshold {
		return HealthStatusLiquidatable
	}
	if healthBps < HealthAtRiskThreshold {
		return HealthStatusAtRisk
	}
	return HealthStatusHealthy
}
