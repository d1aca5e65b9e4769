package state

// KeeperAction is what a keeper sweep should do with an open position.
type KeeperAction int

const (
	KeeperActionNone KeeperAction = iota
	KeeperActionRebalance
	KeeperActionLiquidate
)

func (a KeeperAction) String() string {
	switch a {
	case KeeperActionNone:
		return "none"
	case KeeperActionRebalance:
		return "rebalance"
	case KeeperActionLiquidate:
		return "liquidate"
	default:
		return "unknown"
	}
}

// DecideKeeperAction joins health and target checks. Liquidation wins over
// rebalancing: an undercollateralized position is never resized.
func DecideKeeperAction(healthBps uint64, targetReached bool) KeeperAction {
	if ClassifyHealth(healthBps) == HealthStatusLiquidatable {
		return KeeperActionLiquidate
	}
	if targetReached {
		return KeeperActionRebalance
	}
	return KeeperActionNone
}
