package state

// InsuranceFund sizes how much of a liquidation deficit the vault's
// insurance reserve absorbs. The reserve itself lives on Vault and is fed
// by rebalance excess.
type InsuranceFund struct{}

func NewInsuranceFund() *InsuranceFund {
	return &InsuranceFund{}
}

// ComputeCoverage returns how much the reserve can cover.
// If the reserve is insufficient, returns the partial amount and the remaining deficit.
func (f *InsuranceFund) ComputeCoverage(reserve, deficit uint64) (covered, remaining uint64) {
	if reserve >= deficit {
		return deficit, 0
	}
	return reserve, deficit - reserve
}
