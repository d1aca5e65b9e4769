package event

import (
	"github.com/google/uuid"

	"github.com/pgx404/RegretMarket/internal/state"
)

// ConfigInitialized is emitted once, when the protocol starts.
type ConfigInitialized struct {
	Admin  uuid.UUID          `json:"admin"`
	Params state.ConfigParams `json:"params"`
}

func (c *ConfigInitialized) EventType() EventType { return EventTypeConfigInitialized }
func (c *ConfigInitialized) MarketID() *string    { return nil }

// ConfigUpdated carries the full parameter set after an admin update.
type ConfigUpdated struct {
	Signer uuid.UUID          `json:"signer"`
	Params state.ConfigParams `json:"params"`
}

func (c *ConfigUpdated) EventType() EventType { return EventTypeConfigUpdated }
func (c *ConfigUpdated) MarketID() *string    { return nil }

// PauseScope names the record a pause flag lives on.
type PauseScope string

const (
	PauseScopeConfig PauseScope = "config"
	PauseScopeMarket PauseScope = "market"
	PauseScopeVault  PauseScope = "vault"
)

// PauseChanged records a pause flag flip. Target is the pair or token
// mint, empty for config.
type PauseChanged struct {
	Scope  PauseScope `json:"scope"`
	Target string     `json:"target,omitempty"`
	Paused bool       `json:"paused"`
	Signer uuid.UUID  `json:"signer"`
}

func (p *PauseChanged) EventType() EventType { return EventTypePauseChanged }

func (p *PauseChanged) MarketID() *string {
	if p.Scope != PauseScopeMarket {
		return nil
	}
	s := p.Target
	return &s
}

// MarketOpened is emitted when a trading pair is listed.
type MarketOpened struct {
	Pair     string `json:"pair"`
	Decimals uint8  `json:"decimals"`
	FeedID   string `json:"feed_id"`
}

func (m *MarketOpened) EventType() EventType { return EventTypeMarketOpened }

func (m *MarketOpened) MarketID() *string {
	s := m.Pair
	return &s
}

// MarketUpdated is emitted when a market's feed changes.
type MarketUpdated struct {
	Pair   string    `json:"pair"`
	FeedID string    `json:"feed_id"`
	Signer uuid.UUID `json:"signer"`
}

func (m *MarketUpdated) EventType() EventType { return EventTypeMarketUpdated }

func (m *MarketUpdated) MarketID() *string {
	s := m.Pair
	return &s
}
