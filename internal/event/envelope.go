package event

import (
	"encoding/json"
	"fmt"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeConfigInitialized
	EventTypeConfigUpdated
	EventTypePauseChanged
	EventTypeMarketOpened
	EventTypeMarketUpdated
	EventTypePoolCreated
	EventTypePoolFunded
	EventTypeTraderRegistered
	EventTypeVirtualBalanceClaimed
	EventTypePositionOpened
	EventTypePositionClosed
	EventTypeFundingAccrued
	EventTypePositionRebalanced
	EventTypePositionLiquidated
	EventTypePriceUpdate
	EventTypeFundingRateSnapshot
)

// Envelope wraps every committed operation in the log
type Envelope struct {
	// Global monotonic sequence assigned by the processor
	Sequence uint64 `json:"sequence"`

	// Caller-supplied dedup key
	RequestID string `json:"request_id"`

	EventType EventType `json:"event_type"`

	// Market context (nil for global events)
	MarketID *string `json:"market_id,omitempty"`

	// Tick the operation ran at
	Tick uint64 `json:"tick"`

	// JSON-encoded event-specific data
	Payload json.RawMessage `json:"payload"`

	// SHA-256 over the records written by this event, chained to PrevHash
	StateHash [32]byte `json:"state_hash"`
	PrevHash  [32]byte `json:"prev_hash"`
}

// Event is the interface all event payloads implement
type Event interface {
	EventType() EventType

	// MarketID returns the market context (nil for global events)
	MarketID() *string
}

// NewEnvelope encodes ev. Sequence and hashes are filled in when the event
// is chained.
func NewEnvelope(requestID string, tick uint64, ev Event) (Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", ev.EventType(), err)
	}
	return Envelope{
		RequestID: requestID,
		EventType: ev.EventType(),
		MarketID:  ev.MarketID(),
		Tick:      tick,
		Payload:   payload,
	}, nil
}

// Subject is the NATS subject the envelope is published on.
func (e *Envelope) Subject() string {
	return "regret.events." + e.EventType.Subject()
}

func (et EventType) String() string {
	switch et {
	case EventTypeConfigInitialized:
		return "ConfigInitialized"
	case EventTypeConfigUpdated:
		return "ConfigUpdated"
	case EventTypePauseChanged:
		return "PauseChanged"
	case EventTypeMarketOpened:
		return "MarketOpened"
	case EventTypeMarketUpdated:
		return "MarketUpdated"
	case EventTypePoolCreated:
		return "PoolCreated"
	case EventTypePoolFunded:
		return "PoolFunded"
	case EventTypeTraderRegistered:
		return "TraderRegistered"
	case EventTypeVirtualBalanceClaimed:
		return "VirtualBalanceClaimed"
	case EventTypePositionOpened:
		return "PositionOpened"
	case EventTypePositionClosed:
		return "PositionClosed"
	case EventTypeFundingAccrued:
		return "FundingAccrued"
	case EventTypePositionRebalanced:
		return "PositionRebalanced"
	case EventTypePositionLiquidated:
		return "PositionLiquidated"
	case EventTypePriceUpdate:
		return "PriceUpdate"
	case EventTypeFundingRateSnapshot:
		return "FundingRateSnapshot"
	default:
		return "Unknown"
	}
}

// Subject returns the subject token for the type: "position_opened" etc.
func (et EventType) Subject() string {
	name := et.String()
	out := make([]byte, 0, len(name)+4)
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
