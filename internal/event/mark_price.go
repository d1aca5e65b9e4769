package event

import "time"

// PriceUpdate records an oracle observation accepted by ingestion.
type PriceUpdate struct {
	FeedID      string    `json:"feed_id"`
	Price       uint64    `json:"price"` // normalized, USD units
	RawPrice    int64     `json:"raw_price"`
	Conf        uint64    `json:"conf"`
	Exponent    int32     `json:"exponent"`
	PublishTime time.Time `json:"publish_time"`
}

func (p *PriceUpdate) EventType() EventType { return EventTypePriceUpdate }
func (p *PriceUpdate) MarketID() *string    { return nil }
