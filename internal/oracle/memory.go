package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/pgx404/RegretMarket/internal/errcode"
)

// MemoryFeed keeps the latest observation per feed. Ingestion pushes
// prices in with Update; the processor reads them through GetPrice.
type MemoryFeed struct {
	mu     sync.RWMutex
	prices map[string]PriceData
	now    func() time.Time
}

// NewMemoryFeed creates an empty feed. A nil now uses time.Now.
func NewMemoryFeed(now func() time.Time) *MemoryFeed {
	if now == nil {
		now = time.Now
	}
	return &MemoryFeed{
		prices: make(map[string]PriceData),
		now:    now,
	}
}

// Update stores an observation unless a newer one is already held.
// Returns whether it was stored.
func (f *MemoryFeed) Update(data PriceData) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cur, ok := f.prices[data.FeedID]; ok && data.PublishTime.Before(cur.PublishTime) {
		return false
	}
	f.prices[data.FeedID] = data
	return true
}

// GetPrice implements PriceFeed.
func (f *MemoryFeed) GetPrice(_ context.Context, feedID string, maxAge time.Duration) (PriceData, error) {
	f.mu.RLock()
	data, ok := f.prices[feedID]
	f.mu.RUnlock()

	if !ok {
		return PriceData{}, errcode.StalePrice
	}
	if f.now().Sub(data.PublishTime) > maxAge {
		return PriceData{}, errcode.StalePrice
	}
	return data, nil
}

// Feeds returns the ids of every feed with an observation.
func (f *MemoryFeed) Feeds() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ids := make([]string, 0, len(f.prices))
	for id := range f.prices {
		ids = append(ids, id)
	}
	return ids
}
