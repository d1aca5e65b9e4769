package core

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/pgx404/RegretMarket/internal/observability"
)

// IdempotencyChecker implements two-tier deduplication of request ids:
// an in-memory LRU in front of the event log.
type IdempotencyChecker struct {
	mu sync.Mutex

	// Tier 1: in-memory LRU
	lru *IdempotencyLRU

	// Tier 2: Postgres (nil in memory-only deployments)
	dbChecker DBIdempotencyChecker

	metrics *observability.Metrics
}

// DBIdempotencyChecker is the interface for Postgres dedup lookup
type DBIdempotencyChecker interface {
	IsDuplicate(ctx context.Context, requestID string) (bool, error)
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker, metrics *observability.Metrics) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       NewIdempotencyLRU(capacity),
		dbChecker: dbChecker,
		metrics:   metrics,
	}
}

// IsDuplicate reports whether requestID has already been committed. An
// empty id is never a duplicate. A failing tier-2 lookup is returned as an
// error so the caller can refuse the request rather than risk applying it
// twice.
func (ic *IdempotencyChecker) IsDuplicate(ctx context.Context, op, requestID string) (bool, error) {
	if requestID == "" {
		return false, nil
	}

	ic.mu.Lock()
	hit := ic.lru.Contains(requestID)
	ic.mu.Unlock()
	if hit {
		ic.recordDuplicate(op, "lru")
		return true, nil
	}

	if ic.dbChecker == nil {
		return false, nil
	}

	start := time.Now()
	isDup, err := ic.dbChecker.IsDuplicate(ctx, requestID)
	if ic.metrics != nil {
		ic.metrics.DedupTier2Duration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return false, err
	}
	if isDup {
		ic.recordDuplicate(op, "postgres")
		ic.MarkProcessed(requestID)
		return true, nil
	}
	return false, nil
}

// MarkProcessed adds requestID to the LRU after a successful commit.
func (ic *IdempotencyChecker) MarkProcessed(requestID string) {
	if requestID == "" {
		return
	}
	ic.mu.Lock()
	evicted := ic.lru.Add(requestID)
	size := ic.lru.Size()
	ic.mu.Unlock()

	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(size))
		if evicted {
			ic.metrics.DedupLRUEvictions.Inc()
		}
	}
}

// Warm loads recently committed request ids, oldest first.
func (ic *IdempotencyChecker) Warm(requestIDs []string) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.lru.WarmFromKeys(requestIDs)
}

func (ic *IdempotencyChecker) recordDuplicate(op, tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(op, tier).Inc()
	}
}

// --- LRU Implementation ---

// IdempotencyLRU is an LRU set of keys. Not thread-safe; the checker
// guards it.
type IdempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	if capacity < 1 {
		capacity = 1
	}
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks if key exists (promotes to front)
func (lru *IdempotencyLRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

// Add inserts a key (or promotes it). Reports whether an older key was
// evicted to make room.
func (lru *IdempotencyLRU) Add(key string) bool {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return false
	}

	lru.cache[key] = lru.lruList.PushFront(key)

	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
		return true
	}
	return false
}

func (lru *IdempotencyLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		delete(lru.cache, elem.Value.(string))
		lru.evictions++
	}
}

// WarmFromKeys loads a batch of keys, oldest first, so the newest end up
// most recently used.
func (lru *IdempotencyLRU) WarmFromKeys(keys []string) {
	for _, key := range keys {
		lru.Add(key)
	}
}

// Size returns current number of entries
func (lru *IdempotencyLRU) Size() int {
	return lru.lruList.Len()
}

// Evictions returns total evictions
func (lru *IdempotencyLRU) Evictions() int64 {
	return lru.evictions
}
