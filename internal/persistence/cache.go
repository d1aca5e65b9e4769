package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedStore wraps a primary Store with a Redis read-through cache.
// Reads inside View check Redis first and fall back to the primary.
// Update always reads the primary so row locks hold, and invalidates every
// key it wrote once the transaction has committed.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
	logger  zerolog.Logger
}

func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
		logger:  logger,
	}
}

func (s *CachedStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	var written []string
	err := s.primary.Update(ctx, func(tx Tx) error {
		written = written[:0]
		return fn(&trackingTx{Tx: tx, written: &written})
	})
	if err != nil {
		return err
	}
	if len(written) == 0 {
		return nil
	}

	keys := make([]string, len(written))
	for i, k := range written {
		keys[i] = cacheKey(k)
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Int("keys", len(keys)).Msg("cache invalidation failed")
	}
	return nil
}

func (s *CachedStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.primary.View(ctx, func(tx Tx) error {
		return fn(&cachedTx{Tx: tx, ctx: ctx, store: s})
	})
}

func cacheKey(key string) string {
	return "regret:rec:" + key
}

// trackingTx records the keys written through it.
type trackingTx struct {
	Tx
	written *[]string
}

func (t *trackingTx) Create(key string, v any) error {
	if err := t.Tx.Create(key, v); err != nil {
		return err
	}
	*t.written = append(*t.written, key)
	return nil
}

func (t *trackingTx) Put(key string, v any) error {
	if err := t.Tx.Put(key, v); err != nil {
		return err
	}
	*t.written = append(*t.written, key)
	return nil
}

// cachedTx serves Get from Redis when it can.
type cachedTx struct {
	Tx
	ctx   context.Context
	store *CachedStore
}

func (t *cachedTx) Get(key string, out any) error {
	data, err := t.store.rdb.Get(t.ctx, cacheKey(key)).Bytes()
	if err == nil {
		if json.Unmarshal(data, out) == nil {
			return nil
		}
	}

	var raw json.RawMessage
	if err := t.Tx.Get(key, &raw); err != nil {
		return err
	}
	if err := t.store.rdb.Set(t.ctx, cacheKey(key), []byte(raw), t.store.ttl).Err(); err != nil {
		t.store.logger.Debug().Err(err).Str("key", key).Msg("cache fill failed")
	}
	return json.Unmarshal(raw, out)
}
