package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/pgx404/RegretMarket/internal/errcode"
)

var errReadOnly = errors.New("persistence: write in read-only transaction")

// MemoryStore is an in-process Store. Update transactions are serialized;
// View transactions run concurrently with each other.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{base: s.records, writes: make(map[string][]byte), writable: true}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.writes {
		s.records[k] = v
	}
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&memTx{base: s.records})
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

type memTx struct {
	base     map[string][]byte
	writes   map[string][]byte
	writable bool
}

func (t *memTx) lookup(key string) ([]byte, bool) {
	if v, ok := t.writes[key]; ok {
		return v, true
	}
	v, ok := t.base[key]
	return v, ok
}

func (t *memTx) Get(key string, out any) error {
	data, ok := t.lookup(key)
	if !ok {
		return errcode.RecordNotFound
	}
	return json.Unmarshal(data, out)
}

func (t *memTx) Create(key string, v any) error {
	if _, ok := t.lookup(key); ok {
		return errcode.RecordExists
	}
	return t.Put(key, v)
}

func (t *memTx) Put(key string, v any) error {
	if !t.writable {
		return errReadOnly
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.writes[key] = data
	return nil
}

func (t *memTx) Scan(prefix string) ([]Record, error) {
	seen := make(map[string]struct{})
	var out []Record
	for k, v := range t.writes {
		if strings.HasPrefix(k, prefix) {
			seen[k] = struct{}{}
			out = append(out, Record{Key: k, Data: v})
		}
	}
	for k, v := range t.base {
		if _, ok := seen[k]; ok {
			continue
		}
		if strings.HasPrefix(k, prefix) {
			out = append(out, Record{Key: k, Data: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
