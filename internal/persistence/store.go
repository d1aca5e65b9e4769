package persistence

import (
	"context"
	"encoding/json"
)

// Record is one stored row: a deterministic key and its JSON document.
type Record struct {
	Key  string
	Data json.RawMessage
}

// Store is the record store every operation runs against. Each Update is
// one atomic transaction: writes made by fn become visible only if fn
// returns nil.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx reads and writes records inside one transaction. Inside Update, Get
// locks the row until commit.
type Tx interface {
	// Get decodes the record at key into out, or fails RecordNotFound.
	Get(key string, out any) error

	// Create stores a new record, or fails RecordExists.
	Create(key string, v any) error

	// Put stores v at key, replacing any existing record.
	Put(key string, v any) error

	// Scan returns every record whose key starts with prefix, ordered by key.
	Scan(prefix string) ([]Record, error)
}
