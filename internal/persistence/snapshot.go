package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pgx404/RegretMarket/internal/state"
)

// SnapshotManager saves and restores the in-process state that is not kept
// in the record store: the head of the event hash chain and the funding
// epochs per market.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the process state at one sequence.
type SnapshotData struct {
	Sequence  uint64                  `json:"sequence"`
	StateHash [32]byte                `json:"state_hash"`
	Funding   []state.FundingSnapshot `json:"funding"`
	CreatedAt time.Time               `json:"created_at"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot. Saving the same sequence twice
// overwrites it.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $5
	`, uuid.New(), int64(snap.Sequence), data, snap.StateHash[:], len(data), snap.CreatedAt)

	return err
}

// LoadLatestSnapshot returns the most recent snapshot, or nil on a cold
// start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// LoadEventsFrom loads up to limit events starting at fromSequence, for
// chain verification.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence uint64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, request_id, event_type, market_id, tick,
		       payload, state_hash, prev_hash
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, int64(fromSequence), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.RequestID, &e.EventType, &e.MarketID, &e.Tick,
			&e.Payload, &e.StateHash, &e.PrevHash,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// ChainHead returns the sequence and state hash of the last logged event.
// An empty log returns ok == false.
func (sm *SnapshotManager) ChainHead(ctx context.Context) (seq uint64, hash [32]byte, ok bool, err error) {
	var s int64
	var h []byte
	err = sm.db.QueryRowContext(ctx, `
		SELECT sequence, state_hash FROM event_log.events
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&s, &h)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, hash, false, nil
	}
	if err != nil {
		return 0, hash, false, err
	}
	if len(h) != len(hash) {
		return 0, hash, false, fmt.Errorf("state hash at %d has %d bytes", s, len(h))
	}
	copy(hash[:], h)
	return uint64(s), hash, true, nil
}
