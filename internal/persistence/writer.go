package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pgx404/RegretMarket/internal/event"
)

// EventLogWriter writes chained events to event_log.events using multi-row
// INSERT.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in event_log.events
type EventRow struct {
	Sequence  int64
	RequestID string
	EventType string
	MarketID  *string
	Tick      int64
	Payload   []byte // JSON-encoded event payload
	StateHash []byte
	PrevHash  []byte
}

// RowFromEnvelope flattens an envelope into its log row.
func RowFromEnvelope(env event.Envelope) EventRow {
	return EventRow{
		Sequence:  int64(env.Sequence),
		RequestID: env.RequestID,
		EventType: env.EventType.String(),
		MarketID:  env.MarketID,
		Tick:      int64(env.Tick),
		Payload:   []byte(env.Payload),
		StateHash: env.StateHash[:],
		PrevHash:  env.PrevHash[:],
	}
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch writes a batch of events inside tx. Rows whose sequence
// already exists are skipped, so a retried batch is harmless.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, request_id, event_type, market_id, tick, payload, state_hash, prev_hash)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*8)

	for i, e := range events {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			e.Sequence, e.RequestID, e.EventType, e.MarketID,
			e.Tick, e.Payload, e.StateHash, e.PrevHash,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
