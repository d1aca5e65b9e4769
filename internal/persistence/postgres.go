package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/pgx404/RegretMarket/internal/errcode"
	"github.com/pgx404/RegretMarket/internal/state"
)

// uniqueViolation is the Postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// PostgresStore keeps records as JSONB rows in regret.records. Rows read
// inside Update are locked with SELECT ... FOR UPDATE until commit.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, false, fn)
}

func (s *PostgresStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *PostgresStore) run(ctx context.Context, readOnly bool, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&pgTx{ctx: ctx, tx: sqlTx, lock: !readOnly}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgTx struct {
	ctx  context.Context
	tx   *sql.Tx
	lock bool
}

func (t *pgTx) Get(key string, out any) error {
	query := `SELECT data FROM regret.records WHERE key = $1`
	if t.lock {
		query += ` FOR UPDATE`
	}

	var data []byte
	err := t.tx.QueryRowContext(t.ctx, query, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return errcode.RecordNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (t *pgTx) Create(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO regret.records (key, kind, data, updated_at)
		VALUES ($1, $2, $3, NOW())
	`, key, string(state.KindOf(key)), data)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return errcode.RecordExists
	}
	return err
}

func (t *pgTx) Put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO regret.records (key, kind, data, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`, key, string(state.KindOf(key)), data)
	return err
}

func (t *pgTx) Scan(prefix string) ([]Record, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT key, data FROM regret.records
		WHERE left(key, length($1)) = $1
		ORDER BY key ASC
	`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var data []byte
		if err := rows.Scan(&r.Key, &data); err != nil {
			return nil, err
		}
		r.Data = data
		out = append(out, r)
	}
	return out, rows.Err()
}
