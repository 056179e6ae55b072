package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // registers the postgres database/sql driver
)

// SQLStore implements Store on database/sql for applications that manage
// their connections through the standard library rather than pgx. Semantics
// match PostgresStore, including the per-key advisory lock.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store on an open *sql.DB (postgres driver).
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// EnsureSchema creates the checkpoint table if it does not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure checkpoint schema: %w", err)
	}
	return nil
}

// Upsert implements Store.
func (s *SQLStore) Upsert(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal checkpoint record: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, rec.Key); err != nil {
		return fmt.Errorf("lock checkpoint key: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ctxbudget_checkpoints (key, record, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET
			record = EXCLUDED.record,
			updated_at = now()
	`, rec.Key, payload); err != nil {
		return fmt.Errorf("upsert checkpoint %q: %w", rec.Key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint upsert: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key string) (*Record, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT record FROM ctxbudget_checkpoints WHERE key = $1
	`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %q: %w", key, err)
	}

	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint %q: %w", key, err)
	}
	return &rec, nil
}

// List implements Store.
func (s *SQLStore) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record FROM ctxbudget_checkpoints ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		var rec Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
