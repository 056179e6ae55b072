package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txContextKey is the context key for storing pgx.Tx
type txContextKey struct{}

// WithTx returns a new context with the given transaction. Store methods
// pick it up automatically, letting callers combine checkpoint writes with
// their own database operations atomically.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext retrieves the transaction from context, or nil if not present
func TxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// querier is a common interface for pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Schema creates the checkpoint table. Run once at deployment, or call
// (*PostgresStore).EnsureSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS ctxbudget_checkpoints (
    key        TEXT PRIMARY KEY,
    record     JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore implements Store using PostgreSQL with pgx.
//
// Writes to the same key are serialized with a transaction-scoped advisory
// lock on the key's hash, so concurrent sessions sharing a key space cannot
// interleave partial updates.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// getQuerier returns the transaction from context if present, otherwise the pool
func (s *PostgresStore) getQuerier(ctx context.Context) querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

// EnsureSchema creates the checkpoint table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure checkpoint schema: %w", err)
	}
	return nil
}

// Upsert implements Store. The write is durable when Upsert returns.
func (s *PostgresStore) Upsert(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal checkpoint record: %w", err)
	}

	if tx := TxFromContext(ctx); tx != nil {
		return s.upsertIn(ctx, tx, rec.Key, payload)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin checkpoint upsert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := s.upsertIn(ctx, tx, rec.Key, payload); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit checkpoint upsert: %w", err)
	}
	return nil
}

func (s *PostgresStore) upsertIn(ctx context.Context, tx pgx.Tx, key string, payload []byte) error {
	// Serialize writers per key for the duration of the transaction.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("lock checkpoint key: %w", err)
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO ctxbudget_checkpoints (key, record, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET
			record = EXCLUDED.record,
			updated_at = now()
	`, key, payload)
	if err != nil {
		return fmt.Errorf("upsert checkpoint %q: %w", key, err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) (*Record, error) {
	var payload []byte
	err := s.getQuerier(ctx).QueryRow(ctx, `
		SELECT record FROM ctxbudget_checkpoints WHERE key = $1
	`, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
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
func (s *PostgresStore) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.getQuerier(ctx).Query(ctx, `
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
