package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Default retry tuning for durable writes.
const (
	DefaultMaxRetries = 3
	DefaultBackoff    = 500 * time.Millisecond
)

// ErrWriteFailed indicates the durable store rejected a checkpoint write
// after retries were exhausted. Checkpoint loss is degraded-but-recoverable:
// callers surface it as a warning and the session continues.
var ErrWriteFailed = errors.New("checkpoint write failed")

// Manager wraps a Store with write retries. Transient storage errors are
// retried with exponential backoff because a silently lost checkpoint is
// the exact failure this component exists to prevent.
type Manager struct {
	store      Store
	maxRetries int
	backoff    time.Duration
	logger     *log.Logger
}

// NewManager creates a manager over the given store.
func NewManager(store Store, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		store:      store,
		maxRetries: DefaultMaxRetries,
		backoff:    DefaultBackoff,
		logger:     logger,
	}
}

// SetRetry overrides the retry count and initial backoff.
func (m *Manager) SetRetry(maxRetries int, backoff time.Duration) {
	if maxRetries >= 0 {
		m.maxRetries = maxRetries
	}
	if backoff > 0 {
		m.backoff = backoff
	}
}

// Upsert durably stores the record, retrying transient failures. On
// exhaustion it returns an error wrapping ErrWriteFailed.
func (m *Manager) Upsert(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	rec.UpdatedAt = time.Now().UTC()

	var lastErr error
	wait := m.backoff
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			m.logger.Printf("ctxbudget/checkpoint: retrying upsert of %q (attempt %d/%d): %v",
				rec.Key, attempt, m.maxRetries, lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrWriteFailed, ctx.Err())
			}
			wait *= 2
		}

		lastErr = m.store.Upsert(ctx, rec)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrWriteFailed, lastErr)
}

// Get returns the record for the key, or ErrNotFound.
func (m *Manager) Get(ctx context.Context, key string) (*Record, error) {
	return m.store.Get(ctx, key)
}

// List returns all records ordered by key.
func (m *Manager) List(ctx context.Context) ([]*Record, error) {
	return m.store.List(ctx)
}

// Seed loads the record for the key and, when absent, returns (nil, nil).
// Used at session start to re-create Foundation context from a previous
// session's checkpoint without treating a fresh project as an error.
func (m *Manager) Seed(ctx context.Context, key string) (*Record, error) {
	rec, err := m.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return rec, err
}
