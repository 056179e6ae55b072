package checkpoint

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned when no record exists for a key.
var ErrNotFound = errors.New("checkpoint not found")

// Store is the durable backend for checkpoint records. Implementations must
// serialize concurrent writes to the same key; the key space may be shared
// by multiple sessions of the same project.
type Store interface {
	// Upsert stores the record, replacing any existing record with the
	// same key. The write must be durable when Upsert returns.
	Upsert(ctx context.Context, rec *Record) error

	// Get returns the record for the key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Record, error)

	// List returns all records ordered by key.
	List(ctx context.Context) ([]*Record, error)
}

// MemoryStore is an in-process Store for tests and ephemeral sessions.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(_ context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Key] = rec.Clone()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
