// Package hooks provides observability callbacks for the budget engine:
// appends, compactions, and checkpoint saves. Hooks are the engine's
// observability surface; hook errors are logged by the engine, never
// propagated into the conversation path.
package hooks

import (
	"context"
	"sync"

	"github.com/stackline/ctxbudget/checkpoint"
	"github.com/stackline/ctxbudget/compaction"
	"github.com/stackline/ctxbudget/session"
)

// AfterAppendHook is called after a content unit is appended
type AfterAppendHook func(ctx context.Context, sessionID string, unit *session.ContentUnit) error

// BeforeCompactionHook is called before a compaction transform is applied
type BeforeCompactionHook func(ctx context.Context, sessionID string, plan *compaction.Plan) error

// AfterCompactionHook is called after a compaction transform committed
type AfterCompactionHook func(ctx context.Context, event *compaction.Event) error

// CheckpointSavedHook is called after a checkpoint record was durably stored
type CheckpointSavedHook func(ctx context.Context, sessionID string, rec *checkpoint.Record) error

// Registry holds all registered hooks
type Registry struct {
	mu               sync.RWMutex
	afterAppend      []AfterAppendHook
	beforeCompaction []BeforeCompactionHook
	afterCompaction  []AfterCompactionHook
	checkpointSaved  []CheckpointSavedHook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{
		afterAppend:      []AfterAppendHook{},
		beforeCompaction: []BeforeCompactionHook{},
		afterCompaction:  []AfterCompactionHook{},
		checkpointSaved:  []CheckpointSavedHook{},
	}
}

// OnAfterAppend registers a hook to be called after each append
func (r *Registry) OnAfterAppend(hook AfterAppendHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterAppend = append(r.afterAppend, hook)
}

// OnBeforeCompaction registers a hook to be called before compaction
func (r *Registry) OnBeforeCompaction(hook BeforeCompactionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeCompaction = append(r.beforeCompaction, hook)
}

// OnAfterCompaction registers a hook to be called after compaction
func (r *Registry) OnAfterCompaction(hook AfterCompactionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterCompaction = append(r.afterCompaction, hook)
}

// OnCheckpointSaved registers a hook to be called after a checkpoint save
func (r *Registry) OnCheckpointSaved(hook CheckpointSavedHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpointSaved = append(r.checkpointSaved, hook)
}

// RunAfterAppend executes all registered after-append hooks, returning the
// first error encountered.
func (r *Registry) RunAfterAppend(ctx context.Context, sessionID string, unit *session.ContentUnit) error {
	r.mu.RLock()
	hooks := r.afterAppend
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, unit); err != nil {
			return err
		}
	}
	return nil
}

// RunBeforeCompaction executes all registered before-compaction hooks.
func (r *Registry) RunBeforeCompaction(ctx context.Context, sessionID string, plan *compaction.Plan) error {
	r.mu.RLock()
	hooks := r.beforeCompaction
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, plan); err != nil {
			return err
		}
	}
	return nil
}

// RunAfterCompaction executes all registered after-compaction hooks.
func (r *Registry) RunAfterCompaction(ctx context.Context, event *compaction.Event) error {
	r.mu.RLock()
	hooks := r.afterCompaction
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// RunCheckpointSaved executes all registered checkpoint-saved hooks.
func (r *Registry) RunCheckpointSaved(ctx context.Context, sessionID string, rec *checkpoint.Record) error {
	r.mu.RLock()
	hooks := r.checkpointSaved
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, sessionID, rec); err != nil {
			return err
		}
	}
	return nil
}
