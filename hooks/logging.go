package hooks

import (
	"context"
	"log"

	"github.com/stackline/ctxbudget/checkpoint"
	"github.com/stackline/ctxbudget/compaction"
	"github.com/stackline/ctxbudget/session"
)

// LoggingHooks provides built-in logging hooks for observability
type LoggingHooks struct {
	logger *log.Logger
}

// NewLoggingHooks creates logging hooks with the provided logger
func NewLoggingHooks(logger *log.Logger) *LoggingHooks {
	return &LoggingHooks{logger: logger}
}

// DefaultLoggingHooks creates logging hooks with default logger
func DefaultLoggingHooks() *LoggingHooks {
	return &LoggingHooks{logger: log.Default()}
}

// Register attaches all logging hooks to the registry.
func (h *LoggingHooks) Register(r *Registry) {
	r.OnAfterAppend(h.AfterAppend)
	r.OnBeforeCompaction(h.BeforeCompaction)
	r.OnAfterCompaction(h.AfterCompaction)
	r.OnCheckpointSaved(h.CheckpointSaved)
}

// AfterAppend logs each appended unit
func (h *LoggingHooks) AfterAppend(ctx context.Context, sessionID string, unit *session.ContentUnit) error {
	h.logger.Printf("[ctxbudget] session %s: appended unit %d (%s, %s, cost=%d)",
		sessionID, unit.ID, unit.Origin, unit.Tier, unit.Cost)
	return nil
}

// BeforeCompaction logs the planned range
func (h *LoggingHooks) BeforeCompaction(ctx context.Context, sessionID string, plan *compaction.Plan) error {
	h.logger.Printf("[ctxbudget] session %s: compacting %d units (ids %d-%d), projected savings %d",
		sessionID, plan.Units, plan.FirstID, plan.LastID, plan.ProjectedSavings)
	return nil
}

// AfterCompaction logs the committed transform
func (h *LoggingHooks) AfterCompaction(ctx context.Context, event *compaction.Event) error {
	if event.Degraded {
		h.logger.Printf("[ctxbudget] session %s: LOSSY compaction reclaimed %d units of budget (%d -> %d), %d units dropped without summary",
			event.SessionID, event.Reclaimed(), event.PreUsage, event.PostUsage, event.UnitsReplaced)
	} else {
		h.logger.Printf("[ctxbudget] session %s: compaction reclaimed %d units of budget (%d -> %d), replaced %d units",
			event.SessionID, event.Reclaimed(), event.PreUsage, event.PostUsage, event.UnitsReplaced)
	}
	return nil
}

// CheckpointSaved logs durable checkpoint writes
func (h *LoggingHooks) CheckpointSaved(ctx context.Context, sessionID string, rec *checkpoint.Record) error {
	h.logger.Printf("[ctxbudget] session %s: checkpoint %q saved", sessionID, rec.Key)
	return nil
}
