package ctxbudget

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stackline/ctxbudget/checkpoint"
	"github.com/stackline/ctxbudget/compaction"
	"github.com/stackline/ctxbudget/hooks"
	"github.com/stackline/ctxbudget/session"
	"github.com/stackline/ctxbudget/tokens"
)

// Engine tracks one conversation's token budget and runs compaction when
// occupancy crosses the policy thresholds. All appends and the final
// compaction swap go through a single mutex; the summarizer call happens
// outside it so appends proceed while a digest is in flight.
type Engine struct {
	id string

	planner     *compaction.Planner
	compactor   *compaction.Compactor
	estimator   *tokens.Estimator
	checkpoints *checkpoint.Manager
	hooks       *hooks.Registry
	logger      *log.Logger
	auto        bool

	mu      sync.Mutex
	state   *session.State
	markers map[string]uint64 // checkpoint key -> marker unit id

	// compacting rejects overlapping compactions; a second request while
	// one is in flight fails rather than queueing.
	compacting atomic.Bool

	histMu sync.Mutex
	events []*compaction.Event
}

// New creates an Engine for a fresh session.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ic := newInternalConfig(cfg)
	for _, opt := range opts {
		if err := opt(ic); err != nil {
			return nil, err
		}
	}
	if ic.sessionID == "" {
		ic.sessionID = uuid.NewString()
	}

	e := &Engine{
		id:        ic.sessionID,
		planner:   compaction.NewPlanner(ic.policy),
		compactor: compaction.NewCompactor(ic.policy, ic.summarizer, ic.estimator),
		estimator: ic.estimator,
		hooks:     ic.hooks,
		logger:    ic.logger,
		auto:      ic.autoCompaction,
		state:     session.NewState(ic.sessionID, ic.maxBudget, ic.preservePairs),
		markers:   make(map[string]uint64),
	}
	if ic.checkpointStore != nil {
		e.checkpoints = checkpoint.NewManager(ic.checkpointStore, ic.logger)
		e.checkpoints.SetRetry(ic.checkpointRetries, ic.checkpointBackoff)
	}
	return e, nil
}

// SessionID returns the session identifier.
func (e *Engine) SessionID() string { return e.id }

// AppendUserInput records a user message.
func (e *Engine) AppendUserInput(ctx context.Context, body string) (*session.ContentUnit, error) {
	return e.append(ctx, session.OriginUserInput, body)
}

// AppendAgentOutput records an agent response.
func (e *Engine) AppendAgentOutput(ctx context.Context, body string) (*session.ContentUnit, error) {
	return e.append(ctx, session.OriginAgentOutput, body)
}

// AppendToolResult records a tool invocation's output.
func (e *Engine) AppendToolResult(ctx context.Context, body string) (*session.ContentUnit, error) {
	return e.append(ctx, session.OriginToolResult, body)
}

// AppendDirective records instruction-level content. Directives land in
// the foundation tier and are never compacted.
func (e *Engine) AppendDirective(ctx context.Context, body string) (*session.ContentUnit, error) {
	return e.append(ctx, session.OriginSystemDirective, body)
}

func (e *Engine) append(ctx context.Context, origin session.Origin, body string) (*session.ContentUnit, error) {
	if body == "" {
		return nil, NewEngineErrorWithSession("Append", e.id, ErrEmptyBody).
			WithContext("origin", string(origin))
	}
	cost := e.estimator.Estimate(body)

	e.mu.Lock()
	unit := e.state.Append(origin, body, cost)
	e.mu.Unlock()

	e.afterAppend(ctx, unit)
	return unit, nil
}

// afterAppend is the shared post-append path: notify hooks, then compact
// if the append pushed usage past the required threshold. Every appended
// unit goes through it, checkpoint markers included.
func (e *Engine) afterAppend(ctx context.Context, unit *session.ContentUnit) {
	if err := e.hooks.RunAfterAppend(ctx, e.id, unit); err != nil {
		e.logger.Printf("after-append hook failed: %v", err)
	}

	if e.auto {
		if _, err := e.autoCompact(ctx); err != nil && !errors.Is(err, compaction.ErrCompactionInFlight) {
			e.logger.Printf("auto compaction failed: %v", err)
		}
	}
}

// Status reports the session's occupancy without side effects. Repeated
// calls at the same usage return the same answer.
type Status struct {
	SessionID string
	Usage     int
	MaxBudget int
	Fraction  float64

	// Tiers breaks usage down by display tier.
	Tiers map[session.Tier]int

	Health compaction.Health
	Action compaction.Action

	Compactions      int
	LossyCompactions int
}

// Status returns the current budget status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	st := e.state
	s := Status{
		SessionID: e.id,
		Usage:     st.Usage(),
		MaxBudget: st.MaxBudget(),
		Tiers: map[session.Tier]int{
			session.TierFoundation: 0,
			session.TierWorking:    0,
			session.TierHistory:    0,
		},
		LossyCompactions: st.LossyDigests(),
	}
	// Digests pin like foundation but report as history, since they stand
	// in for compacted historical content.
	for _, u := range st.Live() {
		s.Tiers[u.DisplayTier()] += u.Cost
	}
	s.Fraction = float64(s.Usage) / float64(s.MaxBudget)
	s.Health = e.planner.Classify(st)
	s.Action = e.planner.Evaluate(st).Action
	e.mu.Unlock()

	e.histMu.Lock()
	s.Compactions = len(e.events)
	e.histMu.Unlock()
	return s
}

// Units returns a snapshot of the live conversation in id order. The
// returned units are copies; mutating them does not affect the session.
func (e *Engine) Units() []*session.ContentUnit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone().Live()
}

// Events returns the compaction history log, oldest first.
func (e *Engine) Events() []*compaction.Event {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	out := make([]*compaction.Event, len(e.events))
	copy(out, e.events)
	return out
}

// CompactionResult summarizes one manual or automatic compaction.
type CompactionResult struct {
	// NoOp is true when there was nothing to compact.
	NoOp bool

	PreUsage      int
	PostUsage     int
	UnitsReplaced int

	// Degraded marks the placeholder fallback; summary content was lost.
	Degraded bool

	// Warning carries the verification probe's reason when savings fell
	// short of projection.
	Warning string
}

// Compact runs a compaction now, regardless of thresholds. When no
// history-tier units exist the call is a no-op rather than an error, so
// callers can compact speculatively. A concurrent compaction fails with
// ErrCompactionInFlight.
func (e *Engine) Compact(ctx context.Context) (*CompactionResult, error) {
	res, err := e.compact(ctx, "manual")
	if err != nil && errors.Is(err, compaction.ErrNoHistoryToCompact) {
		e.mu.Lock()
		usage := e.state.Usage()
		e.mu.Unlock()
		return &CompactionResult{NoOp: true, PreUsage: usage, PostUsage: usage}, nil
	}
	return res, err
}

// autoCompact compacts only when the planner says compaction is required.
func (e *Engine) autoCompact(ctx context.Context) (*CompactionResult, error) {
	e.mu.Lock()
	action := e.planner.Evaluate(e.state).Action
	e.mu.Unlock()
	if action != compaction.ActionRequired {
		return nil, nil
	}
	res, err := e.compact(ctx, "auto")
	if err != nil && errors.Is(err, compaction.ErrNoHistoryToCompact) {
		// Everything live is foundation or working; nothing can be freed.
		e.logger.Printf("budget critical but no history to compact (session=%s)", e.id)
		return nil, nil
	}
	return res, err
}

func (e *Engine) compact(ctx context.Context, trigger string) (*CompactionResult, error) {
	if !e.compacting.CompareAndSwap(false, true) {
		return nil, NewEngineErrorWithSession("Compact", e.id, compaction.ErrCompactionInFlight)
	}
	defer e.compacting.Store(false)

	start := time.Now()

	// Plan against a snapshot so the summarizer reads stable bodies while
	// appends keep landing on the live state.
	e.mu.Lock()
	snap := e.state.Clone()
	e.mu.Unlock()

	decision := e.planner.Evaluate(snap)
	plan, err := e.planner.Plan(snap, decision)
	if err != nil {
		return nil, NewEngineErrorWithSession("Compact", e.id, err)
	}

	if err := e.hooks.RunBeforeCompaction(ctx, e.id, plan); err != nil {
		e.logger.Printf("before-compaction hook failed: %v", err)
	}

	digest, degraded, serr := e.compactor.Summarize(ctx, snap, plan)
	if serr != nil {
		if !degraded {
			// Caller abort: nothing was dropped and nothing may be.
			return nil, NewEngineErrorWithSession("Compact", e.id, serr)
		}
		e.logger.Printf("summarization degraded (session=%s): %v", e.id, serr)
	}

	// Apply against the current state, which may have grown since the
	// snapshot. New units have ids beyond the plan range and survive.
	e.mu.Lock()
	post, event, err := e.compactor.Apply(e.state, plan, digest, degraded)
	if err != nil {
		e.mu.Unlock()
		return nil, NewEngineErrorWithSession("Compact", e.id, err)
	}
	e.state = post
	e.mu.Unlock()

	event.Trigger = trigger
	event.Duration = time.Since(start)

	e.histMu.Lock()
	e.events = append(e.events, event)
	e.histMu.Unlock()

	if err := e.hooks.RunAfterCompaction(ctx, event); err != nil {
		e.logger.Printf("after-compaction hook failed: %v", err)
	}

	res := &CompactionResult{
		PreUsage:      event.PreUsage,
		PostUsage:     event.PostUsage,
		UnitsReplaced: event.UnitsReplaced,
		Degraded:      event.Degraded,
	}
	if event.Probe.Outcome == compaction.Warn {
		res.Warning = event.Probe.Reason
	}
	return res, nil
}

// SaveCheckpoint persists the record and replaces the in-conversation
// marker for its key. The full record lives in the store, not the
// conversation; only the small marker counts against the budget.
func (e *Engine) SaveCheckpoint(ctx context.Context, rec *checkpoint.Record) error {
	if e.checkpoints == nil {
		return NewEngineErrorWithSession("SaveCheckpoint", e.id, ErrNoCheckpointStore)
	}
	if err := e.checkpoints.Upsert(ctx, rec); err != nil {
		return NewEngineErrorWithSession("SaveCheckpoint", e.id, err).
			WithContext("key", rec.Key)
	}

	marker := rec.Marker()
	e.mu.Lock()
	if id, ok := e.markers[rec.Key]; ok {
		e.state.Remove(id)
	}
	unit := e.state.Append(session.OriginSystemDirective, marker, e.estimator.Estimate(marker))
	e.markers[rec.Key] = unit.ID
	e.mu.Unlock()

	e.afterAppend(ctx, unit)

	if err := e.hooks.RunCheckpointSaved(ctx, e.id, rec); err != nil {
		e.logger.Printf("checkpoint hook failed: %v", err)
	}
	return nil
}

// Checkpoint fetches a saved record by key.
func (e *Engine) Checkpoint(ctx context.Context, key string) (*checkpoint.Record, error) {
	if e.checkpoints == nil {
		return nil, NewEngineErrorWithSession("Checkpoint", e.id, ErrNoCheckpointStore)
	}
	rec, err := e.checkpoints.Get(ctx, key)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, NewEngineErrorWithSession("Checkpoint", e.id, ErrCheckpointNotFound).
				WithContext("key", key)
		}
		return nil, NewEngineErrorWithSession("Checkpoint", e.id, err)
	}
	return rec, nil
}

// Checkpoints lists all saved records.
func (e *Engine) Checkpoints(ctx context.Context) ([]*checkpoint.Record, error) {
	if e.checkpoints == nil {
		return nil, NewEngineErrorWithSession("Checkpoints", e.id, ErrNoCheckpointStore)
	}
	return e.checkpoints.List(ctx)
}

// SeedCheckpoint loads a saved record and appends its document form as a
// foundation directive, bootstrapping a fresh session from prior work.
func (e *Engine) SeedCheckpoint(ctx context.Context, key string) (*checkpoint.Record, error) {
	if e.checkpoints == nil {
		return nil, NewEngineErrorWithSession("SeedCheckpoint", e.id, ErrNoCheckpointStore)
	}
	rec, err := e.checkpoints.Seed(ctx, key)
	if err != nil {
		return nil, NewEngineErrorWithSession("SeedCheckpoint", e.id, err).
			WithContext("key", key)
	}
	if rec == nil {
		return nil, NewEngineErrorWithSession("SeedCheckpoint", e.id, ErrCheckpointNotFound).
			WithContext("key", key)
	}

	doc := string(checkpoint.FormatDocument(rec))
	if _, err := e.append(ctx, session.OriginSystemDirective, doc); err != nil {
		return nil, err
	}
	return rec, nil
}
