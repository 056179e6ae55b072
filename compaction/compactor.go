package compaction

import (
	"context"
	"fmt"
	"time"

	"github.com/stackline/ctxbudget/session"
)

// Estimator prices a digest at apply time. *tokens.Estimator satisfies it.
type Estimator interface {
	Estimate(text string) int
}

// Compactor executes compaction plans: it obtains a digest from the
// external summarizer (with the degraded fallback) and applies the
// replacement to a clone of the session state.
//
// Summarize and Apply are split so the caller can hold its session lock
// only around Apply; the summarizer call may block for seconds and new
// appends must proceed while it is in flight.
type Compactor struct {
	policy     Policy
	summarizer Summarizer
	estimator  Estimator
	probe      *Probe
}

// NewCompactor creates a compactor. summarizer may be nil, in which case
// every compaction takes the degraded fallback path.
func NewCompactor(policy Policy, summarizer Summarizer, estimator Estimator) *Compactor {
	policy.ApplyDefaults()
	return &Compactor{
		policy:     policy,
		summarizer: summarizer,
		estimator:  estimator,
		probe:      NewProbe(policy),
	}
}

// Summarize produces the digest text for the plan's range. Summarizer
// failures and timeouts do not fail the compaction: they return the
// structural placeholder with degraded=true and the underlying error for
// logging. The one exception is the caller's own context ending, which
// means the caller no longer wants the compaction; that returns an error
// with degraded=false and nothing may be dropped.
func (c *Compactor) Summarize(ctx context.Context, st *session.State, plan *Plan) (digest string, degraded bool, err error) {
	units := st.LiveInRange(plan.FirstID, plan.LastID, session.TierHistory)
	if c.summarizer == nil {
		return PlaceholderBody(plan), true, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.policy.SummarizerWait)
	defer cancel()

	digest, serr := c.summarizer.Summarize(callCtx, units, c.policy.DigestMaxTokens)
	if serr != nil {
		if ctx.Err() != nil {
			// Caller abort, not a summarizer failure. Lossily dropping the
			// range here would turn a cancellation into data loss.
			return "", false, NewError("Summarize", ctx.Err()).WithSession(st.SessionID())
		}
		if callCtx.Err() == context.DeadlineExceeded {
			serr = NewError("Summarize", ErrSummarizationTimeout).WithSession(st.SessionID())
		}
		return PlaceholderBody(plan), true, serr
	}
	return digest, false, nil
}

// Apply builds the post-compaction state off to the side: it removes the
// plan's History range from a clone, appends the digest as a single new
// unit with an id greater than everything it replaces, and verifies the
// result. The caller swaps the returned state in as the session's current
// state only on success, so readers never observe a partial replacement.
//
// Apply must be called against the session's current state, which may have
// grown since planning; units appended while the summarizer was in flight
// have ids beyond the captured range and are unaffected.
func (c *Compactor) Apply(pre *session.State, plan *Plan, digest string, degraded bool) (*session.State, *Event, error) {
	post := pre.Clone()

	removed := 0
	freed := 0
	for _, u := range post.LiveInRange(plan.FirstID, plan.LastID, session.TierHistory) {
		post.Remove(u.ID)
		removed++
		freed += u.Cost
	}
	if removed == 0 {
		return nil, nil, NewError("Apply", ErrNoHistoryToCompact).WithSession(pre.SessionID())
	}

	cost := c.estimator.Estimate(digest)
	if degraded && cost >= freed {
		// The placeholder is a fixed-form marker, not content; cap its
		// recorded cost strictly below what the range freed so even a tiny
		// range still makes forward progress.
		cost = freed - 1
		if cost < 0 {
			cost = 0
		}
	}

	unit := post.AppendDigest(digest, cost, degraded)

	result := c.probe.Verify(pre, post, plan)
	event := &Event{
		SessionID:     pre.SessionID(),
		PreUsage:      pre.Usage(),
		PostUsage:     post.Usage(),
		FirstID:       plan.FirstID,
		LastID:        plan.LastID,
		UnitsReplaced: removed,
		DigestID:      unit.ID,
		Degraded:      degraded,
		Probe:         result,
		CreatedAt:     time.Now().UTC(),
	}

	if result.Outcome == Fail {
		return nil, event, NewError("Apply", ErrVerificationFailed).
			WithSession(pre.SessionID()).
			WithContext("reason", result.Reason)
	}
	return post, event, nil
}

// PlaceholderBody is the fixed-form body used when a range is dropped
// without summarization. The marker keeps the dropped count and id range so
// reports can say exactly what was lost.
func PlaceholderBody(plan *Plan) string {
	return fmt.Sprintf("[compacted without summary: %d units dropped, ids %d-%d]",
		plan.Units, plan.FirstID, plan.LastID)
}
