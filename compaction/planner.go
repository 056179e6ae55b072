package compaction

import (
	"fmt"

	"github.com/stackline/ctxbudget/session"
)

// Action is the outcome of a threshold evaluation.
type Action int

const (
	// ActionNone means usage is below the recommend threshold.
	ActionNone Action = iota

	// ActionRecommend means usage crossed the recommend threshold.
	ActionRecommend

	// ActionRequired means usage crossed the require threshold; the planner
	// will always produce a non-empty plan if any History unit exists.
	ActionRequired
)

func (a Action) String() string {
	switch a {
	case ActionRecommend:
		return "recommend"
	case ActionRequired:
		return "required"
	default:
		return "no_action"
	}
}

// Health is the human-readable status classification derived from the same
// threshold table, so status reports and compaction decisions cannot drift.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthMonitor   Health = "monitor"
	HealthRecommend Health = "recommend_compaction"
	HealthCritical  Health = "critical"
)

// Decision is the result of evaluating a session against the policy.
type Decision struct {
	Action Action
	Reason string

	// Usage and Fraction describe occupancy at evaluation time.
	Usage    int
	Fraction float64

	// TriggeredAt is the threshold fraction that produced the action
	// (RecommendAt or RequireAt; 0 for ActionNone).
	TriggeredAt float64
}

// Plan describes a contiguous id range of History-tier units to replace
// with a single digest. Foundation and Working units inside the id bounds
// survive untouched.
type Plan struct {
	// FirstID and LastID are the inclusive id bounds of the range.
	FirstID uint64
	LastID  uint64

	// Units is the number of History units that will be removed.
	Units int

	// ProjectedSavings is the aggregate pre-compaction cost of the range,
	// recorded for later verification.
	ProjectedSavings int

	// TriggeredAt is carried from the Decision for target calculations.
	TriggeredAt float64
}

// Planner evaluates occupancy and selects compaction ranges. Both Evaluate
// and Plan are read-only with respect to the session state.
type Planner struct {
	policy Policy
}

// NewPlanner creates a planner with the given policy.
func NewPlanner(policy Policy) *Planner {
	policy.ApplyDefaults()
	return &Planner{policy: policy}
}

// Policy returns the planner's policy.
func (p *Planner) Policy() Policy { return p.policy }

// Evaluate compares current occupancy against the threshold table.
func (p *Planner) Evaluate(st *session.State) Decision {
	usage := st.Usage()
	frac := 0.0
	if st.MaxBudget() > 0 {
		frac = float64(usage) / float64(st.MaxBudget())
	}

	d := Decision{Usage: usage, Fraction: frac}
	switch {
	case frac >= p.policy.RequireAt:
		d.Action = ActionRequired
		d.TriggeredAt = p.policy.RequireAt
		d.Reason = fmt.Sprintf("usage %.0f%% of budget is at or above the required threshold (%.0f%%)",
			frac*100, p.policy.RequireAt*100)
	case frac >= p.policy.RecommendAt:
		d.Action = ActionRecommend
		d.TriggeredAt = p.policy.RecommendAt
		d.Reason = fmt.Sprintf("usage %.0f%% of budget is at or above the recommend threshold (%.0f%%)",
			frac*100, p.policy.RecommendAt*100)
	default:
		d.Action = ActionNone
	}
	return d
}

// Classify maps occupancy to the user-facing health level.
func (p *Planner) Classify(st *session.State) Health {
	frac := 0.0
	if st.MaxBudget() > 0 {
		frac = float64(st.Usage()) / float64(st.MaxBudget())
	}
	switch {
	case frac >= p.policy.RequireAt:
		return HealthCritical
	case frac >= p.policy.RecommendAt:
		return HealthRecommend
	case frac >= p.policy.MonitorAt:
		return HealthMonitor
	default:
		return HealthHealthy
	}
}

// Plan selects the oldest contiguous range of History units whose removal
// is projected to bring usage to at most TargetRatio of the triggering
// threshold. When the target cannot be reached it still returns whatever
// History exists, so a Required decision always makes forward progress.
// Returns ErrNoHistoryToCompact when the session has no History units.
func (p *Planner) Plan(st *session.State, d Decision) (*Plan, error) {
	history := st.LiveInRange(1, st.MaxID(), session.TierHistory)
	if len(history) == 0 {
		return nil, NewError("Plan", ErrNoHistoryToCompact).WithSession(st.SessionID())
	}

	triggeredAt := d.TriggeredAt
	if triggeredAt == 0 {
		// Manual compaction below any threshold: aim relative to the
		// recommend threshold.
		triggeredAt = p.policy.RecommendAt
	}

	target := int(float64(st.MaxBudget()) * triggeredAt * p.policy.TargetRatio)
	needed := st.Usage() - target

	plan := &Plan{
		FirstID:     history[0].ID,
		TriggeredAt: triggeredAt,
	}
	for _, u := range history {
		plan.LastID = u.ID
		plan.Units++
		plan.ProjectedSavings += u.Cost
		if plan.ProjectedSavings >= needed {
			break
		}
	}
	return plan, nil
}
