package compaction

import (
	"fmt"

	"github.com/stackline/ctxbudget/session"
)

// Outcome is the verdict of a post-compaction verification.
type Outcome int

const (
	// Pass means every invariant held and the reduction met its target.
	Pass Outcome = iota

	// Warn means the transform is sound but under-achieved its projected
	// savings. The transform is still committed.
	Warn

	// Fail means an invariant was violated. The transform must not be
	// committed; the session stays at its pre-compaction state.
	Fail
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "pass"
	case Warn:
		return "warn"
	default:
		return "fail"
	}
}

// Result carries the verification verdict and, for Warn/Fail, the reason.
type Result struct {
	Outcome Outcome
	Reason  string
}

// Probe is the self-check run on the candidate post-compaction state before
// it is swapped in.
type Probe struct {
	policy Policy
}

// NewProbe creates a probe with the given policy.
func NewProbe(policy Policy) *Probe {
	policy.ApplyDefaults()
	return &Probe{policy: policy}
}

// Verify checks the candidate state against the pre-compaction state.
//
// Hard invariants (Fail): usage strictly decreased; every pre-compaction
// Foundation unit survives byte-identical; every pre-compaction Working
// unit survives byte-identical. Soft check (Warn): reduction achieved at
// least MinAchievedRatio of the plan's projected savings.
func (p *Probe) Verify(pre, post *session.State, plan *Plan) Result {
	if post.Usage() >= pre.Usage() {
		return Result{Fail, fmt.Sprintf("usage did not decrease: %d -> %d", pre.Usage(), post.Usage())}
	}

	if err := post.CheckConservation(); err != nil {
		return Result{Fail, err.Error()}
	}

	for _, u := range pre.Live() {
		switch u.Tier {
		case session.TierFoundation, session.TierWorking:
			pu, ok := post.Unit(u.ID)
			if !ok || pu.Removed {
				return Result{Fail, fmt.Sprintf("%s unit %d missing after compaction", u.Tier, u.ID)}
			}
			if pu.Body != u.Body || pu.Cost != u.Cost {
				return Result{Fail, fmt.Sprintf("%s unit %d modified by compaction", u.Tier, u.ID)}
			}
		}
	}

	achieved := pre.Usage() - post.Usage()
	floor := int(float64(plan.ProjectedSavings) * p.policy.MinAchievedRatio)
	if achieved < floor {
		return Result{Warn, fmt.Sprintf("reclaimed %d of %d projected budget units", achieved, plan.ProjectedSavings)}
	}

	return Result{Outcome: Pass}
}
