package compaction

import "time"

// Event records one completed compaction for the session's history log and
// for user-facing reporting. Degraded events must be distinguishable so a
// reviewer knows information was dropped without summarization.
type Event struct {
	SessionID string

	// Trigger is "manual" or "auto".
	Trigger string

	PreUsage  int
	PostUsage int

	// FirstID and LastID are the plan's id bounds; UnitsReplaced counts the
	// History units actually removed.
	FirstID       uint64
	LastID        uint64
	UnitsReplaced int

	// DigestID is the id of the replacement unit.
	DigestID uint64

	// Degraded marks the structural-placeholder fallback path.
	Degraded bool

	// Probe is the verification outcome committed with the transform.
	Probe Result

	Duration  time.Duration
	CreatedAt time.Time
}

// Reclaimed returns how many budget units the compaction freed.
func (e *Event) Reclaimed() int {
	return e.PreUsage - e.PostUsage
}
