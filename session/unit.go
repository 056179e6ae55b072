package session

import "time"

// Origin identifies where a content unit came from.
type Origin string

const (
	// OriginUserInput is a message typed by the user.
	OriginUserInput Origin = "user_input"

	// OriginAgentOutput is a response produced by the agent.
	OriginAgentOutput Origin = "agent_output"

	// OriginToolResult is the output of a tool invocation.
	OriginToolResult Origin = "tool_result"

	// OriginSystemDirective is instruction-level content (system prompts,
	// checkpoint markers). Always Foundation tier.
	OriginSystemDirective Origin = "system_directive"

	// OriginCompactionDigest is a summary that replaced a compacted range.
	// Foundation-equivalent for future compactions: never re-summarized.
	OriginCompactionDigest Origin = "compaction_digest"
)

// Tier is a retention classification determining a unit's eligibility for
// removal during compaction.
type Tier string

const (
	// TierFoundation units are never removed or summarized.
	TierFoundation Tier = "foundation"

	// TierWorking units are within the most recent K exchange pairs.
	// They age into TierHistory as newer exchanges arrive.
	TierWorking Tier = "working"

	// TierHistory units are eligible for compaction.
	TierHistory Tier = "history"
)

// ContentUnit is one indivisible item of conversation history.
type ContentUnit struct {
	// ID is a strictly increasing sequence number. IDs are never reused,
	// including across compactions.
	ID uint64

	Origin Origin

	// Body is the opaque payload.
	Body string

	// Cost is the estimated budget cost, computed once at append time and
	// cached. Recomputation is an explicit operation, never implicit.
	Cost int

	Tier Tier

	// Degraded marks a compaction digest produced by the non-generative
	// fallback (summarizer failed or timed out). The range was dropped
	// without semantic content.
	Degraded bool

	// Removed marks a unit logically removed by compaction. Removed units
	// no longer contribute to totals and are skipped by history queries.
	Removed bool

	CreatedAt time.Time
}

// DisplayTier returns the tier to show in user-facing history reports.
// Compaction digests are Foundation for retention purposes but logically
// belong to the history they replaced.
func (u *ContentUnit) DisplayTier() Tier {
	if u.Origin == OriginCompactionDigest {
		return TierHistory
	}
	return u.Tier
}

// Live reports whether the unit still contributes to totals.
func (u *ContentUnit) Live() bool {
	return !u.Removed
}

// clone returns a deep copy of the unit.
func (u *ContentUnit) clone() *ContentUnit {
	c := *u
	return &c
}
