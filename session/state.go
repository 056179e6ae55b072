// Package session owns the authoritative in-memory record of one
// conversation session: the ordered content units, their retention tiers,
// and the running budget aggregates.
//
// A State is exclusively owned by its session's worker. It is never shared
// across sessions; compaction operates on a Clone and the caller swaps the
// result in as the current state in a single reference update.
package session

import (
	"fmt"
	"time"
)

// DefaultPreservePairs is the number of most-recent user/agent exchange
// pairs kept in the Working tier.
const DefaultPreservePairs = 8

// State is the mutable record of all retained content for one session.
//
// Invariants maintained by every mutation:
//   - unit IDs are strictly increasing and never reused
//   - Usage() equals the sum of Cost over all live units
//   - exactly the most recent PreservePairs exchange pairs are Working tier
//   - Foundation units are never removed
type State struct {
	sessionID     string
	maxBudget     int
	preservePairs int

	nextID uint64
	units  []*ContentUnit
	byID   map[uint64]int

	// workingStart is the index of the oldest unit inside the current
	// Working window. Re-tiering scans only from here, keeping the per-append
	// cost O(1) amortized.
	workingStart int

	usage    int
	tierCost map[Tier]int

	lossyDigests int
}

// NewState creates an empty session state.
// preservePairs <= 0 selects DefaultPreservePairs.
func NewState(sessionID string, maxBudget, preservePairs int) *State {
	if preservePairs <= 0 {
		preservePairs = DefaultPreservePairs
	}
	return &State{
		sessionID:     sessionID,
		maxBudget:     maxBudget,
		preservePairs: preservePairs,
		nextID:        1,
		byID:          make(map[uint64]int),
		tierCost: map[Tier]int{
			TierFoundation: 0,
			TierWorking:    0,
			TierHistory:    0,
		},
	}
}

// SessionID returns the owning session's identifier.
func (s *State) SessionID() string { return s.sessionID }

// MaxBudget returns the configured maximum budget in tokens.
func (s *State) MaxBudget() int { return s.maxBudget }

// PreservePairs returns the configured Working-window size K.
func (s *State) PreservePairs() int { return s.preservePairs }

// Usage returns the total cost of all live units.
func (s *State) Usage() int { return s.usage }

// TierUsage returns the total cost of live units in the given tier.
func (s *State) TierUsage(tier Tier) int { return s.tierCost[tier] }

// LossyDigests returns how many degraded (non-semantic) digests the session
// has accumulated.
func (s *State) LossyDigests() int { return s.lossyDigests }

// MaxID returns the highest id assigned so far, or 0 for an empty session.
func (s *State) MaxID() uint64 { return s.nextID - 1 }

// Append creates a new unit with the next id, classifies it, re-tiers the
// Working window, and updates the aggregates. Negative costs are clamped to
// zero so accounting never goes backwards on malformed input.
func (s *State) Append(origin Origin, body string, cost int) *ContentUnit {
	if cost < 0 {
		cost = 0
	}

	unit := &ContentUnit{
		ID:        s.nextID,
		Origin:    origin,
		Body:      body,
		Cost:      cost,
		Tier:      classifyOrigin(origin),
		CreatedAt: time.Now().UTC(),
	}
	s.nextID++

	s.byID[unit.ID] = len(s.units)
	s.units = append(s.units, unit)
	s.usage += cost
	s.tierCost[unit.Tier] += cost

	s.retier()
	return unit
}

// AppendDigest creates a compaction digest unit. The digest is Foundation
// tier (never re-summarized); degraded marks the non-generative fallback.
func (s *State) AppendDigest(body string, cost int, degraded bool) *ContentUnit {
	unit := s.Append(OriginCompactionDigest, body, cost)
	unit.Degraded = degraded
	if degraded {
		s.lossyDigests++
	}
	return unit
}

// Unit returns the unit with the given id, live or removed.
func (s *State) Unit(id uint64) (*ContentUnit, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return s.units[idx], true
}

// Remove logically removes a unit. Foundation units other than checkpoint
// markers cannot be removed through compaction; callers enforce that.
// Returns false if the id is unknown or already removed.
func (s *State) Remove(id uint64) bool {
	idx, ok := s.byID[id]
	if !ok {
		return false
	}
	unit := s.units[idx]
	if unit.Removed {
		return false
	}
	unit.Removed = true
	s.usage -= unit.Cost
	s.tierCost[unit.Tier] -= unit.Cost
	return true
}

// Live returns all live units in id order.
func (s *State) Live() []*ContentUnit {
	out := make([]*ContentUnit, 0, len(s.units))
	for _, u := range s.units {
		if !u.Removed {
			out = append(out, u)
		}
	}
	return out
}

// LiveInRange returns live units with first <= id <= last, optionally
// filtered by tier (empty tier matches all).
func (s *State) LiveInRange(first, last uint64, tier Tier) []*ContentUnit {
	var out []*ContentUnit
	for _, u := range s.units {
		if u.Removed || u.ID < first {
			continue
		}
		if u.ID > last {
			break
		}
		if tier != "" && u.Tier != tier {
			continue
		}
		out = append(out, u)
	}
	return out
}

// Clone returns a deep copy of the state. Used to build the post-compaction
// state off to the side so the transform can be validated and then swapped
// in atomically.
func (s *State) Clone() *State {
	c := &State{
		sessionID:     s.sessionID,
		maxBudget:     s.maxBudget,
		preservePairs: s.preservePairs,
		nextID:        s.nextID,
		units:         make([]*ContentUnit, len(s.units)),
		byID:          make(map[uint64]int, len(s.byID)),
		workingStart:  s.workingStart,
		usage:         s.usage,
		tierCost: map[Tier]int{
			TierFoundation: s.tierCost[TierFoundation],
			TierWorking:    s.tierCost[TierWorking],
			TierHistory:    s.tierCost[TierHistory],
		},
		lossyDigests: s.lossyDigests,
	}
	for i, u := range s.units {
		c.units[i] = u.clone()
		c.byID[u.ID] = i
	}
	return c
}

// CheckConservation verifies the budget conservation invariant: the sum of
// live unit costs must equal the reported usage. Returns nil when the
// aggregates are consistent.
func (s *State) CheckConservation() error {
	sum := 0
	for _, u := range s.units {
		if !u.Removed {
			sum += u.Cost
		}
	}
	if sum != s.usage {
		return fmt.Errorf("budget drift: live unit costs sum to %d but reported usage is %d", sum, s.usage)
	}
	return nil
}
