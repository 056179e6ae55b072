package session

// classifyOrigin returns the tier a freshly appended unit starts in.
// SystemDirective and CompactionDigest origins are Foundation; everything
// else enters the Working window (it is by definition the most recent
// content) and ages into History as the window advances.
func classifyOrigin(origin Origin) Tier {
	switch origin {
	case OriginSystemDirective, OriginCompactionDigest:
		return TierFoundation
	default:
		return TierWorking
	}
}

// retier advances the Working window after an append. The window covers the
// most recent preservePairs exchange pairs; a pair starts at a UserInput
// unit and runs until the next one. Units that fall out of the window are
// demoted to History.
//
// The scan starts at workingStart, never at the head of the history, so the
// amortized cost per append is constant.
func (s *State) retier() {
	start := s.findWindowStart()
	if start < s.workingStart {
		start = s.workingStart
	}

	for i := s.workingStart; i < len(s.units); i++ {
		u := s.units[i]
		if u.Removed || u.Tier == TierFoundation {
			continue
		}

		want := TierWorking
		if i < start {
			want = TierHistory
		}
		if u.Tier == want {
			continue
		}

		s.tierCost[u.Tier] -= u.Cost
		s.tierCost[want] += u.Cost
		u.Tier = want
	}

	s.workingStart = start
}

// findWindowStart returns the index of the first unit of the K-th most
// recent exchange pair. Everything at or after that index is Working
// (unless Foundation); everything before is History.
func (s *State) findWindowStart() int {
	pairs := 0
	for i := len(s.units) - 1; i >= s.workingStart; i-- {
		u := s.units[i]
		if u.Removed || u.Tier == TierFoundation {
			continue
		}
		if u.Origin == OriginUserInput {
			pairs++
			if pairs == s.preservePairs {
				return i
			}
		}
	}
	return s.workingStart
}
