package session

import "testing"

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	st := NewState("s1", 1000, 2)

	var last uint64
	for i := 0; i < 10; i++ {
		u := st.Append(OriginUserInput, "hello", 5)
		if u.ID <= last {
			t.Fatalf("id %d not greater than previous %d", u.ID, last)
		}
		last = u.ID
	}
	if st.MaxID() != last {
		t.Errorf("MaxID() = %d, want %d", st.MaxID(), last)
	}
}

func TestAppendClampsNegativeCost(t *testing.T) {
	st := NewState("s1", 1000, 2)
	u := st.Append(OriginUserInput, "x", -50)
	if u.Cost != 0 {
		t.Errorf("Cost = %d, want 0", u.Cost)
	}
	if st.Usage() != 0 {
		t.Errorf("Usage() = %d, want 0", st.Usage())
	}
}

func TestBudgetConservation(t *testing.T) {
	st := NewState("s1", 10000, 3)

	costs := []int{10, 20, 0, 35, 5, 120, 7}
	origins := []Origin{
		OriginUserInput, OriginAgentOutput, OriginToolResult,
		OriginUserInput, OriginAgentOutput,
		OriginSystemDirective, OriginUserInput,
	}
	want := 0
	for i, c := range costs {
		st.Append(origins[i], "body", c)
		want += c
		if st.Usage() != want {
			t.Fatalf("after append %d: Usage() = %d, want %d", i, st.Usage(), want)
		}
		if err := st.CheckConservation(); err != nil {
			t.Fatalf("after append %d: %v", i, err)
		}
	}

	perTier := st.TierUsage(TierFoundation) + st.TierUsage(TierWorking) + st.TierUsage(TierHistory)
	if perTier != want {
		t.Errorf("per-tier sum = %d, want %d", perTier, want)
	}
}

func TestRemoveUpdatesAggregates(t *testing.T) {
	st := NewState("s1", 1000, 8)
	a := st.Append(OriginUserInput, "a", 10)
	b := st.Append(OriginAgentOutput, "b", 20)

	if !st.Remove(a.ID) {
		t.Fatal("Remove returned false for live unit")
	}
	if st.Remove(a.ID) {
		t.Error("Remove returned true for already-removed unit")
	}
	if st.Usage() != b.Cost {
		t.Errorf("Usage() = %d, want %d", st.Usage(), b.Cost)
	}
	if err := st.CheckConservation(); err != nil {
		t.Error(err)
	}

	live := st.Live()
	if len(live) != 1 || live[0].ID != b.ID {
		t.Errorf("Live() = %v, want only unit %d", live, b.ID)
	}
}

func TestDirectiveAndDigestAreFoundation(t *testing.T) {
	st := NewState("s1", 1000, 2)
	d := st.Append(OriginSystemDirective, "goal: build the thing", 12)
	if d.Tier != TierFoundation {
		t.Errorf("directive tier = %s, want %s", d.Tier, TierFoundation)
	}

	g := st.AppendDigest("summary of earlier turns", 30, false)
	if g.Tier != TierFoundation {
		t.Errorf("digest tier = %s, want %s", g.Tier, TierFoundation)
	}
	if g.DisplayTier() != TierHistory {
		t.Errorf("digest display tier = %s, want %s", g.DisplayTier(), TierHistory)
	}
}

func TestDegradedDigestCounted(t *testing.T) {
	st := NewState("s1", 1000, 2)
	st.AppendDigest("ok digest", 10, false)
	st.AppendDigest("[dropped]", 2, true)
	if got := st.LossyDigests(); got != 1 {
		t.Errorf("LossyDigests() = %d, want 1", got)
	}
}

func TestWorkingWindowAgesIntoHistory(t *testing.T) {
	const k = 3
	st := NewState("s1", 100000, k)

	// 10 exchange pairs: user + agent each.
	var firstPair []*ContentUnit
	for i := 0; i < 10; i++ {
		u := st.Append(OriginUserInput, "question", 10)
		a := st.Append(OriginAgentOutput, "answer", 10)
		if i == 0 {
			firstPair = []*ContentUnit{u, a}
		}
	}

	for _, u := range firstPair {
		if u.Tier != TierHistory {
			t.Errorf("unit %d tier = %s, want %s", u.ID, u.Tier, TierHistory)
		}
	}

	// Exactly k of the user inputs should be Working.
	working := 0
	for _, u := range st.Live() {
		if u.Origin == OriginUserInput && u.Tier == TierWorking {
			working++
		}
	}
	if working != k {
		t.Errorf("working user inputs = %d, want %d", working, k)
	}
	if err := st.CheckConservation(); err != nil {
		t.Error(err)
	}
}

func TestToolResultsAgeWithTheirPair(t *testing.T) {
	st := NewState("s1", 100000, 1)

	st.Append(OriginUserInput, "first question", 10)
	tool := st.Append(OriginToolResult, "tool output", 50)
	st.Append(OriginAgentOutput, "first answer", 10)

	st.Append(OriginUserInput, "second question", 10)
	st.Append(OriginAgentOutput, "second answer", 10)

	if tool.Tier != TierHistory {
		t.Errorf("tool result tier = %s, want %s (aged with its pair)", tool.Tier, TierHistory)
	}
}

func TestCloneIsDeep(t *testing.T) {
	st := NewState("s1", 1000, 2)
	u := st.Append(OriginUserInput, "original", 10)

	c := st.Clone()
	cu, ok := c.Unit(u.ID)
	if !ok {
		t.Fatal("clone missing unit")
	}
	cu.Body = "mutated"
	c.Remove(cu.ID)

	if u.Body != "original" {
		t.Error("mutating clone changed the original unit")
	}
	if u.Removed {
		t.Error("removing in clone removed the original unit")
	}
	if st.Usage() != 10 {
		t.Errorf("original Usage() = %d, want 10", st.Usage())
	}
}

func TestLiveInRange(t *testing.T) {
	st := NewState("s1", 100000, 1)
	for i := 0; i < 6; i++ {
		st.Append(OriginUserInput, "q", 10)
		st.Append(OriginAgentOutput, "a", 10)
	}

	history := st.LiveInRange(1, st.MaxID(), TierHistory)
	for _, u := range history {
		if u.Tier != TierHistory {
			t.Errorf("unit %d tier = %s, want history", u.ID, u.Tier)
		}
	}
	if len(history) == 0 {
		t.Fatal("expected history units")
	}

	bounded := st.LiveInRange(3, 5, "")
	for _, u := range bounded {
		if u.ID < 3 || u.ID > 5 {
			t.Errorf("unit %d outside range [3,5]", u.ID)
		}
	}
}
