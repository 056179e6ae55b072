package compaction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stackline/ctxbudget/session"
)

// stubSummarizer returns a fixed digest or error.
type stubSummarizer struct {
	digest string
	err    error
	delay  time.Duration
	calls  int
}

func (s *stubSummarizer) Summarize(ctx context.Context, units []*session.ContentUnit, maxTokens int) (string, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.err != nil {
		return "", s.err
	}
	return s.digest, nil
}

// byteEstimator prices text by the shared heuristic, keeping tests
// independent of the BPE cache.
type byteEstimator struct{}

func (byteEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

func plannedState(t *testing.T) (*session.State, *Plan) {
	t.Helper()
	st := session.NewState("s1", 10000, 2)
	fillPairs(st, 12, 400) // 9600: required

	p := NewPlanner(DefaultPolicy())
	plan, err := p.Plan(st, p.Evaluate(st))
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}
	return st, plan
}

func TestCompactorHappyPath(t *testing.T) {
	st, plan := plannedState(t)
	summ := &stubSummarizer{digest: "the user asked twelve questions and got twelve answers"}
	c := NewCompactor(DefaultPolicy(), summ, byteEstimator{})

	digest, degraded, err := c.Summarize(context.Background(), st, plan)
	if err != nil {
		t.Fatalf("Summarize() error: %v", err)
	}
	if degraded {
		t.Fatal("happy path marked degraded")
	}

	post, event, err := c.Apply(st, plan, digest, degraded)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	if post.Usage() >= st.Usage() {
		t.Errorf("usage did not decrease: %d -> %d", st.Usage(), post.Usage())
	}
	if event.UnitsReplaced != plan.Units {
		t.Errorf("UnitsReplaced = %d, want %d", event.UnitsReplaced, plan.Units)
	}
	if event.Degraded {
		t.Error("event marked degraded on the semantic path")
	}
	if event.DigestID <= plan.LastID {
		t.Errorf("digest id %d not greater than replaced range end %d", event.DigestID, plan.LastID)
	}

	du, ok := post.Unit(event.DigestID)
	if !ok {
		t.Fatal("digest unit missing from post state")
	}
	if du.Origin != session.OriginCompactionDigest || du.Tier != session.TierFoundation {
		t.Errorf("digest unit origin/tier = %s/%s", du.Origin, du.Tier)
	}
	if err := post.CheckConservation(); err != nil {
		t.Error(err)
	}
}

func TestCompactorDegradedOnSummarizerError(t *testing.T) {
	st, plan := plannedState(t)
	summ := &stubSummarizer{err: errors.New("provider unreachable")}
	c := NewCompactor(DefaultPolicy(), summ, byteEstimator{})

	digest, degraded, serr := c.Summarize(context.Background(), st, plan)
	if !degraded {
		t.Fatal("summarizer error did not trigger the degraded fallback")
	}
	if serr == nil {
		t.Error("expected the underlying summarizer error to be reported")
	}
	if !strings.Contains(digest, "compacted without summary") {
		t.Errorf("placeholder body = %q, want structural marker", digest)
	}

	post, event, err := c.Apply(st, plan, digest, degraded)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if !event.Degraded {
		t.Error("event not flagged degraded")
	}
	if post.Usage() >= st.Usage() {
		t.Error("degraded compaction must still reduce usage")
	}
	if post.LossyDigests() != 1 {
		t.Errorf("LossyDigests() = %d, want 1", post.LossyDigests())
	}
}

func TestCompactorDegradedOnTimeout(t *testing.T) {
	st, plan := plannedState(t)
	summ := &stubSummarizer{digest: "too slow", delay: 200 * time.Millisecond}

	policy := DefaultPolicy()
	policy.SummarizerWait = 10 * time.Millisecond
	c := NewCompactor(policy, summ, byteEstimator{})

	_, degraded, serr := c.Summarize(context.Background(), st, plan)
	if !degraded {
		t.Fatal("timeout did not trigger the degraded fallback")
	}
	if !errors.Is(serr, ErrSummarizationTimeout) {
		t.Errorf("error = %v, want ErrSummarizationTimeout", serr)
	}
}

func TestCompactorNilSummarizerDegrades(t *testing.T) {
	st, plan := plannedState(t)
	c := NewCompactor(DefaultPolicy(), nil, byteEstimator{})

	digest, degraded, serr := c.Summarize(context.Background(), st, plan)
	if !degraded || serr != nil {
		t.Fatalf("nil summarizer: degraded=%v err=%v, want degraded silently", degraded, serr)
	}
	if digest == "" {
		t.Error("placeholder body empty")
	}
}

func TestApplyPreservesRecencyAndFoundation(t *testing.T) {
	st := session.NewState("s1", 10000, 2)
	dir := st.Append(session.OriginSystemDirective, "project rules", 100)
	fillPairs(st, 12, 400)

	p := NewPlanner(DefaultPolicy())
	plan, err := p.Plan(st, p.Evaluate(st))
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}

	// Snapshot the working window before compaction.
	var workingBodies []string
	for _, u := range st.Live() {
		if u.Tier == session.TierWorking {
			workingBodies = append(workingBodies, u.Body)
		}
	}

	c := NewCompactor(DefaultPolicy(), &stubSummarizer{digest: "digest"}, byteEstimator{})
	post, _, err := c.Apply(st, plan, "digest", false)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	pd, ok := post.Unit(dir.ID)
	if !ok || pd.Removed || pd.Body != "project rules" {
		t.Error("foundation directive not preserved byte-identical")
	}

	var postWorking []string
	for _, u := range post.Live() {
		if u.Tier == session.TierWorking {
			postWorking = append(postWorking, u.Body)
		}
	}
	if len(postWorking) != len(workingBodies) {
		t.Fatalf("working window size changed: %d -> %d", len(workingBodies), len(postWorking))
	}
	for i := range workingBodies {
		if postWorking[i] != workingBodies[i] {
			t.Errorf("working unit %d changed: %q -> %q", i, workingBodies[i], postWorking[i])
		}
	}
}

func TestApplyAppendsDuringFlightUnaffected(t *testing.T) {
	st, plan := plannedState(t)

	// Content appended while the summarizer is in flight gets ids beyond
	// the captured range and must survive the apply untouched.
	late := st.Append(session.OriginUserInput, "appended mid-compaction", 50)

	c := NewCompactor(DefaultPolicy(), &stubSummarizer{digest: "digest"}, byteEstimator{})
	post, event, err := c.Apply(st, plan, "digest", false)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}

	lu, ok := post.Unit(late.ID)
	if !ok || lu.Removed || lu.Body != "appended mid-compaction" {
		t.Error("mid-flight append was affected by compaction")
	}
	if event.DigestID <= late.ID {
		// The digest id only has to exceed the replaced range; it grows
		// past later appends too because ids are globally monotonic.
		t.Errorf("digest id %d not beyond latest append %d", event.DigestID, late.ID)
	}
}

func TestApplyVerificationFailure(t *testing.T) {
	st, plan := plannedState(t)

	// A summarizer digest priced larger than everything it replaces cannot
	// reduce usage; Apply must refuse to commit.
	huge := strings.Repeat("x", 100000)

	c := NewCompactor(DefaultPolicy(), nil, byteEstimator{})
	_, _, err := c.Apply(st, plan, huge, false)
	if !errors.Is(err, ErrVerificationFailed) {
		t.Errorf("Apply() error = %v, want ErrVerificationFailed", err)
	}
}

func TestApplyDegradedTinyRangeStillReduces(t *testing.T) {
	// A budget dominated by pinned content: the compactable range is
	// cheaper than the placeholder text that would replace it. The
	// placeholder's recorded cost must be capped so a required-level
	// compaction still frees budget.
	st := session.NewState("s1", 1000, 1)
	st.Append(session.OriginSystemDirective, "pinned operating directive", 900)
	fillPairs(st, 2, 1)

	p := NewPlanner(DefaultPolicy())
	d := p.Evaluate(st)
	if d.Action != ActionRequired {
		t.Fatalf("Action = %v, want required", d.Action)
	}
	plan, err := p.Plan(st, d)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}

	c := NewCompactor(DefaultPolicy(), nil, byteEstimator{})
	digest, degraded, serr := c.Summarize(context.Background(), st, plan)
	if !degraded || serr != nil {
		t.Fatalf("nil summarizer: degraded=%v err=%v", degraded, serr)
	}

	post, event, err := c.Apply(st, plan, digest, degraded)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if post.Usage() >= st.Usage() {
		t.Errorf("usage did not decrease: %d -> %d", st.Usage(), post.Usage())
	}

	marker, ok := post.Unit(event.DigestID)
	if !ok {
		t.Fatal("digest unit missing from post state")
	}
	if marker.Cost >= plan.ProjectedSavings {
		t.Errorf("placeholder cost %d not below freed %d", marker.Cost, plan.ProjectedSavings)
	}
}

func TestSummarizeAbortsOnCallerCancel(t *testing.T) {
	st, plan := plannedState(t)
	summ := &stubSummarizer{digest: "never delivered", delay: time.Second}
	c := NewCompactor(DefaultPolicy(), summ, byteEstimator{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, degraded, err := c.Summarize(ctx, st, plan)
	if degraded {
		t.Fatal("caller cancellation must not take the lossy fallback")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
