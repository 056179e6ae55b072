package ctxbudget

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"

	"github.com/stackline/ctxbudget/compaction"
	"github.com/stackline/ctxbudget/session"
)

// Report renders a markdown budget report: occupancy, per-tier breakdown,
// and the compaction log. Lossy compactions are called out explicitly.
func (e *Engine) Report() string {
	s := e.Status()
	events := e.Events()

	var b strings.Builder
	fmt.Fprintf(&b, "# Context Budget: %s\n\n", s.SessionID)
	fmt.Fprintf(&b, "**Usage:** %d / %d tokens (%.1f%%) — %s\n\n",
		s.Usage, s.MaxBudget, s.Fraction*100, s.Health)

	if s.Action == compaction.ActionRecommend {
		b.WriteString("> Compaction recommended.\n\n")
	} else if s.Action == compaction.ActionRequired {
		b.WriteString("> Compaction required.\n\n")
	}

	b.WriteString("## Tiers\n\n")
	b.WriteString("| Tier | Tokens |\n|---|---|\n")
	for _, tier := range []session.Tier{session.TierFoundation, session.TierWorking, session.TierHistory} {
		fmt.Fprintf(&b, "| %s | %d |\n", tier, s.Tiers[tier])
	}
	b.WriteString("\n")

	b.WriteString("## Compactions\n\n")
	if len(events) == 0 {
		b.WriteString("None yet.\n")
		return b.String()
	}
	for i, ev := range events {
		fmt.Fprintf(&b, "%d. [%s] %d -> %d tokens, %d units replaced (digest id %d)",
			i+1, ev.Trigger, ev.PreUsage, ev.PostUsage, ev.UnitsReplaced, ev.DigestID)
		if ev.Degraded {
			b.WriteString(" **LOSSY: dropped without summary**")
		}
		if ev.Probe.Outcome == compaction.Warn {
			fmt.Fprintf(&b, " _(warning: %s)_", ev.Probe.Reason)
		}
		b.WriteString("\n")
	}
	if s.LossyCompactions > 0 {
		fmt.Fprintf(&b, "\n%d lossy digest(s) remain in the conversation.\n", s.LossyCompactions)
	}
	return b.String()
}

// ReportHTML renders the markdown report as sanitized HTML for embedding
// in dashboards.
func (e *Engine) ReportHTML() ([]byte, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(e.Report()), &buf); err != nil {
		return nil, NewEngineErrorWithSession("ReportHTML", e.id, err)
	}
	return bluemonday.UGCPolicy().SanitizeBytes(buf.Bytes()), nil
}
