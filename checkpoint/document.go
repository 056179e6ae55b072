package checkpoint

import (
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Document section headings recognized by ParseDocument. Matching is
// case-insensitive.
const (
	sectionGoal      = "goal"
	sectionCompleted = "completed"
	sectionCurrent   = "current"
	sectionPending   = "pending"
	sectionDecisions = "key decisions"
	sectionResources = "modified resources"
	sectionNotes     = "notes"
)

// titlePrefix introduces the document title carrying the record key.
const titlePrefix = "Checkpoint: "

// ParseDocument reads a checkpoint document in its markdown form and
// returns the record it describes. The document is typically written by a
// previous session via FormatDocument and read at session start to re-seed
// Foundation-tier context.
func ParseDocument(src []byte) (*Record, error) {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(src))

	rec := &Record{UpdatedAt: time.Now().UTC()}
	section := ""

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			title := strings.TrimSpace(nodeText(node, src))
			if node.Level == 1 {
				rec.Key = strings.TrimSpace(strings.TrimPrefix(title, titlePrefix))
				continue
			}
			section = strings.ToLower(title)

		case *ast.List:
			for item := node.FirstChild(); item != nil; item = item.NextSibling() {
				entry := strings.TrimSpace(nodeText(item, src))
				if entry == "" {
					continue
				}
				switch section {
				case sectionCompleted:
					rec.Completed = append(rec.Completed, entry)
				case sectionPending:
					rec.Pending = append(rec.Pending, entry)
				case sectionResources:
					rec.ModifiedResources = append(rec.ModifiedResources, entry)
				case sectionDecisions:
					topic, choice, _ := strings.Cut(entry, ": ")
					rec.Decisions = append(rec.Decisions, Decision{
						Topic:  strings.TrimSpace(topic),
						Choice: strings.TrimSpace(choice),
					})
				}
			}

		case *ast.Paragraph:
			body := strings.TrimSpace(nodeText(node, src))
			if body == "" {
				continue
			}
			switch section {
			case sectionGoal:
				rec.Goal = joinPara(rec.Goal, body)
			case sectionCurrent:
				rec.Current = joinPara(rec.Current, body)
			case sectionNotes:
				rec.Notes = joinPara(rec.Notes, body)
			}
		}
	}

	if rec.Key == "" {
		return nil, fmt.Errorf("checkpoint document: missing %q title", titlePrefix+"<key>")
	}
	return rec, nil
}

// FormatDocument renders the record as its markdown document form, suitable
// for writing to a checkpoint file and re-reading with ParseDocument.
func FormatDocument(rec *Record) []byte {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s%s\n", titlePrefix, rec.Key)

	writeScalar := func(heading, body string) {
		if body == "" {
			return
		}
		fmt.Fprintf(&sb, "\n## %s\n\n%s\n", heading, body)
	}
	writeList := func(heading string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&sb, "\n## %s\n\n", heading)
		for _, item := range items {
			fmt.Fprintf(&sb, "- %s\n", item)
		}
	}

	writeScalar("Goal", rec.Goal)
	writeList("Completed", rec.Completed)
	writeScalar("Current", rec.Current)
	writeList("Pending", rec.Pending)

	if len(rec.Decisions) > 0 {
		sb.WriteString("\n## Key Decisions\n\n")
		for _, d := range rec.Decisions {
			fmt.Fprintf(&sb, "- %s: %s\n", d.Topic, d.Choice)
		}
	}

	writeList("Modified Resources", rec.ModifiedResources)
	writeScalar("Notes", rec.Notes)

	return []byte(sb.String())
}

// nodeText collects the raw text content under a node.
func nodeText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := c.(*ast.Text); ok {
				sb.Write(t.Segment.Value(src))
			}
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

func joinPara(existing, body string) string {
	if existing == "" {
		return body
	}
	return existing + "\n" + body
}
