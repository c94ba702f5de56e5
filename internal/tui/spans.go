package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"

	"github.com/benegessarit/skill-composer/internal/span"
	"github.com/benegessarit/skill-composer/internal/tracker"
)

// spanItem implements list.Item for spans.
type spanItem struct {
	span *span.Span
}

func (i spanItem) Title() string {
	return fmt.Sprintf("%s %s", statusIcon(i.span.Status), i.span.Workflow)
}

func (i spanItem) Description() string {
	parts := []string{
		shortID(i.span.SessionID),
		fmt.Sprintf("%d steps", i.span.Steps.Len()),
	}
	if i.span.LastStep != "" {
		parts = append(parts, "at "+i.span.LastStep)
	}
	parts = append(parts, ago(i.span.UpdatedAt))
	return strings.Join(parts, "  ")
}

func (i spanItem) FilterValue() string {
	return i.span.Workflow + " " + i.span.SessionID + " " + string(i.span.Status)
}

func statusIcon(s span.Status) string {
	switch s {
	case span.StatusActive:
		return "●"
	case span.StatusSuspended:
		return "◐"
	default:
		return "○"
	}
}

func styledStatus(s span.Status) string {
	switch s {
	case span.StatusActive:
		return statusOkStyle.Render(string(s))
	case span.StatusSuspended:
		return statusWarnStyle.Render(string(s))
	default:
		return mutedStyle.Render(string(s))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func ago(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("Jan 2 15:04")
	}
}

// spanItems keeps the spans matching openOnly, in the given order.
func spanItems(spans []*span.Span, openOnly bool) []list.Item {
	items := make([]list.Item, 0, len(spans))
	for _, s := range spans {
		if openOnly && !s.Status.Open() {
			continue
		}
		items = append(items, spanItem{span: s})
	}
	return items
}

// detail is what the right panel shows for the selected span.
type detail struct {
	spanID   string
	ancestry []tracker.Ancestor
	events   []span.Event
	err      error
}

func field(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "  %s %s\n", detailLabelStyle.Render(label), detailValueStyle.Render(value))
}

// renderSpanDetail renders the right-side detail panel for a span.
func renderSpanDetail(s *span.Span, d *detail, width, height int) string {
	var b strings.Builder

	field(&b, "Workflow:", s.Workflow)
	fmt.Fprintf(&b, "  %s %s\n", detailLabelStyle.Render("Status:  "), styledStatus(s.Status))
	field(&b, "Span:    ", s.ID)
	field(&b, "Session: ", s.SessionID)
	field(&b, "Started: ", s.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	field(&b, "Updated: ", s.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

	if d != nil && d.spanID == s.ID && len(d.ancestry) > 0 {
		names := make([]string, 0, len(d.ancestry))
		for _, a := range d.ancestry {
			names = append(names, a.Workflow)
		}
		field(&b, "Within:  ", strings.Join(names, " ← "))
	}

	b.WriteString("\n")
	b.WriteString("  " + detailLabelStyle.Render("Steps") + "\n")
	steps := s.Steps.Steps()
	if len(steps) == 0 {
		b.WriteString(mutedStyle.Render("    none yet") + "\n")
	}
	for i, step := range steps {
		marker := "  "
		if i == len(steps)-1 && s.Status.Open() {
			marker = "▸ "
		}
		fmt.Fprintf(&b, "  %s%d. %s\n", marker, i+1, step)
	}

	if d != nil && d.spanID == s.ID {
		b.WriteString("\n")
		b.WriteString("  " + detailLabelStyle.Render("Events") + "\n")
		if d.err != nil {
			b.WriteString(statusErrorStyle.Render("    "+d.err.Error()) + "\n")
		}
		for _, e := range d.events {
			fmt.Fprintf(&b, "    %s  %-22s %s\n",
				mutedStyle.Render(e.Timestamp.Local().Format("15:04:05")), e.Kind, e.Phase)
		}
	}

	return detailBorderStyle.
		Width(max(0, width-4)).
		Height(max(0, height-4)).
		Render(b.String())
}

// spanEvents keeps the events of one workflow, latest last, at most n.
func spanEvents(events []span.Event, workflow string, n int) []span.Event {
	var out []span.Event
	for _, e := range events {
		if e.Workflow == workflow {
			out = append(out, e)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
