package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/benegessarit/skill-composer/internal/gate"
	"github.com/benegessarit/skill-composer/internal/span"
	"github.com/benegessarit/skill-composer/internal/tracker"
)

// Out receives everything printed by this package.
var Out io.Writer = os.Stdout

var (
	okColor    = lipgloss.Color("#10B981")
	warnColor  = lipgloss.Color("#F59E0B")
	errColor   = lipgloss.Color("#EF4444")
	mutedColor = lipgloss.Color("#6B7280")
	titleColor = lipgloss.Color("#7C3AED")

	okStyle    = lipgloss.NewStyle().Foreground(okColor)
	warnStyle  = lipgloss.NewStyle().Foreground(warnColor)
	errStyle   = lipgloss.NewStyle().Foreground(errColor)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(titleColor)
)

func ShowHeader(title string) {
	fmt.Fprintf(Out, " %s\n", strings.Repeat("─", len(title)+2))
	fmt.Fprintf(Out, " %s\n", labelStyle.Render(title))
	fmt.Fprintf(Out, " %s\n", strings.Repeat("─", len(title)+2))
}

func ShowSuccess(format string, args ...any) {
	fmt.Fprintf(Out, " %s %s\n", okStyle.Render("✓"), fmt.Sprintf(format, args...))
}

func ShowError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(Out, " %s %s: %v\n", errStyle.Render("✗"), msg, err)
	} else {
		fmt.Fprintf(Out, " %s %s\n", errStyle.Render("✗"), msg)
	}
}

func ShowWarning(format string, args ...any) {
	fmt.Fprintf(Out, " %s %s\n", warnStyle.Render("!"), fmt.Sprintf(format, args...))
}

func ShowInfo(format string, args ...any) {
	fmt.Fprintf(Out, " ℹ %s\n", fmt.Sprintf(format, args...))
}

// StatusBadge renders a span status with its color.
func StatusBadge(s span.Status) string {
	switch s {
	case span.StatusActive:
		return okStyle.Render("● active")
	case span.StatusSuspended:
		return warnStyle.Render("◐ suspended")
	default:
		return mutedStyle.Render("○ " + string(s))
	}
}

// Trail joins steps with arrows.
func Trail(steps []string) string {
	if len(steps) == 0 {
		return mutedStyle.Render("(no steps)")
	}
	return strings.Join(steps, " → ")
}

// ShowSpan prints one span with its ancestry.
func ShowSpan(v tracker.SpanView) {
	fmt.Fprintf(Out, "  %s  %s  %s\n", labelStyle.Render(v.Workflow), StatusBadge(v.Status), mutedStyle.Render(v.ID))
	fmt.Fprintf(Out, "     steps: %s\n", Trail(v.Steps.Steps()))
	if len(v.Ancestry) > 0 {
		chain := make([]string, 0, len(v.Ancestry))
		for _, a := range v.Ancestry {
			chain = append(chain, a.Workflow)
		}
		fmt.Fprintf(Out, "     within: %s\n", strings.Join(chain, " ← "))
	}
	fmt.Fprintf(Out, "     updated: %s\n", v.UpdatedAt.Local().Format(time.DateTime))
}

// ShowRecord prints the outcome of recording a step.
func ShowRecord(res *tracker.Result) {
	ShowSuccess("%s/%s %s (span %s, visit #%d)", res.Workflow, res.Step, res.Transition, res.SpanID, res.VisitCount)
	fmt.Fprintf(Out, "     steps: %s\n", Trail(res.Steps))
	if res.SuspendedSpanID != "" {
		fmt.Fprintf(Out, "     suspended: %s\n", res.SuspendedSpanID)
	}
}

// ShowDecision prints a gate decision.
func ShowDecision(workflow, step string, d gate.Decision) {
	switch {
	case d.Allow && d.Err != nil:
		ShowWarning("%s/%s allowed (%s: %v)", workflow, step, d.Reason, d.Err)
	case d.Allow:
		ShowSuccess("%s/%s allowed (%s)", workflow, step, d.Reason)
	default:
		ShowError(fmt.Sprintf("%s/%s blocked", workflow, step), nil)
		for _, m := range d.Missing {
			producer := m.Producer
			if producer == "" {
				producer = mutedStyle.Render("no producer")
			}
			fmt.Fprintf(Out, "     missing %s ← %s\n", m.Artifact, producer)
		}
	}
}

// ShowEvents prints ledger rows, one per line.
func ShowEvents(events []span.Event) {
	for _, e := range events {
		fmt.Fprintf(Out, "  %s  %-22s %s/%s  %s\n",
			mutedStyle.Render(e.Timestamp.Local().Format("15:04:05.000")),
			string(e.Kind), e.Workflow, e.Phase, mutedStyle.Render(e.SessionID))
	}
}
