package hook

import (
	"fmt"
	"strings"

	"github.com/benegessarit/skill-composer/internal/span"
	"github.com/benegessarit/skill-composer/internal/tracker"
)

// StepGuidance renders the context injected after a step read. It returns
// "" when there is nothing worth saying.
func StepGuidance(res *tracker.Result, warnThreshold int) string {
	if res == nil {
		return ""
	}
	var parts []string
	if warnThreshold > 0 && res.VisitCount > warnThreshold {
		parts = append(parts, fmt.Sprintf("[%s:%s visit #%d. Adapt pacing.]", res.Workflow, res.Step, res.VisitCount))
	}
	switch res.Transition {
	case tracker.TransitionCreated:
		if len(res.Ancestry) > 0 {
			parts = append(parts, fmt.Sprintf("[Entered from %s. Be brief, context already loaded.]", res.Ancestry[0].Workflow))
		}
	case tracker.TransitionResumed:
		parts = append(parts, fmt.Sprintf("[Resumed %s: %s.]", res.Workflow, trail(res.Steps)))
	}
	return strings.Join(parts, " ")
}

// SessionGuidance summarises the open spans of a session, most recently
// touched first.
func SessionGuidance(views []tracker.SpanView) string {
	if len(views) == 0 {
		return ""
	}
	var b strings.Builder
	for i, v := range views {
		if i > 0 {
			b.WriteByte(' ')
		}
		label := "Active"
		if v.Status == span.StatusSuspended {
			label = "Suspended"
		}
		fmt.Fprintf(&b, "[%s workflow %s: %s", label, v.Workflow, trail(v.Steps.Steps()))
		if len(v.Ancestry) > 0 {
			fmt.Fprintf(&b, " (within %s)", v.Ancestry[0].Workflow)
		}
		b.WriteByte(']')
	}
	return b.String()
}

func trail(steps []string) string {
	if len(steps) == 0 {
		return "no steps yet"
	}
	return strings.Join(steps, " → ")
}
