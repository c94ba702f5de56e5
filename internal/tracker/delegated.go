package tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/benegessarit/skill-composer/internal/span"
	"github.com/benegessarit/skill-composer/internal/store"
)

// StepRef names one step of one workflow.
type StepRef struct {
	Workflow string `json:"workflow"`
	Step     string `json:"step"`
}

// Delegation is the outcome of recording one delegated step.
type Delegation struct {
	StepRef
	SpanID   string `json:"spanId,omitempty"`
	Appended bool   `json:"appended"`
}

// RecordDelegated appends steps handed to a sub-agent to the active span of
// their workflow. It never creates or resumes a span: a reference to a
// workflow with no active span, or to the step the span already ended on, is
// a no-op. Each reference is recorded in its own exclusive transaction and
// each appended step writes one delegated_step_enter event.
func (t *Tracker) RecordDelegated(ctx context.Context, session string, refs []StepRef) ([]Delegation, error) {
	if strings.TrimSpace(session) == "" {
		return nil, ErrInvalidScope
	}
	out := make([]Delegation, 0, len(refs))
	for _, ref := range refs {
		d := Delegation{StepRef: ref}
		err := t.store.Exclusive(ctx, func(tx *store.Tx) error {
			active, err := tx.FindSpans(ref.Workflow, session, span.StatusActive)
			if err != nil {
				return err
			}
			if len(active) > 1 {
				return newInvariantError(ref.Workflow, session, active)
			}
			if len(active) == 0 {
				return nil
			}
			cur := active[0]
			d.SpanID = cur.ID
			if !cur.Visit(ref.Step) {
				return nil
			}
			now := tx.Now()
			cur.UpdatedAt = now
			if err := tx.UpdateSpan(cur); err != nil {
				return err
			}
			visits, err := tx.CountVisits(ref.Workflow, ref.Step, session)
			if err != nil {
				return err
			}
			payload := span.Payload{SpanID: cur.ID, VisitCount: visits + 1}
			if err := tx.AppendEvent(&span.Event{
				Timestamp: now,
				Workflow:  ref.Workflow,
				Phase:     ref.Step,
				Kind:      span.EventDelegatedStepEnter,
				SessionID: session,
				Payload:   payload.Encode(),
			}); err != nil {
				return err
			}
			d.Appended = true
			return nil
		})
		if err != nil {
			return out, fmt.Errorf("tracker: delegate %s/%s: %w", ref.Workflow, ref.Step, err)
		}
		out = append(out, d)
	}
	return out, nil
}
