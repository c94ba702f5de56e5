package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benegessarit/skill-composer/internal/span"
	"github.com/benegessarit/skill-composer/internal/store"
)

// ErrInvariant is wrapped by InvariantError.
var ErrInvariant = errors.New("tracker: span invariant violated")

// InvariantError reports more than one open span for one (workflow, session)
// scope. It is never repaired implicitly; callers decide whether to Repair.
type InvariantError struct {
	Workflow string
	Session  string
	SpanIDs  []string
}

func newInvariantError(workflow, session string, spans []*span.Span) *InvariantError {
	ids := make([]string, 0, len(spans))
	for _, s := range spans {
		ids = append(ids, s.ID)
	}
	return &InvariantError{Workflow: workflow, Session: session, SpanIDs: ids}
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("tracker: %d open spans for workflow %s in session %s: %s",
		len(e.SpanIDs), e.Workflow, e.Session, strings.Join(e.SpanIDs, ", "))
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

// RepairReport lists what Repair changed, per workflow.
type RepairReport struct {
	Session  string              `json:"session"`
	Kept     map[string]string   `json:"kept"`
	Complete map[string][]string `json:"completed"`
}

// Repaired returns the number of spans force-completed.
func (r *RepairReport) Repaired() int {
	n := 0
	for _, ids := range r.Complete {
		n += len(ids)
	}
	return n
}

// Repair restores the one-open-span-per-workflow invariant for session. For
// each workflow with several open spans the most recently touched one is
// kept and the others are force-completed, with one invariant_repair event
// per workflow. This is a last-resort path, not part of normal operation.
func (t *Tracker) Repair(ctx context.Context, session string) (*RepairReport, error) {
	if strings.TrimSpace(session) == "" {
		return nil, store.ErrEmptySession
	}
	report := &RepairReport{
		Session:  session,
		Kept:     make(map[string]string),
		Complete: make(map[string][]string),
	}
	err := t.store.Exclusive(ctx, func(tx *store.Tx) error {
		open, err := tx.SessionSpans(session, span.StatusActive, span.StatusSuspended)
		if err != nil {
			return err
		}
		byWorkflow := make(map[string][]*span.Span)
		var order []string
		for _, s := range open {
			if _, ok := byWorkflow[s.Workflow]; !ok {
				order = append(order, s.Workflow)
			}
			byWorkflow[s.Workflow] = append(byWorkflow[s.Workflow], s)
		}

		for _, wf := range order {
			spans := byWorkflow[wf]
			if len(spans) < 2 {
				continue
			}
			// spans are ordered most recently touched first
			keep := spans[0]
			ids := make([]string, 0, len(spans)-1)
			for _, s := range spans[1:] {
				ids = append(ids, s.ID)
			}
			if err := tx.CompleteSpans(session, ids); err != nil {
				return err
			}
			payload := span.Payload{SpanID: keep.ID, Completed: ids}
			if err := tx.AppendEvent(&span.Event{
				Workflow:  wf,
				Phase:     keep.LastStep,
				Kind:      span.EventInvariantRepair,
				SessionID: session,
				Payload:   payload.Encode(),
			}); err != nil {
				return err
			}
			report.Kept[wf] = keep.ID
			report.Complete[wf] = ids
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tracker: repair session %s: %w", session, err)
	}
	if n := report.Repaired(); n > 0 {
		t.logger.Error("span invariant repaired", "session", session, "completed", n, "kept", report.Kept)
	}
	return report, nil
}
