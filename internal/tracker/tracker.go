// Package tracker implements the span lifecycle state machine. Every step
// read is recorded under one exclusive store transaction that decides
// between appending to the active span, resuming a suspended one, or
// creating a new span, and writes exactly one ledger event alongside the
// span mutation.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/benegessarit/skill-composer/internal/span"
	"github.com/benegessarit/skill-composer/internal/store"
)

// ErrInvalidScope rejects a call missing its workflow, step or session.
var ErrInvalidScope = errors.New("tracker: workflow, step and session are required")

// Transition names the branch taken by RecordStep.
type Transition string

const (
	TransitionCreated  Transition = "created"
	TransitionAppended Transition = "appended"
	TransitionRepeated Transition = "repeated"
	TransitionResumed  Transition = "resumed"
)

// Ancestor is one link of a span's parent chain.
type Ancestor struct {
	SpanID   string `json:"spanId"`
	Workflow string `json:"workflow"`
}

// Result is the read-only projection returned to the hook driver.
type Result struct {
	SpanID          string      `json:"spanId"`
	Workflow        string      `json:"workflow"`
	Step            string      `json:"step"`
	State           span.Status `json:"state"`
	Transition      Transition  `json:"transition"`
	Steps           []string    `json:"steps"`
	Ancestry        []Ancestor  `json:"ancestry"`
	VisitCount      int         `json:"visitCount"`
	SuspendedSpanID string      `json:"suspendedSpanId,omitempty"`
}

// Resumed reports whether the call reactivated a suspended span.
func (r *Result) Resumed() bool { return r.Transition == TransitionResumed }

// Tracker records step visits.
type Tracker struct {
	store  *store.Store
	logger *slog.Logger
}

// New returns a tracker over st.
func New(st *store.Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: st, logger: logger}
}

// RecordStep records that step of workflow was read in session.
//
// The branches are evaluated in order inside one exclusive transaction:
//  1. an active span for (workflow, session) gets the step appended;
//  2. otherwise a suspended one is resumed and gets the step appended;
//  3. otherwise a new span is created.
//
// In branches 2 and 3 any other workflow's active span in the session is
// suspended first; in branch 3 it also becomes the new span's parent.
// More than one open span for (workflow, session) aborts the transaction
// with an *InvariantError.
func (t *Tracker) RecordStep(ctx context.Context, workflow, step, session string) (*Result, error) {
	if strings.TrimSpace(workflow) == "" || strings.TrimSpace(step) == "" || strings.TrimSpace(session) == "" {
		return nil, ErrInvalidScope
	}

	var res *Result
	err := t.store.Exclusive(ctx, func(tx *store.Tx) error {
		open, err := tx.FindSpans(workflow, session, span.StatusActive, span.StatusSuspended)
		if err != nil {
			return err
		}
		if len(open) > 1 {
			return newInvariantError(workflow, session, open)
		}

		now := tx.Now()
		var (
			cur        *span.Span
			transition Transition
			suspended  string
			kind       = span.EventSessionStart
		)
		switch {
		case len(open) == 1 && open[0].Status == span.StatusActive:
			cur = open[0]
			transition = TransitionRepeated
			if cur.Visit(step) {
				transition = TransitionAppended
			}
			cur.UpdatedAt = now
			kind = span.EventStepEnter
			if err := tx.UpdateSpan(cur); err != nil {
				return err
			}

		case len(open) == 1:
			if suspended, err = suspendOthers(tx, workflow, session, now); err != nil {
				return err
			}
			cur = open[0]
			cur.Status = span.StatusActive
			cur.SuspendedAt = nil
			cur.Resume(step)
			cur.UpdatedAt = now
			transition = TransitionResumed
			if err := tx.UpdateSpan(cur); err != nil {
				return err
			}

		default:
			if suspended, err = suspendOthers(tx, workflow, session, now); err != nil {
				return err
			}
			cur = &span.Span{
				ID:        uuid.NewString(),
				Workflow:  workflow,
				ParentID:  suspended,
				Status:    span.StatusActive,
				SessionID: session,
				CreatedAt: now,
				UpdatedAt: now,
			}
			cur.Visit(step)
			transition = TransitionCreated
			if err := tx.InsertSpan(cur); err != nil {
				return err
			}
		}

		visits, err := tx.CountVisits(workflow, step, session)
		if err != nil {
			return err
		}
		payload := span.Payload{
			SpanID:      cur.ID,
			ParentID:    cur.ParentID,
			SuspendedID: suspended,
			Resumed:     transition == TransitionResumed,
			Repeat:      transition == TransitionRepeated,
			VisitCount:  visits + 1,
		}
		if err := tx.AppendEvent(&span.Event{
			Timestamp: now,
			Workflow:  workflow,
			Phase:     step,
			Kind:      kind,
			SessionID: session,
			Payload:   payload.Encode(),
		}); err != nil {
			return err
		}

		ancestry, err := ancestry(tx, cur)
		if err != nil {
			return err
		}
		res = &Result{
			SpanID:          cur.ID,
			Workflow:        workflow,
			Step:            step,
			State:           cur.Status,
			Transition:      transition,
			Steps:           cur.Steps.Steps(),
			Ancestry:        ancestry,
			VisitCount:      visits + 1,
			SuspendedSpanID: suspended,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tracker: record %s/%s: %w", workflow, step, err)
	}

	t.logger.Debug("step recorded",
		"workflow", workflow, "step", step, "session", session,
		"span", res.SpanID, "transition", res.Transition, "visits", res.VisitCount)
	return res, nil
}

// suspendOthers suspends every active span of session that belongs to a
// different workflow and returns the id of the most recently touched one.
func suspendOthers(tx *store.Tx, workflow, session string, now time.Time) (string, error) {
	others, err := tx.FindOtherSpans(workflow, session, span.StatusActive)
	if err != nil {
		return "", err
	}
	if len(others) == 0 {
		return "", nil
	}
	for _, o := range others {
		o.Status = span.StatusSuspended
		o.SuspendedAt = &now
		o.UpdatedAt = now
		if err := tx.UpdateSpan(o); err != nil {
			return "", err
		}
	}
	return others[0].ID, nil
}

// maxAncestry bounds the parent walk; parent links are weak references and
// a corrupted chain must not loop forever.
const maxAncestry = 32

func ancestry(tx *store.Tx, s *span.Span) ([]Ancestor, error) {
	chain := []Ancestor{}
	seen := map[string]bool{s.ID: true}
	parentID := s.ParentID
	for parentID != "" && len(chain) < maxAncestry && !seen[parentID] {
		seen[parentID] = true
		parent, err := tx.GetSpan(parentID)
		if errors.Is(err, store.ErrSpanNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, Ancestor{SpanID: parent.ID, Workflow: parent.Workflow})
		parentID = parent.ParentID
	}
	return chain, nil
}
