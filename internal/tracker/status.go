package tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/benegessarit/skill-composer/internal/span"
	"github.com/benegessarit/skill-composer/internal/store"
)

// SpanView is a span together with its parent chain.
type SpanView struct {
	*span.Span
	Ancestry []Ancestor `json:"ancestry"`
}

// Status returns the spans of session, most recently touched first. With
// openOnly set, completed spans are left out.
func (t *Tracker) Status(ctx context.Context, session string, openOnly bool) ([]SpanView, error) {
	if strings.TrimSpace(session) == "" {
		return nil, store.ErrEmptySession
	}
	var statuses []span.Status
	if openOnly {
		statuses = []span.Status{span.StatusActive, span.StatusSuspended}
	}

	var views []SpanView
	err := t.store.Read(ctx, func(tx *store.Tx) error {
		spans, err := tx.SessionSpans(session, statuses...)
		if err != nil {
			return err
		}
		for _, s := range spans {
			chain, err := ancestry(tx, s)
			if err != nil {
				return err
			}
			views = append(views, SpanView{Span: s, Ancestry: chain})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tracker: status of session %s: %w", session, err)
	}
	return views, nil
}

// Current returns the most recently touched open span of session, or nil.
func (t *Tracker) Current(ctx context.Context, session string) (*SpanView, error) {
	views, err := t.Status(ctx, session, true)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, nil
	}
	return &views[0], nil
}

// Recent returns the latest spans across all sessions.
func (t *Tracker) Recent(ctx context.Context, limit int) ([]*span.Span, error) {
	var spans []*span.Span
	err := t.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		spans, err = tx.RecentSpans(limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("tracker: recent spans: %w", err)
	}
	return spans, nil
}

// Events returns the ledger of session in order.
func (t *Tracker) Events(ctx context.Context, session string) ([]span.Event, error) {
	var events []span.Event
	err := t.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		events, err = tx.SessionEvents(session)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("tracker: events of session %s: %w", session, err)
	}
	return events, nil
}

// EventsOn returns the ledger for one UTC date, optionally for one workflow.
func (t *Tracker) EventsOn(ctx context.Context, date, workflow string) ([]span.Event, error) {
	var events []span.Event
	err := t.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		events, err = tx.EventsOn(date, workflow)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("tracker: events on %s: %w", date, err)
	}
	return events, nil
}
