// Package closer completes the open spans of a session when the session
// ends.
package closer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/benegessarit/skill-composer/internal/span"
	"github.com/benegessarit/skill-composer/internal/store"
)

// retryDelay is the pause before the single retry of a busy close.
const retryDelay = 100 * time.Millisecond

// Result reports what Close did.
type Result struct {
	SpansClosed int      `json:"spansClosed"`
	SpanIDs     []string `json:"spanIds,omitempty"`
	LastSpanID  string   `json:"lastSpanId,omitempty"`
}

// Closer ends sessions.
type Closer struct {
	store  *store.Store
	logger *slog.Logger
}

// New returns a closer over st.
func New(st *store.Store, logger *slog.Logger) *Closer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Closer{store: st, logger: logger}
}

// Close completes every active or suspended span of session and writes one
// session_end event referencing the most recently touched of them. An empty
// session, or one with nothing open, is a no-op. A busy store is retried
// once before the error is returned.
func (c *Closer) Close(ctx context.Context, session string) (Result, error) {
	if strings.TrimSpace(session) == "" {
		return Result{}, nil
	}

	res, err := c.close(ctx, session)
	if err != nil && store.IsBusy(err) {
		c.logger.Warn("session close busy, retrying", "session", session, "err", err)
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("closer: close session %s: %w", session, err)
		case <-time.After(retryDelay):
		}
		res, err = c.close(ctx, session)
	}
	if err != nil {
		return Result{}, fmt.Errorf("closer: close session %s: %w", session, err)
	}
	if res.SpansClosed > 0 {
		c.logger.Info("session closed", "session", session, "spans", res.SpansClosed, "last", res.LastSpanID)
	}
	return res, nil
}

func (c *Closer) close(ctx context.Context, session string) (Result, error) {
	var res Result
	err := c.store.Exclusive(ctx, func(tx *store.Tx) error {
		open, err := tx.SessionSpans(session, span.StatusActive, span.StatusSuspended)
		if err != nil {
			return err
		}
		if len(open) == 0 {
			return nil
		}
		ids := make([]string, 0, len(open))
		for _, s := range open {
			ids = append(ids, s.ID)
		}
		if err := tx.CompleteSpans(session, ids); err != nil {
			return err
		}
		last := open[0]
		payload := span.Payload{SpanID: last.ID, SpansClosed: len(ids), Completed: ids}
		if err := tx.AppendEvent(&span.Event{
			Workflow:  last.Workflow,
			Phase:     last.LastStep,
			Kind:      span.EventSessionEnd,
			SessionID: session,
			Payload:   payload.Encode(),
		}); err != nil {
			return err
		}
		res = Result{SpansClosed: len(ids), SpanIDs: ids, LastSpanID: last.ID}
		return nil
	})
	return res, err
}

// SweepResult reports what Sweep closed, per session.
type SweepResult struct {
	Sessions map[string]Result `json:"sessions"`
	Failed   map[string]string `json:"failed,omitempty"`
}

// SpansClosed returns the total number of spans completed by the sweep.
func (r SweepResult) SpansClosed() int {
	n := 0
	for _, res := range r.Sessions {
		n += res.SpansClosed
	}
	return n
}

// Sweep closes every session whose open spans have all been idle for at
// least idle. It covers sessions whose end hook never ran. Each session is
// closed in its own transaction; a failure is recorded and the sweep moves
// on.
func (c *Closer) Sweep(ctx context.Context, idle time.Duration) (SweepResult, error) {
	if idle <= 0 {
		return SweepResult{}, fmt.Errorf("closer: sweep idle must be positive, got %s", idle)
	}
	var stale []string
	err := c.store.Read(ctx, func(tx *store.Tx) error {
		var err error
		stale, err = tx.StaleSessions(c.store.Now().Add(-idle))
		return err
	})
	if err != nil {
		return SweepResult{}, fmt.Errorf("closer: find idle sessions: %w", err)
	}

	res := SweepResult{Sessions: make(map[string]Result, len(stale))}
	for _, session := range stale {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		r, err := c.Close(ctx, session)
		if err != nil {
			if res.Failed == nil {
				res.Failed = make(map[string]string)
			}
			res.Failed[session] = err.Error()
			continue
		}
		res.Sessions[session] = r
	}
	if len(stale) > 0 {
		c.logger.Info("idle sessions swept", "sessions", len(res.Sessions), "failed", len(res.Failed), "idle", idle)
	}
	return res, nil
}
