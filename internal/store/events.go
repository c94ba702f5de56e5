package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benegessarit/skill-composer/internal/span"
)

// AppendEvent inserts e into the ledger, filling in the id and timestamp
// when unset. Events are never updated or deleted.
func (tx *Tx) AppendEvent(e *span.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = tx.now()
	}
	_, err := tx.conn.ExecContext(tx.ctx, `INSERT INTO life_event
		(id, timestamp, workflow, phase, event_kind, session_id, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, formatTime(e.Timestamp), e.Workflow, e.Phase, string(e.Kind), e.SessionID, string(e.Payload))
	if err != nil {
		return fmt.Errorf("store: append %s event: %w", e.Kind, err)
	}
	return nil
}

// CountVisits returns how many entry events session has recorded for
// (workflow, phase).
func (tx *Tx) CountVisits(workflow, phase, session string) (int, error) {
	if session == "" {
		return 0, ErrEmptySession
	}
	var n int
	err := tx.conn.QueryRowContext(tx.ctx, `SELECT COUNT(*) FROM life_event
		WHERE session_id = ? AND workflow = ? AND phase = ?
		AND event_kind IN (?, ?, ?)`,
		session, workflow, phase,
		string(span.EventStepEnter), string(span.EventSessionStart), string(span.EventDelegatedStepEnter),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count visits: %w", err)
	}
	return n, nil
}

// SessionEvents returns the ledger of one session in chronological order.
func (tx *Tx) SessionEvents(session string) ([]span.Event, error) {
	if session == "" {
		return nil, ErrEmptySession
	}
	return tx.queryEvents(`SELECT id, timestamp, workflow, phase, event_kind, session_id, payload
		FROM life_event WHERE session_id = ? ORDER BY timestamp, rowid`, session)
}

// EventsOn returns the events recorded on date (UTC, YYYY-MM-DD), optionally
// restricted to one workflow.
func (tx *Tx) EventsOn(date, workflow string) ([]span.Event, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("store: invalid date %q: %w", date, err)
	}
	query := `SELECT id, timestamp, workflow, phase, event_kind, session_id, payload
		FROM life_event WHERE timestamp LIKE ?`
	args := []any{date + "%"}
	if workflow != "" {
		query += ` AND workflow = ?`
		args = append(args, workflow)
	}
	return tx.queryEvents(query+` ORDER BY timestamp, rowid`, args...)
}

func (tx *Tx) queryEvents(query string, args ...any) ([]span.Event, error) {
	rows, err := tx.conn.QueryContext(tx.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []span.Event
	for rows.Next() {
		var (
			e       span.Event
			ts      string
			kind    string
			payload sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Workflow, &e.Phase, &kind, &e.SessionID, &payload); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("store: event %s timestamp: %w", e.ID, err)
		}
		e.Kind = span.EventKind(kind)
		if payload.Valid && payload.String != "" && json.Valid([]byte(payload.String)) {
			e.Payload = json.RawMessage(payload.String)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	return out, nil
}
