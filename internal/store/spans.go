package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benegessarit/skill-composer/internal/span"
)

// Tx is a transaction bound to one connection. It is only valid inside the
// callback passed to Store.Exclusive or Store.Read.
type Tx struct {
	ctx  context.Context
	conn *sql.Conn
	now  func() time.Time
}

// Now returns the transaction clock in UTC.
func (tx *Tx) Now() time.Time {
	return tx.now()
}

const spanColumns = `span_id, workflow, parent_span_id, status, first_step, last_step, steps,
	session_id, created_at, updated_at, suspended_at, completed_at`

// FindSpans returns the spans for (workflow, session) in any of statuses,
// most recently touched first.
func (tx *Tx) FindSpans(workflow, session string, statuses ...span.Status) ([]*span.Span, error) {
	if session == "" {
		return nil, ErrEmptySession
	}
	where, args := statusFilter(statuses)
	args = append([]any{workflow, session}, args...)
	return tx.querySpans(`SELECT `+spanColumns+` FROM skill_span
		WHERE workflow = ? AND session_id = ?`+where+`
		ORDER BY updated_at DESC, status = 'active' DESC, rowid DESC`, args...)
}

// FindOtherSpans returns spans in session belonging to any workflow except
// workflow, most recently touched first.
func (tx *Tx) FindOtherSpans(workflow, session string, statuses ...span.Status) ([]*span.Span, error) {
	if session == "" {
		return nil, ErrEmptySession
	}
	where, args := statusFilter(statuses)
	args = append([]any{workflow, session}, args...)
	return tx.querySpans(`SELECT `+spanColumns+` FROM skill_span
		WHERE workflow != ? AND session_id = ?`+where+`
		ORDER BY updated_at DESC, rowid DESC`, args...)
}

// SessionSpans returns every span of session in any of statuses (all
// statuses when none are given), most recently touched first. A span
// suspended in the same transaction that activated another sorts after it.
func (tx *Tx) SessionSpans(session string, statuses ...span.Status) ([]*span.Span, error) {
	if session == "" {
		return nil, ErrEmptySession
	}
	where, args := statusFilter(statuses)
	args = append([]any{session}, args...)
	return tx.querySpans(`SELECT `+spanColumns+` FROM skill_span
		WHERE session_id = ?`+where+`
		ORDER BY updated_at DESC, status = 'active' DESC, rowid DESC`, args...)
}

// GetSpan loads a span by id. It returns ErrSpanNotFound when absent.
func (tx *Tx) GetSpan(id string) (*span.Span, error) {
	spans, err := tx.querySpans(`SELECT `+spanColumns+` FROM skill_span WHERE span_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSpanNotFound, id)
	}
	return spans[0], nil
}

// InsertSpan persists a new span.
func (tx *Tx) InsertSpan(s *span.Span) error {
	if s.SessionID == "" {
		return ErrEmptySession
	}
	steps, err := s.Steps.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = tx.conn.ExecContext(tx.ctx, `INSERT INTO skill_span (`+spanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Workflow, nullString(s.ParentID), string(s.Status), s.FirstStep, s.LastStep,
		string(steps), s.SessionID, formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
		nullTime(s.SuspendedAt), nullTime(s.CompletedAt))
	if err != nil {
		return fmt.Errorf("store: insert span %s: %w", s.ID, err)
	}
	return nil
}

// UpdateSpan writes back the mutable columns of s. A span that is already
// completed in the database is never touched; ErrSpanCompleted is returned.
func (tx *Tx) UpdateSpan(s *span.Span) error {
	steps, err := s.Steps.MarshalJSON()
	if err != nil {
		return err
	}
	res, err := tx.conn.ExecContext(tx.ctx, `UPDATE skill_span SET
		status = ?, first_step = ?, last_step = ?, steps = ?, updated_at = ?,
		suspended_at = ?, completed_at = ?
		WHERE span_id = ? AND session_id = ? AND status != 'completed'`,
		string(s.Status), s.FirstStep, s.LastStep, string(steps), formatTime(s.UpdatedAt),
		nullTime(s.SuspendedAt), nullTime(s.CompletedAt), s.ID, s.SessionID)
	if err != nil {
		return fmt.Errorf("store: update span %s: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update span %s: %w", s.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSpanCompleted, s.ID)
	}
	return nil
}

// CompleteOpen transitions every active or suspended span of session to
// completed and returns the ids it closed. The session predicate is
// mandatory: an empty session is rejected rather than treated as "all".
func (tx *Tx) CompleteOpen(session string) ([]string, error) {
	if strings.TrimSpace(session) == "" {
		return nil, ErrEmptySession
	}
	open, err := tx.SessionSpans(session, span.StatusActive, span.StatusSuspended)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(open))
	for _, s := range open {
		ids = append(ids, s.ID)
	}
	if err := tx.completeSpans(session, ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// CompleteSpans force-completes the listed open spans of session.
func (tx *Tx) CompleteSpans(session string, ids []string) error {
	if strings.TrimSpace(session) == "" {
		return ErrEmptySession
	}
	return tx.completeSpans(session, ids)
}

func (tx *Tx) completeSpans(session string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := formatTime(tx.now())
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := []any{now, now, session}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := tx.conn.ExecContext(tx.ctx, `UPDATE skill_span
		SET status = 'completed', completed_at = ?, updated_at = ?
		WHERE session_id = ? AND status IN ('active', 'suspended')
		AND span_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("store: complete spans: %w", err)
	}
	return nil
}

// StaleSessions returns the sessions that still have open spans but none
// touched at or after before, least recently touched first.
func (tx *Tx) StaleSessions(before time.Time) ([]string, error) {
	rows, err := tx.conn.QueryContext(tx.ctx, `SELECT session_id FROM skill_span
		WHERE status IN ('active', 'suspended')
		GROUP BY session_id
		HAVING MAX(updated_at) < ?
		ORDER BY MAX(updated_at)`, formatTime(before))
	if err != nil {
		return nil, fmt.Errorf("store: stale sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var session string
		if err := rows.Scan(&session); err != nil {
			return nil, fmt.Errorf("store: stale sessions: %w", err)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: stale sessions: %w", err)
	}
	return out, nil
}

// RecentSpans lists the most recently touched spans across sessions.
func (tx *Tx) RecentSpans(limit int) ([]*span.Span, error) {
	if limit <= 0 {
		limit = 50
	}
	return tx.querySpans(`SELECT `+spanColumns+` FROM skill_span
		ORDER BY updated_at DESC, rowid DESC LIMIT ?`, limit)
}

func (tx *Tx) querySpans(query string, args ...any) ([]*span.Span, error) {
	rows, err := tx.conn.QueryContext(tx.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query spans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*span.Span
	for rows.Next() {
		s, err := scanSpan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query spans: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpan(row rowScanner) (*span.Span, error) {
	var (
		s           span.Span
		parent      sql.NullString
		status      string
		steps       string
		createdAt   string
		updatedAt   string
		suspendedAt sql.NullString
		completedAt sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Workflow, &parent, &status, &s.FirstStep, &s.LastStep, &steps,
		&s.SessionID, &createdAt, &updatedAt, &suspendedAt, &completedAt); err != nil {
		return nil, fmt.Errorf("store: scan span: %w", err)
	}
	s.ParentID = parent.String
	s.Status = span.Status(status)
	if !s.Status.Valid() {
		return nil, fmt.Errorf("store: span %s has unknown status %q", s.ID, status)
	}
	if err := s.Steps.UnmarshalJSON([]byte(steps)); err != nil {
		return nil, fmt.Errorf("store: span %s: %w", s.ID, err)
	}
	var err error
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("store: span %s created_at: %w", s.ID, err)
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("store: span %s updated_at: %w", s.ID, err)
	}
	if s.SuspendedAt, err = parseNullTime(suspendedAt); err != nil {
		return nil, fmt.Errorf("store: span %s suspended_at: %w", s.ID, err)
	}
	if s.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("store: span %s completed_at: %w", s.ID, err)
	}
	return &s, nil
}

func statusFilter(statuses []span.Status) (string, []any) {
	if len(statuses) == 0 {
		return "", nil
	}
	args := make([]any, 0, len(statuses))
	for _, st := range statuses {
		args = append(args, string(st))
	}
	return " AND status IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ") + ")", args
}

// timeLayout is fixed width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, v)
	}
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := parseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

var (
	// ErrEmptySession rejects an unscoped span query or mutation.
	ErrEmptySession = errors.New("store: session id is required")
	// ErrSpanNotFound is returned by GetSpan for unknown ids.
	ErrSpanNotFound = errors.New("store: span not found")
	// ErrSpanCompleted is returned when a write targets a completed span.
	ErrSpanCompleted = errors.New("store: span already completed")
)
