package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benegessarit/skill-composer/internal/span"
)

// tickingClock returns a clock that advances one millisecond per call so
// that rows written in sequence have strictly ordered timestamps.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spans.db")
	s, err := Open(context.Background(), path, WithClock(tickingClock()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func newSpan(id, workflow, session string, status span.Status, now time.Time, steps ...string) *span.Span {
	s := &span.Span{
		ID:        id,
		Workflow:  workflow,
		Status:    status,
		SessionID: session,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, step := range steps {
		s.Visit(step)
	}
	return s
}

func TestOpen_MigratesOnce(t *testing.T) {
	ctx := context.Background()
	s, path := openTestStore(t)

	var mode string
	require.NoError(t, s.DB().QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	again, err := Open(ctx, path)
	require.NoError(t, err)
	defer again.Close()

	var n, top int
	require.NoError(t, again.DB().QueryRowContext(ctx,
		"SELECT COUNT(*), MAX(version) FROM schema_migrations").Scan(&n, &top))
	assert.Equal(t, SchemaVersion, n)
	assert.Equal(t, SchemaVersion, top)
}

func TestSpanRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	now := s.Now()

	parent := newSpan("p1", "research", "sess", span.StatusSuspended, now, "scope")
	suspended := now
	parent.SuspendedAt = &suspended
	child := newSpan("c1", "plan", "sess", span.StatusActive, now, "frame", "explore", "frame")
	child.ParentID = "p1"

	require.NoError(t, s.Exclusive(ctx, func(tx *Tx) error {
		if err := tx.InsertSpan(parent); err != nil {
			return err
		}
		return tx.InsertSpan(child)
	}))

	require.NoError(t, s.Read(ctx, func(tx *Tx) error {
		got, err := tx.GetSpan("c1")
		require.NoError(t, err)
		assert.Equal(t, "p1", got.ParentID)
		assert.Equal(t, []string{"frame", "explore", "frame"}, got.Steps.Steps())
		assert.Equal(t, "frame", got.FirstStep)
		assert.Equal(t, "frame", got.LastStep)
		assert.True(t, got.CreatedAt.Equal(now))
		assert.Nil(t, got.CompletedAt)

		p, err := tx.GetSpan("p1")
		require.NoError(t, err)
		require.NotNil(t, p.SuspendedAt)
		assert.True(t, p.SuspendedAt.Equal(suspended))

		_, err = tx.GetSpan("missing")
		assert.ErrorIs(t, err, ErrSpanNotFound)
		return nil
	}))
}

func TestUpdateSpan_CompletedIsFrozen(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	sp := newSpan("s1", "plan", "sess", span.StatusActive, s.Now(), "frame")

	require.NoError(t, s.Exclusive(ctx, func(tx *Tx) error { return tx.InsertSpan(sp) }))
	require.NoError(t, s.Exclusive(ctx, func(tx *Tx) error {
		_, err := tx.CompleteOpen("sess")
		return err
	}))

	sp.Status = span.StatusActive
	sp.Visit("explore")
	err := s.Exclusive(ctx, func(tx *Tx) error { return tx.UpdateSpan(sp) })
	assert.ErrorIs(t, err, ErrSpanCompleted)

	require.NoError(t, s.Read(ctx, func(tx *Tx) error {
		got, err := tx.GetSpan("s1")
		require.NoError(t, err)
		assert.Equal(t, span.StatusCompleted, got.Status)
		assert.Equal(t, []string{"frame"}, got.Steps.Steps())
		assert.NotNil(t, got.CompletedAt)
		return nil
	}))
}

func TestQueriesRequireSession(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	require.NoError(t, s.Read(ctx, func(tx *Tx) error {
		_, err := tx.FindSpans("plan", "")
		assert.ErrorIs(t, err, ErrEmptySession)
		_, err = tx.FindOtherSpans("plan", "")
		assert.ErrorIs(t, err, ErrEmptySession)
		_, err = tx.SessionSpans("")
		assert.ErrorIs(t, err, ErrEmptySession)
		_, err = tx.SessionEvents("")
		assert.ErrorIs(t, err, ErrEmptySession)
		_, err = tx.CountVisits("plan", "frame", "")
		assert.ErrorIs(t, err, ErrEmptySession)
		return nil
	}))
	err := s.Exclusive(ctx, func(tx *Tx) error {
		_, err := tx.CompleteOpen("  ")
		return err
	})
	assert.ErrorIs(t, err, ErrEmptySession)
}

func TestCompleteOpen_ScopedToSession(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	require.NoError(t, s.Exclusive(ctx, func(tx *Tx) error {
		for _, sp := range []*span.Span{
			newSpan("a1", "plan", "A", span.StatusActive, tx.Now(), "frame"),
			newSpan("a2", "research", "A", span.StatusSuspended, tx.Now(), "scope"),
			newSpan("b1", "plan", "B", span.StatusActive, tx.Now(), "frame"),
		} {
			if err := tx.InsertSpan(sp); err != nil {
				return err
			}
		}
		return nil
	}))

	var closed []string
	require.NoError(t, s.Exclusive(ctx, func(tx *Tx) error {
		var err error
		closed, err = tx.CompleteOpen("A")
		return err
	}))
	assert.ElementsMatch(t, []string{"a1", "a2"}, closed)

	require.NoError(t, s.Read(ctx, func(tx *Tx) error {
		open, err := tx.SessionSpans("B", span.StatusActive)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, "b1", open[0].ID)

		others, err := tx.FindOtherSpans("research", "A")
		require.NoError(t, err)
		require.Len(t, others, 1)
		assert.Equal(t, "a1", others[0].ID)
		return nil
	}))
}

func TestStaleSessions(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Exclusive(ctx, func(tx *Tx) error {
		for _, sp := range []*span.Span{
			newSpan("old1", "plan", "old", span.StatusSuspended, base, "frame"),
			newSpan("old2", "debug", "old", span.StatusActive, base.Add(time.Hour), "reproduce"),
			newSpan("mix1", "plan", "mixed", span.StatusSuspended, base, "frame"),
			newSpan("mix2", "debug", "mixed", span.StatusActive, base.Add(5*time.Hour), "reproduce"),
			newSpan("done", "plan", "done", span.StatusCompleted, base, "frame"),
		} {
			if err := tx.InsertSpan(sp); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.Read(ctx, func(tx *Tx) error {
		stale, err := tx.StaleSessions(base.Add(3 * time.Hour))
		require.NoError(t, err)
		assert.Equal(t, []string{"old"}, stale)

		stale, err = tx.StaleSessions(base.Add(6 * time.Hour))
		require.NoError(t, err)
		assert.Equal(t, []string{"old", "mixed"}, stale)
		return nil
	}))
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)

	require.NoError(t, s.Exclusive(ctx, func(tx *Tx) error {
		for _, e := range []*span.Event{
			{Workflow: "plan", Phase: "frame", Kind: span.EventSessionStart, SessionID: "A",
				Payload: span.Payload{SpanID: "s1"}.Encode()},
			{Workflow: "plan", Phase: "frame", Kind: span.EventStepEnter, SessionID: "A"},
			{Workflow: "plan", Phase: "frame", Kind: span.EventSessionEnd, SessionID: "A"},
			{Workflow: "plan", Phase: "frame", Kind: span.EventStepEnter, SessionID: "B"},
			{Workflow: "research", Phase: "frame", Kind: span.EventStepEnter, SessionID: "A"},
		} {
			if err := tx.AppendEvent(e); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.Read(ctx, func(tx *Tx) error {
		n, err := tx.CountVisits("plan", "frame", "A")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		events, err := tx.SessionEvents("A")
		require.NoError(t, err)
		require.Len(t, events, 4)
		assert.Equal(t, span.EventSessionStart, events[0].Kind)
		assert.JSONEq(t, `{"spanId":"s1"}`, string(events[0].Payload))
		assert.NotEmpty(t, events[0].ID)

		day, err := tx.EventsOn("2026-03-01", "research")
		require.NoError(t, err)
		assert.Len(t, day, 1)

		none, err := tx.EventsOn("2026-03-02", "")
		require.NoError(t, err)
		assert.Empty(t, none)

		_, err = tx.EventsOn("yesterday", "")
		assert.Error(t, err)
		return nil
	}))
}

func TestExclusive_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	boom := errors.New("boom")

	err := s.Exclusive(ctx, func(tx *Tx) error {
		if err := tx.InsertSpan(newSpan("s1", "plan", "A", span.StatusActive, tx.Now(), "frame")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, s.Read(ctx, func(tx *Tx) error {
		spans, err := tx.SessionSpans("A")
		require.NoError(t, err)
		assert.Empty(t, spans)
		return nil
	}))
}

func TestExclusive_SerializesProcesses(t *testing.T) {
	ctx := context.Background()
	_, path := openTestStore(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// one Store per goroutine models one hook process
			st, err := Open(ctx, path, WithLockTimeout(10*time.Second))
			if err != nil {
				errs <- err
				return
			}
			defer st.Close()
			errs <- st.Exclusive(ctx, func(tx *Tx) error {
				n, err := tx.CountVisits("plan", "frame", "A")
				if err != nil {
					return err
				}
				return tx.AppendEvent(&span.Event{
					Workflow: "plan", Phase: "frame", Kind: span.EventStepEnter, SessionID: "A",
					Payload: span.Payload{VisitCount: n + 1}.Encode(),
				})
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	st, err := Open(ctx, path)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Read(ctx, func(tx *Tx) error {
		events, err := tx.SessionEvents("A")
		require.NoError(t, err)
		require.Len(t, events, workers)
		seen := make(map[string]bool)
		for _, e := range events {
			seen[string(e.Payload)] = true
		}
		// every writer observed a distinct count
		for i := 1; i <= workers; i++ {
			assert.True(t, seen[fmt.Sprintf(`{"visitCount":%d}`, i)], "missing visitCount %d", i)
		}
		return nil
	}))
}

func TestExclusive_Mock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)

	mock.ExpectExec("BEGIN EXCLUSIVE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO life_event").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.Exclusive(context.Background(), func(tx *Tx) error {
		return tx.AppendEvent(&span.Event{Workflow: "plan", Kind: span.EventStepEnter, SessionID: "A"})
	})
	assert.ErrorContains(t, err, "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExclusive_CommitFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)

	mock.ExpectExec("BEGIN EXCLUSIVE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("COMMIT").WillReturnError(errors.New("database is locked"))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.Exclusive(context.Background(), func(tx *Tx) error { return nil })
	require.Error(t, err)
	assert.True(t, IsBusy(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("no such table"), false},
		{fmt.Errorf("store: BEGIN EXCLUSIVE: %w", errors.New("database is locked (5) (SQLITE_BUSY)")), true},
		{context.DeadlineExceeded, true},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsBusy(tt.err), "IsBusy(%v)", tt.err)
	}
}
