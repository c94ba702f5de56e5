package tracker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benegessarit/skill-composer/internal/span"
	"github.com/benegessarit/skill-composer/internal/store"
)

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

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTracker(t *testing.T) (*Tracker, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "spans.db"), store.WithClock(tickingClock()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st, quietLogger()), st
}

func getSpan(t *testing.T, st *store.Store, id string) *span.Span {
	t.Helper()
	var s *span.Span
	require.NoError(t, st.Read(context.Background(), func(tx *store.Tx) error {
		var err error
		s, err = tx.GetSpan(id)
		return err
	}))
	return s
}

func sessionEvents(t *testing.T, st *store.Store, session string) []span.Event {
	t.Helper()
	var events []span.Event
	require.NoError(t, st.Read(context.Background(), func(tx *store.Tx) error {
		var err error
		events, err = tx.SessionEvents(session)
		return err
	}))
	return events
}

func TestRecordStep_CreateAppendRepeat(t *testing.T) {
	ctx := context.Background()
	tr, st := newTestTracker(t)

	first, err := tr.RecordStep(ctx, "plan", "frame", "S")
	require.NoError(t, err)
	assert.Equal(t, TransitionCreated, first.Transition)
	assert.Equal(t, span.StatusActive, first.State)
	assert.Equal(t, []string{"frame"}, first.Steps)
	assert.Equal(t, 1, first.VisitCount)
	assert.Empty(t, first.Ancestry)

	second, err := tr.RecordStep(ctx, "plan", "explore", "S")
	require.NoError(t, err)
	assert.Equal(t, first.SpanID, second.SpanID)
	assert.Equal(t, TransitionAppended, second.Transition)
	assert.Equal(t, []string{"frame", "explore"}, second.Steps)

	again, err := tr.RecordStep(ctx, "plan", "explore", "S")
	require.NoError(t, err)
	assert.Equal(t, TransitionRepeated, again.Transition)
	assert.Equal(t, []string{"frame", "explore"}, again.Steps)
	assert.Equal(t, 2, again.VisitCount)

	back, err := tr.RecordStep(ctx, "plan", "frame", "S")
	require.NoError(t, err)
	assert.Equal(t, []string{"frame", "explore", "frame"}, back.Steps)
	assert.Equal(t, 2, back.VisitCount)

	events := sessionEvents(t, st, "S")
	require.Len(t, events, 4, "exactly one event per call")
	assert.Equal(t, span.EventSessionStart, events[0].Kind)
	for _, e := range events[1:] {
		assert.Equal(t, span.EventStepEnter, e.Kind)
	}
	assert.JSONEq(t, fmt.Sprintf(`{"spanId":%q,"repeat":true,"visitCount":2}`, first.SpanID), string(events[2].Payload))

	s := getSpan(t, st, first.SpanID)
	assert.Equal(t, "frame", s.FirstStep)
	assert.Equal(t, "frame", s.LastStep)
}

func TestRecordStep_CompositionLinkage(t *testing.T) {
	ctx := context.Background()
	tr, st := newTestTracker(t)

	a, err := tr.RecordStep(ctx, "research", "scope", "S")
	require.NoError(t, err)
	b, err := tr.RecordStep(ctx, "plan", "frame", "S")
	require.NoError(t, err)

	assert.Equal(t, TransitionCreated, b.Transition)
	assert.Equal(t, a.SpanID, b.SuspendedSpanID)
	assert.Equal(t, []Ancestor{{SpanID: a.SpanID, Workflow: "research"}}, b.Ancestry)

	bs := getSpan(t, st, b.SpanID)
	assert.Equal(t, a.SpanID, bs.ParentID)

	as := getSpan(t, st, a.SpanID)
	assert.Equal(t, span.StatusSuspended, as.Status)
	require.NotNil(t, as.SuspendedAt)
}

func TestRecordStep_SuspendResumeRoundTrip(t *testing.T) {
	ctx := context.Background()
	tr, st := newTestTracker(t)

	a1, err := tr.RecordStep(ctx, "A", "a1", "S")
	require.NoError(t, err)
	_, err = tr.RecordStep(ctx, "A", "a2", "S")
	require.NoError(t, err)
	b, err := tr.RecordStep(ctx, "B", "b1", "S")
	require.NoError(t, err)

	resumed, err := tr.RecordStep(ctx, "A", "a3", "S")
	require.NoError(t, err)
	assert.Equal(t, a1.SpanID, resumed.SpanID, "resume reuses the suspended span")
	assert.True(t, resumed.Resumed())
	assert.Equal(t, []string{"a1", "a2", "a3"}, resumed.Steps)
	assert.Equal(t, b.SpanID, resumed.SuspendedSpanID)

	as := getSpan(t, st, a1.SpanID)
	assert.Equal(t, span.StatusActive, as.Status)
	assert.Nil(t, as.SuspendedAt)

	bs := getSpan(t, st, b.SpanID)
	assert.Equal(t, span.StatusSuspended, bs.Status)
	assert.Equal(t, a1.SpanID, bs.ParentID, "parent link is kept after the parent resumes")
}

func TestRecordStep_ResumeAtSuspendedStep(t *testing.T) {
	ctx := context.Background()
	tr, st := newTestTracker(t)

	a1, err := tr.RecordStep(ctx, "A", "a1", "S")
	require.NoError(t, err)
	_, err = tr.RecordStep(ctx, "A", "a2", "S")
	require.NoError(t, err)
	_, err = tr.RecordStep(ctx, "B", "b1", "S")
	require.NoError(t, err)

	resumed, err := tr.RecordStep(ctx, "A", "a2", "S")
	require.NoError(t, err)
	assert.Equal(t, a1.SpanID, resumed.SpanID)
	assert.Equal(t, TransitionResumed, resumed.Transition)
	assert.Equal(t, []string{"a1", "a2", "a2"}, resumed.Steps, "re-entry at the suspended step is appended")

	as := getSpan(t, st, a1.SpanID)
	assert.Equal(t, []string{"a1", "a2", "a2"}, as.Steps.Steps())
	assert.Equal(t, "a2", as.LastStep)

	// once active again, an immediate re-read is collapsed
	again, err := tr.RecordStep(ctx, "A", "a2", "S")
	require.NoError(t, err)
	assert.Equal(t, TransitionRepeated, again.Transition)
	assert.Equal(t, []string{"a1", "a2", "a2"}, again.Steps)
}

func TestRecordStep_MultipleSuspended(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t)

	for _, wf := range []string{"A", "B", "C"} {
		_, err := tr.RecordStep(ctx, wf, "s", "S")
		require.NoError(t, err)
	}
	views, err := tr.Status(ctx, "S", true)
	require.NoError(t, err)
	require.Len(t, views, 3)

	assert.Equal(t, "C", views[0].Workflow)
	assert.Equal(t, span.StatusActive, views[0].Status)
	assert.Equal(t, []Ancestor{{SpanID: views[1].ID, Workflow: "B"}, {SpanID: views[2].ID, Workflow: "A"}}, views[0].Ancestry)
	assert.Equal(t, span.StatusSuspended, views[1].Status)
	assert.Equal(t, span.StatusSuspended, views[2].Status)

	cur, err := tr.Current(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, "C", cur.Workflow)
}

func TestRecordStep_SessionIsolation(t *testing.T) {
	ctx := context.Background()
	tr, st := newTestTracker(t)

	one, err := tr.RecordStep(ctx, "plan", "frame", "S1")
	require.NoError(t, err)
	two, err := tr.RecordStep(ctx, "plan", "frame", "S2")
	require.NoError(t, err)
	assert.NotEqual(t, one.SpanID, two.SpanID)
	assert.Equal(t, TransitionCreated, two.Transition)
	assert.Equal(t, 1, two.VisitCount)

	other, err := tr.RecordStep(ctx, "research", "scope", "S2")
	require.NoError(t, err)
	assert.Equal(t, two.SpanID, other.SuspendedSpanID)
	assert.Equal(t, span.StatusActive, getSpan(t, st, one.SpanID).Status, "other sessions are untouched")
}

func TestRecordStep_CompletedSpanNotReused(t *testing.T) {
	ctx := context.Background()
	tr, st := newTestTracker(t)

	old, err := tr.RecordStep(ctx, "plan", "frame", "S")
	require.NoError(t, err)
	require.NoError(t, st.Exclusive(ctx, func(tx *store.Tx) error {
		_, err := tx.CompleteOpen("S")
		return err
	}))

	fresh, err := tr.RecordStep(ctx, "plan", "explore", "S")
	require.NoError(t, err)
	assert.NotEqual(t, old.SpanID, fresh.SpanID)
	assert.Equal(t, TransitionCreated, fresh.Transition)
	assert.Equal(t, []string{"frame"}, getSpan(t, st, old.SpanID).Steps.Steps())
}

func TestRecordStep_InvalidScope(t *testing.T) {
	tr, _ := newTestTracker(t)
	for _, args := range [][3]string{{"", "s", "S"}, {"w", "", "S"}, {"w", "s", ""}, {"w", "s", "  "}} {
		_, err := tr.RecordStep(context.Background(), args[0], args[1], args[2])
		assert.ErrorIs(t, err, ErrInvalidScope, "args %v", args)
	}
}

func TestRecordStep_ConcurrentProcesses(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "spans.db")
	seed, err := store.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	const workers = 8
	var wg sync.WaitGroup
	ids := make(chan string, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := store.Open(ctx, path, store.WithLockTimeout(10*time.Second))
			if err != nil {
				errs <- err
				return
			}
			defer st.Close()
			res, err := New(st, quietLogger()).RecordStep(ctx, "plan", fmt.Sprintf("s%d", i), "S")
			if err != nil {
				errs <- err
				return
			}
			ids <- res.SpanID
		}(i)
	}
	wg.Wait()
	close(ids)
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	distinct := make(map[string]bool)
	for id := range ids {
		distinct[id] = true
	}
	assert.Len(t, distinct, 1, "all processes must land in one span")

	st, err := store.Open(ctx, path)
	require.NoError(t, err)
	defer st.Close()
	for id := range distinct {
		assert.Equal(t, workers, getSpan(t, st, id).Steps.Len())
	}
	assert.Len(t, sessionEvents(t, st, "S"), workers)
}
