package httpserver

import (
	"net/http"
	"strconv"

	"github.com/benegessarit/skill-composer/internal/span"
	"github.com/benegessarit/skill-composer/internal/tracker"
)

const maxRecent = 500

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: s.deps.Version})
}

// handleRecent handles GET /sessions?limit=N
func (s *HTTPServer) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecent)
	}
	spans, err := s.deps.Tracker.Recent(r.Context(), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if spans == nil {
		spans = []*span.Span{}
	}
	s.respondJSON(w, http.StatusOK, RecentResponse{Spans: spans})
}

// handleStatus handles GET /sessions/{session}?all=true
func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	session := r.PathValue("session")
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	views, err := s.deps.Tracker.Status(r.Context(), session, !all)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if views == nil {
		views = []tracker.SpanView{}
	}
	s.respondJSON(w, http.StatusOK, StatusResponse{Session: session, Spans: views})
}

// handleSessionEvents handles GET /sessions/{session}/events
func (s *HTTPServer) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.deps.Tracker.Events(r.Context(), r.PathValue("session"))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondEvents(w, events)
}

// handleEventsOn handles GET /events?date=YYYY-MM-DD&workflow=name
func (s *HTTPServer) handleEventsOn(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		s.respondError(w, http.StatusBadRequest, "query parameter 'date' is required")
		return
	}
	events, err := s.deps.Tracker.EventsOn(r.Context(), date, r.URL.Query().Get("workflow"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondEvents(w, events)
}

func (s *HTTPServer) respondEvents(w http.ResponseWriter, events []span.Event) {
	if events == nil {
		events = []span.Event{}
	}
	s.respondJSON(w, http.StatusOK, EventsResponse{Events: events})
}

// handleCheck handles GET /check?workflow=&step=&session=. It answers the
// same question as the pre-read hook without recording anything.
func (s *HTTPServer) handleCheck(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	workflow, step, session := q.Get("workflow"), q.Get("step"), q.Get("session")
	if workflow == "" || step == "" || session == "" {
		s.respondError(w, http.StatusBadRequest, "query parameters 'workflow', 'step' and 'session' are required")
		return
	}
	d := s.deps.Gate.Check(r.Context(), workflow, step, session)
	s.respondJSON(w, http.StatusOK, CheckResponse{
		Workflow:    workflow,
		Step:        step,
		Session:     session,
		Decision:    d,
		Explanation: d.Explain(workflow, step),
	})
}
