package httpserver

import (
	"github.com/benegessarit/skill-composer/internal/gate"
	"github.com/benegessarit/skill-composer/internal/span"
	"github.com/benegessarit/skill-composer/internal/tracker"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// RecentResponse is returned by GET /sessions.
type RecentResponse struct {
	Spans []*span.Span `json:"spans"`
}

// StatusResponse is returned by GET /sessions/{session}.
type StatusResponse struct {
	Session string             `json:"session"`
	Spans   []tracker.SpanView `json:"spans"`
}

// EventsResponse is returned by the event listings.
type EventsResponse struct {
	Events []span.Event `json:"events"`
}

// CheckResponse is returned by GET /check.
type CheckResponse struct {
	Workflow string `json:"workflow"`
	Step     string `json:"step"`
	Session  string `json:"session"`

	gate.Decision

	Explanation string `json:"explanation,omitempty"`
}

// StreamMessage is one WebSocket frame of an event stream.
type StreamMessage struct {
	Type    string      `json:"type"` // "event" or "error"
	Event   *span.Event `json:"event,omitempty"`
	Message string      `json:"message,omitempty"`
}
