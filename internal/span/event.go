package span

import (
	"encoding/json"
	"time"
)

// EventKind enumerates ledger event types.
type EventKind string

const (
	EventStepEnter          EventKind = "step_enter"
	EventSessionStart       EventKind = "session_start"
	EventSessionEnd         EventKind = "session_end"
	EventDelegatedStepEnter EventKind = "delegated_step_enter"
	EventInvariantRepair    EventKind = "invariant_repair"
)

// Event is an immutable ledger row. Events are an audit trail and are never
// consulted by the gate.
type Event struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Workflow  string          `json:"workflow"`
	Phase     string          `json:"phase"`
	Kind      EventKind       `json:"eventKind"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Payload is the side-channel data attached to tracker events.
type Payload struct {
	SpanID      string   `json:"spanId,omitempty"`
	ParentID    string   `json:"parentSpanId,omitempty"`
	SuspendedID string   `json:"suspendedSpanId,omitempty"`
	Resumed     bool     `json:"resumed,omitempty"`
	Repeat      bool     `json:"repeat,omitempty"`
	VisitCount  int      `json:"visitCount,omitempty"`
	SpansClosed int      `json:"spansClosed,omitempty"`
	Completed   []string `json:"completed,omitempty"`
}

// Encode marshals p for storage. A zero payload encodes to nil.
func (p Payload) Encode() json.RawMessage {
	data, err := json.Marshal(p)
	if err != nil || string(data) == "{}" {
		return nil
	}
	return data
}
