// Package span defines the execution-span and ledger-event types shared by the
// tracker, gate, and closer. A span is one contiguous (possibly interrupted)
// execution of one workflow inside one agent session.
package span

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a span.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
)

// Open reports whether the span can still be mutated.
func (s Status) Open() bool {
	return s == StatusActive || s == StatusSuspended
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusCompleted:
		return true
	}
	return false
}

// SkillStep is the step name recorded when a workflow's entry document is read
// rather than one of its step files.
const SkillStep = "SKILL"

// Span is one execution of a workflow within a session.
type Span struct {
	ID          string     `json:"spanId"`
	Workflow    string     `json:"workflow"`
	ParentID    string     `json:"parentSpanId,omitempty"`
	Status      Status     `json:"status"`
	FirstStep   string     `json:"firstStep"`
	LastStep    string     `json:"lastStep"`
	Steps       History    `json:"steps"`
	SessionID   string     `json:"sessionId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	SuspendedAt *time.Time `json:"suspendedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Visit appends step to the span history and moves the last-step marker.
// It returns false when step equals the current last step, in which case the
// history is left unchanged.
func (s *Span) Visit(step string) bool {
	if s.Status == StatusCompleted {
		return false
	}
	if !s.Steps.Append(step) {
		return false
	}
	if s.FirstStep == "" {
		s.FirstStep = step
	}
	s.LastStep = step
	return true
}

// Resume appends step after a suspension. Unlike Visit it never collapses a
// repeat of the last step: the resumed history is the pre-suspension steps
// followed by every step read since.
func (s *Span) Resume(step string) bool {
	if s.Status == StatusCompleted {
		return false
	}
	if !s.Steps.Push(step) {
		return false
	}
	if s.FirstStep == "" {
		s.FirstStep = step
	}
	s.LastStep = step
	return true
}

func (s *Span) String() string {
	return fmt.Sprintf("%s[%s %s steps=%d]", s.Workflow, s.ID, s.Status, s.Steps.Len())
}
