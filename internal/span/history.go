package span

import (
	"encoding/json"
	"fmt"
)

// History is the ordered list of steps visited by a span. Order is
// significant and repeats are allowed; Append collapses an immediate re-read
// of the last step, Push does not.
type History struct {
	steps []string
}

// NewHistory returns a history holding steps in order.
func NewHistory(steps ...string) History {
	return History{steps: append([]string(nil), steps...)}
}

// Append adds step unless it is empty or equal to the last recorded step.
func (h *History) Append(step string) bool {
	if step == "" {
		return false
	}
	if n := len(h.steps); n > 0 && h.steps[n-1] == step {
		return false
	}
	h.steps = append(h.steps, step)
	return true
}

// Push adds step even when it equals the last recorded step. Empty steps
// are ignored.
func (h *History) Push(step string) bool {
	if step == "" {
		return false
	}
	h.steps = append(h.steps, step)
	return true
}

// Steps returns a copy of the recorded steps.
func (h History) Steps() []string {
	out := make([]string, len(h.steps))
	copy(out, h.steps)
	return out
}

// Len returns the number of recorded visits.
func (h History) Len() int { return len(h.steps) }

// Last returns the most recent step, or "" when empty.
func (h History) Last() string {
	if len(h.steps) == 0 {
		return ""
	}
	return h.steps[len(h.steps)-1]
}

// Contains reports whether step was visited at least once.
func (h History) Contains(step string) bool {
	for _, s := range h.steps {
		if s == step {
			return true
		}
	}
	return false
}

// Count returns how many times step appears in the history.
func (h History) Count(step string) int {
	n := 0
	for _, s := range h.steps {
		if s == step {
			n++
		}
	}
	return n
}

// MarshalJSON encodes the history as a JSON array.
func (h History) MarshalJSON() ([]byte, error) {
	if h.steps == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.steps)
}

// UnmarshalJSON decodes a JSON array of step names. An empty input or a JSON
// null yields an empty history.
func (h *History) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		h.steps = nil
		return nil
	}
	var steps []string
	if err := json.Unmarshal(data, &steps); err != nil {
		return fmt.Errorf("span: decode step history: %w", err)
	}
	h.steps = steps
	return nil
}
