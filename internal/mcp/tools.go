package mcpserver

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/benegessarit/skill-composer/internal/gate"
	"github.com/benegessarit/skill-composer/internal/span"
	"github.com/benegessarit/skill-composer/internal/steps"
	"github.com/benegessarit/skill-composer/internal/tracker"
)

type tools struct {
	deps Deps
}

// span_status

type spanStatusInput struct {
	Session string `json:"session,omitempty" jsonschema:"Session id; omit to list the latest spans of all sessions"`
	All     bool   `json:"all,omitempty" jsonschema:"Include completed spans"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Maximum spans when no session is given (default 20)"`
}

type spanInfo struct {
	SpanID    string   `json:"spanId"`
	Workflow  string   `json:"workflow"`
	Status    string   `json:"status"`
	SessionID string   `json:"sessionId"`
	Steps     []string `json:"steps"`
	LastStep  string   `json:"lastStep"`
	Parents   []string `json:"parents,omitempty"`
	UpdatedAt string   `json:"updatedAt"`
}

type spanStatusOutput struct {
	Spans []spanInfo `json:"spans"`
}

func newSpanInfo(s *span.Span, chain []tracker.Ancestor) spanInfo {
	info := spanInfo{
		SpanID:    s.ID,
		Workflow:  s.Workflow,
		Status:    string(s.Status),
		SessionID: s.SessionID,
		Steps:     s.Steps.Steps(),
		LastStep:  s.LastStep,
		UpdatedAt: s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if info.Steps == nil {
		info.Steps = []string{}
	}
	for _, a := range chain {
		info.Parents = append(info.Parents, a.Workflow)
	}
	return info
}

func (t *tools) spanStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input spanStatusInput) (*mcpsdk.CallToolResult, spanStatusOutput, error) {
	out := spanStatusOutput{Spans: []spanInfo{}}
	if input.Session == "" {
		limit := input.Limit
		if limit <= 0 {
			limit = 20
		}
		spans, err := t.deps.Tracker.Recent(ctx, limit)
		if err != nil {
			return nil, spanStatusOutput{}, fmt.Errorf("failed to list spans: %w", err)
		}
		for _, s := range spans {
			out.Spans = append(out.Spans, newSpanInfo(s, nil))
		}
		return nil, out, nil
	}

	views, err := t.deps.Tracker.Status(ctx, input.Session, !input.All)
	if err != nil {
		return nil, spanStatusOutput{}, fmt.Errorf("failed to load session %s: %w", input.Session, err)
	}
	for _, v := range views {
		out.Spans = append(out.Spans, newSpanInfo(v.Span, v.Ancestry))
	}
	return nil, out, nil
}

// check_step

type checkStepInput struct {
	Workflow string `json:"workflow" jsonschema:"Workflow (skill) name"`
	Step     string `json:"step" jsonschema:"Step name, the file name without .md"`
	Session  string `json:"session" jsonschema:"Session id"`
}

type checkStepOutput struct {
	Allow       bool           `json:"allow"`
	Reason      string         `json:"reason"`
	SpanID      string         `json:"spanId,omitempty"`
	Missing     []gate.Missing `json:"missing,omitempty"`
	Explanation string         `json:"explanation,omitempty"`
}

func (t *tools) checkStep(ctx context.Context, req *mcpsdk.CallToolRequest, input checkStepInput) (*mcpsdk.CallToolResult, checkStepOutput, error) {
	if input.Workflow == "" || input.Step == "" {
		return nil, checkStepOutput{}, fmt.Errorf("workflow and step are required")
	}
	d := t.deps.Gate.Check(ctx, input.Workflow, input.Step, input.Session)
	return nil, checkStepOutput{
		Allow:       d.Allow,
		Reason:      d.Reason,
		SpanID:      d.SpanID,
		Missing:     d.Missing,
		Explanation: d.Explain(input.Workflow, input.Step),
	}, nil
}

// list_events

type listEventsInput struct {
	Session  string `json:"session,omitempty" jsonschema:"Session id"`
	Date     string `json:"date,omitempty" jsonschema:"UTC day YYYY-MM-DD, used when no session is given"`
	Workflow string `json:"workflow,omitempty" jsonschema:"Restrict a date query to one workflow"`
}

type eventInfo struct {
	Timestamp string `json:"timestamp"`
	Kind      string `json:"kind"`
	Workflow  string `json:"workflow"`
	Phase     string `json:"phase"`
	SessionID string `json:"sessionId"`
	Payload   string `json:"payload,omitempty"`
}

type listEventsOutput struct {
	Events []eventInfo `json:"events"`
}

func (t *tools) listEvents(ctx context.Context, req *mcpsdk.CallToolRequest, input listEventsInput) (*mcpsdk.CallToolResult, listEventsOutput, error) {
	var (
		events []span.Event
		err    error
	)
	switch {
	case input.Session != "":
		events, err = t.deps.Tracker.Events(ctx, input.Session)
	case input.Date != "":
		events, err = t.deps.Tracker.EventsOn(ctx, input.Date, input.Workflow)
	default:
		return nil, listEventsOutput{}, fmt.Errorf("session or date is required")
	}
	if err != nil {
		return nil, listEventsOutput{}, fmt.Errorf("failed to list events: %w", err)
	}

	out := listEventsOutput{Events: make([]eventInfo, 0, len(events))}
	for _, e := range events {
		out.Events = append(out.Events, eventInfo{
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
			Kind:      string(e.Kind),
			Workflow:  e.Workflow,
			Phase:     e.Phase,
			SessionID: e.SessionID,
			Payload:   string(e.Payload),
		})
	}
	return nil, out, nil
}

// lint_steps

type lintStepsInput struct {
	Workflow string `json:"workflow" jsonschema:"Workflow (skill) name"`
}

type lintStepsOutput struct {
	Workflow string          `json:"workflow"`
	Dir      string          `json:"dir"`
	Steps    []string        `json:"steps"`
	Findings []steps.Finding `json:"findings,omitempty"`
}

func (t *tools) lintSteps(ctx context.Context, req *mcpsdk.CallToolRequest, input lintStepsInput) (*mcpsdk.CallToolResult, lintStepsOutput, error) {
	dir, ok := t.deps.Loader.StepsDir(input.Workflow)
	if !ok {
		return nil, lintStepsOutput{}, fmt.Errorf("workflow %q not found", input.Workflow)
	}
	rep, err := steps.Lint(input.Workflow, dir, t.deps.RootInputs)
	if err != nil {
		return nil, lintStepsOutput{}, fmt.Errorf("failed to lint %s: %w", input.Workflow, err)
	}
	out := lintStepsOutput{Workflow: rep.Workflow, Dir: rep.Dir, Steps: []string{}, Findings: rep.Findings}
	for _, m := range rep.Steps {
		out.Steps = append(out.Steps, m.Name)
	}
	return nil, out, nil
}
