// Package hook adapts agent lifecycle hooks to the gate, tracker and closer.
// Each invocation reads one JSON payload from stdin and writes at most one
// JSON response to stdout. Internal errors never surface as a failed hook:
// they are logged and the hook answers nothing, which the agent treats as
// allow.
package hook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/benegessarit/skill-composer/internal/closer"
	"github.com/benegessarit/skill-composer/internal/gate"
	"github.com/benegessarit/skill-composer/internal/notify"
	"github.com/benegessarit/skill-composer/internal/tracker"
)

// Event names accepted by Run.
const (
	EventPreTool      = "pre-tool"
	EventPostTool     = "post-tool"
	EventSessionEnd   = "session-end"
	EventPromptSubmit = "prompt-submit"
)

// Events lists the accepted event names.
var Events = []string{EventPreTool, EventPostTool, EventSessionEnd, EventPromptSubmit}

var agentEvents = map[string]string{
	"PreToolUse":       EventPreTool,
	"PostToolUse":      EventPostTool,
	"SessionEnd":       EventSessionEnd,
	"UserPromptSubmit": EventPromptSubmit,
}

// Input is the payload the agent passes on stdin.
type Input struct {
	SessionID     string    `json:"session_id"`
	HookEventName string    `json:"hook_event_name,omitempty"`
	Cwd           string    `json:"cwd,omitempty"`
	ToolName      string    `json:"tool_name,omitempty"`
	ToolInput     ToolInput `json:"tool_input"`
	Prompt        string    `json:"prompt,omitempty"`
}

// ToolInput holds the tool arguments the hooks inspect.
type ToolInput struct {
	FilePath string `json:"file_path,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

// Output is the hook response written to stdout.
type Output struct {
	Decision           string          `json:"decision,omitempty"`
	Reason             string          `json:"reason,omitempty"`
	HookSpecificOutput *SpecificOutput `json:"hookSpecificOutput,omitempty"`
}

// SpecificOutput carries context injected into the agent's conversation.
type SpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext"`
}

func contextOutput(event, text string) *Output {
	if text == "" {
		return nil
	}
	return &Output{HookSpecificOutput: &SpecificOutput{HookEventName: event, AdditionalContext: text}}
}

// Handler dispatches hook events.
type Handler struct {
	Gate    *gate.Gate
	Tracker *tracker.Tracker
	Closer  *closer.Closer
	Logger  *slog.Logger

	// Notifier, when set, is told about every invariant repair.
	Notifier notify.Notifier

	// VisitWarnThreshold is the visit count above which step guidance
	// suggests adapting pace.
	VisitWarnThreshold int
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// ErrUnknownEvent is returned for an event name Run does not handle.
var ErrUnknownEvent = errors.New("hook: unknown event")

// ResolveEvent returns the event to handle: the explicit name if given,
// otherwise the one named by the payload's hook_event_name.
func ResolveEvent(explicit string, in *Input) (string, error) {
	if explicit == "" {
		explicit = agentEvents[in.HookEventName]
	}
	for _, e := range Events {
		if e == explicit {
			return e, nil
		}
	}
	if explicit == "" {
		explicit = in.HookEventName
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEvent, explicit)
}

// Run reads one payload from r, handles event and writes the response, if
// any, to w. Only an unknown event or a failed write is returned as an
// error; everything else fails open.
func (h *Handler) Run(ctx context.Context, event string, r io.Reader, w io.Writer) error {
	var in Input
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		h.logger().Warn("hook payload unreadable", "event", event, "err", err)
		return nil
	}
	event, err := ResolveEvent(event, &in)
	if err != nil {
		return err
	}

	out := h.Handle(ctx, event, &in)
	if out == nil {
		return nil
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		return fmt.Errorf("hook: write response: %w", err)
	}
	return nil
}

// Handle processes one decoded payload. A nil Output means "no opinion".
func (h *Handler) Handle(ctx context.Context, event string, in *Input) *Output {
	switch event {
	case EventPreTool:
		return h.preTool(ctx, in)
	case EventPostTool:
		return h.postTool(ctx, in)
	case EventSessionEnd:
		h.sessionEnd(ctx, in)
	case EventPromptSubmit:
		return h.promptSubmit(ctx, in)
	}
	return nil
}

func (h *Handler) preTool(ctx context.Context, in *Input) *Output {
	switch in.ToolName {
	case "Read":
		t, ok := ParseTarget(in.ToolInput.FilePath)
		if !ok || t.Skill {
			return nil
		}
		d := h.Gate.Check(ctx, t.Workflow, t.Step, in.SessionID)
		if d.Allow {
			return nil
		}
		return &Output{Decision: "block", Reason: d.Explain(t.Workflow, t.Step)}

	case "Task":
		refs := StepRefs(in.ToolInput.Prompt)
		if len(refs) == 0 || in.SessionID == "" {
			return nil
		}
		_, err := h.Tracker.RecordDelegated(ctx, in.SessionID, refs)
		if errors.Is(err, tracker.ErrInvariant) {
			h.repair(ctx, in.SessionID, err)
			_, err = h.Tracker.RecordDelegated(ctx, in.SessionID, refs)
		}
		if err != nil {
			h.logger().Warn("delegated step tracking failed", "session", in.SessionID, "err", err)
		}
	}
	return nil
}

func (h *Handler) postTool(ctx context.Context, in *Input) *Output {
	if in.ToolName != "Read" {
		return nil
	}
	t, ok := ParseTarget(in.ToolInput.FilePath)
	if !ok {
		return nil
	}
	res, err := h.Tracker.RecordStep(ctx, t.Workflow, t.Step, in.SessionID)
	if errors.Is(err, tracker.ErrInvariant) {
		h.repair(ctx, in.SessionID, err)
		res, err = h.Tracker.RecordStep(ctx, t.Workflow, t.Step, in.SessionID)
	}
	if err != nil {
		h.logger().Warn("step tracking failed",
			"workflow", t.Workflow, "step", t.Step, "session", in.SessionID, "err", err)
		return nil
	}
	return contextOutput("PostToolUse", StepGuidance(res, h.VisitWarnThreshold))
}

func (h *Handler) sessionEnd(ctx context.Context, in *Input) {
	if _, err := h.Closer.Close(ctx, in.SessionID); err != nil {
		h.logger().Error("session close failed", "session", in.SessionID, "err", err)
	}
}

func (h *Handler) promptSubmit(ctx context.Context, in *Input) *Output {
	if strings.TrimSpace(in.SessionID) == "" {
		return nil
	}
	views, err := h.Tracker.Status(ctx, in.SessionID, true)
	if err != nil {
		h.logger().Warn("span status unavailable", "session", in.SessionID, "err", err)
		return nil
	}
	return contextOutput("UserPromptSubmit", SessionGuidance(views))
}

func (h *Handler) repair(ctx context.Context, session string, cause error) {
	h.logger().Error("span invariant violated", "session", session, "err", cause)
	report, err := h.Tracker.Repair(ctx, session)
	if err != nil {
		h.logger().Error("span repair failed", "session", session, "err", err)
	}
	if h.Notifier == nil {
		return
	}
	a := notify.NewAlert(notify.KindInvariant, cause.Error())
	a.Session = session
	var inv *tracker.InvariantError
	if errors.As(cause, &inv) {
		a.Workflow = inv.Workflow
		a.SpanIDs = inv.SpanIDs
	}
	if report != nil {
		a.Message = fmt.Sprintf("%s; %d span(s) force-completed", a.Message, report.Repaired())
	}
	if err := h.Notifier.Notify(ctx, a); err != nil {
		h.logger().Warn("alert failed", "notifier", h.Notifier.Name(), "err", err)
	}
}
