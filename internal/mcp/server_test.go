package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/benegessarit/skill-composer/internal/gate"
	"github.com/benegessarit/skill-composer/internal/steps"
	"github.com/benegessarit/skill-composer/internal/store"
	"github.com/benegessarit/skill-composer/internal/tracker"
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

// setupTestServer connects a client to a server over in-memory transports.
func setupTestServer(t *testing.T) (*mcpsdk.ClientSession, *tracker.Tracker) {
	t.Helper()

	root := t.TempDir()
	dir := filepath.Join(root, "plan", "steps")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"frame.md":  "---\nconsumes: [user-request]\nproduces: [problem]\n---\n",
		"decide.md": "---\nconsumes: [problem, options]\n---\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "spans.db"), store.WithClock(tickingClock()))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	loader := steps.NewLoader(logger, root)
	tr := tracker.New(st, logger)
	server := NewServer(Deps{
		Tracker: tr,
		Gate:    gate.New(st, loader, nil, logger),
		Loader:  loader,
		Version: "0.0.1",
	})

	ct, sst := mcpsdk.NewInMemoryTransports()
	ctx := context.Background()
	ss, err := server.Connect(ctx, sst, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}

	t.Cleanup(func() {
		cs.Close()
		ss.Close()
		st.Close()
	})
	return cs, tr
}

// callTool calls a tool and decodes the JSON of its first text block.
func callTool(t *testing.T, cs *mcpsdk.ClientSession, name string, args any) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if result.IsError {
		t.Fatalf("CallTool(%s): tool error: %+v", name, result.Content)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcpsdk.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): content is %T, want *TextContent", name, result.Content[0])
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(tc.Text), &m); err != nil {
		t.Fatalf("CallTool(%s): unmarshal response: %v\nraw: %s", name, err, tc.Text)
	}
	return m
}

func TestSpanStatus(t *testing.T) {
	cs, tr := setupTestServer(t)
	ctx := context.Background()
	if _, err := tr.RecordStep(ctx, "plan", "frame", "S"); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.RecordStep(ctx, "debug", "reproduce", "S"); err != nil {
		t.Fatal(err)
	}

	resp := callTool(t, cs, "span_status", map[string]any{"session": "S"})
	spans, ok := resp["spans"].([]any)
	if !ok || len(spans) != 2 {
		t.Fatalf("spans = %v, want two", resp["spans"])
	}
	top := spans[0].(map[string]any)
	if top["workflow"] != "debug" || top["status"] != "active" {
		t.Errorf("first span = %v, want active debug", top)
	}
	if parents, _ := top["parents"].([]any); len(parents) != 1 || parents[0] != "plan" {
		t.Errorf("parents = %v, want [plan]", top["parents"])
	}

	recent := callTool(t, cs, "span_status", map[string]any{})
	if spans, _ := recent["spans"].([]any); len(spans) != 2 {
		t.Errorf("recent spans = %v, want two", recent["spans"])
	}
}

func TestCheckStep(t *testing.T) {
	cs, tr := setupTestServer(t)
	if _, err := tr.RecordStep(context.Background(), "plan", "frame", "S"); err != nil {
		t.Fatal(err)
	}

	resp := callTool(t, cs, "check_step", map[string]any{"workflow": "plan", "step": "decide", "session": "S"})
	if resp["allow"] != false {
		t.Fatalf("allow = %v, want false", resp["allow"])
	}
	missing, _ := resp["missing"].([]any)
	if len(missing) != 1 || missing[0].(map[string]any)["artifact"] != "options" {
		t.Errorf("missing = %v, want [options]", resp["missing"])
	}

	resp = callTool(t, cs, "check_step", map[string]any{"workflow": "plan", "step": "decide", "session": "other"})
	if resp["allow"] != true || resp["reason"] != gate.ReasonNoSpan {
		t.Errorf("other session = %v, want allowed without span", resp)
	}
}

func TestListEvents(t *testing.T) {
	cs, tr := setupTestServer(t)
	if _, err := tr.RecordStep(context.Background(), "plan", "frame", "S"); err != nil {
		t.Fatal(err)
	}

	resp := callTool(t, cs, "list_events", map[string]any{"session": "S"})
	events, _ := resp["events"].([]any)
	if len(events) != 1 || events[0].(map[string]any)["kind"] != "session_start" {
		t.Fatalf("events = %v, want one session_start", resp["events"])
	}

	resp = callTool(t, cs, "list_events", map[string]any{"date": "2026-03-01", "workflow": "plan"})
	if events, _ := resp["events"].([]any); len(events) != 1 {
		t.Errorf("events on date = %v, want one", resp["events"])
	}
}

func TestLintSteps(t *testing.T) {
	cs, _ := setupTestServer(t)

	resp := callTool(t, cs, "lint_steps", map[string]any{"workflow": "plan"})
	findings, _ := resp["findings"].([]any)
	if len(findings) != 1 || findings[0].(map[string]any)["artifact"] != "options" {
		t.Errorf("findings = %v, want options unproduced", resp["findings"])
	}
}
