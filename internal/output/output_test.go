package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func capture(t *testing.T, jsonMode bool) (*bytes.Buffer, *int) {
	t.Helper()
	var buf bytes.Buffer
	code := -1
	origOut, origExit, origMode := Out, exit, JSONMode
	Out, JSONMode = &buf, jsonMode
	exit = func(c int) { code = c }
	t.Cleanup(func() { Out, exit, JSONMode = origOut, origExit, origMode })
	return &buf, &code
}

func TestPrint_JSON(t *testing.T) {
	buf, _ := capture(t, true)
	called := false
	Print(map[string]int{"spansClosed": 2}, func() { called = true })

	if called {
		t.Error("text callback ran in JSON mode")
	}
	var got struct {
		Success bool           `json:"success"`
		Data    map[string]int `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if !got.Success || got.Data["spansClosed"] != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestPrint_Text(t *testing.T) {
	buf, _ := capture(t, false)
	called := false
	Print(nil, func() { called = true })
	if !called {
		t.Error("text callback not called")
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestPrintError_JSON(t *testing.T) {
	buf, code := capture(t, true)
	PrintError(errors.New("store: session id is required"))

	if *code != 1 {
		t.Errorf("exit code = %d, want 1", *code)
	}
	var got Result
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got.Success || got.Error != "store: session id is required" {
		t.Errorf("got %+v", got)
	}
}
