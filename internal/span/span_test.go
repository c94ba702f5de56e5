package span

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestHistoryAppend(t *testing.T) {
	var h History
	steps := []struct {
		step string
		want bool
	}{
		{"frame", true},
		{"frame", false},
		{"", false},
		{"explore", true},
		{"frame", true},
	}
	for _, s := range steps {
		if got := h.Append(s.step); got != s.want {
			t.Errorf("Append(%q) = %v, want %v", s.step, got, s.want)
		}
	}
	if want := []string{"frame", "explore", "frame"}; !reflect.DeepEqual(h.Steps(), want) {
		t.Errorf("Steps() = %v, want %v", h.Steps(), want)
	}
	if h.Count("frame") != 2 {
		t.Errorf("Count(frame) = %d, want 2", h.Count("frame"))
	}
	if h.Last() != "frame" {
		t.Errorf("Last() = %q, want frame", h.Last())
	}
	if h.Contains("verify") {
		t.Error("Contains(verify) = true, want false")
	}
}

func TestHistoryPush(t *testing.T) {
	h := NewHistory("frame")
	if !h.Push("frame") {
		t.Error("Push(frame) = false, want true")
	}
	if h.Push("") {
		t.Error("Push(\"\") = true, want false")
	}
	if want := []string{"frame", "frame"}; !reflect.DeepEqual(h.Steps(), want) {
		t.Errorf("Steps() = %v, want %v", h.Steps(), want)
	}
}

func TestSpanResume(t *testing.T) {
	s := &Span{Status: StatusActive, Steps: NewHistory("a1", "a2"), FirstStep: "a1", LastStep: "a2"}
	if !s.Resume("a2") {
		t.Fatal("Resume(a2) = false, want true")
	}
	if want := []string{"a1", "a2", "a2"}; !reflect.DeepEqual(s.Steps.Steps(), want) {
		t.Errorf("Steps = %v, want %v", s.Steps.Steps(), want)
	}
	done := &Span{Status: StatusCompleted}
	if done.Resume("x") {
		t.Error("Resume on a completed span = true, want false")
	}
}

func TestHistoryStepsIsCopy(t *testing.T) {
	h := NewHistory("a", "b")
	got := h.Steps()
	got[0] = "mutated"
	if h.Steps()[0] != "a" {
		t.Errorf("Steps() exposed internal slice")
	}
}

func TestHistoryJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"array", `["a","b","a"]`, []string{"a", "b", "a"}},
		{"empty array", `[]`, []string{}},
		{"null", `null`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h History
			if err := json.Unmarshal([]byte(tt.input), &h); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.input, err)
			}
			if !reflect.DeepEqual(h.Steps(), tt.want) {
				t.Errorf("Steps() = %v, want %v", h.Steps(), tt.want)
			}
		})
	}

	var h History
	if err := json.Unmarshal([]byte(`{"steps":1}`), &h); err == nil {
		t.Error("Unmarshal(object) should fail")
	}

	data, err := json.Marshal(History{})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("Marshal(empty) = %s, want []", data)
	}
}

func TestSpanVisit(t *testing.T) {
	s := &Span{Status: StatusActive}
	if !s.Visit("frame") {
		t.Fatal("first Visit should append")
	}
	s.Visit("explore")
	if s.Visit("explore") {
		t.Error("repeat of last step should not append")
	}
	if s.FirstStep != "frame" || s.LastStep != "explore" {
		t.Errorf("markers = (%q, %q), want (frame, explore)", s.FirstStep, s.LastStep)
	}

	s.Status = StatusCompleted
	if s.Visit("verify") {
		t.Error("completed span must not change")
	}
	if s.Steps.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Steps.Len())
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		status      Status
		open, valid bool
	}{
		{StatusActive, true, true},
		{StatusSuspended, true, true},
		{StatusCompleted, false, true},
		{Status("paused"), false, false},
	}
	for _, tt := range tests {
		if got := tt.status.Open(); got != tt.open {
			t.Errorf("%s.Open() = %v, want %v", tt.status, got, tt.open)
		}
		if got := tt.status.Valid(); got != tt.valid {
			t.Errorf("%s.Valid() = %v, want %v", tt.status, got, tt.valid)
		}
	}
}

func TestPayloadEncode(t *testing.T) {
	if got := (Payload{}).Encode(); got != nil {
		t.Errorf("empty payload = %s, want nil", got)
	}
	got := Payload{SpanID: "s1", VisitCount: 3}.Encode()
	if string(got) != `{"spanId":"s1","visitCount":3}` {
		t.Errorf("Encode() = %s", got)
	}
}
