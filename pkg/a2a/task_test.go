package a2a

import (
	"encoding/json"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to TaskState
		want     bool
	}{
		{TaskStateSubmitted, TaskStateWorking, true},
		{TaskStateSubmitted, TaskStateFailed, true},
		{TaskStateSubmitted, TaskStateCompleted, false},
		{TaskStateWorking, TaskStateCompleted, true},
		{TaskStateWorking, TaskStateInputRequired, true},
		{TaskStateWorking, TaskStateSubmitted, false},
		{TaskStateInputRequired, TaskStateWorking, true},
		{TaskStateInputRequired, TaskStateCompleted, true},
		{TaskStateCompleted, TaskStateWorking, false},
		{TaskStateCompleted, TaskStateFailed, false},
		{TaskStateFailed, TaskStateWorking, false},
		{TaskStateFailed, TaskStateSubmitted, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestTerminalStatesHaveNoExit(t *testing.T) {
	all := []TaskState{TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired, TaskStateCompleted, TaskStateFailed}
	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Fatalf("terminal state %s must not move to %s", from, to)
			}
		}
	}
}

func TestTaskCloneIsDeep(t *testing.T) {
	task := &Task{
		ID: "t-1",
		Status: TaskStatus{
			State:   TaskStateWorking,
			Message: &Message{Role: RoleAgent, Parts: []Part{TextPart("busy")}},
		},
		History: []Message{{Role: RoleUser, Parts: []Part{DataPart(map[string]any{"k": map[string]any{"n": 1.0}})}}},
	}
	cloned := task.Clone()
	cloned.History[0].Parts[0].Data["k"].(map[string]any)["n"] = 2.0
	cloned.Status.Message.Parts[0].Text = "changed"
	cloned.History = append(cloned.History, NewTextMessage(RoleAgent, "extra"))

	if got := task.History[0].Parts[0].Data["k"].(map[string]any)["n"]; got != 1.0 {
		t.Fatalf("nested data leaked into original: %v", got)
	}
	if task.Status.Message.Parts[0].Text != "busy" {
		t.Fatalf("status message leaked into original")
	}
	if len(task.History) != 1 {
		t.Fatalf("history append leaked into original")
	}
}

func TestMessageTextAndEmpty(t *testing.T) {
	msg := Message{Role: RoleUser, Parts: []Part{TextPart("hello"), DataPart(map[string]any{"a": 1})}}
	if got := msg.Text(); got != "hello\n{\"a\":1}" {
		t.Fatalf("unexpected text %q", got)
	}
	if msg.IsEmpty() {
		t.Fatalf("message with content reported empty")
	}
	if !(Message{Role: RoleAgent, Parts: []Part{TextPart("  ")}}).IsEmpty() {
		t.Fatalf("whitespace-only message should be empty")
	}
}

func TestLastAgentMessage(t *testing.T) {
	task := &Task{History: []Message{
		NewTextMessage(RoleUser, "q1"),
		NewTextMessage(RoleAgent, "a1"),
		NewTextMessage(RoleUser, "q2"),
	}}
	if got := task.LastAgentMessage().Text(); got != "a1" {
		t.Fatalf("expected a1, got %q", got)
	}
	if (&Task{}).LastAgentMessage() != nil {
		t.Fatalf("expected nil for empty history")
	}
}

func TestAgentCardValidate(t *testing.T) {
	valid := AgentCard{Name: "TellTimeAgent", URL: "http://localhost:10000/"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (&AgentCard{URL: "http://x"}).Validate(); err == nil {
		t.Fatalf("expected missing name error")
	}
	if err := (&AgentCard{Name: "x"}).Validate(); err == nil {
		t.Fatalf("expected missing url error")
	}
}

func TestTaskJSONFieldNames(t *testing.T) {
	raw, err := json.Marshal(Task{ID: "t", SessionID: "s", Status: TaskStatus{State: TaskStateCompleted}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["sessionId"] != "s" {
		t.Fatalf("expected sessionId field, got %s", raw)
	}
	status := decoded["status"].(map[string]any)
	if status["state"] != "completed" {
		t.Fatalf("unexpected status %v", status)
	}
}
