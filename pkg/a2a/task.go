// Package a2a defines the wire model of the agent-to-agent protocol: agent
// cards, tasks, messages, status events and the JSON-RPC parameter shapes.
package a2a

import (
	"time"
)

// TaskState is the closed set of lifecycle states a task can be in.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
)

// transitions lists the legal successor states of every state.
// Terminal states have no entry.
var transitions = map[TaskState][]TaskState{
	TaskStateSubmitted:     {TaskStateWorking, TaskStateFailed},
	TaskStateWorking:       {TaskStateInputRequired, TaskStateCompleted, TaskStateFailed},
	TaskStateInputRequired: {TaskStateWorking, TaskStateCompleted, TaskStateFailed},
}

// IsTerminal reports whether no further transition is accepted.
func (s TaskState) IsTerminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed
}

// Valid reports whether s is a known state.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired, TaskStateCompleted, TaskStateFailed:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to TaskState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TaskStatus is the current state of a task plus an optional agent message.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskError is the human readable failure detail recorded on failed tasks.
type TaskError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Task is the unit of work tracked by an agent.
type Task struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId,omitempty"`
	Status    TaskStatus `json:"status"`
	History   []Message  `json:"history,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	Error     *TaskError `json:"error,omitempty"`
}

// LastAgentMessage returns the most recent agent message in the history.
func (t *Task) LastAgentMessage() *Message {
	if t == nil {
		return nil
	}
	for i := len(t.History) - 1; i >= 0; i-- {
		if t.History[i].Role == RoleAgent {
			return &t.History[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	out.Status = t.Status.clone()
	if t.History != nil {
		out.History = make([]Message, len(t.History))
		for i := range t.History {
			out.History[i] = t.History[i].Clone()
		}
	}
	if t.Artifacts != nil {
		out.Artifacts = make([]Artifact, len(t.Artifacts))
		for i := range t.Artifacts {
			out.Artifacts[i] = t.Artifacts[i].Clone()
		}
	}
	if t.Error != nil {
		taskErr := *t.Error
		out.Error = &taskErr
	}
	return &out
}

func (s TaskStatus) clone() TaskStatus {
	if s.Message != nil {
		msg := s.Message.Clone()
		s.Message = &msg
	}
	return s
}
