package server

import (
	"context"

	"github.com/jllopis/agora/pkg/a2a"
)

// ExecuteRequest carries everything the reasoning step sees for one run.
type ExecuteRequest struct {
	TaskID    string
	SessionID string
	Message   a2a.Message
	// History is the accumulated task history, inbound message included.
	History []a2a.Message
}

// Result is the outcome of one reasoning run.
type Result struct {
	Message       a2a.Message
	Artifacts     []a2a.Artifact
	InputRequired bool
}

// TextResult builds a result holding a single agent text reply.
func TextResult(text string) *Result {
	return &Result{Message: a2a.NewTextMessage(a2a.RoleAgent, text)}
}

// ProgressFunc receives intermediate progress notes of a run.
type ProgressFunc func(text string)

// Report forwards text when a receiver is attached.
func (f ProgressFunc) Report(text string) {
	if f != nil {
		f(text)
	}
}

// Executor is the local agent's reasoning step.
type Executor interface {
	Execute(ctx context.Context, req ExecuteRequest, progress ProgressFunc) (*Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req ExecuteRequest, progress ProgressFunc) (*Result, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req ExecuteRequest, progress ProgressFunc) (*Result, error) {
	return f(ctx, req, progress)
}
