package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider answers every request with the same content.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content: m.Response,
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}, nil
}

// Step is one scripted model turn.
type Step struct {
	Content   string
	ToolCalls []ToolCall
	Err       error
}

// Say is a text-only step.
func Say(content string) Step {
	return Step{Content: content}
}

// CallTool is a step that requests a single tool call.
func CallTool(name, arguments string) Step {
	return Step{ToolCalls: []ToolCall{{
		Type:     ToolTypeFunction,
		Function: FunctionCall{Name: name, Arguments: arguments},
	}}}
}

// ScriptedProvider replays a fixed sequence of turns and records every
// request it receives. Useful for tool-loop tests.
type ScriptedProvider struct {
	mu       sync.Mutex
	steps    []Step
	requests []ChatRequest
}

// NewScriptedProvider creates a provider that replays steps in order.
func NewScriptedProvider(steps ...Step) *ScriptedProvider {
	return &ScriptedProvider{steps: steps}
}

// Chat pops the next step. Running out of steps is an error.
func (s *ScriptedProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return nil, fmt.Errorf("scripted provider: no more steps after %d calls", len(s.requests)-1)
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	if step.Err != nil {
		return nil, step.Err
	}
	calls := make([]ToolCall, len(step.ToolCalls))
	for i, call := range step.ToolCalls {
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d_%d", len(s.requests), i)
		}
		calls[i] = call
	}
	return &ChatResponse{
		Content:   step.Content,
		ToolCalls: calls,
		Usage:     Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}, nil
}

// Requests returns a copy of the requests seen so far.
func (s *ScriptedProvider) Requests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatRequest(nil), s.requests...)
}

// Remaining returns how many steps are left.
func (s *ScriptedProvider) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}
