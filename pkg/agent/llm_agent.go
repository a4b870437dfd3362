package agent

import (
	"context"

	"github.com/jllopis/agora/pkg/a2a/server"
	"github.com/jllopis/agora/pkg/tools"
)

const llmInstructions = "You are a helpful assistant. Use the available tools when they help. " +
	"If you need more information from the user, start your reply with " + InputRequiredTag + "."

// LLMAgent is a chat agent backed by a model and its tools.
type LLMAgent struct {
	o    *options
	loop *toolLoop
}

// NewLLMAgent creates an LLMAgent. WithLLM is required.
func NewLLMAgent(opts ...Option) (*LLMAgent, error) {
	o, err := newOptions("LLMAgent", opts)
	if err != nil {
		return nil, err
	}
	if o.provider == nil {
		return nil, ErrMissingProvider
	}
	if o.instructions == "" {
		o.instructions = llmInstructions
	}
	registry, err := tools.NewRegistry(o.tools...)
	if err != nil {
		return nil, err
	}
	return &LLMAgent{o: o, loop: &toolLoop{o: o, registry: registry}}, nil
}

// Execute implements server.Executor.
func (a *LLMAgent) Execute(ctx context.Context, req server.ExecuteRequest, progress server.ProgressFunc) (*server.Result, error) {
	progress.Report(ProcessingMessage)
	return a.loop.run(ctx, req, progress)
}
