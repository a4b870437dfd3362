package agent

import (
	"context"

	"github.com/jllopis/agora/pkg/a2a/server"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/tools"
)

// TimeReplyPrefix starts every TimeAgent reply.
const TimeReplyPrefix = "The current time is: "

// TimeAgent answers every request with the current local time.
type TimeAgent struct {
	o        *options
	registry *tools.Registry
}

// NewTimeAgent creates a TimeAgent.
func NewTimeAgent(opts ...Option) (*TimeAgent, error) {
	o, err := newOptions("TellTimeAgent", opts)
	if err != nil {
		return nil, err
	}
	registry, err := tools.NewRegistry(&tools.TimeTool{Now: o.now})
	if err != nil {
		return nil, err
	}
	return &TimeAgent{o: o, registry: registry}, nil
}

// Execute implements server.Executor.
func (a *TimeAgent) Execute(ctx context.Context, req server.ExecuteRequest, progress server.ProgressFunc) (*server.Result, error) {
	progress.Report("Looking up the current time...")
	now, err := a.o.callTool(ctx, a.registry, llm.ToolCall{
		ID:       req.TaskID + "-time",
		Type:     llm.ToolTypeFunction,
		Function: llm.FunctionCall{Name: tools.TimeToolName, Arguments: "{}"},
	}, req.TaskID)
	if err != nil {
		return nil, err
	}
	return server.TextResult(TimeReplyPrefix + now), nil
}
