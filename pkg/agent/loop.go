package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jllopis/agora/pkg/a2a"
	"github.com/jllopis/agora/pkg/a2a/server"
	"github.com/jllopis/agora/pkg/delegation"
	"github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/memory"
	"github.com/jllopis/agora/pkg/tools"
)

// InputRequiredTag marks a model reply that asks the user for more input.
const InputRequiredTag = "[input-required]"

// toolLoop alternates model turns and tool calls until the model answers
// with text or the iteration budget runs out.
type toolLoop struct {
	o        *options
	registry *tools.Registry
}

func (l *toolLoop) run(ctx context.Context, req server.ExecuteRequest, progress server.ProgressFunc) (*server.Result, error) {
	o := l.o
	prompt := strings.TrimSpace(req.Message.Text())
	if prompt == "" {
		return nil, errors.InvalidInput("message has no text")
	}
	session := sessionOf(req)

	history, err := o.memory.GetMessages(ctx, session)
	if err != nil {
		return nil, WrapMemoryError(err, "get_messages")
	}
	messages := make([]llm.Message, 0, len(history)+2)
	if o.instructions != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: o.instructions})
	}
	messages = append(messages, memory.ToLLM(history)...)
	user := llm.Message{Role: llm.RoleUser, Content: prompt}
	messages = append(messages, user)
	l.remember(ctx, session, user)

	defs := l.registry.Definitions()
	for i := 0; i < o.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := o.chat(ctx, messages, defs, req.TaskID)
		if err != nil {
			return nil, err
		}
		if resp.Empty() {
			return nil, NewEmptyResponseError(o.model)
		}
		assistant := llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls}
		messages = append(messages, assistant)
		l.remember(ctx, session, assistant)

		if len(resp.ToolCalls) == 0 {
			return finalResult(resp.Content, o.model)
		}
		for _, call := range resp.ToolCalls {
			progress.Report(toolProgress(call))
			out, err := o.callTool(ctx, l.registry, call, req.TaskID)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				out = "error: " + err.Error()
			}
			result := llm.Message{Role: llm.RoleTool, Content: out, ToolCallID: call.ID}
			messages = append(messages, result)
			l.remember(ctx, session, result)
		}
	}
	o.logger.WarnContext(ctx, "agent.loop.exhausted",
		slog.String("agent", o.name),
		slog.String("task_id", req.TaskID),
		slog.Int("max_iterations", o.maxIterations),
	)
	return nil, NewIterationLimitError(o.maxIterations)
}

func (l *toolLoop) remember(ctx context.Context, session string, msg llm.Message) {
	stored := memory.FromLLM(msg)
	stored.SessionID = session
	stored.CreatedAt = l.o.now()
	if err := l.o.memory.AppendMessage(ctx, session, stored); err != nil {
		l.o.logger.WarnContext(ctx, "agent.memory.error",
			slog.String("agent", l.o.name),
			slog.String("session_id", session),
			slog.String("error", err.Error()),
		)
	}
}

// finalResult turns the closing model text into the task reply.
func finalResult(content, model string) (*server.Result, error) {
	text := strings.TrimSpace(content)
	inputRequired := false
	if rest, ok := cutPrefixFold(text, InputRequiredTag); ok {
		text = strings.TrimSpace(rest)
		inputRequired = true
	}
	if text == "" {
		return nil, NewEmptyResponseError(model)
	}
	return &server.Result{
		Message:       a2a.NewTextMessage(a2a.RoleAgent, text),
		InputRequired: inputRequired,
	}, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

func toolProgress(call llm.ToolCall) string {
	switch call.Function.Name {
	case delegation.ListAgentsToolName:
		return "Looking up available agents..."
	case delegation.DelegateToolName:
		if args, err := tools.ParseArguments(call.Function.Arguments); err == nil {
			if name, ok := args["agent_name"].(string); ok && name != "" {
				return fmt.Sprintf("Delegating to %s...", name)
			}
		}
		return "Delegating to a remote agent..."
	}
	return fmt.Sprintf("Calling tool %s...", call.Function.Name)
}

// sessionOf keys conversation memory. Tasks without a session keep their
// own history.
func sessionOf(req server.ExecuteRequest) string {
	if req.SessionID != "" {
		return req.SessionID
	}
	return req.TaskID
}
