package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jllopis/agora/pkg/a2a"
	"github.com/jllopis/agora/pkg/a2a/server"
	"github.com/jllopis/agora/pkg/delegation"
	"github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/resilience"
	"github.com/jllopis/agora/pkg/tools"
)

// TimeQuestion is what GreetingAgent asks the time agent.
const TimeQuestion = "What is the current time?"

const greetingInstructions = "You write one short, friendly greeting for the user. " +
	"Mention the time of day you are given. Reply with the greeting only."

// Delegator sends a message to a named remote agent.
type Delegator interface {
	Delegate(ctx context.Context, name, message, sessionID string) (*a2a.Task, error)
}

// GreetingAgent greets the user after asking a remote agent for the time.
// When the time agent cannot be used the greeting is sent without it.
type GreetingAgent struct {
	o         *options
	delegator Delegator
}

// NewGreetingAgent creates a GreetingAgent that delegates through delegator.
func NewGreetingAgent(delegator Delegator, opts ...Option) (*GreetingAgent, error) {
	if delegator == nil {
		return nil, ErrMissingRouter
	}
	o, err := newOptions("GreetingAgent", opts)
	if err != nil {
		return nil, err
	}
	if o.instructions == "" {
		o.instructions = greetingInstructions
	}
	return &GreetingAgent{o: o, delegator: delegator}, nil
}

// Execute implements server.Executor.
func (a *GreetingAgent) Execute(ctx context.Context, req server.ExecuteRequest, progress server.ProgressFunc) (*server.Result, error) {
	progress.Report(fmt.Sprintf("Asking %s for the current time...", a.o.timeAgent))
	timeText, err := resilience.WithFallback(ctx, func(ctx context.Context) (string, error) {
		task, err := a.delegator.Delegate(ctx, a.o.timeAgent, TimeQuestion, req.SessionID)
		if err != nil {
			return "", err
		}
		text := delegation.FinalText(task)
		if text == "" {
			return "", errors.Delegation(errors.KindProtocol, a.o.timeAgent, fmt.Errorf("empty reply from %s", a.o.timeAgent))
		}
		return text, nil
	}, func(ctx context.Context, primaryErr error) (string, error) {
		if !errors.Is(primaryErr, errors.CodeDelegation) && !errors.Is(primaryErr, errors.CodeUnknownAgent) {
			return "", primaryErr
		}
		a.o.logger.WarnContext(ctx, "agent.greeting.degraded",
			slog.String("task_id", req.TaskID),
			slog.String("time_agent", a.o.timeAgent),
			slog.String("error", primaryErr.Error()),
		)
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	if timeText == "" {
		return server.TextResult(degradedGreeting(a.o.timeAgent)), nil
	}
	return server.TextResult(a.compose(ctx, req, timeText)), nil
}

// compose asks the model for a greeting and falls back to a template.
func (a *GreetingAgent) compose(ctx context.Context, req server.ExecuteRequest, timeText string) string {
	if a.o.provider != nil {
		messages := []llm.Message{
			{Role: llm.RoleSystem, Content: a.o.instructions},
			{Role: llm.RoleUser, Content: fmt.Sprintf("%s\nThe user said: %s", timeText, req.Message.Text())},
		}
		resp, err := a.o.chat(ctx, messages, nil, req.TaskID)
		if err == nil && strings.TrimSpace(resp.Content) != "" {
			return strings.TrimSpace(resp.Content)
		}
	}
	return templateGreeting(timeText)
}

func templateGreeting(timeText string) string {
	stamp := strings.TrimSpace(strings.TrimPrefix(timeText, TimeReplyPrefix))
	t, err := time.ParseInLocation(tools.TimeLayout, stamp, time.Local)
	if err != nil {
		return "Hello! " + timeText
	}
	return fmt.Sprintf("%s! %s%s", salutation(t), TimeReplyPrefix, stamp)
}

func salutation(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "Good morning"
	case h < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

func degradedGreeting(timeAgent string) string {
	return fmt.Sprintf("Hello! I could not reach %s to check the time, but I hope you are having a great day.", timeAgent)
}
