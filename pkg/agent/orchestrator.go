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
	"github.com/jllopis/agora/pkg/tools"
)

// ProcessingMessage is the first progress note of every orchestrated run.
const ProcessingMessage = "Agent is processing your request..."

const orchestratorInstructions = "You coordinate a team of remote agents. " +
	"Call " + delegation.ListAgentsToolName + " to see who is available and " +
	delegation.DelegateToolName + " to forward the request to the best agent. " +
	"Answer the user with what the agents reply. " +
	"If you need more information from the user, start your reply with " + InputRequiredTag + "."

// Orchestrator routes requests to remote agents. With a model it runs a
// tool loop over list_agents, delegate_task and any extra tools; without one
// a Decider picks the agent.
type Orchestrator struct {
	o      *options
	router *delegation.Router
	loop   *toolLoop
}

// NewOrchestrator creates an orchestrator over router.
func NewOrchestrator(router *delegation.Router, opts ...Option) (*Orchestrator, error) {
	if router == nil {
		return nil, ErrMissingRouter
	}
	o, err := newOptions("Orchestrator", opts)
	if err != nil {
		return nil, err
	}
	if o.decider == nil {
		o.decider = delegation.SkillMatcher{}
	}
	if o.instructions == "" {
		o.instructions = orchestratorInstructions
	}
	registry, err := tools.NewRegistry(append(delegation.Tools(router), o.tools...)...)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{o: o, router: router, loop: &toolLoop{o: o, registry: registry}}, nil
}

// Execute implements server.Executor.
func (a *Orchestrator) Execute(ctx context.Context, req server.ExecuteRequest, progress server.ProgressFunc) (*server.Result, error) {
	progress.Report(ProcessingMessage)
	ctx = delegation.WithSessionID(ctx, req.SessionID)
	if a.o.provider != nil {
		return a.loop.run(ctx, req, progress)
	}
	return a.decide(ctx, req, progress)
}

func (a *Orchestrator) decide(ctx context.Context, req server.ExecuteRequest, progress server.ProgressFunc) (*server.Result, error) {
	query := strings.TrimSpace(req.Message.Text())
	if query == "" {
		return nil, errors.InvalidInput("message has no text")
	}
	candidates := a.router.ListCandidates(ctx)
	if len(candidates) == 0 {
		return nil, errors.Reasoning("no remote agents are available", nil)
	}
	decision, err := a.o.decider.Decide(ctx, query, candidates)
	if errors.Is(err, errors.CodeReasoning) {
		return &server.Result{
			Message:       a2a.NewTextMessage(a2a.RoleAgent, noMatchReply(candidates)),
			InputRequired: true,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	a.o.logger.InfoContext(ctx, "agent.decision",
		slog.String("task_id", req.TaskID),
		slog.String("agent", decision.Agent),
		slog.Int("score", decision.Score),
		slog.String("reason", decision.Reason),
	)

	progress.Report(fmt.Sprintf("Delegating to %s...", decision.Agent))
	task, err := a.router.Delegate(ctx, decision.Agent, query, req.SessionID)
	if err != nil {
		return nil, err
	}
	text := delegation.FinalText(task)
	if text == "" {
		return nil, errors.Reasoning(fmt.Sprintf("%s returned no reply", decision.Agent), nil)
	}
	return &server.Result{
		Message:       a2a.NewTextMessage(a2a.RoleAgent, text),
		InputRequired: task.Status.State == a2a.TaskStateInputRequired,
	}, nil
}

func noMatchReply(candidates []delegation.Candidate) string {
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	return fmt.Sprintf("I could not find an agent for that request. Available agents: %s. Which one should I ask?",
		strings.Join(names, ", "))
}
