package delegation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jllopis/agora/pkg/errors"
	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/tools"
)

// Tool names exposed to the model.
const (
	ListAgentsToolName = "list_agents"
	DelegateToolName   = "delegate_task"
)

type sessionKey struct{}

// WithSessionID attaches the session that delegated tasks continue.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionIDFrom returns the session attached with WithSessionID.
func SessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

type listAgentsArgs struct{}

type delegateArgs struct {
	AgentName string `json:"agent_name" jsonschema:"required,description=Name of the remote agent as returned by list_agents"`
	Message   string `json:"message" jsonschema:"required,description=Request to send to the remote agent"`
}

type agentSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Skills      []string `json:"skills,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// ListAgentsTool lists the remote agents available for delegation.
type ListAgentsTool struct {
	router *Router
}

// NewListAgentsTool creates the list_agents tool.
func NewListAgentsTool(router *Router) *ListAgentsTool {
	return &ListAgentsTool{router: router}
}

func (t *ListAgentsTool) Name() string { return ListAgentsToolName }

func (t *ListAgentsTool) Definition() llm.Tool {
	return tools.Function(ListAgentsToolName,
		"Lists the remote agents you can delegate tasks to, with their skills.",
		tools.Schema[listAgentsArgs]())
}

func (t *ListAgentsTool) Call(ctx context.Context, _ map[string]any) (string, error) {
	candidates := t.router.ListCandidates(ctx)
	summaries := make([]agentSummary, 0, len(candidates))
	for _, c := range candidates {
		s := agentSummary{Name: c.Name, Description: c.Description}
		for _, skill := range c.Skills {
			s.Skills = append(s.Skills, skill.Name)
			s.Tags = append(s.Tags, skill.Tags...)
		}
		summaries = append(summaries, s)
	}
	data, err := json.Marshal(summaries)
	if err != nil {
		return "", errors.New(errors.CodeToolFailure, "encode agent list", err)
	}
	return string(data), nil
}

// DelegateTool sends a message to a remote agent and returns its reply.
// Delegation failures are reported to the model as text so it can recover.
type DelegateTool struct {
	router *Router
}

// NewDelegateTool creates the delegate_task tool.
func NewDelegateTool(router *Router) *DelegateTool {
	return &DelegateTool{router: router}
}

func (t *DelegateTool) Name() string { return DelegateToolName }

func (t *DelegateTool) Definition() llm.Tool {
	return tools.Function(DelegateToolName,
		"Sends a request to a remote agent and returns its answer.",
		tools.Schema[delegateArgs]())
}

func (t *DelegateTool) Call(ctx context.Context, args map[string]any) (string, error) {
	in, err := tools.Decode[delegateArgs](args)
	if err != nil {
		return "", errors.New(errors.CodeToolFailure, "invalid delegate_task arguments", err)
	}
	if strings.TrimSpace(in.AgentName) == "" || strings.TrimSpace(in.Message) == "" {
		return "", errors.New(errors.CodeToolFailure, "delegate_task needs agent_name and message", nil)
	}
	task, err := t.router.Delegate(ctx, in.AgentName, in.Message, SessionIDFrom(ctx))
	if err != nil {
		if errors.Is(err, errors.CodeDelegation) || errors.Is(err, errors.CodeUnknownAgent) {
			return FailureText(in.AgentName, err), nil
		}
		return "", err
	}
	text := FinalText(task)
	if text == "" {
		return fmt.Sprintf("%s finished with state %s and no reply.", in.AgentName, task.Status.State), nil
	}
	return text, nil
}

// FailureText renders a delegation failure for a model or a user.
func FailureText(agent string, err error) string {
	if errors.Is(err, errors.CodeUnknownAgent) {
		return fmt.Sprintf("Agent %q is not registered. Call %s to see the available agents.", agent, ListAgentsToolName)
	}
	switch errors.KindOf(err) {
	case errors.KindTimeout:
		return fmt.Sprintf("Agent %q did not answer in time.", agent)
	case errors.KindRefused:
		return fmt.Sprintf("Agent %q could not be reached.", agent)
	case errors.KindCanceled:
		return fmt.Sprintf("The call to agent %q was canceled.", agent)
	}
	return fmt.Sprintf("Agent %q returned an error: %v", agent, err)
}

// Tools returns list_agents and delegate_task bound to router.
func Tools(router *Router) []tools.Tool {
	return []tools.Tool{NewListAgentsTool(router), NewDelegateTool(router)}
}
