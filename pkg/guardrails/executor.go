package guardrails

import (
	"context"
	"fmt"

	"github.com/jllopis/agora/pkg/a2a"
	"github.com/jllopis/agora/pkg/a2a/server"
	"github.com/jllopis/agora/pkg/errors"
)

// Wrap screens every run of next. A blocked inbound message fails the run
// with CodeInvalidInput before next sees it; reply text, artifact text and
// progress notes go through the output filters.
func Wrap(next server.Executor, g *Guardrails) server.Executor {
	if g == nil || g.Empty() {
		return next
	}
	return &guardedExecutor{next: next, guard: g}
}

type guardedExecutor struct {
	next  server.Executor
	guard *Guardrails
}

func (e *guardedExecutor) Execute(ctx context.Context, req server.ExecuteRequest, progress server.ProgressFunc) (*server.Result, error) {
	if check := e.guard.CheckInput(ctx, req.Message.Text()); check.Blocked {
		return nil, errors.New(errors.CodeInvalidInput,
			fmt.Sprintf("message blocked by %s: %s", check.GuardrailID, check.Reason), nil).
			WithContext("guardrail", check.GuardrailID)
	}

	var filtered server.ProgressFunc
	if progress != nil {
		filtered = func(text string) {
			progress(e.guard.FilterOutput(ctx, text).Content)
		}
	}
	result, err := e.next.Execute(ctx, req, filtered)
	if err != nil || result == nil {
		return result, err
	}
	result.Message.Parts = e.filterParts(ctx, result.Message.Parts)
	for i := range result.Artifacts {
		result.Artifacts[i].Parts = e.filterParts(ctx, result.Artifacts[i].Parts)
	}
	return result, nil
}

func (e *guardedExecutor) filterParts(ctx context.Context, parts []a2a.Part) []a2a.Part {
	out := make([]a2a.Part, len(parts))
	for i, part := range parts {
		if part.Type == a2a.PartTypeText {
			part.Text = e.guard.FilterOutput(ctx, part.Text).Content
		}
		out[i] = part
	}
	return out
}
