// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package guardrails screens the text entering and leaving the local agent.
//
// Guardrails run at two points of a task run:
//   - Input: before the inbound message reaches the reasoning step (prompt
//     injection, PII)
//   - Output: before the reply, artifacts and progress notes are published
//     (PII redaction)
//
// Unlike the tool policy in package governance, which decides what the model
// may call, guardrails inspect the content of messages.
//
//	guard := guardrails.New(
//	    guardrails.WithPromptInjectionDetector(),
//	    guardrails.WithPIIFilter(guardrails.PIIFilterMask),
//	)
//	executor = guardrails.Wrap(executor, guard)
package guardrails

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CheckResult represents the outcome of an input check.
type CheckResult struct {
	Blocked bool
	// Reason explains why content was blocked.
	Reason string
	// GuardrailID identifies which guardrail triggered the block.
	GuardrailID string
	// Confidence is the detection confidence between 0 and 1.
	Confidence float64
}

// FilterResult represents the outcome of output filtering.
type FilterResult struct {
	Content    string
	Modified   bool
	Redactions []Redaction
}

// Redaction describes a single content modification. The original text is
// never kept.
type Redaction struct {
	Type        string
	Replacement string
	Position    int
}

// InputChecker validates content before it reaches the reasoning step.
type InputChecker interface {
	CheckInput(ctx context.Context, input string) CheckResult
	ID() string
}

// OutputFilter rewrites content before it leaves the agent.
type OutputFilter interface {
	FilterOutput(ctx context.Context, output string) FilterResult
	ID() string
}

// Guardrails runs input checkers and output filters in registration order.
type Guardrails struct {
	inputCheckers []InputChecker
	outputFilters []OutputFilter
	logger        *slog.Logger
}

// Option configures the Guardrails instance.
type Option func(*Guardrails)

// New creates a Guardrails instance with the given options.
func New(opts ...Option) *Guardrails {
	g := &Guardrails{logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithInputChecker adds an input checker.
func WithInputChecker(checker InputChecker) Option {
	return func(g *Guardrails) {
		g.inputCheckers = append(g.inputCheckers, checker)
	}
}

// WithOutputFilter adds an output filter.
func WithOutputFilter(filter OutputFilter) Option {
	return func(g *Guardrails) {
		g.outputFilters = append(g.outputFilters, filter)
	}
}

// WithLogger sets the logger used to report blocks and redactions.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guardrails) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Empty reports whether no checker or filter is configured.
func (g *Guardrails) Empty() bool {
	return len(g.inputCheckers) == 0 && len(g.outputFilters) == 0
}

// CheckInput returns the first blocking result. A canceled context blocks.
func (g *Guardrails) CheckInput(ctx context.Context, input string) CheckResult {
	for _, checker := range g.inputCheckers {
		if ctx.Err() != nil {
			return CheckResult{Blocked: true, Reason: "guardrail check cancelled", GuardrailID: "system"}
		}
		result := checker.CheckInput(ctx, input)
		if result.Blocked {
			result.GuardrailID = checker.ID()
			initMetrics()
			blockedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("guardrail", result.GuardrailID)))
			g.logger.WarnContext(ctx, "guardrails.input.blocked",
				slog.String("guardrail", result.GuardrailID),
				slog.String("reason", result.Reason),
				slog.Float64("confidence", result.Confidence),
			)
			return result
		}
	}
	return CheckResult{}
}

// FilterOutput runs every output filter; each one sees the output of the
// previous.
func (g *Guardrails) FilterOutput(ctx context.Context, output string) FilterResult {
	result := FilterResult{Content: output}
	for _, filter := range g.outputFilters {
		if ctx.Err() != nil {
			break
		}
		filtered := filter.FilterOutput(ctx, result.Content)
		if !filtered.Modified {
			continue
		}
		result.Content = filtered.Content
		result.Modified = true
		result.Redactions = append(result.Redactions, filtered.Redactions...)
		initMetrics()
		redactionCounter.Add(ctx, int64(len(filtered.Redactions)), metric.WithAttributes(attribute.String("guardrail", filter.ID())))
	}
	if result.Modified {
		g.logger.InfoContext(ctx, "guardrails.output.redacted", slog.Int("redactions", len(result.Redactions)))
	}
	return result
}

var (
	metricsOnce      sync.Once
	blockedCounter   metric.Int64Counter
	redactionCounter metric.Int64Counter
)

func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("agora/guardrails")
		blockedCounter, _ = meter.Int64Counter("agora.guardrails.blocked.count")
		redactionCounter, _ = meter.Int64Counter("agora.guardrails.redaction.count")
	})
}
