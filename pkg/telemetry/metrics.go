// SPDX-License-Identifier: Apache-2.0
// Package telemetry provides tracing, metrics and logging setup for agora.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/agora/pkg/errors"
)

// Delegation outcomes recorded by Metrics.RecordDelegation.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeUnknown = "unknown_agent"
)

// Metrics tracks task lifecycle, delegation and discovery activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// errorCounter tracks total errors by code and component
	errorCounter metric.Int64Counter

	// taskCounter tracks task state transitions
	taskCounter metric.Int64Counter

	// delegationCounter tracks remote agent calls by outcome
	delegationCounter metric.Int64Counter

	delegationDuration metric.Float64Histogram

	// cacheCounter tracks agent card cache lookups
	cacheCounter metric.Int64Counter

	// breakerGauge tracks circuit breaker state per agent (0=open, 1=half-open, 2=closed)
	breakerGauge metric.Int64Gauge
}

// NewMetrics creates the agora instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("agora")

	errorCounter, err := meter.Int64Counter(
		"agora.errors.total",
		metric.WithDescription("Total errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	taskCounter, err := meter.Int64Counter(
		"agora.tasks.transitions",
		metric.WithDescription("Task state transitions by target state"),
	)
	if err != nil {
		return nil, err
	}

	delegationCounter, err := meter.Int64Counter(
		"agora.delegations.total",
		metric.WithDescription("Remote agent calls by agent and outcome"),
	)
	if err != nil {
		return nil, err
	}

	delegationDuration, err := meter.Float64Histogram(
		"agora.delegations.duration",
		metric.WithDescription("Remote agent call duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	cacheCounter, err := meter.Int64Counter(
		"agora.agentcard.cache.lookups",
		metric.WithDescription("Agent card cache lookups by result"),
	)
	if err != nil {
		return nil, err
	}

	breakerGauge, err := meter.Int64Gauge(
		"agora.circuitbreaker.state",
		metric.WithDescription("Circuit breaker state per agent (0=open, 1=half-open, 2=closed)"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		errorCounter:       errorCounter,
		taskCounter:        taskCounter,
		delegationCounter:  delegationCounter,
		delegationDuration: delegationDuration,
		cacheCounter:       cacheCounter,
		breakerGauge:       breakerGauge,
	}, nil
}

// RecordError increments the error counter for the code carried by err.
func (m *Metrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	e := errors.AsError(err)
	attrs := []attribute.KeyValue{
		attribute.String("error.code", string(e.Code)),
		attribute.String("component", component),
		attribute.String("recoverable", e.RecoverableString()),
	}
	if e.Kind != "" {
		attrs = append(attrs, attribute.String("error.kind", string(e.Kind)))
	}
	m.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTask counts a transition into state.
func (m *Metrics) RecordTask(ctx context.Context, state string) {
	if m == nil {
		return
	}
	m.taskCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrTaskState, state)))
}

// RecordDelegation records one remote call.
func (m *Metrics) RecordDelegation(ctx context.Context, agent, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrAgentName, agent),
		attribute.String("outcome", outcome),
	)
	m.delegationCounter.Add(ctx, 1, attrs)
	m.delegationDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordCacheLookup counts an agent card cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordCircuitBreakerState records the breaker state of a remote agent.
func (m *Metrics) RecordCircuitBreakerState(ctx context.Context, agent string, state int64) {
	if m == nil {
		return
	}
	m.breakerGauge.Record(ctx, state, metric.WithAttributes(attribute.String(AttrAgentName, agent)))
}
