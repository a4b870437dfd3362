// SPDX-License-Identifier: Apache-2.0
// Package health aggregates component health checks for the /healthz
// endpoint.
package health

import (
	"context"
	"time"
)

// Status represents the health state of a component.
type Status string

const (
	// Healthy indicates the component is fully operational.
	Healthy Status = "HEALTHY"

	// Degraded indicates the component works with reduced capacity.
	Degraded Status = "DEGRADED"

	// Unhealthy indicates the component is not operational.
	Unhealthy Status = "UNHEALTHY"
)

// Result is the outcome of one health check.
type Result struct {
	Status    Status    `json:"status"`
	Component string    `json:"component"`
	Message   string    `json:"message,omitempty"`
	LastCheck time.Time `json:"lastCheck"`
	Error     error     `json:"-"`
}

// Checker checks the health of a component. The context bounds the check.
type Checker interface {
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a function to Checker. LastCheck is filled in when the
// function leaves it zero.
type CheckerFunc func(ctx context.Context) Result

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context) Result {
	result := f(ctx)
	if result.LastCheck.IsZero() {
		result.LastCheck = time.Now()
	}
	return result
}

// Static returns a checker that always reports status.
func Static(status Status, message string) Checker {
	return CheckerFunc(func(context.Context) Result {
		return Result{Status: status, Message: message}
	})
}
