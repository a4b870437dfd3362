// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	agoraerrors "github.com/jllopis/agora/pkg/errors"
)

func TestNewMetrics(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil Metrics")
	}
}

func TestRecordError(t *testing.T) {
	m, _ := NewMetrics()
	ctx := context.Background()

	m.RecordError(ctx, agoraerrors.Delegation(agoraerrors.KindTimeout, "clock", nil), "delegation")
	m.RecordError(ctx, errors.New("generic"), "task_manager")
	m.RecordError(ctx, nil, "task_manager")

	var nilMetrics *Metrics
	nilMetrics.RecordError(ctx, errors.New("x"), "task_manager")
}

func TestRecordActivity(t *testing.T) {
	m, _ := NewMetrics()
	ctx := context.Background()

	m.RecordTask(ctx, "completed")
	m.RecordDelegation(ctx, "TellTimeAgent", OutcomeSuccess, 25*time.Millisecond)
	m.RecordCacheLookup(ctx, true)
	m.RecordCacheLookup(ctx, false)
	m.RecordCircuitBreakerState(ctx, "TellTimeAgent", 2)

	var nilMetrics *Metrics
	nilMetrics.RecordTask(ctx, "failed")
	nilMetrics.RecordDelegation(ctx, "x", OutcomeFailure, time.Second)
	nilMetrics.RecordCacheLookup(ctx, true)
	nilMetrics.RecordCircuitBreakerState(ctx, "x", 0)
}
