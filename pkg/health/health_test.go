// SPDX-License-Identifier: Apache-2.0
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStaticChecker(t *testing.T) {
	tests := []struct {
		name   string
		status Status
	}{
		{"healthy", Healthy},
		{"degraded", Degraded},
		{"unhealthy", Unhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Static(tt.status, "test message").Check(context.Background())
			if result.Status != tt.status {
				t.Errorf("expected %v, got %v", tt.status, result.Status)
			}
			if result.Message != "test message" {
				t.Errorf("expected message 'test message', got %q", result.Message)
			}
			if result.LastCheck.IsZero() {
				t.Errorf("expected LastCheck to be set")
			}
		})
	}
}

func TestRegistryOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"all healthy", []Status{Healthy, Healthy}, Healthy},
		{"one degraded", []Status{Healthy, Degraded}, Degraded},
		{"one unhealthy", []Status{Healthy, Degraded, Unhealthy}, Unhealthy},
		{"empty", nil, Healthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry(time.Second)
			for i, status := range tt.statuses {
				registry.Register(string(rune('a'+i)), Static(status, ""))
			}
			results, overall := registry.CheckAll(context.Background())
			if len(results) != len(tt.statuses) {
				t.Fatalf("expected %d results, got %d", len(tt.statuses), len(results))
			}
			if overall != tt.want {
				t.Fatalf("expected %v overall, got %v", tt.want, overall)
			}
		})
	}
}

func TestRegistryResultsSortedAndNamed(t *testing.T) {
	registry := NewRegistry(time.Second)
	registry.Register("zeta", Static(Healthy, ""))
	registry.Register("alpha", Static(Healthy, ""))

	results, _ := registry.CheckAll(context.Background())
	if results[0].Component != "alpha" || results[1].Component != "zeta" {
		t.Fatalf("unexpected order %+v", results)
	}
}

func TestCheckSpecificNotFound(t *testing.T) {
	registry := NewRegistry(time.Second)
	if _, err := registry.Check(context.Background(), "nonexistent"); err == nil {
		t.Errorf("expected error for nonexistent checker")
	}
}

func TestCheckAllIsBounded(t *testing.T) {
	registry := NewRegistry(50 * time.Millisecond)
	registry.Register("slow", CheckerFunc(func(ctx context.Context) Result {
		select {
		case <-ctx.Done():
			return Result{Status: Unhealthy, Message: "context timeout"}
		case <-time.After(time.Second):
			return Result{Status: Healthy}
		}
	}))

	results, overall := registry.CheckAll(context.Background())
	if overall != Unhealthy || results[0].Message != "context timeout" {
		t.Fatalf("expected timeout to mark the component unhealthy, got %+v", results)
	}
}

func TestCached(t *testing.T) {
	calls := 0
	now := time.Unix(0, 0)
	cached := NewCached(CheckerFunc(func(context.Context) Result {
		calls++
		return Result{Status: Healthy}
	}), time.Minute)
	cached.now = func() time.Time { return now }

	cached.Check(context.Background())
	cached.Check(context.Background())
	if calls != 1 {
		t.Fatalf("expected cached result, got %d calls", calls)
	}
	now = now.Add(2 * time.Minute)
	cached.Check(context.Background())
	if calls != 2 {
		t.Fatalf("expected a fresh check after the interval, got %d calls", calls)
	}
}

func TestHandler(t *testing.T) {
	registry := NewRegistry(time.Second)
	registry.Register("store", Static(Healthy, "ok"))
	registry.Register("llm", Static(Unhealthy, "down"))

	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != Unhealthy || len(body.Components) != 2 {
		t.Fatalf("unexpected report %+v", body)
	}
}
