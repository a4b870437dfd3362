// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"reflect"
	"testing"

	"github.com/jllopis/agora/pkg/llm"
	"github.com/jllopis/agora/pkg/tools"
)

type namedTool string

func (n namedTool) Name() string                                         { return string(n) }
func (n namedTool) Definition() llm.Tool                                 { return tools.Function(string(n), "", nil) }
func (n namedTool) Call(context.Context, map[string]any) (string, error) { return "", nil }

func names(list []tools.Tool) []string {
	out := make([]string, 0, len(list))
	for _, tool := range list {
		out = append(out, tool.Name())
	}
	return out
}

func TestToolFilter_EmptyFilter(t *testing.T) {
	filter := NewToolFilter()
	if !filter.IsAllowed("any-tool").Allowed {
		t.Error("empty filter should allow all tools")
	}
}

func TestToolFilter_Allowlist(t *testing.T) {
	filter := NewToolFilter(
		WithAllowlist([]string{"current_time", "weather_*"}),
	)

	tests := []struct {
		name    string
		tool    string
		allowed bool
	}{
		{"exact", "current_time", true},
		{"glob", "weather_forecast", true},
		{"not in list", "shell_exec", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := filter.IsAllowed(tc.tool)
			if decision.Allowed != tc.allowed {
				t.Errorf("tool %q: expected allowed=%v, got %+v", tc.tool, tc.allowed, decision)
			}
		})
	}
}

func TestToolFilter_DenylistWins(t *testing.T) {
	filter := NewToolFilter(
		WithAllowlist([]string{"weather_*"}),
		WithDenylist([]string{"weather_admin"}),
	)
	decision := filter.IsAllowed("weather_admin")
	if decision.Allowed || decision.Reason != "tool is in denylist" {
		t.Fatalf("expected denylist decision, got %+v", decision)
	}
}

func TestToolFilter_FilterKeepsOrder(t *testing.T) {
	filter := NewToolFilter(WithDenylist([]string{"shell_*", " "}))
	list := []tools.Tool{namedTool("b"), namedTool("shell_exec"), namedTool("a")}

	got := names(filter.Filter(context.Background(), list))
	if !reflect.DeepEqual(got, []string{"b", "a"}) {
		t.Fatalf("unexpected tools %v", got)
	}
}

func TestAllowlistFromSkills(t *testing.T) {
	got := AllowlistFromSkills([][]string{{"current_time", "weather_*"}, {" current_time ", ""}})
	if !reflect.DeepEqual(got, []string{"current_time", "weather_*"}) {
		t.Fatalf("unexpected allowlist %v", got)
	}
}
