// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

// Package governance restricts which local tools a reasoning step may offer
// to its model.
package governance

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/jllopis/agora/pkg/tools"
)

// Decision is the outcome of evaluating one tool name.
type Decision struct {
	Allowed bool
	Reason  string
}

// ToolFilter provides tool-level filtering based on allowlists and denylists.
type ToolFilter struct {
	allowlist map[string]bool
	denylist  map[string]bool
	logger    *slog.Logger
}

// ToolFilterOption configures a ToolFilter.
type ToolFilterOption func(*ToolFilter)

// NewToolFilter creates a new ToolFilter with the given options.
func NewToolFilter(opts ...ToolFilterOption) *ToolFilter {
	tf := &ToolFilter{
		allowlist: make(map[string]bool),
		denylist:  make(map[string]bool),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(tf)
	}
	return tf
}

// WithAllowlist sets the permitted tool names or glob patterns.
func WithAllowlist(names []string) ToolFilterOption {
	return func(tf *ToolFilter) {
		tf.AddToAllowlist(names...)
	}
}

// WithDenylist sets the forbidden tool names or glob patterns.
func WithDenylist(names []string) ToolFilterOption {
	return func(tf *ToolFilter) {
		tf.AddToDenylist(names...)
	}
}

// WithLogger sets the logger used to report removed tools.
func WithLogger(logger *slog.Logger) ToolFilterOption {
	return func(tf *ToolFilter) {
		if logger != nil {
			tf.logger = logger
		}
	}
}

// IsAllowed checks a tool name. The denylist wins; a non-empty allowlist
// must then match.
func (tf *ToolFilter) IsAllowed(toolName string) Decision {
	if matches(toolName, tf.denylist) {
		return Decision{Reason: "tool is in denylist"}
	}
	if len(tf.allowlist) > 0 && !matches(toolName, tf.allowlist) {
		return Decision{Reason: "tool is not in allowlist"}
	}
	return Decision{Allowed: true}
}

// Filter returns the tools that pass the filter, in their original order.
func (tf *ToolFilter) Filter(ctx context.Context, list []tools.Tool) []tools.Tool {
	if len(tf.allowlist) == 0 && len(tf.denylist) == 0 {
		return list
	}
	out := make([]tools.Tool, 0, len(list))
	for _, tool := range list {
		decision := tf.IsAllowed(tool.Name())
		if !decision.Allowed {
			tf.logger.InfoContext(ctx, "governance.tool.denied",
				slog.String("tool", tool.Name()),
				slog.String("reason", decision.Reason),
			)
			continue
		}
		out = append(out, tool)
	}
	return out
}

// AddToAllowlist adds names or patterns to the allowlist.
func (tf *ToolFilter) AddToAllowlist(names ...string) {
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			tf.allowlist[name] = true
		}
	}
}

// AddToDenylist adds names or patterns to the denylist.
func (tf *ToolFilter) AddToDenylist(names ...string) {
	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			tf.denylist[name] = true
		}
	}
}

// matches supports exact names and glob patterns such as "weather.*".
func matches(toolName string, list map[string]bool) bool {
	if list[toolName] {
		return true
	}
	for pattern := range list {
		if ok, err := path.Match(pattern, toolName); err == nil && ok {
			return true
		}
	}
	return false
}

// AllowlistFromSkills merges the allowed-tools of every skill, dropping
// duplicates.
func AllowlistFromSkills(allowedTools [][]string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, names := range allowedTools {
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name != "" && !seen[name] {
				seen[name] = true
				result = append(result, name)
			}
		}
	}
	return result
}
