// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/jllopis/agora/pkg/health"
)

// NewLLMHealthChecker checks an LLM provider with checkFunc, at most every
// 30 seconds. A nil checkFunc reports healthy.
func NewLLMHealthChecker(name string, checkFunc func(ctx context.Context) error) *health.Cached {
	return health.NewCached(health.CheckerFunc(func(ctx context.Context) health.Result {
		result := health.Result{Component: "llm:" + name}
		if checkFunc == nil {
			result.Status = health.Healthy
			result.Message = "LLM provider available (no health check configured)"
			return result
		}
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := checkFunc(checkCtx); err != nil {
			result.Status = health.Unhealthy
			result.Message = err.Error()
			result.Error = err
			return result
		}
		result.Status = health.Healthy
		result.Message = "LLM provider responsive"
		return result
	}), 30*time.Second)
}

// NewMCPHealthChecker checks an MCP server by listing its tools.
func NewMCPHealthChecker(name string, listTools func(ctx context.Context) (int, error)) *health.Cached {
	return health.NewCached(health.CheckerFunc(func(ctx context.Context) health.Result {
		result := health.Result{Component: "mcp:" + name}
		if listTools == nil {
			result.Status = health.Healthy
			result.Message = "MCP client available (no health check configured)"
			return result
		}
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		count, err := listTools(checkCtx)
		if err != nil {
			result.Status = health.Unhealthy
			result.Message = "MCP tool discovery failed: " + err.Error()
			result.Error = err
			return result
		}
		result.Status = health.Healthy
		result.Message = fmt.Sprintf("MCP client operational (%d tools)", count)
		return result
	}), 30*time.Second)
}

// NewPeersHealthChecker reports how many configured remote agents resolve.
// Any unreachable peer is Degraded; the local agent keeps serving.
func NewPeersHealthChecker(resolve func(ctx context.Context) (ok, failed int)) *health.Cached {
	return health.NewCached(health.CheckerFunc(func(ctx context.Context) health.Result {
		ok, failed := resolve(ctx)
		result := health.Result{
			Component: "peers",
			Message:   fmt.Sprintf("%d of %d remote agents reachable", ok, ok+failed),
		}
		result.Status = health.Healthy
		if failed > 0 {
			result.Status = health.Degraded
		}
		return result
	}), 30*time.Second)
}
