// SPDX-License-Identifier: Apache-2.0
package health

import (
	"context"
	"sync"
	"time"
)

// Cached reuses the last result of a checker for minInterval.
type Cached struct {
	checker     Checker
	minInterval time.Duration
	now         func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastResult Result
}

// NewCached wraps checker.
func NewCached(checker Checker, minInterval time.Duration) *Cached {
	return &Cached{checker: checker, minInterval: minInterval, now: time.Now}
}

// Check returns the cached result or runs the wrapped checker.
func (c *Cached) Check(ctx context.Context) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.lastCheck.IsZero() && c.now().Sub(c.lastCheck) < c.minInterval {
		return c.lastResult
	}
	result := c.checker.Check(ctx)
	if result.LastCheck.IsZero() {
		result.LastCheck = c.now()
	}
	c.lastResult = result
	c.lastCheck = c.now()
	return result
}
