// SPDX-License-Identifier: Apache-2.0
package resilience

import "context"

// FallbackFunc produces a substitute result after primary failed.
type FallbackFunc[T any] func(ctx context.Context, primaryErr error) (T, error)

// WithFallback runs primary and, on error, hands the error to fallback.
// A nil fallback returns the primary error.
func WithFallback[T any](ctx context.Context, primary func(context.Context) (T, error), fallback FallbackFunc[T]) (T, error) {
	value, err := primary(ctx)
	if err == nil || fallback == nil {
		return value, err
	}
	return fallback(ctx, err)
}

// Static returns a fallback that always yields value.
func Static[T any](value T) FallbackFunc[T] {
	return func(context.Context, error) (T, error) {
		return value, nil
	}
}
