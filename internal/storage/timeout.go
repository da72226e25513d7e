// Package storage holds the connection and file helpers shared by the
// account registries and credential stores.
package storage

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single backend call when the caller set no deadline.
const DefaultTimeout = 5 * time.Second

// WithTimeout adds timeout to ctx unless it already carries a deadline.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
