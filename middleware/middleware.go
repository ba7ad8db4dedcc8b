// Package middleware provides composable middleware around handler
// invocation. Middleware wraps handler calls synchronously and can observe
// or modify execution (recover from panics, log, add tracing, etc.).
package middleware

import (
	"context"

	"github.com/xraph/ferry/job"
)

// Handler is the terminal function that runs the resolved job handler.
type Handler func(ctx context.Context) (job.Result, error)

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the envelope being processed, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, env *job.Envelope, next Handler) (job.Result, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(recover, tracing, logging) executes as:
//
//	recover → tracing → logging → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, env *job.Envelope, next Handler) (job.Result, error) {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (job.Result, error) {
				return mw(ctx, env, prev)
			}
		}
		return h(ctx)
	}
}

// status labels an outcome for logs and metrics.
func status(res job.Result, err error) string {
	switch {
	case err != nil:
		return "error"
	case res == "" || res == job.Ack:
		return "ok"
	default:
		return string(res)
	}
}
