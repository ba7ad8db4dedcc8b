package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/job"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors wrapping ferry.ErrHandlerFault and logged
// with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, env *job.Envelope, next Handler) (res job.Result, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("job handler panicked",
					slog.String("target", env.Target.String()),
					slog.Int("attempts", env.Attempts),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				res = ""
				retErr = fmt.Errorf("%w: panic in %s: %v", ferry.ErrHandlerFault, env.Target, r)
			}
		}()
		return next(ctx)
	}
}
