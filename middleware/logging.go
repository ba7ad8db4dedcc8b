package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/ferry/job"
)

// Logging returns middleware that logs handler start and outcome at
// debug level.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, env *job.Envelope, next Handler) (job.Result, error) {
		logger.Debug("job started",
			slog.String("target", env.Target.String()),
			slog.Int("attempts", env.Attempts),
		)

		start := time.Now()
		res, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Debug("job failed",
				slog.String("target", env.Target.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("job finished",
				slog.String("target", env.Target.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("status", status(res, nil)),
			)
		}

		return res, err
	}
}
