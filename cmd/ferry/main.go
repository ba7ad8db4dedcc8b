// Command ferry runs queue workers and manages failed jobs.
//
// Usage:
//
//	ferry worker --config default --max-jobs 100 --verbose
//	ferry requeue --class=fail --force
//	ferry purge_failed fjob_01h455vb4pex5vsknk084sn02q
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/xraph/ferry/engine"
	"github.com/xraph/ferry/internal/cli"
	"github.com/xraph/ferry/job"
)

type greeting struct {
	Name string `json:"name"`
}

// registerDemoHandlers installs handlers useful for trying a deployment:
// "greet" logs and acks, "fail" always faults, "report" is unique.
func registerDemoHandlers(eng *engine.Engine) error {
	engine.RegisterDefinition(eng, job.NewDefinition("greet", func(_ context.Context, g greeting) error {
		slog.Info("hello", slog.String("name", g.Name))
		return nil
	}))

	eng.Register("fail", job.HandlerFunc(func(_ context.Context, env *job.Envelope) (job.Result, error) {
		return "", fmt.Errorf("fail: attempt %d", env.Attempts)
	}), job.WithMaxAttempts(3))

	eng.Register("report", job.HandlerFunc(func(_ context.Context, env *job.Envelope) (job.Result, error) {
		period, _ := env.Argument("period", "").(string)
		if period == "" {
			return job.Reject, nil
		}
		slog.Info("report generated", slog.String("period", period))
		return job.Ack, nil
	}), job.WithUnique())

	return nil
}

func main() {
	root := cli.NewRoot(cli.App{Setup: registerDemoHandlers})
	if err := root.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
