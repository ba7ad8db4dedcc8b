package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/engine"
	"github.com/xraph/ferry/ext"
	"github.com/xraph/ferry/worker"
)

func newWorkerCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Runs a queue worker that consumes from the named queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd, app)
		},
	}
	f := cmd.Flags()
	f.StringP("config", "c", engine.DefaultConfig, "Name of a queue config to use")
	f.StringP("queue", "Q", "", "Name of queue to bind to (default: the config's queue)")
	f.StringP("processor", "p", "", "Name this worker uses on the broker (default: generated)")
	f.StringP("logger", "l", "stdout", "Name of a configured logger")
	f.IntP("max-jobs", "i", 0, "Number of terminal jobs to process before exiting")
	f.StringP("max-runtime", "r", "", "Seconds (or a duration such as 5m) to run before exiting")
	f.IntP("max-attempts", "a", 0, "Attempt limit for handlers that declare none (0: unlimited)")
	f.BoolP("verbose", "v", false, "Log every job lifecycle event")
	return cmd
}

func runWorker(cmd *cobra.Command, app *App) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	configName, _ := f.GetString("config")
	queueName, _ := f.GetString("queue")
	processor, _ := f.GetString("processor")
	loggerName, _ := f.GetString("logger")
	maxAttempts, _ := f.GetInt("max-attempts")
	verbose, _ := f.GetBool("verbose")

	var limitOpts []worker.LimitsOption
	if f.Changed("max-jobs") {
		n, _ := f.GetInt("max-jobs")
		limitOpts = append(limitOpts, worker.WithMaxJobs(n))
	}
	if f.Changed("max-runtime") {
		raw, _ := f.GetString("max-runtime")
		d, err := ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("--max-runtime: %w", err)
		}
		limitOpts = append(limitOpts, worker.WithMaxRuntime(d))
	}

	eng, err := app.buildEngine(cmd, cfg, logger, processor)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	if _, err := eng.Queues().Config(configName); err != nil {
		if errors.Is(err, ferry.ErrConfigNotFound) {
			return fmt.Errorf("configuration key %q was not found", configName)
		}
		return err
	}

	consumerLogger := discardLogger()
	if verbose {
		if !eng.Queues().HasLogger(loggerName) {
			return fmt.Errorf("logger %q is not configured", loggerName)
		}
		consumerLogger = eng.Queues().Logger(loggerName)
		eng.Extensions().Register(ext.NewLogging(consumerLogger))
	}

	consumer, err := eng.NewConsumer(configName,
		engine.ConsumeQueue(queueName),
		engine.WithMaxAttempts(maxAttempts),
		engine.WithLimits(worker.NewLimits(limitOpts...)),
		engine.WithConsumerLogger(consumerLogger),
	)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return consumer.Run(ctx)
}
