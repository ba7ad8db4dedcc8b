package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/xraph/ferry/engine"
	"github.com/xraph/ferry/queue"
	"github.com/xraph/ferry/store"
)

// App holds what the binary contributes to the command tree.
type App struct {
	// Setup registers handlers on a freshly built engine.
	Setup func(eng *engine.Engine) error

	// QueueOptions are applied to the queue registry, after the named
	// loggers "stdout" and "stderr".
	QueueOptions []queue.Option

	// OpenStore opens the failed job store. store.Open is used when nil.
	OpenStore func(ctx context.Context, cfg ArchiveConfig, logger *slog.Logger) (store.Store, error)
}

// NewRoot constructs the root Cobra command. It registers the worker,
// requeue and purge_failed commands.
func NewRoot(app App) *cobra.Command {
	root := &cobra.Command{
		Use:           "ferry",
		Short:         "Retry-aware job queue worker",
		Long:          "ferry consumes jobs from a message broker, retries faulting jobs and archives jobs that exhaust their attempts.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("file", os.Getenv("FERRY_CONFIG_FILE"), "Path to the JSON config file")
	root.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error")
	root.PersistentFlags().String("log-format", "", "Log format: text|json (default text)")

	root.AddCommand(newWorkerCommand(&app))
	root.AddCommand(newRequeueCommand(&app))
	root.AddCommand(newPurgeCommand(&app))
	return root
}

// loadConfig resolves the file, the environment and the log flags, in
// that order of increasing precedence.
func loadConfig(cmd *cobra.Command) (Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("file")
	cfg, err := Load(path)
	if err != nil {
		return Config{}, nil, err
	}
	FromEnv(&cfg)
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}

	logger, err := NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, logger, nil
}

// buildEngine opens the archive, registers every queue config and runs
// the app setup.
func (app *App) buildEngine(cmd *cobra.Command, cfg Config, logger *slog.Logger, consumerName string) (*engine.Engine, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	open := app.OpenStore
	if open == nil {
		open = func(ctx context.Context, a ArchiveConfig, l *slog.Logger) (store.Store, error) {
			return store.Open(ctx, a.Driver, a.DSN, l)
		}
	}
	st, err := open(ctx, cfg.Archive, logger)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	stdout, err := NewLogger(cmd.OutOrStdout(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	qopts := []queue.Option{
		queue.WithDefaultLogger(logger),
		queue.WithLogger("stdout", stdout),
		queue.WithLogger("stderr", logger),
		queue.WithConsumerName(consumerName),
	}
	qopts = append(qopts, app.QueueOptions...)

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithQueues(queue.NewRegistry(qopts...)),
		engine.WithArchive(st),
	}
	eng := engine.New(opts...)

	for _, qc := range cfg.QueueConfigs() {
		if err := eng.SetConfig(qc); err != nil {
			_ = eng.Close()
			return nil, fmt.Errorf("queue config %q: %w", qc.Name, err)
		}
	}
	if app.Setup != nil {
		if err := app.Setup(eng); err != nil {
			_ = eng.Close()
			return nil, err
		}
	}
	return eng, nil
}
