package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/irqstat/internal/config"
	"github.com/xraph/irqstat/internal/logger"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Watch bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sample tables continuously and serve metrics",
		Long: `Start the collector. Every enabled table is sampled once per interval and
published to the enabled sinks. The HTTP server exposes /metrics, /healthz
and /debug endpoints.

Example:
  irqstat run --config /etc/irqstat.yaml
  irqstat run --host-prefix /host --watch -c irqstat.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runCollector(ctx, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "reload display names when the config file changes")

	return cmd
}

func runCollector(ctx context.Context, opts *RunOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	log := opts.newLogger(cfg)
	defer func() { _ = log.Sync() }()

	c, err := BuildCollector(ctx, cfg, opts.Build, opts.Instance, log)
	if err != nil {
		return err
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := c.Close(closeCtx); err != nil {
			log.Warn("shutdown incomplete", logger.Error(err))
		}
	}()

	log.Info("collector starting",
		logger.String("version", opts.Build.Version),
		logger.Int("tables", len(c.Engines)),
		logger.String("sink", c.Sink.Name()))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.Scheduler.Run(gctx)
	})

	if cfg.Server.Enabled {
		g.Go(func() error {
			return c.Server.ListenAndServe(gctx, cfg.Server.Listen, cfg.Server.ReadTimeout, cfg.Server.ShutdownTimeout)
		})
	}

	if opts.Watch && opts.ConfigPath != "" {
		w := config.NewWatcher(opts.ConfigPath, log, func(next *config.Config) {
			c.Scheduler.Reload(next.DisplayNames())
		})

		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("collector stopped", logger.Error(err))
		return err
	}

	log.Info("collector stopped")

	return nil
}
