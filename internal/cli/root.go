// Package cli implements the irqstat command line.
package cli

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xraph/irqstat/internal/config"
	"github.com/xraph/irqstat/internal/logger"
)

// BuildInfo is set from ldflags in main.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	HostPrefix string
	LogLevel   string
	Instance   string
	NoColor    bool
	Format     string // "text" | "json"

	Build BuildInfo
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand(build BuildInfo) *cobra.Command {
	opts := &RootOptions{Build: build}

	cmd := &cobra.Command{
		Use:   "irqstat",
		Short: "Sample kernel softirq and interrupt counters",
		Long: `irqstat samples per-CPU counter tables such as /proc/softirqs and
publishes per-row totals and per-CPU values to Prometheus, InfluxDB or Redis.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}

			if opts.Instance == "" {
				opts.Instance = uuid.NewString()
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.HostPrefix, "host-prefix", "", "prefix for table paths, e.g. /host when /proc is mounted there")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Instance, "instance", "", "instance id attached to samples (default: random UUID)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewOnceCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// loadConfig loads the config file and applies flag overrides.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}

	if o.HostPrefix != "" {
		cfg.HostPrefix = o.HostPrefix
	}

	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}

	return cfg, nil
}

func (o *RootOptions) newLogger(cfg *config.Config) logger.Logger {
	return logger.NewLogger(cfg.Logging).With(logger.String("instance", o.Instance))
}
