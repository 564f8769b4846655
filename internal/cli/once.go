package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xraph/irqstat/internal/config"
	"github.com/xraph/irqstat/internal/engine"
	"github.com/xraph/irqstat/internal/sink/memory"
	"github.com/xraph/irqstat/internal/table"
)

// OnceOptions holds flags for the once command.
type OnceOptions struct {
	*RootOptions
	Table string
	File  string
}

// NewOnceCommand creates the once command.
func NewOnceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OnceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "once",
		Short: "Sample every table once and print the series",
		Long: `Run a single collection cycle per enabled table into an in-memory sink
and print the resulting series.

Example:
  irqstat once
  irqstat once --table softirqs --format json
  cat softirqs.txt | irqstat once --file -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Table, "table", "", "only sample the named table")
	cmd.Flags().StringVar(&opts.File, "file", "", "read the table from this file instead of its configured path ('-' for stdin)")

	return cmd
}

func runOnce(cmd *cobra.Command, opts *OnceOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	if opts.LogLevel == "" {
		cfg.Logging.Level = "warn"
	}

	log := opts.newLogger(cfg)
	defer func() { _ = log.Sync() }()

	tables, err := selectTables(cfg, opts.Table, opts.File)
	if err != nil {
		return err
	}

	mem := memory.New()
	reports := make([]engine.CycleReport, 0, len(tables))

	for _, t := range tables {
		reader, err := opts.reader(cmd, cfg, t)
		if err != nil {
			return err
		}

		e := engine.New(t.Engine(cfg.Limits), reader, mem, log)

		report, err := e.RunCycle(cmd.Context())
		if err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}

		reports = append(reports, report)
	}

	if opts.Format == "json" {
		data, err := mem.Export(memory.JSONConfig{Pretty: true})
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))

		return err
	}

	printSeries(newPrinter(cmd.OutOrStdout(), opts.NoColor), mem, reports)

	return nil
}

func selectTables(cfg *config.Config, name, file string) ([]config.TableConfig, error) {
	tables := cfg.EnabledTables()

	if name != "" {
		tables = nil

		for _, t := range cfg.Tables {
			if t.Name == name {
				tables = append(tables, t)
			}
		}

		if len(tables) == 0 {
			return nil, fmt.Errorf("unknown table %q", name)
		}
	}

	if file != "" && len(tables) > 1 {
		tables = tables[:1]
	}

	return tables, nil
}

func (o *OnceOptions) reader(cmd *cobra.Command, cfg *config.Config, t config.TableConfig) (table.Reader, error) {
	switch o.File {
	case "":
		return table.NewFileReader(cfg.HostPrefix, t.Path, t.ColumnPrefix), nil
	case "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}

		return table.NewStaticReader("stdin", t.ColumnPrefix, string(data)), nil
	default:
		if _, err := os.Stat(o.File); err != nil {
			return nil, err
		}

		return table.NewFileReader("", o.File, t.ColumnPrefix), nil
	}
}

func printSeries(p *printer, mem *memory.Sink, reports []engine.CycleReport) {
	rows := [][]string{}

	for _, g := range mem.Snapshot() {
		for _, s := range g.Series {
			rows = append(rows, []string{g.Key, s.ID, s.Name, strconv.FormatUint(s.Value, 10)})
		}
	}

	p.table([]string{"GROUP", "ID", "NAME", "VALUE"}, rows, []*color.Color{p.dim, p.key, nil, p.value})

	for _, r := range reports {
		fmt.Fprintln(p.out)
		p.warn.Fprintf(p.out, "%s: ", r.Table)
		fmt.Fprintf(p.out, "%d rows, %d columns, %d used, %d active column groups, %s\n",
			r.Rows, r.Columns, r.Used, r.ActiveColumns, r.Duration)
	}
}
