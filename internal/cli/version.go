package cli

import (
	"fmt"
	"runtime"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if opts.Format == "json" {
				data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(map[string]string{
					"version":    opts.Build.Version,
					"commit":     opts.Build.Commit,
					"build_date": opts.Build.BuildDate,
					"go":         runtime.Version(),
				}, "", "  ")
				if err != nil {
					return err
				}

				_, err = fmt.Fprintln(out, string(data))

				return err
			}

			p := newPrinter(out, opts.NoColor)
			p.key.Fprint(out, "irqstat ")
			fmt.Fprintln(out, opts.Build.Version)
			fmt.Fprintf(out, "  commit:  %s\n", opts.Build.Commit)
			fmt.Fprintf(out, "  built:   %s\n", opts.Build.BuildDate)
			fmt.Fprintf(out, "  go:      %s\n", runtime.Version())

			return nil
		},
	}
}
