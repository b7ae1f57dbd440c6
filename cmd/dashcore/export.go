package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"dashcore/pkg/reportapi"
)

func newExportCmd(c *cli) *cobra.Command {
	var (
		state  stateFlags
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export REPORT",
		Short: "Export a report's filtered rows as CSV or JSON",
		Long: `Export every row of a report that matches the selected filters.

Filters start from the configured defaults, then --state, then the
individual --filter, --fy, --period, --agg and --mode flags.`,
		Example: `  dashcore export sales-performance -f zone=NORTH,EAST --agg QTD
  dashcore export sales-performance --format json --out rows.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := reportapi.Format(strings.ToLower(format))
			if f != reportapi.FormatCSV && f != reportapi.FormatJSON {
				return fmt.Errorf("unsupported format %q (want csv or json)", format)
			}
			applied, err := state.applied(c.cfg)
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context(), c.cfg, c.logger, nil)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			body, err := a.facade.ExportData(cmd.Context(), reportapi.ExportRequest{
				ReportID:       args[0],
				AppliedFilters: applied,
				Format:         f,
			})
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				_, err = io.WriteString(cmd.OutOrStdout(), body)
				return err
			}
			if dir := filepath.Dir(out); dir != "." {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return fmt.Errorf("create output directory: %w", err)
				}
			}
			if err := os.WriteFile(out, []byte(body), 0o600); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s to %s\n", humanize.Bytes(uint64(len(body))), out)
			return nil
		},
	}
	state.register(cmd.Flags())
	cmd.Flags().StringVar(&format, "format", string(reportapi.FormatCSV), "csv or json")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}
