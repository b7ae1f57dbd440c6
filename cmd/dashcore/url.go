package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"dashcore/internal/filterstate"
)

func newURLCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "url",
		Short: "Encode or decode share-URL filter state",
	}

	var state stateFlags
	var report string
	encode := &cobra.Command{
		Use:   "encode",
		Short: "Print the share-URL query for a filter selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applied, err := state.applied(c.cfg)
			if err != nil {
				return err
			}
			q := filterstate.Encode(applied).Encode()
			if report != "" {
				q = "/reports/" + url.PathEscape(report) + "?" + q
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), q)
			return err
		},
	}
	state.register(encode.Flags())
	encode.Flags().StringVar(&report, "report", "", "prefix the query with the report page path")

	decode := &cobra.Command{
		Use:   "decode QUERY",
		Short: "Print the applied filters a share URL selects",
		Long: `Print the applied filters a share URL selects. Unknown fiscal years,
periods and toggle values fall back to the configured defaults.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := args[0]
			if _, after, ok := strings.Cut(raw, "?"); ok {
				raw = after
			}
			q, err := url.ParseQuery(raw)
			if err != nil {
				return fmt.Errorf("parse query: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(filterstate.Decode(q, c.cfg.StateDefaults()))
		},
	}

	cmd.AddCommand(encode, decode)
	return cmd
}
