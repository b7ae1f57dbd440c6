package main

import (
	"cmp"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"dashcore/internal/demo"
)

func newSeedCmd(c *cli) *cobra.Command {
	var (
		force    bool
		entities int
		seed     uint64
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate the demo dataset into the configured demo store",
		Long: `Generate the deterministic demo dataset (demo.seed, demo.entities) into
demo.store. An existing dataset is kept unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if cmd.Flags().Changed("entities") {
				c.cfg.Demo.Entities = entities
			}
			if cmd.Flags().Changed("seed") {
				c.cfg.Demo.Seed = seed
			}
			store, closeStore, err := demo.OpenStore(ctx, c.cfg.Demo)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			written, err := demo.Seed(ctx, store, c.cfg.Demo, c.cfg.CategoryList(), time.Now(), force)
			if err != nil {
				return err
			}
			rows, err := store.Rows(ctx)
			if err != nil {
				return err
			}
			verb := "kept"
			if written {
				verb = "seeded"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s rows in %s store\n",
				verb, humanize.Comma(int64(len(rows))), cmp.Or(c.cfg.Demo.Store, string(demo.StorageMemory)))
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing dataset")
	cmd.Flags().IntVar(&entities, "entities", 0, "entity count (overrides demo.entities)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "generator seed (overrides demo.seed)")
	return cmd
}
