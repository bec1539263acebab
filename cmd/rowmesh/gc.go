package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rowmesh/rowmesh/internal/config"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Prune DAG history, keeping the newest N nodes per column",
	Long: `Prune per-column version history down to the newest N nodes.

GC is purely local: peers may prune with different depths at different
times without affecting convergence, because merge never reads the
history. The node backing each column's current value always survives.
--keep 0 is treated as --keep 1.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		keep, _ := cmd.Flags().GetInt("keep")
		if !cmd.Flags().Changed("keep") {
			keep = config.GetInt("gc.keep")
		}

		t, cleanup, err := openTable()
		if err != nil {
			return err
		}
		defer cleanup()

		removed, err := t.GC(rootCtx, keep)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d history node(s)\n", removed)
		return nil
	},
}

func init() {
	gcCmd.Flags().Int("keep", 10, "history nodes to keep per column")
	rootCmd.AddCommand(gcCmd)
}
