package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <pk> [<col>...]",
	Short: "Delete a row (or soft-delete columns)",
	Long: `Delete a row.

By default this is a hard delete: cells and DAG history are erased.
Hard delete is not safe across GC and reconnect; a disconnected peer
whose last-known version predates the delete cannot tell deletion from
staleness, and its copy will reappear.

With --soft, tombstone cells are written instead (on the named columns,
or all columns when none are given) at a normally-bumped version. The
tombstone flows through sync like any other cell and survives GC, which
makes it the zombie-safe deletion shape for replicated rows.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pk := args[0]
		soft, _ := cmd.Flags().GetBool("soft")

		if !soft && len(args) > 1 {
			return fmt.Errorf("column arguments require --soft")
		}

		t, cleanup, err := openTable()
		if err != nil {
			return err
		}
		defer cleanup()

		if soft {
			if err := t.SoftDelete(rootCtx, pk, args[1:]...); err != nil {
				return err
			}
			fmt.Printf("tombstoned %s\n", pk)
			return nil
		}

		if err := t.Delete(rootCtx, pk); err != nil {
			return err
		}
		fmt.Printf("deleted %s (history erased)\n", pk)
		return nil
	},
}

func init() {
	deleteCmd.Flags().Bool("soft", false, "write tombstone cells instead of erasing")
	rootCmd.AddCommand(deleteCmd)
}
