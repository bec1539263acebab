package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rowmesh/rowmesh/internal/config"
	"github.com/rowmesh/rowmesh/internal/ui"
)

var getCmd = &cobra.Command{
	Use:   "get <pk>",
	Short: "Show a row's current cells",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		pk := args[0]

		t, cleanup, err := openTable()
		if err != nil {
			return err
		}
		defer cleanup()

		row, err := t.Get(rootCtx, pk)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("row %q not found", pk)
		}

		if config.GetBool("json") {
			out := make(map[string]map[string]any)
			for _, col := range row.Columns() {
				out[col] = map[string]any{
					"value":   string(row.Value(col)),
					"version": row.Version(col),
				}
			}
			return json.NewEncoder(os.Stdout).Encode(map[string]any{"pk": pk, "columns": out})
		}

		fmt.Println(ui.RowTable(pk, row.Columns(), row.Value, row.Version))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <pk> <col>",
	Short: "Show a column's version history",
	Long: `Show the version DAG recorded for one column, oldest first.

With --missing, also report parent versions referenced by the history
but no longer present (a lower bound on gaps; pruned history shows up
here too). With --timeline, interleave reconstruction hints for the
missing versions. Reconstructed entries are presentational only.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pk, col := args[0], args[1]
		showMissing, _ := cmd.Flags().GetBool("missing")
		showTimeline, _ := cmd.Flags().GetBool("timeline")

		t, cleanup, err := openTable()
		if err != nil {
			return err
		}
		defer cleanup()

		history, err := t.DagHistory(rootCtx, pk, col)
		if err != nil {
			return err
		}
		if history.Len() == 0 {
			return fmt.Errorf("no history for %s:%s", pk, col)
		}

		if config.GetBool("json") {
			return json.NewEncoder(os.Stdout).Encode(history.Nodes())
		}

		fmt.Println(ui.HistoryTable(col, history.Nodes()))

		if showMissing {
			missing := history.FindMissingVersions()
			if len(missing) == 0 {
				fmt.Println("no missing versions detected")
			} else {
				fmt.Printf("missing versions (at least): %v\n", missing)
			}
		}
		if showTimeline {
			for _, entry := range history.ReconstructedTimeline() {
				marker := " "
				if entry.Reconstructed {
					marker = "?"
				}
				fmt.Printf("%s v%-6d %s\n", marker, entry.Version, entry.Description)
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Bool("missing", false, "report missing parent versions")
	historyCmd.Flags().Bool("timeline", false, "interleave reconstruction hints")
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(historyCmd)
}
