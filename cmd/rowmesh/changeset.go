package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rowmesh/rowmesh/internal/types"
	"github.com/rowmesh/rowmesh/internal/ui"
)

var changesetCmd = &cobra.Command{
	Use:   "changeset [file]",
	Short: "Export the table's full changeset as JSON",
	Long: `Export every cell of every row as a JSON changeset: values are
base64 bytes, versions are 64-bit. The output feeds "rowmesh merge".
Writes to stdout when no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		t, cleanup, err := openTable()
		if err != nil {
			return err
		}
		defer cleanup()

		cs, err := t.Changeset(rootCtx)
		if err != nil {
			return err
		}

		out := os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(cs)
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge <changeset.json>",
	Short: "Merge a changeset file into the table",
	Long: `Fold a changeset (as written by "rowmesh changeset") into the local
table. The whole changeset applies within one storage transaction.
Conflicts are counted in the report, not errors.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, err := policyFromFlag(cmd)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var cs types.Changeset
		if err := json.Unmarshal(data, &cs); err != nil {
			return fmt.Errorf("parse changeset: %w", err)
		}

		t, cleanup, err := openTable()
		if err != nil {
			return err
		}
		defer cleanup()

		report, err := t.Merge(rootCtx, &cs, policy)
		if err != nil {
			return err
		}
		fmt.Println(ui.MergeReportLine(report))
		return nil
	},
}

func init() {
	mergeCmd.Flags().String("policy", "", "tiebreak policy: prefer-existing | prefer-incoming | lexicographic-min")
	rootCmd.AddCommand(changesetCmd)
	rootCmd.AddCommand(mergeCmd)
}
