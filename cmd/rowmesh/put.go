package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <pk> <col>=<value> [<col>=<value>...]",
	Short: "Insert or update columns of a row",
	Long: `Write column values for a row.

Each written column gets the next version after whatever is currently
stored (1 if the column is new). With --version the given version is
used for every written column instead (insert semantics with a
caller-supplied version).`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pk := args[0]
		version, _ := cmd.Flags().GetUint64("version")

		t, cleanup, err := openTable()
		if err != nil {
			return err
		}
		defer cleanup()

		builder := t.Insert(pk)
		for _, arg := range args[1:] {
			col, value, ok := strings.Cut(arg, "=")
			if !ok || col == "" {
				return fmt.Errorf("expected <col>=<value>, got %q", arg)
			}
			if version > 0 {
				builder = builder.ColumnStringAt(col, value, version)
			} else {
				builder = builder.ColumnString(col, value)
			}
		}
		if err := builder.Commit(rootCtx); err != nil {
			return err
		}

		if !quiet(cmd) {
			fmt.Printf("wrote %d column(s) of %s\n", len(args)-1, pk)
		}
		return nil
	},
}

func quiet(cmd *cobra.Command) bool {
	q, _ := cmd.Flags().GetBool("quiet")
	return q
}

func init() {
	putCmd.Flags().Uint64("version", 0, "explicit version for every written column")
	putCmd.Flags().BoolP("quiet", "q", false, "suppress confirmation output")
	rootCmd.AddCommand(putCmd)
}
