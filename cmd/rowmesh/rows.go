package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rowmesh/rowmesh/internal/config"
)

var rowsCmd = &cobra.Command{
	Use:   "rows",
	Short: "List primary keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		countOnly, _ := cmd.Flags().GetBool("count")

		t, cleanup, err := openTable()
		if err != nil {
			return err
		}
		defer cleanup()

		if countOnly {
			n, err := t.Len(rootCtx)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		}

		pks, err := t.PKs(rootCtx)
		if err != nil {
			return err
		}
		if config.GetBool("json") {
			return json.NewEncoder(os.Stdout).Encode(pks)
		}
		for _, pk := range pks {
			fmt.Println(pk)
		}
		return nil
	},
}

func init() {
	rowsCmd.Flags().Bool("count", false, "print only the row count")
	rootCmd.AddCommand(rowsCmd)
}
