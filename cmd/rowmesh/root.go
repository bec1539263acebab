package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rowmesh/rowmesh/internal/config"
	"github.com/rowmesh/rowmesh/internal/lockfile"
	"github.com/rowmesh/rowmesh/internal/table"
	"github.com/rowmesh/rowmesh/internal/types"
)

// Version is stamped by the release build.
var Version = "dev"

var rootCtx = context.Background()

var rootCmd = &cobra.Command{
	Use:   "rowmesh",
	Short: "Replicated table store with per-column versioning",
	Long: `rowmesh is a replicated table store. Every peer holds an independent
copy of a collection of rows, accepts edits while disconnected, and
converges with other peers by exchanging changesets. Concurrent edits
to disjoint columns never conflict; same-column ties are resolved by a
deterministic policy.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		// Flags beat config; only push values the user actually set.
		if cmd.Flags().Changed("db") {
			db, _ := cmd.Flags().GetString("db")
			config.Set("db", db)
		}
		if cmd.Flags().Changed("json") {
			jsonOut, _ := cmd.Flags().GetBool("json")
			config.Set("json", jsonOut)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "database file path (default rowmesh.db, or ROWMESH_DB)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
}

// openTable opens the configured database, holding the process lock for
// the duration of the command. The returned cleanup releases both.
func openTable() (*table.Table, func(), error) {
	path := config.GetString("db")
	if path == "" {
		path = "rowmesh.db"
	}

	lock, err := lockfile.Acquire(path, lockTimeout())
	if err != nil {
		return nil, nil, err
	}

	t, err := table.Open(path)
	if err != nil {
		lock.Release()
		return nil, nil, err
	}

	cleanup := func() {
		t.Close()
		lock.Release()
	}
	return t, cleanup, nil
}

// openTableAt opens an explicitly named database (sync/mesh peers).
func openTableAt(path string) (*table.Table, func(), error) {
	lock, err := lockfile.Acquire(path, lockTimeout())
	if err != nil {
		return nil, nil, err
	}
	t, err := table.Open(path)
	if err != nil {
		lock.Release()
		return nil, nil, err
	}
	return t, func() { t.Close(); lock.Release() }, nil
}

func lockTimeout() time.Duration {
	if d := config.GetDuration("lock-timeout"); d > 0 {
		return d
	}
	return 30 * time.Second
}

func policyFromFlag(cmd *cobra.Command) (types.TieBreakPolicy, error) {
	s, _ := cmd.Flags().GetString("policy")
	if !cmd.Flags().Changed("policy") {
		if configured := config.GetString("policy"); configured != "" {
			s = configured
		}
	}
	policy, err := types.ParsePolicy(s)
	if err != nil {
		return policy, fmt.Errorf("--policy: %w", err)
	}
	return policy, nil
}
