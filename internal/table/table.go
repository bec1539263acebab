// Package table is the public facade of a rowmesh peer: one replicated
// table bound to one storage handle.
package table

import (
	"context"
	"fmt"

	"github.com/rowmesh/rowmesh/internal/dag"
	"github.com/rowmesh/rowmesh/internal/merge"
	"github.com/rowmesh/rowmesh/internal/storage"
	"github.com/rowmesh/rowmesh/internal/storage/memory"
	"github.com/rowmesh/rowmesh/internal/storage/sqlite"
	"github.com/rowmesh/rowmesh/internal/types"
)

// Table owns its storage handle exclusively. All methods assume
// exclusive access; the table is single-threaded by contract.
type Table struct {
	store storage.Storage
}

// Open opens an on-disk table at path.
func Open(path string) (*Table, error) {
	store, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	return &Table{store: store}, nil
}

// OpenMemory opens a table on the in-process store.
func OpenMemory() *Table {
	return &Table{store: memory.New()}
}

// WithStorage wraps an existing storage handle. The table takes
// ownership.
func WithStorage(s storage.Storage) *Table {
	return &Table{store: s}
}

// Insert starts a column-write sequence for pk. Versions are
// caller-supplied via ColumnAt, or current+1 via Column; the store
// treats insert and update identically, the split is
// intention-revealing for callers.
func (t *Table) Insert(pk string) *InsertBuilder {
	return &InsertBuilder{store: t.store, pk: pk}
}

// Update starts a column-write sequence for pk that bumps every written
// column to current+1.
func (t *Table) Update(pk string) *UpdateBuilder {
	return &UpdateBuilder{store: t.store, pk: pk}
}

// Get returns a view of pk's row, or nil when absent. The view is
// computed on read and does not outlive the call's data.
func (t *Table) Get(ctx context.Context, pk string) (*RowView, error) {
	row, err := t.store.GetRow(ctx, pk)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	history := make(map[string][]types.DagNode, len(row.Cells))
	for col := range row.Cells {
		nodes, err := t.store.DagHistory(ctx, pk, col)
		if err != nil {
			return nil, err
		}
		history[col] = nodes
	}
	return &RowView{pk: pk, cells: row.Cells, dagHistory: history}, nil
}

// Delete hard-deletes pk: cells and DAG history are erased. Hard delete
// is not zombie-safe across GC and reconnect; prefer SoftDelete for
// replicated rows.
func (t *Table) Delete(ctx context.Context, pk string) error {
	return t.store.DeleteRow(ctx, pk)
}

// SoftDelete writes a tombstone cell on each named column (all live
// columns when none are named) at current+1. Tombstones flow through
// merge and survive GC like any other cell, so a reconnecting peer
// adopts the delete instead of resurrecting the old values.
func (t *Table) SoftDelete(ctx context.Context, pk string, cols ...string) error {
	if len(cols) == 0 {
		row, err := t.store.GetRow(ctx, pk)
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		for col := range row.Cells {
			cols = append(cols, col)
		}
	}
	for _, col := range cols {
		current, err := t.store.GetCell(ctx, pk, col)
		if err != nil {
			return err
		}
		var currentVersion uint64
		if current != nil {
			currentVersion = current.Version
		}
		version := currentVersion + 1
		if err := t.store.SetCell(ctx, pk, col, types.Cell{
			Value:   types.Tombstone,
			Version: version,
		}); err != nil {
			return err
		}
		if err := t.store.AppendDagNode(ctx, pk, col, types.DagNode{
			Version:       version,
			Value:         types.Tombstone,
			ParentVersion: currentVersion,
			Timestamp:     types.NowMillis(),
			IsTombstone:   true,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of rows.
func (t *Table) Len(ctx context.Context) (int, error) {
	return t.store.RowCount(ctx)
}

// PKs returns all primary keys in deterministic order.
func (t *Table) PKs(ctx context.Context) ([]string, error) {
	return t.store.AllPKs(ctx)
}

// Changeset exports every cell of every row. Values are copied out of
// storage; the changeset owns its payloads.
func (t *Table) Changeset(ctx context.Context) (*types.Changeset, error) {
	cs := types.NewChangeset()
	pks, err := t.store.AllPKs(ctx)
	if err != nil {
		return nil, err
	}
	for _, pk := range pks {
		row, err := t.store.GetRow(ctx, pk)
		if err != nil {
			return nil, err
		}
		if row == nil {
			continue
		}
		rc := types.RowChange{
			Columns:  make(map[string][]byte, len(row.Cells)),
			Versions: make(map[string]uint64, len(row.Cells)),
		}
		for col, cell := range row.Cells {
			rc.Columns[col] = cell.Value
			rc.Versions[col] = cell.Version
		}
		cs.Changes[pk] = rc
	}
	return cs, nil
}

// Merge folds a changeset into the table cell by cell under policy. The
// whole changeset applies within one storage transaction: on any storage
// error the transaction rolls back and nothing is applied. Conflicts are
// counted in the report, never returned as errors.
func (t *Table) Merge(ctx context.Context, cs *types.Changeset, policy types.TieBreakPolicy) (types.MergeReport, error) {
	var report types.MergeReport

	if err := t.store.BeginTx(ctx); err != nil {
		return report, err
	}

	for pk, rc := range cs.Changes {
		for col, remoteValue := range rc.Columns {
			remoteVersion, ok := rc.Versions[col]
			if !ok {
				remoteVersion = 1
			}
			if err := t.mergeCell(ctx, pk, col, remoteValue, remoteVersion, policy, &report); err != nil {
				if rbErr := t.store.RollbackTx(ctx); rbErr != nil {
					return types.MergeReport{}, fmt.Errorf("merge %s:%s: %w (rollback: %v)", pk, col, err, rbErr)
				}
				return types.MergeReport{}, fmt.Errorf("merge %s:%s: %w", pk, col, err)
			}
		}
	}

	if err := t.store.CommitTx(ctx); err != nil {
		return types.MergeReport{}, err
	}
	return report, nil
}

func (t *Table) mergeCell(ctx context.Context, pk, col string, remoteValue []byte, remoteVersion uint64, policy types.TieBreakPolicy, report *types.MergeReport) error {
	local, err := t.store.GetCell(ctx, pk, col)
	if err != nil {
		return err
	}
	var localValue []byte
	var localVersion uint64
	if local != nil {
		localValue = local.Value
		localVersion = local.Version
	}

	switch merge.ResolveVersions(localVersion, remoteVersion) {
	case merge.Accept:
		if err := t.store.SetCell(ctx, pk, col, types.Cell{
			Value:   remoteValue,
			Version: remoteVersion,
		}); err != nil {
			return err
		}
		if err := t.store.AppendDagNode(ctx, pk, col, types.DagNode{
			Version:       remoteVersion,
			Value:         remoteValue,
			ParentVersion: localVersion,
			Timestamp:     types.NowMillis(),
			IsTombstone:   types.IsTombstoneValue(remoteValue),
		}); err != nil {
			return err
		}
		if localVersion == 0 {
			report.Inserted++
		} else {
			report.Updated++
		}

	case merge.Reject:
		report.Skipped++

	case merge.Conflict:
		if string(localValue) == string(remoteValue) {
			report.Skipped++
			return nil
		}
		report.Conflicts++
		if !merge.ResolveConflict(localValue, remoteValue, policy) {
			return nil
		}
		// The bump past remoteVersion eliminates ties: no two peers can
		// end up with equal versions and differing values for this cell.
		newVersion := remoteVersion + 1
		if err := t.store.SetCell(ctx, pk, col, types.Cell{
			Value:   remoteValue,
			Version: newVersion,
		}); err != nil {
			return err
		}
		if err := t.store.AppendDagNode(ctx, pk, col, types.DagNode{
			Version:        newVersion,
			Value:          remoteValue,
			ParentVersion:  localVersion,
			Parent2Version: remoteVersion,
			Timestamp:      types.NowMillis(),
			IsTombstone:    types.IsTombstoneValue(remoteValue),
		}); err != nil {
			return err
		}
		report.Updated++
	}
	return nil
}

// GC retains the newest keepN DAG nodes per (pk, col) across the table
// and returns the total removed. keepN 0 is reinterpreted as 1 so the
// node backing the current cell always survives.
func (t *Table) GC(ctx context.Context, keepN int) (int, error) {
	if keepN < 1 {
		keepN = 1
	}
	total := 0
	pks, err := t.store.AllPKs(ctx)
	if err != nil {
		return 0, err
	}
	for _, pk := range pks {
		row, err := t.store.GetRow(ctx, pk)
		if err != nil {
			return total, err
		}
		if row == nil {
			continue
		}
		for col := range row.Cells {
			removed, err := t.store.GCDag(ctx, pk, col, keepN)
			if err != nil {
				return total, err
			}
			total += removed
		}
	}
	return total, nil
}

// RunGC applies a GcPolicy to the table.
func RunGC(ctx context.Context, t *Table, policy types.GcPolicy) (int, error) {
	if policy.KeepAll {
		return 0, nil
	}
	return t.GC(ctx, policy.KeepN)
}

// DagHistory returns the (pk, col) history wrapped for analysis.
func (t *Table) DagHistory(ctx context.Context, pk, col string) (*dag.History, error) {
	nodes, err := t.store.DagHistory(ctx, pk, col)
	if err != nil {
		return nil, err
	}
	return dag.FromNodes(nodes), nil
}

// Path returns the backing file path, or "" for in-process tables.
func (t *Table) Path() string {
	return t.store.Path()
}

// Close releases the storage handle.
func (t *Table) Close() error {
	return t.store.Close()
}
