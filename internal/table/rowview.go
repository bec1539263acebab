package table

import (
	"sort"

	"github.com/rowmesh/rowmesh/internal/types"
)

// RowView is a borrowed snapshot of one row, computed on read.
type RowView struct {
	pk         string
	cells      map[string]types.Cell
	dagHistory map[string][]types.DagNode
}

// PK returns the row's primary key.
func (rv *RowView) PK() string {
	return rv.pk
}

// Value returns the column's current bytes, or nil when absent.
func (rv *RowView) Value(col string) []byte {
	if cell, ok := rv.cells[col]; ok {
		return cell.Value
	}
	return nil
}

// String returns the column's current value as text and whether the
// column is present. This is a thin adapter over the byte API.
func (rv *RowView) String(col string) (string, bool) {
	cell, ok := rv.cells[col]
	if !ok {
		return "", false
	}
	return string(cell.Value), true
}

// Version returns the column's current version, 0 when absent.
func (rv *RowView) Version(col string) uint64 {
	return rv.cells[col].Version
}

// IsTombstone reports whether the column currently holds the tombstone
// sentinel.
func (rv *RowView) IsTombstone(col string) bool {
	cell, ok := rv.cells[col]
	return ok && types.IsTombstoneValue(cell.Value)
}

// Columns returns the column names, sorted.
func (rv *RowView) Columns() []string {
	cols := make([]string, 0, len(rv.cells))
	for col := range rv.cells {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// Cell returns the full cell for col and whether it is present.
func (rv *RowView) Cell(col string) (types.Cell, bool) {
	cell, ok := rv.cells[col]
	return cell, ok
}

// DagHistory returns the column's history, version-ascending.
func (rv *RowView) DagHistory(col string) []types.DagNode {
	return rv.dagHistory[col]
}
