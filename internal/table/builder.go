package table

import (
	"context"

	"github.com/rowmesh/rowmesh/internal/storage"
	"github.com/rowmesh/rowmesh/internal/types"
)

type pendingColumn struct {
	name    string
	value   []byte
	version uint64 // 0 = derive from current
}

// InsertBuilder accumulates column writes for a new (or re-written) row.
// ColumnAt takes a caller-supplied version; Column derives current+1
// like an update does.
type InsertBuilder struct {
	store   storage.Storage
	pk      string
	columns []pendingColumn
}

// ColumnAt stages a column write at an explicit version.
func (b *InsertBuilder) ColumnAt(name string, value []byte, version uint64) *InsertBuilder {
	b.columns = append(b.columns, pendingColumn{name: name, value: value, version: version})
	return b
}

// ColumnStringAt stages a text column write at an explicit version.
func (b *InsertBuilder) ColumnStringAt(name, value string, version uint64) *InsertBuilder {
	return b.ColumnAt(name, []byte(value), version)
}

// Column stages a column write at the next version after whatever is
// currently stored (1 if absent).
func (b *InsertBuilder) Column(name string, value []byte) *InsertBuilder {
	return b.ColumnAt(name, value, 0)
}

// ColumnString stages a text column write at the next version.
func (b *InsertBuilder) ColumnString(name, value string) *InsertBuilder {
	return b.Column(name, []byte(value))
}

// Commit applies the staged writes. Each column overwrites its cell and
// appends a DAG node whose primary parent is the previous version (none
// when the column is new). Per-column application is atomic through the
// storage layer; the builder does not open a transaction across columns.
func (b *InsertBuilder) Commit(ctx context.Context) error {
	return commitColumns(ctx, b.store, b.pk, b.columns)
}

// UpdateBuilder accumulates column writes that always bump from the
// current version. Semantically identical to InsertBuilder with derived
// versions; the distinction is intention-revealing for callers.
type UpdateBuilder struct {
	store   storage.Storage
	pk      string
	columns []pendingColumn
}

// Column stages a column write at current+1.
func (b *UpdateBuilder) Column(name string, value []byte) *UpdateBuilder {
	b.columns = append(b.columns, pendingColumn{name: name, value: value})
	return b
}

// ColumnString stages a text column write at current+1.
func (b *UpdateBuilder) ColumnString(name, value string) *UpdateBuilder {
	return b.Column(name, []byte(value))
}

// Commit applies the staged writes.
func (b *UpdateBuilder) Commit(ctx context.Context) error {
	return commitColumns(ctx, b.store, b.pk, b.columns)
}

func commitColumns(ctx context.Context, store storage.Storage, pk string, columns []pendingColumn) error {
	for _, col := range columns {
		current, err := store.GetCell(ctx, pk, col.name)
		if err != nil {
			return err
		}
		var currentVersion uint64
		if current != nil {
			currentVersion = current.Version
		}

		version := col.version
		if version == 0 {
			version = currentVersion + 1
		}

		if err := store.SetCell(ctx, pk, col.name, types.Cell{
			Value:   col.value,
			Version: version,
		}); err != nil {
			return err
		}
		if err := store.AppendDagNode(ctx, pk, col.name, types.DagNode{
			Version:       version,
			Value:         col.value,
			ParentVersion: currentVersion,
			Timestamp:     types.NowMillis(),
			IsTombstone:   types.IsTombstoneValue(col.value),
		}); err != nil {
			return err
		}
	}
	return nil
}
