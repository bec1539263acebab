// Package storage defines the interface for rowmesh storage backends.
package storage

import (
	"context"
	"errors"

	"github.com/rowmesh/rowmesh/internal/types"
)

// ErrClosed is returned when an operation is attempted on a closed store.
var ErrClosed = errors.New("storage closed")

// ErrNotFound is returned by explicit assertion paths that require a
// pk/col to be present. Plain read paths return nil for absent instead.
var ErrNotFound = errors.New("not found")

// Storage is the stable store for cells and per-column DAG histories.
//
// Implementations are not required to be thread-safe; a table owns its
// storage handle exclusively and callers provide external
// synchronization. Transactions are a serial boundary around the merge
// of a single changeset: Begin while already in a transaction is a
// no-op, as are Commit/Rollback outside one.
type Storage interface {
	// GetCell returns the cell at (pk, col), or nil when absent.
	GetCell(ctx context.Context, pk, col string) (*types.Cell, error)
	// SetCell overwrites the cell at (pk, col). No version check is
	// performed; callers enforce monotonicity.
	SetCell(ctx context.Context, pk, col string, cell types.Cell) error
	// GetRow returns all cells of pk, or nil when the row has no live cells.
	GetRow(ctx context.Context, pk string) (*types.Row, error)
	// DeleteRow erases every cell and every DAG node for pk.
	// Only the hard-delete path uses it.
	DeleteRow(ctx context.Context, pk string) error
	RowCount(ctx context.Context) (int, error)
	// AllPKs returns every primary key in a deterministic order.
	AllPKs(ctx context.Context) ([]string, error)

	// AppendDagNode appends to the (pk, col) history. Appending an
	// existing version is an idempotent replace.
	AppendDagNode(ctx context.Context, pk, col string, node types.DagNode) error
	// DagHistory returns the (pk, col) history ordered by version ascending.
	DagHistory(ctx context.Context, pk, col string) ([]types.DagNode, error)
	// GCDag drops all but the newest keepN nodes of (pk, col) and
	// returns the count removed. The node backing the current cell is
	// the greatest version and therefore always survives for keepN >= 1.
	GCDag(ctx context.Context, pk, col string, keepN int) (int, error)

	BeginTx(ctx context.Context) error
	CommitTx(ctx context.Context) error
	RollbackTx(ctx context.Context) error

	// Path returns the backing file path, or "" for in-process stores.
	Path() string
	Close() error
}
