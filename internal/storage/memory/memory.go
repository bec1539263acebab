// Package memory implements the in-process rowmesh storage backend.
//
// Column names are interned to small integer ids and cell/DAG values are
// deduplicated through a content-hash pool, which keeps the footprint
// flat under high-write workloads where most values repeat. The store is
// single-threaded; transactions are no-ops because every mutation is
// already applied in place.
package memory

import (
	"context"
	"hash/maphash"
	"sort"

	"github.com/rowmesh/rowmesh/internal/storage"
	"github.com/rowmesh/rowmesh/internal/types"
)

type columnInterner struct {
	toID   map[string]uint16
	toName []string
}

func newColumnInterner() *columnInterner {
	return &columnInterner{toID: make(map[string]uint16)}
}

func (ci *columnInterner) intern(name string) uint16 {
	if id, ok := ci.toID[name]; ok {
		return id
	}
	id := uint16(len(ci.toName))
	ci.toName = append(ci.toName, name)
	ci.toID[name] = id
	return id
}

func (ci *columnInterner) resolve(id uint16) string {
	return ci.toName[id]
}

func (ci *columnInterner) lookup(name string) (uint16, bool) {
	id, ok := ci.toID[name]
	return id, ok
}

type valuePool struct {
	seed maphash.Seed
	pool map[uint64][]byte
}

func newValuePool() *valuePool {
	return &valuePool{seed: maphash.MakeSeed(), pool: make(map[uint64][]byte)}
}

// intern returns a shared copy of value. On a hash collision with
// different content the value is copied but not pooled.
func (vp *valuePool) intern(value []byte) []byte {
	h := maphash.Bytes(vp.seed, value)
	if existing, ok := vp.pool[h]; ok {
		if string(existing) == string(value) {
			return existing
		}
		out := make([]byte, len(value))
		copy(out, value)
		return out
	}
	out := make([]byte, len(value))
	copy(out, value)
	vp.pool[h] = out
	return out
}

type internalCell struct {
	value   []byte
	version uint64
}

type internalDagNode struct {
	version        uint64
	value          []byte
	parentVersion  uint64
	parent2Version uint64
	timestamp      int64
	isTombstone    bool
}

type rowData struct {
	cells map[uint16]internalCell
	dag   map[uint16][]internalDagNode
}

func newRowData() *rowData {
	return &rowData{
		cells: make(map[uint16]internalCell),
		dag:   make(map[uint16][]internalDagNode),
	}
}

// Store is the in-process backend.
type Store struct {
	rows    map[string]*rowData
	columns *columnInterner
	values  *valuePool
}

// New returns an empty in-process store.
func New() *Store {
	return &Store{
		rows:    make(map[string]*rowData),
		columns: newColumnInterner(),
		values:  newValuePool(),
	}
}

func (s *Store) GetCell(_ context.Context, pk, col string) (*types.Cell, error) {
	colID, ok := s.columns.lookup(col)
	if !ok {
		return nil, nil
	}
	row, ok := s.rows[pk]
	if !ok {
		return nil, nil
	}
	cell, ok := row.cells[colID]
	if !ok {
		return nil, nil
	}
	return &types.Cell{Value: copyBytes(cell.value), Version: cell.version}, nil
}

func (s *Store) SetCell(_ context.Context, pk, col string, cell types.Cell) error {
	colID := s.columns.intern(col)
	row, ok := s.rows[pk]
	if !ok {
		row = newRowData()
		s.rows[pk] = row
	}
	row.cells[colID] = internalCell{
		value:   s.values.intern(cell.Value),
		version: cell.Version,
	}
	return nil
}

func (s *Store) GetRow(_ context.Context, pk string) (*types.Row, error) {
	row, ok := s.rows[pk]
	if !ok || len(row.cells) == 0 {
		return nil, nil
	}
	cells := make(map[string]types.Cell, len(row.cells))
	for colID, cell := range row.cells {
		cells[s.columns.resolve(colID)] = types.Cell{
			Value:   copyBytes(cell.value),
			Version: cell.version,
		}
	}
	return &types.Row{PK: pk, Cells: cells}, nil
}

func (s *Store) DeleteRow(_ context.Context, pk string) error {
	delete(s.rows, pk)
	return nil
}

func (s *Store) RowCount(_ context.Context) (int, error) {
	return len(s.rows), nil
}

func (s *Store) AllPKs(_ context.Context) ([]string, error) {
	pks := make([]string, 0, len(s.rows))
	for pk := range s.rows {
		pks = append(pks, pk)
	}
	sort.Strings(pks)
	return pks, nil
}

func (s *Store) AppendDagNode(_ context.Context, pk, col string, node types.DagNode) error {
	colID := s.columns.intern(col)
	row, ok := s.rows[pk]
	if !ok {
		row = newRowData()
		s.rows[pk] = row
	}
	internal := internalDagNode{
		version:        node.Version,
		value:          s.values.intern(node.Value),
		parentVersion:  node.ParentVersion,
		parent2Version: node.Parent2Version,
		timestamp:      node.Timestamp,
		isTombstone:    node.IsTombstone,
	}
	history := row.dag[colID]
	// Same version replaces in place (idempotent append).
	for i := range history {
		if history[i].version == node.Version {
			history[i] = internal
			return nil
		}
	}
	// Histories grow by monotonic versions; insertion sort covers the
	// rare out-of-order append without resorting the slice.
	idx := sort.Search(len(history), func(i int) bool {
		return history[i].version > node.Version
	})
	history = append(history, internalDagNode{})
	copy(history[idx+1:], history[idx:])
	history[idx] = internal
	row.dag[colID] = history
	return nil
}

func (s *Store) DagHistory(_ context.Context, pk, col string) ([]types.DagNode, error) {
	colID, ok := s.columns.lookup(col)
	if !ok {
		return nil, nil
	}
	row, ok := s.rows[pk]
	if !ok {
		return nil, nil
	}
	history := row.dag[colID]
	nodes := make([]types.DagNode, 0, len(history))
	for _, n := range history {
		nodes = append(nodes, types.DagNode{
			Version:        n.version,
			Value:          copyBytes(n.value),
			ParentVersion:  n.parentVersion,
			Parent2Version: n.parent2Version,
			Timestamp:      n.timestamp,
			IsTombstone:    n.isTombstone,
		})
	}
	return nodes, nil
}

func (s *Store) GCDag(_ context.Context, pk, col string, keepN int) (int, error) {
	colID, ok := s.columns.lookup(col)
	if !ok {
		return 0, nil
	}
	row, ok := s.rows[pk]
	if !ok {
		return 0, nil
	}
	history, ok := row.dag[colID]
	if !ok || len(history) <= keepN {
		return 0, nil
	}
	removed := len(history) - keepN
	row.dag[colID] = append([]internalDagNode(nil), history[removed:]...)
	return removed, nil
}

func (s *Store) BeginTx(context.Context) error    { return nil }
func (s *Store) CommitTx(context.Context) error   { return nil }
func (s *Store) RollbackTx(context.Context) error { return nil }

func (s *Store) Path() string { return "" }
func (s *Store) Close() error { return nil }

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ storage.Storage = (*Store)(nil)
