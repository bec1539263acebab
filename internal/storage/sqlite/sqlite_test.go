package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rowmesh/rowmesh/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCellOperations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("get absent cell returns nil", func(t *testing.T) {
		cell, err := store.GetCell(ctx, "r1", "name")
		if err != nil {
			t.Fatalf("GetCell failed: %v", err)
		}
		if cell != nil {
			t.Errorf("expected nil for absent cell, got %+v", cell)
		}
	})

	t.Run("set and get", func(t *testing.T) {
		if err := store.SetCell(ctx, "r1", "name", types.Cell{Value: []byte("Alice"), Version: 1}); err != nil {
			t.Fatalf("SetCell failed: %v", err)
		}
		cell, err := store.GetCell(ctx, "r1", "name")
		if err != nil {
			t.Fatalf("GetCell failed: %v", err)
		}
		if cell == nil {
			t.Fatal("expected cell, got nil")
		}
		if string(cell.Value) != "Alice" || cell.Version != 1 {
			t.Errorf("got value=%q version=%d, want Alice/1", cell.Value, cell.Version)
		}
	})

	t.Run("overwrite without version check", func(t *testing.T) {
		if err := store.SetCell(ctx, "r1", "name", types.Cell{Value: []byte("Bob"), Version: 5}); err != nil {
			t.Fatalf("SetCell failed: %v", err)
		}
		cell, err := store.GetCell(ctx, "r1", "name")
		if err != nil {
			t.Fatalf("GetCell failed: %v", err)
		}
		if string(cell.Value) != "Bob" || cell.Version != 5 {
			t.Errorf("got value=%q version=%d, want Bob/5", cell.Value, cell.Version)
		}
	})
}

func TestRowOperations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetCell(ctx, "r1", "name", types.Cell{Value: []byte("Alice"), Version: 1}); err != nil {
		t.Fatalf("SetCell failed: %v", err)
	}
	if err := store.SetCell(ctx, "r1", "email", types.Cell{Value: []byte("alice@example.com"), Version: 1}); err != nil {
		t.Fatalf("SetCell failed: %v", err)
	}
	if err := store.SetCell(ctx, "r2", "name", types.Cell{Value: []byte("Bob"), Version: 1}); err != nil {
		t.Fatalf("SetCell failed: %v", err)
	}

	t.Run("get row returns all cells", func(t *testing.T) {
		row, err := store.GetRow(ctx, "r1")
		if err != nil {
			t.Fatalf("GetRow failed: %v", err)
		}
		if row == nil || len(row.Cells) != 2 {
			t.Fatalf("expected 2 cells, got %+v", row)
		}
	})

	t.Run("absent row returns nil", func(t *testing.T) {
		row, err := store.GetRow(ctx, "nope")
		if err != nil {
			t.Fatalf("GetRow failed: %v", err)
		}
		if row != nil {
			t.Errorf("expected nil row, got %+v", row)
		}
	})

	t.Run("row count and pks", func(t *testing.T) {
		n, err := store.RowCount(ctx)
		if err != nil {
			t.Fatalf("RowCount failed: %v", err)
		}
		if n != 2 {
			t.Errorf("RowCount = %d, want 2", n)
		}
		pks, err := store.AllPKs(ctx)
		if err != nil {
			t.Fatalf("AllPKs failed: %v", err)
		}
		if len(pks) != 2 || pks[0] != "r1" || pks[1] != "r2" {
			t.Errorf("AllPKs = %v, want [r1 r2]", pks)
		}
	})

	t.Run("delete row erases cells and dag", func(t *testing.T) {
		node := types.DagNode{Version: 1, Value: []byte("Alice"), Timestamp: types.NowMillis()}
		if err := store.AppendDagNode(ctx, "r1", "name", node); err != nil {
			t.Fatalf("AppendDagNode failed: %v", err)
		}
		if err := store.DeleteRow(ctx, "r1"); err != nil {
			t.Fatalf("DeleteRow failed: %v", err)
		}
		row, err := store.GetRow(ctx, "r1")
		if err != nil {
			t.Fatalf("GetRow failed: %v", err)
		}
		if row != nil {
			t.Errorf("expected nil row after delete, got %+v", row)
		}
		history, err := store.DagHistory(ctx, "r1", "name")
		if err != nil {
			t.Fatalf("DagHistory failed: %v", err)
		}
		if len(history) != 0 {
			t.Errorf("expected empty history after delete, got %d nodes", len(history))
		}
	})
}

func TestDagHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for v := uint64(1); v <= 5; v++ {
		node := types.DagNode{
			Version:   v,
			Value:     []byte{byte('a' + v)},
			Timestamp: types.NowMillis(),
		}
		if v > 1 {
			node.ParentVersion = v - 1
		}
		if err := store.AppendDagNode(ctx, "r1", "col", node); err != nil {
			t.Fatalf("AppendDagNode v%d failed: %v", v, err)
		}
	}

	t.Run("history is version ascending", func(t *testing.T) {
		history, err := store.DagHistory(ctx, "r1", "col")
		if err != nil {
			t.Fatalf("DagHistory failed: %v", err)
		}
		if len(history) != 5 {
			t.Fatalf("expected 5 nodes, got %d", len(history))
		}
		for i, n := range history {
			if n.Version != uint64(i+1) {
				t.Errorf("node %d has version %d, want %d", i, n.Version, i+1)
			}
		}
		if history[0].ParentVersion != 0 {
			t.Errorf("root node parent = %d, want 0", history[0].ParentVersion)
		}
		if history[4].ParentVersion != 4 {
			t.Errorf("node 5 parent = %d, want 4", history[4].ParentVersion)
		}
	})

	t.Run("duplicate version is idempotent replace", func(t *testing.T) {
		node := types.DagNode{Version: 3, Value: []byte("replaced"), ParentVersion: 2, Timestamp: types.NowMillis()}
		if err := store.AppendDagNode(ctx, "r1", "col", node); err != nil {
			t.Fatalf("AppendDagNode failed: %v", err)
		}
		history, err := store.DagHistory(ctx, "r1", "col")
		if err != nil {
			t.Fatalf("DagHistory failed: %v", err)
		}
		if len(history) != 5 {
			t.Errorf("expected 5 nodes after replace, got %d", len(history))
		}
		if string(history[2].Value) != "replaced" {
			t.Errorf("node v3 value = %q, want replaced", history[2].Value)
		}
	})

	t.Run("gc keeps newest n", func(t *testing.T) {
		removed, err := store.GCDag(ctx, "r1", "col", 2)
		if err != nil {
			t.Fatalf("GCDag failed: %v", err)
		}
		if removed != 3 {
			t.Errorf("removed = %d, want 3", removed)
		}
		history, err := store.DagHistory(ctx, "r1", "col")
		if err != nil {
			t.Fatalf("DagHistory failed: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("expected 2 nodes after GC, got %d", len(history))
		}
		if history[0].Version != 4 || history[1].Version != 5 {
			t.Errorf("surviving versions = %d,%d, want 4,5", history[0].Version, history[1].Version)
		}
	})

	t.Run("gc below threshold is a no-op", func(t *testing.T) {
		removed, err := store.GCDag(ctx, "r1", "col", 10)
		if err != nil {
			t.Fatalf("GCDag failed: %v", err)
		}
		if removed != 0 {
			t.Errorf("removed = %d, want 0", removed)
		}
	})
}

func TestTombstoneFlagRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	node := types.DagNode{
		Version:       2,
		Value:         types.Tombstone,
		ParentVersion: 1,
		Timestamp:     types.NowMillis(),
		IsTombstone:   true,
	}
	if err := store.AppendDagNode(ctx, "r1", "name", node); err != nil {
		t.Fatalf("AppendDagNode failed: %v", err)
	}
	history, err := store.DagHistory(ctx, "r1", "name")
	if err != nil {
		t.Fatalf("DagHistory failed: %v", err)
	}
	if len(history) != 1 || !history[0].IsTombstone {
		t.Errorf("tombstone flag lost: %+v", history)
	}
}

func TestTransactionRollback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetCell(ctx, "r1", "name", types.Cell{Value: []byte("before"), Version: 1}); err != nil {
		t.Fatalf("SetCell failed: %v", err)
	}

	if err := store.BeginTx(ctx); err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	// Reentrant begin is a no-op.
	if err := store.BeginTx(ctx); err != nil {
		t.Fatalf("reentrant BeginTx failed: %v", err)
	}
	if err := store.SetCell(ctx, "r1", "name", types.Cell{Value: []byte("during"), Version: 2}); err != nil {
		t.Fatalf("SetCell in tx failed: %v", err)
	}
	if err := store.RollbackTx(ctx); err != nil {
		t.Fatalf("RollbackTx failed: %v", err)
	}

	cell, err := store.GetCell(ctx, "r1", "name")
	if err != nil {
		t.Fatalf("GetCell failed: %v", err)
	}
	if string(cell.Value) != "before" || cell.Version != 1 {
		t.Errorf("rollback did not restore: got %q/%d", cell.Value, cell.Version)
	}

	// Rollback outside a transaction is a no-op.
	if err := store.RollbackTx(ctx); err != nil {
		t.Fatalf("stray RollbackTx failed: %v", err)
	}
}

func TestTransactionCommit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.BeginTx(ctx); err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	if err := store.SetCell(ctx, "r1", "name", types.Cell{Value: []byte("committed"), Version: 1}); err != nil {
		t.Fatalf("SetCell failed: %v", err)
	}
	if err := store.CommitTx(ctx); err != nil {
		t.Fatalf("CommitTx failed: %v", err)
	}

	cell, err := store.GetCell(ctx, "r1", "name")
	if err != nil {
		t.Fatalf("GetCell failed: %v", err)
	}
	if cell == nil || string(cell.Value) != "committed" {
		t.Errorf("commit lost the write: %+v", cell)
	}
}

func TestOnDiskPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()
	if err := store.SetCell(ctx, "r1", "name", types.Cell{Value: []byte("persisted"), Version: 3}); err != nil {
		t.Fatalf("SetCell failed: %v", err)
	}
	if store.Path() != path {
		t.Errorf("Path() = %q, want %q", store.Path(), path)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	cell, err := reopened.GetCell(ctx, "r1", "name")
	if err != nil {
		t.Fatalf("GetCell after reopen failed: %v", err)
	}
	if cell == nil || string(cell.Value) != "persisted" || cell.Version != 3 {
		t.Errorf("persisted cell = %+v, want persisted/3", cell)
	}
}
