package memory

import (
	"context"
	"testing"

	"github.com/rowmesh/rowmesh/internal/types"
)

func TestCellOperations(t *testing.T) {
	store := New()
	ctx := context.Background()

	t.Run("absent column and row return nil", func(t *testing.T) {
		cell, err := store.GetCell(ctx, "r1", "never-interned")
		if err != nil {
			t.Fatalf("GetCell failed: %v", err)
		}
		if cell != nil {
			t.Errorf("expected nil, got %+v", cell)
		}
	})

	t.Run("set get overwrite", func(t *testing.T) {
		if err := store.SetCell(ctx, "r1", "name", types.Cell{Value: []byte("Alice"), Version: 1}); err != nil {
			t.Fatalf("SetCell failed: %v", err)
		}
		cell, err := store.GetCell(ctx, "r1", "name")
		if err != nil {
			t.Fatalf("GetCell failed: %v", err)
		}
		if string(cell.Value) != "Alice" || cell.Version != 1 {
			t.Errorf("got %q/%d, want Alice/1", cell.Value, cell.Version)
		}

		if err := store.SetCell(ctx, "r1", "name", types.Cell{Value: []byte("Bob"), Version: 7}); err != nil {
			t.Fatalf("SetCell failed: %v", err)
		}
		cell, _ = store.GetCell(ctx, "r1", "name")
		if string(cell.Value) != "Bob" || cell.Version != 7 {
			t.Errorf("got %q/%d, want Bob/7", cell.Value, cell.Version)
		}
	})

	t.Run("returned cell does not alias storage", func(t *testing.T) {
		cell, _ := store.GetCell(ctx, "r1", "name")
		cell.Value[0] = 'X'
		again, _ := store.GetCell(ctx, "r1", "name")
		if string(again.Value) != "Bob" {
			t.Errorf("caller mutation leaked into storage: %q", again.Value)
		}
	})
}

func TestValuePoolDeduplicates(t *testing.T) {
	store := New()
	ctx := context.Background()

	// Many rows sharing the same value should intern to one pooled copy.
	for _, pk := range []string{"r1", "r2", "r3"} {
		if err := store.SetCell(ctx, pk, "status", types.Cell{Value: []byte("active"), Version: 1}); err != nil {
			t.Fatalf("SetCell failed: %v", err)
		}
	}
	if len(store.values.pool) != 1 {
		t.Errorf("pool has %d entries, want 1", len(store.values.pool))
	}

	a := store.rows["r1"].cells[store.columns.toID["status"]].value
	b := store.rows["r2"].cells[store.columns.toID["status"]].value
	if &a[0] != &b[0] {
		t.Error("equal values not shared through the pool")
	}
}

func TestColumnInterner(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.SetCell(ctx, "r1", "name", types.Cell{Value: []byte("x"), Version: 1}); err != nil {
		t.Fatalf("SetCell failed: %v", err)
	}
	if err := store.SetCell(ctx, "r2", "name", types.Cell{Value: []byte("y"), Version: 1}); err != nil {
		t.Fatalf("SetCell failed: %v", err)
	}
	if len(store.columns.toName) != 1 {
		t.Errorf("interner has %d names, want 1", len(store.columns.toName))
	}
}

func TestRowOperations(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, pk := range []string{"b", "a", "c"} {
		if err := store.SetCell(ctx, pk, "v", types.Cell{Value: []byte(pk), Version: 1}); err != nil {
			t.Fatalf("SetCell failed: %v", err)
		}
	}

	t.Run("pks are sorted", func(t *testing.T) {
		pks, err := store.AllPKs(ctx)
		if err != nil {
			t.Fatalf("AllPKs failed: %v", err)
		}
		if len(pks) != 3 || pks[0] != "a" || pks[1] != "b" || pks[2] != "c" {
			t.Errorf("AllPKs = %v, want [a b c]", pks)
		}
	})

	t.Run("row count", func(t *testing.T) {
		n, err := store.RowCount(ctx)
		if err != nil {
			t.Fatalf("RowCount failed: %v", err)
		}
		if n != 3 {
			t.Errorf("RowCount = %d, want 3", n)
		}
	})

	t.Run("delete row", func(t *testing.T) {
		if err := store.DeleteRow(ctx, "b"); err != nil {
			t.Fatalf("DeleteRow failed: %v", err)
		}
		row, err := store.GetRow(ctx, "b")
		if err != nil {
			t.Fatalf("GetRow failed: %v", err)
		}
		if row != nil {
			t.Errorf("expected nil row, got %+v", row)
		}
	})
}

func TestDagOperations(t *testing.T) {
	store := New()
	ctx := context.Background()

	for v := uint64(1); v <= 5; v++ {
		node := types.DagNode{Version: v, Value: []byte{byte(v)}, Timestamp: types.NowMillis()}
		if v > 1 {
			node.ParentVersion = v - 1
		}
		if err := store.AppendDagNode(ctx, "r1", "col", node); err != nil {
			t.Fatalf("AppendDagNode failed: %v", err)
		}
	}

	t.Run("history ascending", func(t *testing.T) {
		history, err := store.DagHistory(ctx, "r1", "col")
		if err != nil {
			t.Fatalf("DagHistory failed: %v", err)
		}
		if len(history) != 5 {
			t.Fatalf("got %d nodes, want 5", len(history))
		}
		for i, n := range history {
			if n.Version != uint64(i+1) {
				t.Errorf("node %d version = %d, want %d", i, n.Version, i+1)
			}
		}
	})

	t.Run("duplicate append replaces", func(t *testing.T) {
		node := types.DagNode{Version: 3, Value: []byte("new"), ParentVersion: 2, Timestamp: types.NowMillis()}
		if err := store.AppendDagNode(ctx, "r1", "col", node); err != nil {
			t.Fatalf("AppendDagNode failed: %v", err)
		}
		history, _ := store.DagHistory(ctx, "r1", "col")
		if len(history) != 5 {
			t.Fatalf("got %d nodes after replace, want 5", len(history))
		}
		if string(history[2].Value) != "new" {
			t.Errorf("v3 value = %q, want new", history[2].Value)
		}
	})

	t.Run("out of order append lands sorted", func(t *testing.T) {
		node := types.DagNode{Version: 2, Value: []byte("two"), Timestamp: types.NowMillis()}
		if err := store.AppendDagNode(ctx, "r2", "col", types.DagNode{Version: 4, Value: []byte("four"), Timestamp: types.NowMillis()}); err != nil {
			t.Fatalf("AppendDagNode failed: %v", err)
		}
		if err := store.AppendDagNode(ctx, "r2", "col", node); err != nil {
			t.Fatalf("AppendDagNode failed: %v", err)
		}
		history, _ := store.DagHistory(ctx, "r2", "col")
		if len(history) != 2 || history[0].Version != 2 || history[1].Version != 4 {
			t.Errorf("history not sorted: %+v", history)
		}
	})

	t.Run("gc keeps newest", func(t *testing.T) {
		removed, err := store.GCDag(ctx, "r1", "col", 2)
		if err != nil {
			t.Fatalf("GCDag failed: %v", err)
		}
		if removed != 3 {
			t.Errorf("removed = %d, want 3", removed)
		}
		history, _ := store.DagHistory(ctx, "r1", "col")
		if len(history) != 2 || history[0].Version != 4 {
			t.Errorf("surviving history wrong: %+v", history)
		}
	})

	t.Run("gc on unknown column is a no-op", func(t *testing.T) {
		removed, err := store.GCDag(ctx, "r1", "nope", 1)
		if err != nil {
			t.Fatalf("GCDag failed: %v", err)
		}
		if removed != 0 {
			t.Errorf("removed = %d, want 0", removed)
		}
	})
}
