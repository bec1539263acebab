// Package sqlite implements the on-disk rowmesh storage backend on
// SQLite via the ncruces wasm driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/rowmesh/rowmesh/internal/storage"
	"github.com/rowmesh/rowmesh/internal/types"
)

// Store is the on-disk backend. It pins a single connection for its
// whole lifetime: rowmesh tables are single-threaded (exclusive access
// is the caller's responsibility) and transaction state lives on the
// connection. Cross-process access is guarded by SQLite's own file
// locking.
type Store struct {
	db   *sql.DB
	conn *sql.Conn
	path string
	inTx bool
}

// MemoryDSN opens a private in-memory database.
const MemoryDSN = "file::memory:?mode=memory&cache=private"

// Open opens (creating if needed) the database at path and applies the
// schema. WAL journaling with synchronous=NORMAL trades a little
// durability on power loss for merge throughput.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection, ever. Transaction state is per-connection and the
	// pool must not hand out a second one mid-merge.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			conn.Close()
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	filePath := path
	if path == MemoryDSN || path == ":memory:" {
		filePath = ""
	}
	return &Store{db: db, conn: conn, path: filePath}, nil
}

// OpenMemory opens a fresh private in-memory database.
func OpenMemory() (*Store, error) {
	return Open(MemoryDSN)
}

func (s *Store) GetCell(ctx context.Context, pk, col string) (*types.Cell, error) {
	if s.conn == nil {
		return nil, storage.ErrClosed
	}
	var value []byte
	var version int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT value, version FROM cells WHERE pk = ? AND col = ?`,
		pk, col,
	).Scan(&value, &version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cell %s:%s: %w", pk, col, err)
	}
	return &types.Cell{Value: value, Version: uint64(version)}, nil
}

func (s *Store) SetCell(ctx context.Context, pk, col string, cell types.Cell) error {
	if s.conn == nil {
		return storage.ErrClosed
	}
	_, err := s.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO cells (pk, col, value, version) VALUES (?, ?, ?, ?)`,
		pk, col, cell.Value, int64(cell.Version),
	)
	if err != nil {
		return fmt.Errorf("set cell %s:%s: %w", pk, col, err)
	}
	return nil
}

func (s *Store) GetRow(ctx context.Context, pk string) (*types.Row, error) {
	if s.conn == nil {
		return nil, storage.ErrClosed
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT col, value, version FROM cells WHERE pk = ?`, pk)
	if err != nil {
		return nil, fmt.Errorf("get row %s: %w", pk, err)
	}
	defer rows.Close()

	cells := make(map[string]types.Cell)
	for rows.Next() {
		var col string
		var value []byte
		var version int64
		if err := rows.Scan(&col, &value, &version); err != nil {
			return nil, fmt.Errorf("scan row %s: %w", pk, err)
		}
		cells[col] = types.Cell{Value: value, Version: uint64(version)}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate row %s: %w", pk, err)
	}
	if len(cells) == 0 {
		return nil, nil
	}
	return &types.Row{PK: pk, Cells: cells}, nil
}

func (s *Store) DeleteRow(ctx context.Context, pk string) error {
	if s.conn == nil {
		return storage.ErrClosed
	}
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM cells WHERE pk = ?`, pk); err != nil {
		return fmt.Errorf("delete cells %s: %w", pk, err)
	}
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM dag WHERE pk = ?`, pk); err != nil {
		return fmt.Errorf("delete dag %s: %w", pk, err)
	}
	return nil
}

func (s *Store) RowCount(ctx context.Context) (int, error) {
	if s.conn == nil {
		return 0, storage.ErrClosed
	}
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(DISTINCT pk) FROM cells`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("row count: %w", err)
	}
	return n, nil
}

func (s *Store) AllPKs(ctx context.Context) ([]string, error) {
	if s.conn == nil {
		return nil, storage.ErrClosed
	}
	rows, err := s.conn.QueryContext(ctx, `SELECT DISTINCT pk FROM cells ORDER BY pk`)
	if err != nil {
		return nil, fmt.Errorf("all pks: %w", err)
	}
	defer rows.Close()

	var pks []string
	for rows.Next() {
		var pk string
		if err := rows.Scan(&pk); err != nil {
			return nil, fmt.Errorf("scan pk: %w", err)
		}
		pks = append(pks, pk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pks: %w", err)
	}
	return pks, nil
}

func (s *Store) AppendDagNode(ctx context.Context, pk, col string, node types.DagNode) error {
	if s.conn == nil {
		return storage.ErrClosed
	}
	_, err := s.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO dag
		 (pk, col, version, value, parent_version, parent2_version, timestamp, is_tombstone)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pk, col, int64(node.Version), node.Value,
		nullableVersion(node.ParentVersion), nullableVersion(node.Parent2Version),
		node.Timestamp, boolToInt(node.IsTombstone),
	)
	if err != nil {
		return fmt.Errorf("append dag node %s:%s v%d: %w", pk, col, node.Version, err)
	}
	return nil
}

func (s *Store) DagHistory(ctx context.Context, pk, col string) ([]types.DagNode, error) {
	if s.conn == nil {
		return nil, storage.ErrClosed
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT version, value, parent_version, parent2_version, timestamp, is_tombstone
		 FROM dag WHERE pk = ? AND col = ? ORDER BY version`, pk, col)
	if err != nil {
		return nil, fmt.Errorf("dag history %s:%s: %w", pk, col, err)
	}
	defer rows.Close()

	var nodes []types.DagNode
	for rows.Next() {
		var version, timestamp int64
		var value []byte
		var parent, parent2 sql.NullInt64
		var tombstone int
		if err := rows.Scan(&version, &value, &parent, &parent2, &timestamp, &tombstone); err != nil {
			return nil, fmt.Errorf("scan dag node %s:%s: %w", pk, col, err)
		}
		nodes = append(nodes, types.DagNode{
			Version:        uint64(version),
			Value:          value,
			ParentVersion:  uint64(parent.Int64),
			Parent2Version: uint64(parent2.Int64),
			Timestamp:      timestamp,
			IsTombstone:    tombstone != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dag %s:%s: %w", pk, col, err)
	}
	return nodes, nil
}

func (s *Store) GCDag(ctx context.Context, pk, col string, keepN int) (int, error) {
	if s.conn == nil {
		return 0, storage.ErrClosed
	}
	history, err := s.DagHistory(ctx, pk, col)
	if err != nil {
		return 0, err
	}
	if len(history) <= keepN {
		return 0, nil
	}
	// History is version-ascending; everything below the cutoff goes.
	// keepN < 1 sets the cutoff past the head, dropping every node.
	cutoff := history[len(history)-1].Version + 1
	if keepN > 0 {
		cutoff = history[len(history)-keepN].Version
	}

	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM dag WHERE pk = ? AND col = ? AND version < ?`,
		pk, col, int64(cutoff))
	if err != nil {
		return 0, fmt.Errorf("gc dag %s:%s: %w", pk, col, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("gc dag %s:%s: %w", pk, col, err)
	}
	return int(n), nil
}

// BeginTx opens a serial transaction boundary. BEGIN IMMEDIATE takes the
// write lock up front so a merge never deadlocks against a concurrent
// process holding a read lock. Reentrant calls are no-ops.
func (s *Store) BeginTx(ctx context.Context) error {
	if s.conn == nil {
		return storage.ErrClosed
	}
	if s.inTx {
		return nil
	}
	if _, err := s.conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	s.inTx = true
	return nil
}

func (s *Store) CommitTx(ctx context.Context) error {
	if s.conn == nil {
		return storage.ErrClosed
	}
	if !s.inTx {
		return nil
	}
	if _, err := s.conn.ExecContext(ctx, `COMMIT`); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.inTx = false
	return nil
}

func (s *Store) RollbackTx(ctx context.Context) error {
	if s.conn == nil {
		return storage.ErrClosed
	}
	if !s.inTx {
		return nil
	}
	if _, err := s.conn.ExecContext(ctx, `ROLLBACK`); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	s.inTx = false
	return nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	connErr := s.conn.Close()
	dbErr := s.db.Close()
	s.conn = nil
	s.db = nil
	if connErr != nil {
		return connErr
	}
	return dbErr
}

func nullableVersion(v uint64) any {
	if v == 0 {
		return nil
	}
	return int64(v)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ storage.Storage = (*Store)(nil)
