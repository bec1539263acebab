package sqlite

const schema = `
-- Current cells, one per (pk, col). version 0 never appears here;
-- absence of the row is "absent".
CREATE TABLE IF NOT EXISTS cells (
    pk TEXT NOT NULL,
    col TEXT NOT NULL,
    value BLOB NOT NULL,
    version INTEGER NOT NULL,
    PRIMARY KEY (pk, col)
) WITHOUT ROWID;

-- Per-column version history. parent_version/parent2_version may
-- reference versions already pruned by GC (dangling parents are
-- permitted; merge never reads this table). parent2_version is set only
-- on nodes created by a tiebreak-accepting merge and records merge
-- provenance, nothing more.
CREATE TABLE IF NOT EXISTS dag (
    pk TEXT NOT NULL,
    col TEXT NOT NULL,
    version INTEGER NOT NULL,
    value BLOB NOT NULL,
    parent_version INTEGER,
    parent2_version INTEGER,
    timestamp INTEGER NOT NULL,
    is_tombstone INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (pk, col, version)
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS idx_dag_pk_col ON dag(pk, col);
`
