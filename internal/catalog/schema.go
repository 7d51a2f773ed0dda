// Package catalog records encode runs and per-partition outcomes in a
// SQLite database next to the dataset. The catalog is for reporting only;
// the beatmaps table remains the source of truth for which partitions a
// dataset holds.
package catalog

// CreateRunsTableSQL creates the runs table. Times are unix milliseconds.
const CreateRunsTableSQL = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    finished_at INTEGER,
    status TEXT NOT NULL,
    succeeded INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    rows_written INTEGER NOT NULL DEFAULT 0
)`

// CreatePartitionsTableSQL creates the partitions table, holding the latest
// outcome of each partition.
const CreatePartitionsTableSQL = `
CREATE TABLE IF NOT EXISTS partitions (
    partition_id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    status TEXT NOT NULL,
    files INTEGER NOT NULL DEFAULT 0,
    rows INTEGER NOT NULL DEFAULT 0,
    elements INTEGER NOT NULL DEFAULT 0,
    assets INTEGER NOT NULL DEFAULT 0,
    reason TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (run_id) REFERENCES runs(run_id)
)`

var createIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_partitions_status ON partitions(status)`,
	`CREATE INDEX IF NOT EXISTS idx_partitions_run ON partitions(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
}

// AllSchemaSQL returns every schema statement in execution order.
func AllSchemaSQL() []string {
	stmts := []string{CreateRunsTableSQL, CreatePartitionsTableSQL}
	return append(stmts, createIndexesSQL...)
}
