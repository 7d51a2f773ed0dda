package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/pkg/types"
)

// Run states.
const (
	RunRunning     = "running"
	RunCompleted   = "completed"
	RunInterrupted = "interrupted"
	RunFailed      = "failed"
)

// Partition states.
const (
	PartitionEncoded = "encoded"
	PartitionFailed  = "failed"
	PartitionSkipped = "skipped"
)

// Run is one encode or reconstruct invocation.
type Run struct {
	RunID       string
	Mode        string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Status      string
	Succeeded   int
	Failed      int
	Skipped     int
	RowsWritten int64
}

// PartitionRecord is the latest known outcome of a partition.
type PartitionRecord struct {
	PartitionID string
	RunID       string
	Status      string
	Files       int
	Rows        int64
	Elements    int
	Assets      int
	Reason      string
	UpdatedAt   time.Time
}

// Catalog is the SQLite run catalog.
type Catalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB
	path   string
	mu     sync.Mutex
	ids    *types.RunIDGenerator
}

// Open opens or creates the catalog database at path.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=1")
	if err != nil {
		return nil, errors.NewCatalogError("failed to open database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &Catalog{db: db, path: path, ids: types.NewRunIDGenerator()}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, errors.NewCatalogError("failed to initialize schema", err)
	}

	readDB, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		db.Close()
		return nil, errors.NewCatalogError("failed to open read database", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	c.readDB = readDB
	return c, nil
}

func (c *Catalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Path returns the database file.
func (c *Catalog) Path() string { return c.path }

// BeginRun inserts a running run with a fresh ID.
func (c *Catalog) BeginRun(ctx context.Context, mode string) (*Run, error) {
	id, err := c.ids.Next()
	if err != nil {
		return nil, errors.NewCatalogError("failed to generate run id", err)
	}
	run := &Run{
		RunID:     id.String(),
		Mode:      mode,
		StartedAt: id.Time(),
		Status:    RunRunning,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, mode, started_at, status) VALUES (?, ?, ?, ?)`,
		run.RunID, run.Mode, run.StartedAt.UnixMilli(), run.Status)
	if err != nil {
		return nil, errors.NewCatalogError("failed to insert run", err)
	}
	return run, nil
}

// FinishRun stores the final counters and status of run.
func (c *Catalog) FinishRun(ctx context.Context, run *Run) error {
	now := time.Now()
	run.FinishedAt = &now

	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = ?, succeeded = ?, failed = ?, skipped = ?, rows_written = ?
		WHERE run_id = ?`,
		now.UnixMilli(), run.Status, run.Succeeded, run.Failed, run.Skipped, run.RowsWritten, run.RunID)
	if err != nil {
		return errors.NewCatalogError("failed to update run "+run.RunID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewCatalogError("run "+run.RunID+" not found", nil)
	}
	return nil
}

// RecordPartition stores the outcome of a partition, replacing any
// earlier one.
func (c *Catalog) RecordPartition(ctx context.Context, rec *PartitionRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO partitions (partition_id, run_id, status, files, rows, elements, assets, reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(partition_id) DO UPDATE SET
			run_id = excluded.run_id,
			status = excluded.status,
			files = excluded.files,
			rows = excluded.rows,
			elements = excluded.elements,
			assets = excluded.assets,
			reason = excluded.reason,
			updated_at = excluded.updated_at`,
		rec.PartitionID, rec.RunID, rec.Status, rec.Files, rec.Rows, rec.Elements, rec.Assets,
		rec.Reason, rec.UpdatedAt.UnixMilli())
	if err != nil {
		return errors.NewCatalogError("failed to record partition "+rec.PartitionID, err)
	}
	return nil
}

const partitionColumns = `partition_id, run_id, status, files, rows, elements, assets, reason, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPartition(s scanner) (*PartitionRecord, error) {
	var rec PartitionRecord
	var updated int64
	if err := s.Scan(&rec.PartitionID, &rec.RunID, &rec.Status, &rec.Files, &rec.Rows,
		&rec.Elements, &rec.Assets, &rec.Reason, &updated); err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.UnixMilli(updated)
	return &rec, nil
}

// GetPartition returns the record of partitionID, or nil when it has none.
func (c *Catalog) GetPartition(ctx context.Context, partitionID string) (*PartitionRecord, error) {
	row := c.readDB.QueryRowContext(ctx,
		`SELECT `+partitionColumns+` FROM partitions WHERE partition_id = ?`, partitionID)
	rec, err := scanPartition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewCatalogError("failed to get partition "+partitionID, err)
	}
	return rec, nil
}

// ListPartitions returns the partitions with the given status, or all
// partitions when status is empty, ordered by partition id.
func (c *Catalog) ListPartitions(ctx context.Context, status string) ([]*PartitionRecord, error) {
	query := `SELECT ` + partitionColumns + ` FROM partitions`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY partition_id`

	rows, err := c.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewCatalogError("failed to list partitions", err)
	}
	defer rows.Close()

	var out []*PartitionRecord
	for rows.Next() {
		rec, err := scanPartition(rows)
		if err != nil {
			return nil, errors.NewCatalogError("failed to scan partition", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewCatalogError("failed to list partitions", err)
	}
	return out, nil
}

// CountByStatus returns the number of partitions per status.
func (c *Catalog) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := c.readDB.QueryContext(ctx, `SELECT status, COUNT(*) FROM partitions GROUP BY status`)
	if err != nil {
		return nil, errors.NewCatalogError("failed to count partitions", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.NewCatalogError("failed to scan partition count", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Runs returns up to limit runs, newest first. A limit of 0 returns all.
func (c *Catalog) Runs(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT run_id, mode, started_at, finished_at, status, succeeded, failed, skipped, rows_written
		FROM runs ORDER BY run_id DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewCatalogError("failed to list runs", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		var r Run
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&r.RunID, &r.Mode, &started, &finished, &r.Status,
			&r.Succeeded, &r.Failed, &r.Skipped, &r.RowsWritten); err != nil {
			return nil, errors.NewCatalogError("failed to scan run", err)
		}
		r.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			t := time.UnixMilli(finished.Int64)
			r.FinishedAt = &t
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewCatalogError("failed to list runs", err)
	}
	return out, nil
}

// Close closes both connections.
func (c *Catalog) Close() error {
	if err := c.readDB.Close(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}
