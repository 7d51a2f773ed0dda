package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/beatset/beatset/internal/errors"
)

func setupTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCatalog_RunLifecycle(t *testing.T) {
	c := setupTestCatalog(t)
	ctx := context.Background()

	run, err := c.BeginRun(ctx, "encode")
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	if len(run.RunID) != 26 {
		t.Errorf("unexpected run id %q", run.RunID)
	}
	if run.Status != RunRunning {
		t.Errorf("expected running status, got %s", run.Status)
	}

	run.Status = RunCompleted
	run.Succeeded = 3
	run.Failed = 1
	run.RowsWritten = 1200
	if err := c.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	second, err := c.BeginRun(ctx, "encode")
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	runs, err := c.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != second.RunID {
		t.Errorf("expected newest run first, got %s", runs[0].RunID)
	}
	got := runs[1]
	if got.Status != RunCompleted || got.Succeeded != 3 || got.Failed != 1 || got.RowsWritten != 1200 {
		t.Errorf("unexpected finished run %+v", got)
	}
	if got.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
	if runs[0].FinishedAt != nil {
		t.Error("running run should not have finished_at")
	}

	limited, err := c.Runs(ctx, 1)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 run with limit, got %d", len(limited))
	}
}

func TestCatalog_FinishUnknownRun(t *testing.T) {
	c := setupTestCatalog(t)
	err := c.FinishRun(context.Background(), &Run{RunID: "missing", Status: RunFailed})
	if !errors.IsCategory(err, errors.ErrCategoryCatalog) {
		t.Errorf("expected catalog error, got %v", err)
	}
}

func TestCatalog_RecordPartition(t *testing.T) {
	c := setupTestCatalog(t)
	ctx := context.Background()

	run, err := c.BeginRun(ctx, "encode")
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	records := []*PartitionRecord{
		{PartitionID: "200", RunID: run.RunID, Status: PartitionEncoded, Files: 3, Rows: 900, Elements: 12, Assets: 4},
		{PartitionID: "100", RunID: run.RunID, Status: PartitionFailed, Reason: "no .osu files"},
		{PartitionID: "300", RunID: run.RunID, Status: PartitionSkipped},
	}
	for _, rec := range records {
		if err := c.RecordPartition(ctx, rec); err != nil {
			t.Fatalf("RecordPartition(%s) failed: %v", rec.PartitionID, err)
		}
	}

	got, err := c.GetPartition(ctx, "200")
	if err != nil {
		t.Fatalf("GetPartition failed: %v", err)
	}
	if got == nil || got.Rows != 900 || got.Files != 3 || got.Elements != 12 || got.Assets != 4 {
		t.Errorf("unexpected record %+v", got)
	}

	missing, err := c.GetPartition(ctx, "404")
	if err != nil {
		t.Fatalf("GetPartition failed: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown partition")
	}

	all, err := c.ListPartitions(ctx, "")
	if err != nil {
		t.Fatalf("ListPartitions failed: %v", err)
	}
	if len(all) != 3 || all[0].PartitionID != "100" || all[2].PartitionID != "300" {
		t.Errorf("unexpected listing order")
	}

	failed, err := c.ListPartitions(ctx, PartitionFailed)
	if err != nil {
		t.Fatalf("ListPartitions failed: %v", err)
	}
	if len(failed) != 1 || failed[0].Reason != "no .osu files" {
		t.Errorf("unexpected failed partitions %+v", failed)
	}

	// A later success replaces the failure.
	retry := &PartitionRecord{PartitionID: "100", RunID: run.RunID, Status: PartitionEncoded, Files: 1, Rows: 10}
	if err := c.RecordPartition(ctx, retry); err != nil {
		t.Fatalf("RecordPartition failed: %v", err)
	}
	counts, err := c.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus failed: %v", err)
	}
	if counts[PartitionEncoded] != 2 || counts[PartitionSkipped] != 1 || counts[PartitionFailed] != 0 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestCatalog_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	run, err := c.BeginRun(ctx, "encode")
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}
	if err := c.RecordPartition(ctx, &PartitionRecord{PartitionID: "1", RunID: run.RunID, Status: PartitionEncoded}); err != nil {
		t.Fatalf("RecordPartition failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	c, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer c.Close()
	got, err := c.GetPartition(ctx, "1")
	if err != nil || got == nil {
		t.Fatalf("expected partition after reopen, got %v, %v", got, err)
	}
	if got.RunID != run.RunID {
		t.Errorf("run id mismatch: %s vs %s", got.RunID, run.RunID)
	}
}
