package app

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/beatset/beatset/internal/catalog"
	"github.com/beatset/beatset/internal/ledger"
	"github.com/beatset/beatset/internal/reader"
)

// Partitions lists the dataset's partition ids with their catalog status,
// then the totals and the most recent runs.
func (a *App) Partitions(ctx context.Context, out io.Writer) error {
	dataDir := a.cfg.DataDir
	if a.remote() {
		dataDir = a.cfg.Reconstruct.CacheDir
		if _, err := a.pullTables(ctx, dataDir); err != nil {
			return err
		}
	}
	ids, err := reader.New(dataDir, reader.WithLogger(a.logger)).PartitionIDs(ctx)
	if err != nil {
		return err
	}

	cat, err := catalog.Open(a.cfg.CatalogPath())
	if err != nil {
		return err
	}
	defer cat.Close()
	records, err := cat.ListPartitions(ctx, "")
	if err != nil {
		return err
	}
	byID := make(map[string]*catalog.PartitionRecord, len(records))
	for _, rec := range records {
		byID[rec.PartitionID] = rec
	}

	for _, id := range ids {
		rec, ok := byID[id]
		if !ok {
			fmt.Fprintln(out, id)
			continue
		}
		fmt.Fprintf(out, "%s\t%s rows\t%d files\t%d assets\n",
			id, humanize.Comma(rec.Rows), rec.Files, rec.Assets)
	}

	led, err := ledger.Open(a.cfg.LedgerPath())
	if err != nil {
		return err
	}
	defer led.Close()

	counts, err := cat.CountByStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s partitions, %s ledgered failures\n",
		humanize.Comma(int64(len(ids))), humanize.Comma(int64(led.Len())))
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(out, "catalog %s: %d\n", s, counts[s])
	}

	runs, err := cat.Runs(ctx, 5)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Fprintf(out, "run %s %s %s (%d ok, %d failed) %s\n",
			r.RunID, r.Mode, r.Status, r.Succeeded, r.Failed, humanize.Time(r.StartedAt))
	}
	return nil
}
