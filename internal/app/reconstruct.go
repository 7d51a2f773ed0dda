package app

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/beatset/beatset/internal/assemble"
	"github.com/beatset/beatset/internal/catalog"
	"github.com/beatset/beatset/internal/config"
	"github.com/beatset/beatset/internal/observability"
	"github.com/beatset/beatset/internal/reader"
)

// ReconstructSummary reports one reconstruct run.
type ReconstructSummary struct {
	RunID      string
	Partitions int
	Succeeded  int
	Failed     int

	Files        int
	Elements     int
	Assets       int
	FileErrors   int
	ObjectErrors int
	AssetErrors  int

	// Failures is keyed by partition id.
	Failures     map[string]error
	TablesPulled int
	Duration     time.Duration

	// Errors lists the most frequent error codes of the run.
	Errors []observability.CodeStats
}

func (s *ReconstructSummary) add(r *assemble.Report) {
	s.Files += len(r.Files)
	s.Elements += r.StoryboardElements
	s.Assets += r.AssetsCopied
	s.FileErrors += len(r.FileErrors)
	s.ObjectErrors += len(r.ObjectErrors)
	s.AssetErrors += len(r.AssetErrors)
}

// Print writes a human readable summary to w.
func (s *ReconstructSummary) Print(w io.Writer) {
	fmt.Fprintf(w, "run %s\n", s.RunID)
	fmt.Fprintf(w, "partitions: %s selected, %s succeeded, %s failed\n",
		humanize.Comma(int64(s.Partitions)), humanize.Comma(int64(s.Succeeded)), humanize.Comma(int64(s.Failed)))
	fmt.Fprintf(w, "files:      %s written, %s storyboard elements, %s assets\n",
		humanize.Comma(int64(s.Files)), humanize.Comma(int64(s.Elements)), humanize.Comma(int64(s.Assets)))
	fmt.Fprintf(w, "errors:     %d file, %d object, %d asset\n", s.FileErrors, s.ObjectErrors, s.AssetErrors)
	ids := make([]string, 0, len(s.Failures))
	for id := range s.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  %s: %v\n", id, s.Failures[id])
	}
	printErrors(w, s.Errors)
	fmt.Fprintf(w, "elapsed:    %s\n", s.Duration.Round(time.Millisecond))
}

// Reconstruct rebuilds the selected partitions into folders under the
// output directory, several partitions at a time. A partition that fails
// is reported and the others continue.
func (a *App) Reconstruct(ctx context.Context) (sum *ReconstructSummary, err error) {
	start := time.Now()
	cfg := a.cfg
	log := a.logger.With(zap.String("mode", string(config.ModeReconstruct)))
	sum = &ReconstructSummary{Failures: make(map[string]error)}
	errs := observability.NewErrorStats()

	dataDir := cfg.DataDir
	if a.remote() {
		dataDir = cfg.Reconstruct.CacheDir
		if sum.TablesPulled, err = a.pullTables(ctx, dataDir); err != nil {
			return nil, err
		}
	}

	ids, err := a.targetPartitions(ctx, dataDir)
	if err != nil {
		return nil, err
	}
	sum.Partitions = len(ids)

	cat, err := catalog.Open(cfg.CatalogPath())
	if err != nil {
		return nil, err
	}
	defer cat.Close()
	run, err := cat.BeginRun(context.WithoutCancel(ctx), string(config.ModeReconstruct))
	if err != nil {
		return nil, err
	}
	sum.RunID = run.RunID
	log = log.With(zap.String("run", run.RunID))
	defer func() {
		sum.Duration = time.Since(start)
		sum.Errors = errs.Top(topErrors)
		run.Succeeded = sum.Succeeded
		run.Failed = sum.Failed
		run.Status = catalog.RunCompleted
		if err != nil {
			run.Status = catalog.RunFailed
		} else if ctx.Err() != nil {
			run.Status = catalog.RunInterrupted
		}
		if ferr := cat.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
			log.Warn("failed to finish run", zap.Error(ferr))
		}
	}()

	log.Info("reconstruct started",
		zap.Int("partitions", len(ids)),
		zap.String("data_dir", dataDir),
		zap.String("output_dir", cfg.Reconstruct.OutputDir))

	asm := assemble.New(cfg.Reconstruct.OutputDir,
		assemble.WithAssets(a.assets, cfg.Reconstruct.Concurrency),
		assemble.WithLogger(a.logger))

	sem := semaphore.NewWeighted(int64(cfg.Reconstruct.Concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex
	done := 0
	prog := a.startProgress()

	finish := func(id string, report *assemble.Report, err error) {
		mu.Lock()
		defer mu.Unlock()
		done++
		if err != nil {
			sum.Failed++
			sum.Failures[id] = err
			errs.Record("partition", err)
			log.Warn("partition failed", zap.String("partition", id), zap.Error(err))
		} else {
			sum.Succeeded++
			sum.add(report)
			recordReport(errs, report)
			if report.Failed() {
				log.Warn("partition incomplete", zap.String("partition", id), zap.Int("file_errors", len(report.FileErrors)))
			}
		}
		prog.set("%d/%d partitions, %d failed", done, len(ids), sum.Failed)
	}

	for _, id := range ids {
		if err := sem.Acquire(ctx, 1); err != nil {
			finish(id, nil, err)
			continue
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer sem.Release(1)
			report, err := a.reconstructPartition(ctx, asm, dataDir, id)
			finish(id, report, err)
		}(id)
	}
	wg.Wait()
	prog.stop()

	log.Info("reconstruct finished",
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("files", sum.Files),
		zap.Int("assets", sum.Assets))
	return sum, nil
}

func recordReport(errs *observability.ErrorStats, r *assemble.Report) {
	for _, fe := range r.FileErrors {
		errs.Record("file", fe.Err)
	}
	for _, oe := range r.ObjectErrors {
		errs.Record("object", oe)
	}
	for _, err := range r.AssetErrors {
		errs.Record("asset", err)
	}
}

// targetPartitions returns the configured partition, or the dataset's
// partitions up to the configured limit.
func (a *App) targetPartitions(ctx context.Context, dataDir string) ([]string, error) {
	if id := a.cfg.Reconstruct.PartitionID; id != "" {
		return []string{id}, nil
	}
	ids, err := reader.New(dataDir, reader.WithLogger(a.logger)).PartitionIDs(ctx)
	if err != nil {
		return nil, err
	}
	if limit := a.cfg.Reconstruct.Limit; limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	return ids, nil
}

func (a *App) reconstructPartition(ctx context.Context, asm *assemble.Assembler, dataDir, id string) (*assemble.Report, error) {
	r := reader.New(dataDir,
		reader.WithChunkSize(a.cfg.Reconstruct.ChunkSize),
		reader.WithLogger(a.logger))
	rows, err := r.LoadPartition(ctx, id)
	if err != nil {
		return nil, err
	}
	report, err := asm.Folder(ctx, id, rows)
	if err != nil {
		return nil, err
	}
	st := r.Stats()
	a.logger.Debug("partition reconstructed",
		zap.String("partition", id),
		zap.Int("files", len(report.Files)),
		zap.Int64("chunks_read", st.ChunksRead),
		zap.Int64("row_groups_pruned", st.RowGroupsPruned))
	return report, nil
}
