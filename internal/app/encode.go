package app

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/fslock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/beatset/beatset/internal/catalog"
	"github.com/beatset/beatset/internal/config"
	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/internal/flatten"
	"github.com/beatset/beatset/internal/ledger"
	"github.com/beatset/beatset/internal/observability"
	"github.com/beatset/beatset/internal/osutext"
	"github.com/beatset/beatset/internal/reader"
	"github.com/beatset/beatset/internal/sink"
	"github.com/beatset/beatset/internal/storage"
	"github.com/beatset/beatset/pkg/types"
)

// EncodeSummary reports one encode run.
type EncodeSummary struct {
	RunID string
	// Folders is the number of folders found in the input directory.
	Folders    int
	Candidates int
	// Existing folders are already partitions of the dataset.
	Existing int
	// Ledgered folders failed in an earlier run.
	Ledgered    int
	Succeeded   int
	Failed      int
	Interrupted bool

	Rows        int
	CarriedRows int
	Elements    int
	FileErrors  int

	AssetFiles  int
	AssetBytes  int64
	AssetErrors int

	TablesPushed int
	Duration     time.Duration

	// Errors lists the most frequent error codes of the run.
	Errors []observability.CodeStats
}

// Print writes a human readable summary to w.
func (s *EncodeSummary) Print(w io.Writer) {
	fmt.Fprintf(w, "run %s\n", s.RunID)
	fmt.Fprintf(w, "folders:  %s found, %s selected, %s already encoded, %s ledgered\n",
		humanize.Comma(int64(s.Folders)), humanize.Comma(int64(s.Candidates)),
		humanize.Comma(int64(s.Existing)), humanize.Comma(int64(s.Ledgered)))
	fmt.Fprintf(w, "results:  %s succeeded, %s failed, %s file errors\n",
		humanize.Comma(int64(s.Succeeded)), humanize.Comma(int64(s.Failed)), humanize.Comma(int64(s.FileErrors)))
	fmt.Fprintf(w, "rows:     %s new, %s carried, %s storyboard elements\n",
		humanize.Comma(int64(s.Rows)), humanize.Comma(int64(s.CarriedRows)), humanize.Comma(int64(s.Elements)))
	fmt.Fprintf(w, "assets:   %s files (%s), %s errors\n",
		humanize.Comma(int64(s.AssetFiles)), humanize.Bytes(uint64(s.AssetBytes)), humanize.Comma(int64(s.AssetErrors)))
	if s.TablesPushed > 0 {
		fmt.Fprintf(w, "remote:   %d table files pushed\n", s.TablesPushed)
	}
	if s.Interrupted {
		fmt.Fprintln(w, "interrupted: finished partitions were committed")
	}
	printErrors(w, s.Errors)
	fmt.Fprintf(w, "elapsed:  %s\n", s.Duration.Round(time.Millisecond))
}

// encodeRun carries the per-run state of Encode.
type encodeRun struct {
	app     *App
	sum     *EncodeSummary
	ledger  *ledger.Ledger
	catalog *catalog.Catalog
	run     *catalog.Run
	flat    *flatten.Flattener
	ds      *sink.Dataset
	log     *zap.Logger
	errs    *observability.ErrorStats

	// pending holds the records of emitted partitions until the commit.
	pending []*catalog.PartitionRecord
}

// Encode flattens every new folder of the input directory into the
// dataset. Folders that are already partitions, or that failed before, are
// skipped unless Force is set.
//
// A folder failure is recorded in the ledger and the run continues. A sink
// failure aborts the run and leaves the committed dataset untouched. When
// ctx is cancelled the run stops between folders and commits what it has.
func (a *App) Encode(ctx context.Context) (sum *EncodeSummary, err error) {
	start := time.Now()
	cfg := a.cfg
	log := a.logger.With(zap.String("mode", string(config.ModeEncode)))
	// bookkeeping outlives cancellation
	bg := context.WithoutCancel(ctx)

	lock := fslock.New(cfg.LockPath())
	if err := lock.TryLock(); err != nil {
		return nil, errors.NewStorageError(errors.CodeLocked,
			fmt.Sprintf("dataset %s is in use by another run", cfg.DataDir), err)
	}
	defer lock.Unlock()

	if a.remote() && !cfg.Encode.Force {
		beatmaps := filepath.Join(cfg.DataDir, types.TableBeatmaps.FileName())
		if _, err := os.Stat(beatmaps); os.IsNotExist(err) {
			if _, err := a.pullTables(ctx, cfg.DataDir); err != nil {
				return nil, err
			}
		}
	}

	folders, err := listFolders(cfg.Encode.InputDir)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool)
	if !cfg.Encode.Force {
		ids, err := reader.New(cfg.DataDir, reader.WithLogger(a.logger)).PartitionIDs(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			existing[id] = true
		}
	}

	led, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return nil, err
	}
	defer led.Close()

	cat, err := catalog.Open(cfg.CatalogPath())
	if err != nil {
		return nil, err
	}
	defer cat.Close()

	run, err := cat.BeginRun(bg, string(config.ModeEncode))
	if err != nil {
		return nil, err
	}
	sum = &EncodeSummary{RunID: run.RunID, Folders: len(folders)}
	errs := observability.NewErrorStats()
	log = log.With(zap.String("run", run.RunID))

	defer func() {
		sum.Duration = time.Since(start)
		sum.Errors = errs.Top(topErrors)
		run.Succeeded = sum.Succeeded
		run.Failed = sum.Failed
		run.Skipped = sum.Existing + sum.Ledgered
		run.RowsWritten = int64(sum.Rows)
		switch {
		case err != nil:
			run.Status = catalog.RunFailed
		case sum.Interrupted:
			run.Status = catalog.RunInterrupted
		default:
			run.Status = catalog.RunCompleted
		}
		if ferr := cat.FinishRun(bg, run); ferr != nil {
			log.Warn("failed to finish run", zap.Error(ferr))
		}
	}()

	var candidates []string
	for _, name := range folders {
		switch {
		case existing[name]:
			sum.Existing++
		case !cfg.Encode.Force && led.Contains(name):
			sum.Ledgered++
		default:
			candidates = append(candidates, name)
		}
	}
	candidates = sample(candidates, cfg.Encode.Sample, cfg.Encode.SampleSeed)
	sum.Candidates = len(candidates)
	log.Info("encode started",
		zap.Int("folders", sum.Folders),
		zap.Int("candidates", sum.Candidates),
		zap.Int("existing", sum.Existing),
		zap.Int("ledgered", sum.Ledgered),
		zap.Bool("force", cfg.Encode.Force))

	ds, err := sink.OpenDataset(ctx, sink.DatasetOptions{
		Dir:         cfg.DataDir,
		StagingRoot: cfg.StagingDir(),
		BatchSize:   cfg.Encode.BatchSize,
		Force:       cfg.Encode.Force,
		Logger:      a.logger,
	})
	if err != nil {
		return sum, err
	}

	e := &encodeRun{
		app:     a,
		sum:     sum,
		ledger:  led,
		catalog: cat,
		run:     run,
		flat:    flatten.New(osutext.NewParser(a.logger), flatten.WithLogger(a.logger)),
		ds:      ds,
		log:     log,
		errs:    errs,
	}

	prog := a.startProgress()
	var sinkErr error
	for i, name := range candidates {
		if ctx.Err() != nil {
			sum.Interrupted = true
			log.Warn("encode interrupted", zap.Int("remaining", len(candidates)-i), zap.Error(ctx.Err()))
			break
		}
		if sinkErr = e.folder(ctx, name); sinkErr != nil {
			break
		}
		prog.set("%d/%d folders, %d failed, %s rows",
			i+1, len(candidates), sum.Failed, humanize.Comma(int64(sum.Rows)))
	}
	prog.stop()
	if ctx.Err() != nil {
		sum.Interrupted = true
	}

	stats, closeErr := ds.Close()
	if err := multierr.Combine(sinkErr, closeErr); err != nil {
		if aerr := ds.Abort(); aerr != nil {
			log.Warn("failed to remove staging directory", zap.Error(aerr))
		}
		return sum, err
	}
	if err := ds.Commit(); err != nil {
		if aerr := ds.Abort(); aerr != nil {
			log.Warn("failed to remove staging directory", zap.Error(aerr))
		}
		return sum, err
	}
	for _, n := range stats.Carried {
		sum.CarriedRows += n
	}

	for _, rec := range e.pending {
		if err := cat.RecordPartition(bg, rec); err != nil {
			log.Warn("failed to record partition", zap.String("partition", rec.PartitionID), zap.Error(err))
		}
	}
	if a.remote() {
		n, err := a.pushTables(bg, cfg.DataDir)
		sum.TablesPushed = n
		if err != nil {
			return sum, err
		}
	}

	log.Info("encode finished",
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("rows", sum.Rows),
		zap.Int("carried", sum.CarriedRows),
		zap.Int("total_rows", stats.Total()),
		zap.Bool("interrupted", sum.Interrupted))
	return sum, nil
}

// folder encodes one folder. Only a sink error is returned; a folder that
// cannot be flattened is ledgered.
func (e *encodeRun) folder(ctx context.Context, name string) error {
	dir := filepath.Join(e.app.cfg.Encode.InputDir, name)
	res, err := e.flat.Folder(ctx, dir)
	if err != nil && ctx.Err() != nil {
		// interrupted, not broken; the caller stops at the next folder
		return nil
	}
	if err != nil {
		e.sum.Failed++
		e.errs.Record("folder", err)
		e.log.Warn("folder failed", zap.String("folder", name), zap.Error(err))
		if lerr := e.ledger.Record(name, err.Error()); lerr != nil {
			e.log.Warn("failed to ledger folder", zap.String("folder", name), zap.Error(lerr))
		}
		rec := &catalog.PartitionRecord{
			PartitionID: name,
			RunID:       e.run.RunID,
			Status:      catalog.PartitionFailed,
			Reason:      err.Error(),
		}
		if cerr := e.catalog.RecordPartition(context.WithoutCancel(ctx), rec); cerr != nil {
			e.log.Warn("failed to record partition", zap.String("partition", name), zap.Error(cerr))
		}
		return nil
	}
	for _, fe := range res.FileErrors {
		e.errs.Record("file", fe.Err)
		e.log.Warn("file skipped", zap.String("folder", name), zap.String("file", fe.File), zap.Error(fe.Err))
	}

	if err := e.ds.Emit(res.Rows); err != nil {
		return err
	}
	rows := res.Rows.TotalRows()
	e.sum.Succeeded++
	e.sum.Rows += rows
	e.sum.Elements += res.Elements
	e.sum.FileErrors += len(res.FileErrors)

	// the rows are already emitted; the partition's assets must follow them
	files, size, assetErrs := e.app.storeAssets(context.WithoutCancel(ctx), dir, res)
	e.sum.AssetFiles += files
	e.sum.AssetBytes += size
	e.sum.AssetErrors += len(assetErrs)
	for _, err := range assetErrs {
		e.errs.Record("asset", err)
	}

	e.pending = append(e.pending, &catalog.PartitionRecord{
		PartitionID: res.FolderID,
		RunID:       e.run.RunID,
		Status:      catalog.PartitionEncoded,
		Files:       len(res.Files),
		Rows:        int64(rows),
		Elements:    res.Elements,
		Assets:      files,
	})
	return nil
}

// storeAssets copies the folder's assets into object storage according to
// the configured asset mode. Failures are logged and returned.
func (a *App) storeAssets(ctx context.Context, dir string, res *flatten.FolderResult) (files int, size int64, errs []error) {
	prefix := flatten.AssetPrefix(res.FolderID)
	log := a.logger.With(zap.String("partition", res.FolderID))

	switch a.cfg.Encode.Assets {
	case config.AssetsNone:
		return 0, 0, nil
	case config.AssetsAll:
		n, bytes, err := storage.UploadTree(ctx, a.assets, dir, prefix, isDocument)
		if err != nil {
			err = errors.NewAssetError(errors.CodeCopyFailed, "failed to upload "+dir, err)
			log.Warn("asset upload failed", zap.Error(err))
			errs = append(errs, err)
		}
		return n, bytes, errs
	}

	for _, asset := range res.Assets {
		local := filepath.Join(dir, filepath.FromSlash(asset))
		if !filepath.IsLocal(filepath.FromSlash(asset)) {
			err := errors.NewStorageError(errors.CodeInvalidPath, asset+" is outside the folder", nil)
			log.Debug("asset skipped", zap.Error(err))
			errs = append(errs, err)
			continue
		}
		info, err := os.Stat(local)
		if err != nil || !info.Mode().IsRegular() {
			err = errors.NewAssetError(errors.CodeAssetMissing, asset+" is referenced but not present", err)
			log.Debug("asset skipped", zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if err := a.assets.Upload(ctx, local, prefix+asset); err != nil {
			err = errors.NewAssetError(errors.CodeCopyFailed, "failed to upload "+asset, err)
			log.Warn("asset upload failed", zap.Error(err))
			errs = append(errs, err)
			continue
		}
		files++
		size += info.Size()
	}
	return files, size, errs
}

// isDocument matches the beatmap and storyboard files of a folder, which
// are stored as rows rather than assets.
func isDocument(rel string) bool {
	ext := strings.ToLower(filepath.Ext(rel))
	return ext == ".osu" || ext == ".osb"
}

// listFolders returns the sorted names of the folders in dir. Hidden
// entries are ignored.
func listFolders(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryConfig, errors.CodeInvalidConfig,
			fmt.Sprintf("failed to list input directory %s", dir), err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// sample picks n names at random, keeping them sorted. A zero seed uses
// the clock.
func sample(names []string, n int, seed int64) []string {
	if n <= 0 || n >= len(names) {
		return names
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	picked := append([]string(nil), names...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	picked = picked[:n]
	sort.Strings(picked)
	return picked
}
