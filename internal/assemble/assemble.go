// Package assemble writes the reconstructed documents of a partition back
// into a folder: one .osu file per beatmap, a companion .osb per beatmap
// with embedded storyboard content, the standalone storyboards, and the
// partition's assets.
package assemble

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/internal/flatten"
	"github.com/beatset/beatset/internal/osutext"
	"github.com/beatset/beatset/internal/reconstruct"
	"github.com/beatset/beatset/internal/storage"
	"github.com/beatset/beatset/pkg/types"
)

// Report is the outcome of assembling one partition.
type Report struct {
	PartitionID string
	OutputDir   string
	// Files lists the written files relative to OutputDir.
	Files              []string
	StoryboardElements int
	AssetsCopied       int
	FileErrors         []flatten.FileError
	ObjectErrors       []reconstruct.ObjectError
	// AssetErrors is keyed by object path.
	AssetErrors map[string]error
}

// Failed reports whether any beatmap file could not be written.
func (r *Report) Failed() bool {
	return len(r.FileErrors) > 0
}

// Assembler turns partition rows into folders under an output directory.
type Assembler struct {
	outDir      string
	assets      storage.ObjectStorage
	concurrency int
	logger      *zap.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithAssets copies each partition's assets from store, downloading up to
// concurrency objects at a time.
func WithAssets(store storage.ObjectStorage, concurrency int) Option {
	return func(a *Assembler) {
		a.assets = store
		a.concurrency = concurrency
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// New returns an assembler writing under outDir.
func New(outDir string, opts ...Option) *Assembler {
	a := &Assembler{outDir: outDir, concurrency: 4}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a
}

// Folder writes partition partitionID from rows into <outDir>/<partitionID>.
// Failures of single files, objects and assets are collected in the report.
// An error is returned only when the partition holds no beatmap or its
// folder cannot be created.
func (a *Assembler) Folder(ctx context.Context, partitionID string, rows *types.RowSet) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(rows.Beatmaps) == 0 {
		return nil, errors.NewReferenceError(errors.CodeNoBeatmapFiles,
			fmt.Sprintf("partition %s has no beatmap rows", partitionID), nil)
	}
	dir, err := storage.CleanObjectPath(partitionID)
	if err != nil {
		return nil, err
	}
	report := &Report{
		PartitionID: partitionID,
		OutputDir:   filepath.Join(a.outDir, filepath.FromSlash(dir)),
		AssetErrors: make(map[string]error),
	}
	if err := os.MkdirAll(report.OutputDir, 0755); err != nil {
		return nil, errors.NewAssetError(errors.CodeCopyFailed,
			fmt.Sprintf("failed to create %s", report.OutputDir), err)
	}
	log := a.logger.With(zap.String("partition", partitionID))

	for i := range rows.Beatmaps {
		a.beatmap(report, &rows.Beatmaps[i], rows)
	}
	for _, src := range rows.StoryboardSources(false) {
		a.storyboard(report, src, rows)
	}
	if a.assets != nil {
		a.copyAssets(ctx, report, &rows.Beatmaps[0])
	}

	for _, oe := range report.ObjectErrors {
		log.Debug("object skipped", zap.Error(oe))
	}
	for _, fe := range report.FileErrors {
		log.Warn("file not written", zap.String("file", fe.File), zap.Error(fe.Err))
	}
	return report, nil
}

// beatmap writes one .osu file and, when the file carried embedded
// storyboard rows, its companion .osb.
func (a *Assembler) beatmap(report *Report, meta *types.BeatmapRow, rows *types.RowSet) {
	bm, objErrs := reconstruct.Beatmap(meta, rows.ForFile(meta.OsuFile))
	report.ObjectErrors = append(report.ObjectErrors, objErrs...)
	if err := a.write(report, meta.OsuFile, func(w io.Writer) error {
		return osutext.EncodeBeatmap(w, bm)
	}); err != nil {
		report.FileErrors = append(report.FileErrors, flatten.FileError{File: meta.OsuFile, Err: err})
		return
	}

	embedded := rows.ForSource(meta.OsuFile, true)
	if len(embedded.StoryboardElements) == 0 {
		return
	}
	sb, objErrs := reconstruct.Storyboard(meta.OsuFile, embedded)
	report.ObjectErrors = append(report.ObjectErrors, objErrs...)
	if sb.ElementCount() == 0 {
		return
	}
	name := strings.TrimSuffix(meta.OsuFile, filepath.Ext(meta.OsuFile)) + ".osb"
	if err := a.write(report, name, func(w io.Writer) error {
		return osutext.EncodeStoryboard(w, sb)
	}); err != nil {
		report.FileErrors = append(report.FileErrors, flatten.FileError{File: name, Err: err})
		return
	}
	report.StoryboardElements += sb.ElementCount()
}

// storyboard writes a standalone storyboard file. Storyboards holding only
// samples or videos are counted but not written.
func (a *Assembler) storyboard(report *Report, sourceFile string, rows *types.RowSet) {
	sb, objErrs := reconstruct.Storyboard(sourceFile, rows.ForSource(sourceFile, false))
	report.ObjectErrors = append(report.ObjectErrors, objErrs...)
	report.StoryboardElements += sb.ElementCount()
	if !sb.HasDrawable() || !strings.EqualFold(filepath.Ext(sourceFile), ".osb") {
		return
	}
	if err := a.write(report, sourceFile, func(w io.Writer) error {
		return osutext.EncodeStoryboard(w, sb)
	}); err != nil {
		report.FileErrors = append(report.FileErrors, flatten.FileError{File: sourceFile, Err: err})
	}
}

// write creates name inside the report's folder through encode.
func (a *Assembler) write(report *Report, name string, encode func(io.Writer) error) (err error) {
	rel, err := storage.CleanObjectPath(name)
	if err != nil {
		return err
	}
	path := filepath.Join(report.OutputDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewAssetError(errors.CodeCopyFailed, "failed to create directory for "+rel, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.NewAssetError(errors.CodeCopyFailed, "failed to create "+rel, err)
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	bw := bufio.NewWriter(f)
	if err := encode(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return errors.NewAssetError(errors.CodeCopyFailed, "failed to write "+rel, err)
	}
	report.Files = append(report.Files, rel)
	return nil
}

// copyAssets downloads every stored asset of the partition into its folder.
// Audio and background go first.
func (a *Assembler) copyAssets(ctx context.Context, report *Report, meta *types.BeatmapRow) {
	prefix := flatten.AssetPrefix(report.PartitionID)
	objects, err := a.assets.ListObjects(ctx, prefix)
	if err != nil {
		report.AssetErrors[prefix] = err
		a.logger.Warn("failed to list assets", zap.String("prefix", prefix), zap.Error(err))
		return
	}
	if len(objects) == 0 {
		return
	}

	primary := map[string]bool{
		meta.AudioPath:      meta.AudioPath != "",
		meta.BackgroundPath: meta.BackgroundPath != "",
	}
	priority := make([]int, len(objects))
	for i, obj := range objects {
		if !primary[obj] {
			priority[i] = 1
		}
	}

	downloader := storage.NewBatchDownloader(a.assets, a.concurrency, report.OutputDir)
	res, err := downloader.Download(ctx, &storage.BatchRequest{
		ObjectPaths: objects,
		Priority:    priority,
		TrimPrefix:  prefix,
	})
	if err != nil {
		report.AssetErrors[prefix] = err
		return
	}
	report.AssetsCopied = len(res.LocalPaths)
	for obj, err := range res.Errors {
		report.AssetErrors[obj] = errors.NewAssetError(errors.CodeCopyFailed, "failed to copy "+obj, err)
		a.logger.Warn("asset not copied", zap.String("object", obj), zap.Error(err))
	}
}
