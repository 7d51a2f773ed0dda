package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/internal/logger"
	"github.com/beatset/beatset/internal/reader"
	"github.com/beatset/beatset/internal/schema"
	"github.com/beatset/beatset/internal/zonemap"
	"github.com/beatset/beatset/pkg/types"
)

// DatasetOptions configures a Dataset.
type DatasetOptions struct {
	// Dir is the dataset directory holding the committed table files.
	Dir string
	// StagingRoot holds per-run staging directories. Defaults to Dir/.staging.
	StagingRoot string
	// BatchSize is the per-table write batch size.
	BatchSize int
	// Force discards the rows of the committed dataset instead of carrying
	// them into the new files.
	Force  bool
	Logger *zap.Logger
}

// Stats reports rows per table for one run.
type Stats struct {
	Written map[types.Table]int
	Carried map[types.Table]int
}

// Total returns the rows written across tables, carried rows included.
func (s Stats) Total() int {
	n := 0
	for _, v := range s.Written {
		n += v
	}
	return n
}

// Dataset owns one BatchWriter per table. New rows are written into a
// staging directory; Commit moves the finished files over the dataset.
//
// Unless Force is set, the rows of the committed dataset are copied into the
// staged files first, so a run appends partitions to the dataset instead of
// replacing it.
type Dataset struct {
	dir     string
	staging string
	logger  *zap.Logger

	beatmaps            *BatchWriter[types.BeatmapRow]
	hitObjects          *BatchWriter[types.HitObjectRow]
	timingPoints        *BatchWriter[types.TimingPointRow]
	storyboardElements  *BatchWriter[types.StoryboardElementRow]
	storyboardCommands  *BatchWriter[types.StoryboardCommandRow]
	sliderControlPoints *BatchWriter[types.SliderControlPointRow]
	sliderData          *BatchWriter[types.SliderDataRow]
	breaks              *BatchWriter[types.BreakRow]
	comboColors         *BatchWriter[types.ComboColorRow]
	hitSamples          *BatchWriter[types.HitSampleRow]
	storyboardLoops     *BatchWriter[types.StoryboardLoopRow]
	storyboardTriggers  *BatchWriter[types.StoryboardTriggerRow]

	carried map[types.Table]int
	stats   *Stats
	closed  bool
}

// closer is the table-agnostic view of a BatchWriter.
type closer interface {
	Close() (int, error)
	WriteRecord(arrow.Record) error
	Path() string
}

// OpenDataset creates the staging directory and the twelve writers, then
// carries over the committed rows unless opts.Force is set.
func OpenDataset(ctx context.Context, opts DatasetOptions) (*Dataset, error) {
	if opts.StagingRoot == "" {
		opts.StagingRoot = filepath.Join(opts.Dir, ".staging")
	}
	staging := filepath.Join(opts.StagingRoot, uuid.NewString())
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, errors.NewSinkError(errors.CodeWriteFailed, "failed to create staging directory", err)
	}

	d := &Dataset{
		dir:     opts.Dir,
		staging: staging,
		logger:  logger.OrNop(opts.Logger),
		carried: make(map[types.Table]int),
	}
	wopts := []Option{WithBatchSize(opts.BatchSize)}

	var err error
	open := func(t types.Table) string { return filepath.Join(staging, t.FileName()) }
	if d.beatmaps, err = NewBatchWriter(open(types.TableBeatmaps), BeatmapCodec, wopts...); err != nil {
		return nil, d.abortOpen(err)
	}
	if d.hitObjects, err = NewBatchWriter(open(types.TableHitObjects), HitObjectCodec, wopts...); err != nil {
		return nil, d.abortOpen(err)
	}
	if d.timingPoints, err = NewBatchWriter(open(types.TableTimingPoints), TimingPointCodec, wopts...); err != nil {
		return nil, d.abortOpen(err)
	}
	if d.storyboardElements, err = NewBatchWriter(open(types.TableStoryboardElements), StoryboardElementCodec, wopts...); err != nil {
		return nil, d.abortOpen(err)
	}
	if d.storyboardCommands, err = NewBatchWriter(open(types.TableStoryboardCommands), StoryboardCommandCodec, wopts...); err != nil {
		return nil, d.abortOpen(err)
	}
	if d.sliderControlPoints, err = NewBatchWriter(open(types.TableSliderControlPoints), SliderControlPointCodec, wopts...); err != nil {
		return nil, d.abortOpen(err)
	}
	if d.sliderData, err = NewBatchWriter(open(types.TableSliderData), SliderDataCodec, wopts...); err != nil {
		return nil, d.abortOpen(err)
	}
	if d.breaks, err = NewBatchWriter(open(types.TableBreaks), BreakCodec, wopts...); err != nil {
		return nil, d.abortOpen(err)
	}
	if d.comboColors, err = NewBatchWriter(open(types.TableComboColors), ComboColorCodec, wopts...); err != nil {
		return nil, d.abortOpen(err)
	}
	if d.hitSamples, err = NewBatchWriter(open(types.TableHitSamples), HitSampleCodec, wopts...); err != nil {
		return nil, d.abortOpen(err)
	}
	if d.storyboardLoops, err = NewBatchWriter(open(types.TableStoryboardLoops), StoryboardLoopCodec, wopts...); err != nil {
		return nil, d.abortOpen(err)
	}
	if d.storyboardTriggers, err = NewBatchWriter(open(types.TableStoryboardTriggers), StoryboardTriggerCodec, wopts...); err != nil {
		return nil, d.abortOpen(err)
	}

	if !opts.Force {
		if err := d.carryOver(ctx); err != nil {
			return nil, d.abortOpen(err)
		}
	}
	return d, nil
}

func (d *Dataset) abortOpen(err error) error {
	d.Close()
	d.Abort()
	return err
}

func (d *Dataset) writers() map[types.Table]closer {
	m := make(map[types.Table]closer, len(types.Tables))
	add := func(t types.Table, c closer, ok bool) {
		if ok {
			m[t] = c
		}
	}
	add(types.TableBeatmaps, d.beatmaps, d.beatmaps != nil)
	add(types.TableHitObjects, d.hitObjects, d.hitObjects != nil)
	add(types.TableTimingPoints, d.timingPoints, d.timingPoints != nil)
	add(types.TableStoryboardElements, d.storyboardElements, d.storyboardElements != nil)
	add(types.TableStoryboardCommands, d.storyboardCommands, d.storyboardCommands != nil)
	add(types.TableSliderControlPoints, d.sliderControlPoints, d.sliderControlPoints != nil)
	add(types.TableSliderData, d.sliderData, d.sliderData != nil)
	add(types.TableBreaks, d.breaks, d.breaks != nil)
	add(types.TableComboColors, d.comboColors, d.comboColors != nil)
	add(types.TableHitSamples, d.hitSamples, d.hitSamples != nil)
	add(types.TableStoryboardLoops, d.storyboardLoops, d.storyboardLoops != nil)
	add(types.TableStoryboardTriggers, d.storyboardTriggers, d.storyboardTriggers != nil)
	return m
}

// carryOver streams every committed table file into its staged writer.
func (d *Dataset) carryOver(ctx context.Context) error {
	mem := memory.NewGoAllocator()
	ws := d.writers()
	for _, t := range types.Tables {
		path := filepath.Join(d.dir, t.FileName())
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		w := ws[t]
		target := schema.For(t)
		n := 0
		err := reader.ScanTable(ctx, path, t, reader.DefaultChunkSize, func(rec arrow.Record, cols schema.Columns) error {
			out, err := conform(mem, rec, cols, target)
			if err != nil {
				return errors.NewSchemaError(errors.CodeSchemaMismatch,
					fmt.Sprintf("%s: cannot carry over existing rows", t), err)
			}
			defer out.Release()
			n += int(out.NumRows())
			return w.WriteRecord(out)
		})
		if err != nil {
			return err
		}
		d.carried[t] = n
		d.logger.Debug("carried over rows", zap.String("table", t.Name()), zap.Int("rows", n))
	}
	return nil
}

// conform reorders rec's columns to target and converts large strings, so
// the result can be written by a writer of target's schema.
func conform(mem memory.Allocator, rec arrow.Record, cols schema.Columns, target *arrow.Schema) (arrow.Record, error) {
	arrs := make([]arrow.Array, len(target.Fields()))
	defer func() {
		for _, a := range arrs {
			if a != nil {
				a.Release()
			}
		}
	}()
	for i, f := range target.Fields() {
		src := rec.Column(cols[f.Name])
		if src.DataType().ID() == arrow.LARGE_STRING && f.Type.ID() == arrow.STRING {
			ls := src.(*array.LargeString)
			sb := array.NewStringBuilder(mem)
			for j := 0; j < ls.Len(); j++ {
				if ls.IsNull(j) {
					sb.AppendNull()
				} else {
					sb.Append(ls.Value(j))
				}
			}
			arrs[i] = sb.NewArray()
			sb.Release()
			continue
		}
		if !arrow.TypeEqual(src.DataType(), f.Type) {
			return nil, fmt.Errorf("column %q has type %s, want %s", f.Name, src.DataType(), f.Type)
		}
		src.Retain()
		arrs[i] = src
	}
	return array.NewRecord(target, arrs, rec.NumRows()), nil
}

// Emit writes one partition's rows to every table. Any error is fatal for
// the dataset: the caller must Close and Abort.
func (d *Dataset) Emit(rs *types.RowSet) error {
	if d.closed {
		return errors.NewSinkError(errors.CodeWriterState, "dataset is closed", nil)
	}
	return multierr.Combine(
		d.beatmaps.WriteAll(rs.Beatmaps),
		d.hitObjects.WriteAll(rs.HitObjects),
		d.timingPoints.WriteAll(rs.TimingPoints),
		d.storyboardElements.WriteAll(rs.StoryboardElements),
		d.storyboardCommands.WriteAll(rs.StoryboardCommands),
		d.sliderControlPoints.WriteAll(rs.SliderControlPoints),
		d.sliderData.WriteAll(rs.SliderData),
		d.breaks.WriteAll(rs.Breaks),
		d.comboColors.WriteAll(rs.ComboColors),
		d.hitSamples.WriteAll(rs.HitSamples),
		d.storyboardLoops.WriteAll(rs.StoryboardLoops),
		d.storyboardTriggers.WriteAll(rs.StoryboardTriggers),
	)
}

// Close flushes and closes every writer, even when some fail. It is safe to
// call more than once; later calls return the first result.
func (d *Dataset) Close() (Stats, error) {
	if d.closed && d.stats != nil {
		return *d.stats, nil
	}
	d.closed = true
	stats := Stats{Written: make(map[types.Table]int), Carried: d.carried}
	var err error
	for t, w := range d.writers() {
		n, cerr := w.Close()
		stats.Written[t] = n
		if cerr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", t, cerr))
		}
	}
	if err != nil {
		return stats, err
	}
	d.stats = &stats
	return stats, nil
}

// Commit moves the staged files into the dataset directory, one table at a
// time. See commitTable for the order of the renames.
func (d *Dataset) Commit() error {
	if d.stats == nil {
		return errors.NewSinkError(errors.CodeWriterState, "commit requires a successful close", nil)
	}
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return errors.NewSinkError(errors.CodeWriteFailed, "failed to create dataset directory", err)
	}
	for _, t := range types.Tables {
		src := filepath.Join(d.staging, t.FileName())
		dst := filepath.Join(d.dir, t.FileName())
		if err := commitTable(src, dst); err != nil {
			return errors.NewSinkError(errors.CodeWriteFailed, fmt.Sprintf("failed to commit %s", t), err)
		}
	}
	return os.RemoveAll(d.staging)
}

// commitTable replaces dst with src. The old sidecar is removed before the
// table is renamed and the new sidecar is moved in last, so at no point does
// a sidecar sit next to a table file it was not built for. In between, the
// table has no sidecar and is read without pruning.
func commitTable(src, dst string) error {
	if err := os.Remove(dst + zonemap.Suffix); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		return err
	}
	if err := os.Rename(src+zonemap.Suffix, dst+zonemap.Suffix); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Abort removes the staging directory, leaving the committed dataset
// untouched.
func (d *Dataset) Abort() error {
	return os.RemoveAll(d.staging)
}

// StagingDir returns the directory receiving this run's files.
func (d *Dataset) StagingDir() string { return d.staging }
