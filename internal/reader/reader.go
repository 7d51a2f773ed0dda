// Package reader loads the rows of one partition from a dataset directory
// without materializing whole table files. Files are read in fixed-size
// chunks; each chunk is filtered on the partition column before its rows are
// decoded, so memory is bounded by one chunk plus the partition's rows.
package reader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/apache/arrow/go/v11/arrow/compute"
	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/apache/arrow/go/v11/arrow/scalar"
	"go.uber.org/zap"

	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/internal/logger"
	"github.com/beatset/beatset/internal/zonemap"
	"github.com/beatset/beatset/pkg/types"
)

// Stats counts the work done by a Reader.
type Stats struct {
	ChunksRead      int64
	ChunksKept      int64
	RowsScanned     int64
	RowsKept        int64
	RowGroupsPruned int64
}

// Reader reads partitions from the table files in one directory. A Reader
// opens files per call and holds no open handles between calls, so separate
// Readers may query the same directory concurrently.
type Reader struct {
	dir       string
	chunkSize int
	mem       memory.Allocator
	logger    *zap.Logger
	noPrune   bool

	chunksRead      atomic.Int64
	chunksKept      atomic.Int64
	rowsScanned     atomic.Int64
	rowsKept        atomic.Int64
	rowGroupsPruned atomic.Int64
}

// Option configures a Reader.
type Option func(*Reader)

// WithChunkSize sets the number of rows per chunk.
func WithChunkSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reader) { r.logger = logger.OrNop(l) }
}

// WithoutPruning disables zone-map row group pruning.
func WithoutPruning() Option {
	return func(r *Reader) { r.noPrune = true }
}

// New returns a reader over the dataset in dir.
func New(dir string, opts ...Option) *Reader {
	r := &Reader{
		dir:       dir,
		chunkSize: DefaultChunkSize,
		mem:       memory.NewGoAllocator(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the dataset directory.
func (r *Reader) Dir() string { return r.dir }

// Stats returns a snapshot of the reader's counters.
func (r *Reader) Stats() Stats {
	return Stats{
		ChunksRead:      r.chunksRead.Load(),
		ChunksKept:      r.chunksKept.Load(),
		RowsScanned:     r.rowsScanned.Load(),
		RowsKept:        r.rowsKept.Load(),
		RowGroupsPruned: r.rowGroupsPruned.Load(),
	}
}

func (r *Reader) path(t types.Table) string {
	return filepath.Join(r.dir, t.FileName())
}

// LoadPartition returns every row of every table that belongs to
// partitionID. A missing table file contributes no rows; a table file that
// cannot be read or has the wrong columns fails the whole call.
func (r *Reader) LoadPartition(ctx context.Context, partitionID string) (*types.RowSet, error) {
	rs := &types.RowSet{}
	for _, t := range types.Tables {
		if err := r.loadTable(ctx, t, partitionID, rs); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

// LoadTable reads the rows of one table for partitionID into rs.
func (r *Reader) LoadTable(ctx context.Context, t types.Table, partitionID string, rs *types.RowSet) error {
	return r.loadTable(ctx, t, partitionID, rs)
}

func (r *Reader) loadTable(ctx context.Context, t types.Table, partitionID string, rs *types.RowSet) error {
	path := r.path(t)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	tf, err := openTable(path, t, r.chunkSize, r.mem)
	if err != nil {
		return err
	}
	defer tf.Close()

	rowGroups := r.candidates(tf, partitionID)
	partCol := tf.cols[types.PartitionColumn]
	decode := decoders[t]

	return tf.scan(ctx, nil, rowGroups, func(rec arrow.Record) error {
		r.chunksRead.Add(1)
		r.rowsScanned.Add(rec.NumRows())

		filtered, err := filterPartition(ctx, r.mem, rec, partCol, partitionID)
		if err != nil {
			return errors.NewSchemaError(errors.CodeTableRead,
				fmt.Sprintf("%s: failed to filter chunk", t), err)
		}
		if filtered == nil {
			return nil
		}
		defer filtered.Release()

		r.chunksKept.Add(1)
		r.rowsKept.Add(filtered.NumRows())
		decode(view{rec: filtered, cols: tf.cols}, rs)
		return nil
	})
}

// candidates returns the row groups that may contain partitionID, or nil
// to read them all. The sidecar is trusted only when it describes exactly
// the row groups of the file.
func (r *Reader) candidates(tf *tableFile, partitionID string) []int {
	if r.noPrune {
		return nil
	}
	zm, err := zonemap.Read(tf.path)
	if err != nil {
		r.logger.Warn("ignoring unreadable zone map", zap.String("table", tf.table.Name()), zap.Error(err))
		return nil
	}
	if zm == nil {
		return nil
	}
	numGroups := tf.rdr.NumRowGroups()
	if len(zm.RowGroups) != numGroups || zm.TotalRows() != tf.rdr.NumRows() {
		r.logger.Debug("zone map does not match table file", zap.String("table", tf.table.Name()))
		return nil
	}
	keep := zm.Candidates(partitionID)
	r.rowGroupsPruned.Add(int64(numGroups - len(keep)))
	if keep == nil {
		keep = []int{}
	}
	return keep
}

// filterPartition keeps the rows of rec whose partition column equals id,
// using the equal kernel against a broadcast scalar. It returns nil when no
// row matches. Null partition values compare to null and are dropped.
func filterPartition(ctx context.Context, mem memory.Allocator, rec arrow.Record, col int, id string) (arrow.Record, error) {
	ids := rec.Column(col)
	var target scalar.Scalar
	switch ids.DataType().ID() {
	case arrow.STRING:
		target = scalar.NewStringScalar(id)
	case arrow.LARGE_STRING:
		target = scalar.NewLargeStringScalar(id)
	default:
		return nil, fmt.Errorf("partition column has type %s", ids.DataType())
	}

	ctx = compute.WithAllocator(ctx, mem)
	lhs := compute.NewDatum(ids)
	defer lhs.Release()
	out, err := compute.CallFunction(ctx, "equal", nil, lhs, compute.NewDatum(target))
	if err != nil {
		return nil, err
	}
	defer out.Release()
	mask := out.(*compute.ArrayDatum).MakeArray()
	defer mask.Release()

	if trueCount(mask.(*array.Boolean)) == 0 {
		return nil, nil
	}
	return compute.FilterRecordBatch(ctx, rec, mask, compute.DefaultFilterOptions())
}

func trueCount(mask *array.Boolean) int {
	n := 0
	for i := 0; i < mask.Len(); i++ {
		if mask.IsValid(i) && mask.Value(i) {
			n++
		}
	}
	return n
}

// PartitionIDs returns the sorted distinct partition ids in the beatmaps
// table. Only the partition column is read. A dataset without a beatmaps
// table has no partitions.
func (r *Reader) PartitionIDs(ctx context.Context) ([]string, error) {
	path := r.path(types.TableBeatmaps)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	tf, err := openTable(path, types.TableBeatmaps, r.chunkSize, r.mem)
	if err != nil {
		return nil, err
	}
	defer tf.Close()

	seen := make(map[string]struct{})
	col := tf.cols[types.PartitionColumn]
	err = tf.scan(ctx, []int{col}, nil, func(rec arrow.Record) error {
		r.chunksRead.Add(1)
		ids, ok := rec.Column(0).(stringColumn)
		if !ok {
			return errors.NewSchemaError(errors.CodeColumnType,
				fmt.Sprintf("beatmaps: partition column has type %s", rec.Column(0).DataType()), nil)
		}
		for i := 0; i < ids.Len(); i++ {
			if !ids.IsNull(i) {
				seen[ids.Value(i)] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// HasPartition reports whether partitionID has a beatmaps row.
func (r *Reader) HasPartition(ctx context.Context, partitionID string) (bool, error) {
	ids, err := r.PartitionIDs(ctx)
	if err != nil {
		return false, err
	}
	i := sort.SearchStrings(ids, partitionID)
	return i < len(ids) && ids[i] == partitionID, nil
}
