// Package sink writes table rows to Snappy-compressed Parquet files in
// fixed-size batches. Each flushed batch becomes one row group, and a
// zone-map sidecar describing the row groups is written when the file is
// closed.
package sink

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/apache/arrow/go/v11/parquet"
	"github.com/apache/arrow/go/v11/parquet/compress"
	"github.com/apache/arrow/go/v11/parquet/pqarrow"
	"go.uber.org/multierr"

	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/internal/schema"
	"github.com/beatset/beatset/internal/zonemap"
)

// DefaultBatchSize is the number of rows buffered before a flush.
const DefaultBatchSize = 100

// Option configures a BatchWriter.
type Option func(*writerOptions)

type writerOptions struct {
	batchSize int
	mem       memory.Allocator
}

// WithBatchSize sets the number of rows buffered before a flush.
func WithBatchSize(n int) Option {
	return func(o *writerOptions) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithAllocator sets the Arrow allocator used for record building.
func WithAllocator(mem memory.Allocator) Option {
	return func(o *writerOptions) {
		if mem != nil {
			o.mem = mem
		}
	}
}

// BatchWriter buffers rows of one table and writes them in batches. It owns
// its output file until Close. After any conversion or write failure the
// writer is aborted and every further call returns that error.
type BatchWriter[T any] struct {
	codec     Codec[T]
	path      string
	file      *os.File
	fw        *pqarrow.FileWriter
	builder   *array.RecordBuilder
	zone      *zonemap.Builder
	buf       []T
	batchSize int
	total     int
	err       error
	closed    bool
}

// NewBatchWriter creates path and prepares it for rows of codec's table.
func NewBatchWriter[T any](path string, codec Codec[T], opts ...Option) (*BatchWriter[T], error) {
	o := writerOptions{batchSize: DefaultBatchSize, mem: memory.NewGoAllocator()}
	for _, opt := range opts {
		opt(&o)
	}

	sc := schema.For(codec.Table)
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.NewSinkError(errors.CodeWriteFailed,
			fmt.Sprintf("failed to create %s", path), err)
	}
	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithAllocator(o.mem),
	)
	fw, err := pqarrow.NewFileWriter(sc, f, props, pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()))
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, errors.NewSinkError(errors.CodeWriteFailed,
			fmt.Sprintf("failed to open parquet writer for %s", codec.Table), err)
	}

	return &BatchWriter[T]{
		codec:     codec,
		path:      path,
		file:      f,
		fw:        fw,
		builder:   array.NewRecordBuilder(o.mem, sc),
		zone:      zonemap.NewBuilder(codec.Table.Name()),
		buf:       make([]T, 0, o.batchSize),
		batchSize: o.batchSize,
	}, nil
}

// Path returns the output file path.
func (w *BatchWriter[T]) Path() string { return w.path }

// Rows returns the number of rows written so far, excluding buffered rows.
func (w *BatchWriter[T]) Rows() int { return w.total }

func (w *BatchWriter[T]) usable() error {
	if w.err != nil {
		return w.err
	}
	if w.closed {
		return errors.NewSinkError(errors.CodeWriterState,
			fmt.Sprintf("%s writer is closed", w.codec.Table), nil)
	}
	return nil
}

// Write buffers one row and flushes when the batch is full.
func (w *BatchWriter[T]) Write(row T) error {
	if err := w.usable(); err != nil {
		return err
	}
	w.buf = append(w.buf, row)
	if len(w.buf) >= w.batchSize {
		return w.Flush()
	}
	return nil
}

// WriteAll buffers rows in order, flushing as batches fill.
func (w *BatchWriter[T]) WriteAll(rows []T) error {
	for i := range rows {
		if err := w.Write(rows[i]); err != nil {
			return err
		}
	}
	return nil
}

// Flush converts the buffered rows into one row group. It is a no-op when
// nothing is buffered.
func (w *BatchWriter[T]) Flush() error {
	if err := w.usable(); err != nil {
		return err
	}
	if len(w.buf) == 0 {
		return nil
	}

	for i := range w.buf {
		if err := appendRow(w.codec, w.builder, &w.buf[i]); err != nil {
			return w.fail(errors.NewSinkError(errors.CodeConversion, "row conversion failed", err))
		}
		w.zone.Observe(w.codec.Partition(&w.buf[i]))
	}

	rec := w.builder.NewRecord()
	defer rec.Release()
	if err := w.fw.Write(rec); err != nil {
		return w.fail(errors.NewSinkError(errors.CodeWriteFailed,
			fmt.Sprintf("failed to write %s batch", w.codec.Table), err))
	}
	if err := w.zone.Seal(); err != nil {
		return w.fail(errors.NewSinkError(errors.CodeWriteFailed, "zone map", err))
	}
	w.total += len(w.buf)
	w.buf = w.buf[:0]
	return nil
}

// WriteRecord appends an already-built record as its own row group after
// flushing buffered rows. The record must match the table schema.
func (w *BatchWriter[T]) WriteRecord(rec arrow.Record) error {
	if err := w.Flush(); err != nil {
		return err
	}
	if rec.NumRows() == 0 {
		return nil
	}
	if !rec.Schema().Equal(w.builder.Schema()) {
		return w.fail(errors.NewSchemaError(errors.CodeSchemaMismatch,
			fmt.Sprintf("%s: record schema does not match table schema", w.codec.Table), nil))
	}
	ids, ok := rec.Column(0).(*array.String)
	if !ok {
		return w.fail(errors.NewSchemaError(errors.CodeColumnType,
			fmt.Sprintf("%s: partition column is %s", w.codec.Table, rec.Column(0).DataType()), nil))
	}
	if err := w.fw.Write(rec); err != nil {
		return w.fail(errors.NewSinkError(errors.CodeWriteFailed,
			fmt.Sprintf("failed to write %s record", w.codec.Table), err))
	}
	for i := 0; i < ids.Len(); i++ {
		w.zone.Observe(ids.Value(i))
	}
	if err := w.zone.Seal(); err != nil {
		return w.fail(errors.NewSinkError(errors.CodeWriteFailed, "zone map", err))
	}
	w.total += int(rec.NumRows())
	return nil
}

func (w *BatchWriter[T]) fail(err error) error {
	w.err = err
	return err
}

// Close flushes buffered rows, finalizes the file and writes its zone-map
// sidecar. It returns the total number of rows written. Close releases the
// writer's resources even when the final flush fails.
func (w *BatchWriter[T]) Close() (int, error) {
	if w.closed {
		return w.total, w.err
	}
	var err error
	if w.err == nil {
		err = w.Flush()
	} else {
		err = w.err
	}
	w.closed = true

	err = multierr.Append(err, w.fw.Close())
	if cerr := w.file.Close(); cerr != nil && !stderrors.Is(cerr, os.ErrClosed) {
		err = multierr.Append(err, cerr)
	}
	w.builder.Release()

	if err == nil {
		err = zonemap.Write(w.path, w.zone.Sidecar())
	}
	if err != nil {
		w.err = err
		return w.total, err
	}
	return w.total, nil
}
