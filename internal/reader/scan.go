package reader

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/apache/arrow/go/v11/parquet/file"
	"github.com/apache/arrow/go/v11/parquet/pqarrow"

	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/internal/schema"
	"github.com/beatset/beatset/pkg/types"
)

// DefaultChunkSize is the number of rows read per chunk.
const DefaultChunkSize = 8192

// tableFile is one opened, schema-checked table file.
type tableFile struct {
	table types.Table
	path  string
	rdr   *file.Reader
	fr    *pqarrow.FileReader
	cols  schema.Columns
}

func openTable(path string, table types.Table, chunkSize int, mem memory.Allocator) (*tableFile, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errors.NewSchemaError(errors.CodeTableRead,
			fmt.Sprintf("failed to open %s", path), err)
	}
	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{BatchSize: int64(chunkSize)}, mem)
	if err != nil {
		rdr.Close()
		return nil, errors.NewSchemaError(errors.CodeTableRead,
			fmt.Sprintf("failed to read %s", path), err)
	}
	sc, err := fr.Schema()
	if err != nil {
		rdr.Close()
		return nil, errors.NewSchemaError(errors.CodeTableRead,
			fmt.Sprintf("failed to read schema of %s", path), err)
	}
	cols, err := schema.Validate(table, sc)
	if err != nil {
		rdr.Close()
		return nil, err
	}
	return &tableFile{table: table, path: path, rdr: rdr, fr: fr, cols: cols}, nil
}

func (t *tableFile) Close() error {
	return t.rdr.Close()
}

// scan streams the selected row groups (all when rowGroups is nil) chunk by
// chunk. Records passed to fn are owned by the reader and only valid for the
// duration of the call.
func (t *tableFile) scan(ctx context.Context, columns, rowGroups []int, fn func(arrow.Record) error) error {
	if rowGroups != nil && len(rowGroups) == 0 {
		return nil
	}
	rr, err := t.fr.GetRecordReader(ctx, columns, rowGroups)
	if err != nil {
		return errors.NewSchemaError(errors.CodeTableRead,
			fmt.Sprintf("failed to read %s", t.path), err)
	}
	defer rr.Release()

	for {
		rec, err := rr.Read()
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.NewSchemaError(errors.CodeTableRead,
				fmt.Sprintf("failed to read chunk of %s", t.path), err)
		}
		if rec == nil {
			return nil
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// ScanTable streams every chunk of the table file at path after checking
// its schema. fn receives records whose columns are located through cols;
// records are only valid during the call.
func ScanTable(ctx context.Context, path string, table types.Table, chunkSize int, fn func(rec arrow.Record, cols schema.Columns) error) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	tf, err := openTable(path, table, chunkSize, memory.NewGoAllocator())
	if err != nil {
		return err
	}
	defer tf.Close()
	return tf.scan(ctx, nil, nil, func(rec arrow.Record) error {
		return fn(rec, tf.cols)
	})
}
