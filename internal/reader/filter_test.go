package reader

import (
	"context"
	"testing"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func partitionRecord(t *testing.T, mem memory.Allocator, idType arrow.DataType, ids []string, valid []bool) arrow.Record {
	t.Helper()
	sc := arrow.NewSchema([]arrow.Field{
		{Name: "folder_id", Type: idType, Nullable: true},
		{Name: "n", Type: arrow.PrimitiveTypes.Int32},
	}, nil)
	b := array.NewRecordBuilder(mem, sc)
	defer b.Release()
	switch ib := b.Field(0).(type) {
	case *array.StringBuilder:
		ib.AppendValues(ids, valid)
	case *array.LargeStringBuilder:
		ib.AppendValues(ids, valid)
	default:
		t.Fatalf("unsupported id type %s", idType)
	}
	ns := make([]int32, len(ids))
	for i := range ns {
		ns[i] = int32(i)
	}
	b.Field(1).(*array.Int32Builder).AppendValues(ns, nil)
	return b.NewRecord()
}

func TestFilterPartition(t *testing.T) {
	for _, idType := range []arrow.DataType{arrow.BinaryTypes.String, arrow.BinaryTypes.LargeString} {
		t.Run(idType.String(), func(t *testing.T) {
			mem := memory.NewGoAllocator()

			rec := partitionRecord(t, mem, idType,
				[]string{"1", "2", "1", "", "10"},
				[]bool{true, true, true, false, true})
			defer rec.Release()

			got, err := filterPartition(context.Background(), mem, rec, 0, "1")
			require.NoError(t, err)
			require.NotNil(t, got)
			defer got.Release()
			assert.Equal(t, int64(2), got.NumRows())
			assert.Equal(t, []int32{0, 2}, got.Column(1).(*array.Int32).Int32Values())

			none, err := filterPartition(context.Background(), mem, rec, 0, "3")
			require.NoError(t, err)
			assert.Nil(t, none)

			// a null id never matches, not even the empty string
			empty, err := filterPartition(context.Background(), mem, rec, 0, "")
			require.NoError(t, err)
			assert.Nil(t, empty)
		})
	}
}

func TestFilterPartition_RejectsNonStringColumn(t *testing.T) {
	mem := memory.NewGoAllocator()
	sc := arrow.NewSchema([]arrow.Field{{Name: "folder_id", Type: arrow.PrimitiveTypes.Int32}}, nil)
	b := array.NewRecordBuilder(mem, sc)
	defer b.Release()
	b.Field(0).(*array.Int32Builder).Append(1)
	rec := b.NewRecord()
	defer rec.Release()

	_, err := filterPartition(context.Background(), mem, rec, 0, "1")
	assert.Error(t, err)
}
