package schema

import (
	"testing"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/pkg/types"
)

func TestEveryTableHasPartitionAndFileColumns(t *testing.T) {
	for _, tb := range types.Tables {
		s := For(tb)
		require.NotNil(t, s, tb.Name())
		assert.Equal(t, types.PartitionColumn, s.Field(0).Name, tb.Name())
		assert.Equal(t, tb.FileColumn(), s.Field(1).Name, tb.Name())
	}
}

func TestValidate_AcceptsOwnSchema(t *testing.T) {
	for _, tb := range types.Tables {
		cols, err := Validate(tb, For(tb))
		require.NoError(t, err, tb.Name())
		assert.Len(t, cols, len(For(tb).Fields()))
	}
}

func TestValidate_MissingColumn(t *testing.T) {
	got := arrow.NewSchema([]arrow.Field{
		{Name: "folder_id", Type: arrow.BinaryTypes.String},
		{Name: "osu_file", Type: arrow.BinaryTypes.String},
		{Name: "start_time", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
	_, err := Validate(types.TableBreaks, got)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCategorySchema, errors.GetCategory(err))
	assert.Equal(t, errors.CodeMissingColumn, errors.GetCode(err))
}

func TestValidate_WrongType(t *testing.T) {
	got := arrow.NewSchema([]arrow.Field{
		{Name: "folder_id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "osu_file", Type: arrow.BinaryTypes.String},
		{Name: "start_time", Type: arrow.PrimitiveTypes.Float64},
		{Name: "end_time", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
	_, err := Validate(types.TableBreaks, got)
	require.Error(t, err)
	assert.Equal(t, errors.CodeColumnType, errors.GetCode(err))
}

func TestValidate_LargeStringAndReordering(t *testing.T) {
	got := arrow.NewSchema([]arrow.Field{
		{Name: "end_time", Type: arrow.PrimitiveTypes.Float64},
		{Name: "start_time", Type: arrow.PrimitiveTypes.Float64},
		{Name: "osu_file", Type: arrow.BinaryTypes.LargeString},
		{Name: "folder_id", Type: arrow.BinaryTypes.LargeString},
		{Name: "extra", Type: arrow.PrimitiveTypes.Int8},
	}, nil)
	cols, err := Validate(types.TableBreaks, got)
	require.NoError(t, err)
	assert.Equal(t, 3, cols["folder_id"])
	assert.Equal(t, 0, cols["end_time"])
}
