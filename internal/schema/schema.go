// Package schema defines the Arrow schemas of the twelve dataset tables and
// checks files read back from disk against them.
package schema

import (
	"fmt"

	"github.com/apache/arrow/go/v11/arrow"

	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/pkg/types"
)

var (
	utf8    = arrow.BinaryTypes.String
	i32     = arrow.PrimitiveTypes.Int32
	f32     = arrow.PrimitiveTypes.Float32
	f64     = arrow.PrimitiveTypes.Float64
	boolean = arrow.FixedWidthTypes.Boolean
)

func col(name string, dt arrow.DataType) arrow.Field {
	return arrow.Field{Name: name, Type: dt}
}

func opt(name string, dt arrow.DataType) arrow.Field {
	return arrow.Field{Name: name, Type: dt, Nullable: true}
}

var schemas = map[types.Table]*arrow.Schema{
	types.TableBeatmaps: arrow.NewSchema([]arrow.Field{
		col("folder_id", utf8),
		col("osu_file", utf8),
		col("format_version", i32),
		col("audio_file", utf8),
		col("audio_lead_in", f64),
		col("preview_time", i32),
		col("default_sample_bank", i32),
		col("default_sample_volume", i32),
		col("stack_leniency", f32),
		col("mode", i32),
		col("letterbox_in_breaks", boolean),
		col("special_style", boolean),
		col("widescreen_storyboard", boolean),
		col("epilepsy_warning", boolean),
		col("samples_match_playback_rate", boolean),
		col("countdown", i32),
		col("countdown_offset", i32),
		col("bookmarks", utf8),
		col("distance_spacing", f64),
		col("beat_divisor", i32),
		col("grid_size", i32),
		col("timeline_zoom", f64),
		col("title", utf8),
		col("title_unicode", utf8),
		col("artist", utf8),
		col("artist_unicode", utf8),
		col("creator", utf8),
		col("version", utf8),
		col("source", utf8),
		col("tags", utf8),
		col("beatmap_id", i32),
		col("beatmap_set_id", i32),
		col("hp_drain_rate", f32),
		col("circle_size", f32),
		col("overall_difficulty", f32),
		col("approach_rate", f32),
		col("slider_multiplier", f64),
		col("slider_tick_rate", f64),
		col("background_file", utf8),
		col("audio_path", utf8),
		col("background_path", utf8),
	}, nil),

	types.TableHitObjects: arrow.NewSchema([]arrow.Field{
		col("folder_id", utf8),
		col("osu_file", utf8),
		col("index", i32),
		col("start_time", f64),
		col("object_type", utf8),
		opt("pos_x", i32),
		opt("pos_y", i32),
		col("new_combo", boolean),
		col("combo_offset", i32),
		opt("curve_type", utf8),
		opt("slides", i32),
		opt("length", f64),
		opt("end_time", f64),
	}, nil),

	types.TableTimingPoints: arrow.NewSchema([]arrow.Field{
		col("folder_id", utf8),
		col("osu_file", utf8),
		col("time", f64),
		col("point_type", utf8),
		opt("beat_length", f64),
		opt("time_signature", utf8),
		opt("slider_velocity", f64),
		opt("kiai", boolean),
		opt("sample_bank", utf8),
		opt("sample_volume", i32),
	}, nil),

	types.TableStoryboardElements: arrow.NewSchema([]arrow.Field{
		col("folder_id", utf8),
		col("source_file", utf8),
		col("element_index", i32),
		col("layer_name", utf8),
		col("element_path", utf8),
		col("element_type", utf8),
		col("origin", utf8),
		col("initial_pos_x", f32),
		col("initial_pos_y", f32),
		opt("frame_count", i32),
		opt("frame_delay", f64),
		opt("loop_type", utf8),
		col("is_embedded", boolean),
	}, nil),

	types.TableStoryboardCommands: arrow.NewSchema([]arrow.Field{
		col("folder_id", utf8),
		col("source_file", utf8),
		col("element_index", i32),
		col("command_type", utf8),
		col("start_time", f64),
		col("end_time", f64),
		col("start_value", utf8),
		col("end_value", utf8),
		col("easing", i32),
		col("is_embedded", boolean),
	}, nil),

	types.TableSliderControlPoints: arrow.NewSchema([]arrow.Field{
		col("folder_id", utf8),
		col("osu_file", utf8),
		col("hit_object_index", i32),
		col("point_index", i32),
		col("pos_x", f32),
		col("pos_y", f32),
		opt("path_type", utf8),
	}, nil),

	types.TableSliderData: arrow.NewSchema([]arrow.Field{
		col("folder_id", utf8),
		col("osu_file", utf8),
		col("hit_object_index", i32),
		col("repeat_count", i32),
		col("velocity", f64),
		opt("expected_dist", f64),
	}, nil),

	types.TableBreaks: arrow.NewSchema([]arrow.Field{
		col("folder_id", utf8),
		col("osu_file", utf8),
		col("start_time", f64),
		col("end_time", f64),
	}, nil),

	types.TableComboColors: arrow.NewSchema([]arrow.Field{
		col("folder_id", utf8),
		col("osu_file", utf8),
		col("color_index", i32),
		col("color_type", utf8),
		opt("custom_name", utf8),
		col("red", i32),
		col("green", i32),
		col("blue", i32),
	}, nil),

	types.TableHitSamples: arrow.NewSchema([]arrow.Field{
		col("folder_id", utf8),
		col("osu_file", utf8),
		col("hit_object_index", i32),
		col("sample_index", i32),
		col("name", utf8),
		col("bank", utf8),
		opt("suffix", utf8),
		col("volume", i32),
	}, nil),

	types.TableStoryboardLoops: arrow.NewSchema([]arrow.Field{
		col("folder_id", utf8),
		col("source_file", utf8),
		col("element_index", i32),
		col("loop_index", i32),
		col("loop_start_time", f64),
		col("loop_count", i32),
		col("is_embedded", boolean),
	}, nil),

	types.TableStoryboardTriggers: arrow.NewSchema([]arrow.Field{
		col("folder_id", utf8),
		col("source_file", utf8),
		col("element_index", i32),
		col("trigger_index", i32),
		col("trigger_name", utf8),
		col("trigger_start_time", f64),
		col("trigger_end_time", f64),
		col("group_number", i32),
		col("is_embedded", boolean),
	}, nil),
}

// For returns the schema of table t.
func For(t types.Table) *arrow.Schema {
	s, ok := schemas[t]
	if !ok {
		panic(fmt.Sprintf("schema: no schema for table %d", int(t)))
	}
	return s
}

// Columns maps column names of a file schema to their positions.
type Columns map[string]int

// Validate checks that got carries every column of table t with the
// expected physical type and returns the column positions in got. Extra
// columns are ignored. Nullability is not compared since it does not
// survive every writer.
func Validate(t types.Table, got *arrow.Schema) (Columns, error) {
	want := For(t)
	cols := make(Columns, len(want.Fields()))
	for _, f := range want.Fields() {
		idx := got.FieldIndices(f.Name)
		if len(idx) == 0 {
			return nil, errors.NewSchemaError(errors.CodeMissingColumn,
				fmt.Sprintf("%s: missing column %q", t.Name(), f.Name), nil)
		}
		gf := got.Field(idx[0])
		if !compatible(f.Type, gf.Type) {
			return nil, errors.NewSchemaError(errors.CodeColumnType,
				fmt.Sprintf("%s: column %q has type %s, want %s", t.Name(), f.Name, gf.Type, f.Type), nil)
		}
		cols[f.Name] = idx[0]
	}
	return cols, nil
}

// compatible accepts large strings wherever strings are expected.
func compatible(want, got arrow.DataType) bool {
	if arrow.TypeEqual(want, got) {
		return true
	}
	return want.ID() == arrow.STRING && got.ID() == arrow.LARGE_STRING
}
