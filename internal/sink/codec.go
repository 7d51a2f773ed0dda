package sink

import (
	"fmt"

	"github.com/apache/arrow/go/v11/arrow/array"

	"github.com/beatset/beatset/pkg/types"
)

// Codec converts rows of one table into Arrow columns.
type Codec[T any] struct {
	Table     types.Table
	Partition func(*T) string
	Append    func(*cursor, *T)
}

// cursor appends one row's values to the field builders in schema order.
type cursor struct {
	b *array.RecordBuilder
	i int
}

func (c *cursor) next() int {
	i := c.i
	c.i++
	return i
}

func (c *cursor) str(v string) {
	c.b.Field(c.next()).(*array.StringBuilder).Append(v)
}

func (c *cursor) optStr(v *string) {
	sb := c.b.Field(c.next()).(*array.StringBuilder)
	if v == nil {
		sb.AppendNull()
		return
	}
	sb.Append(*v)
}

func (c *cursor) i32(v int32) {
	c.b.Field(c.next()).(*array.Int32Builder).Append(v)
}

func (c *cursor) optI32(v *int32) {
	ib := c.b.Field(c.next()).(*array.Int32Builder)
	if v == nil {
		ib.AppendNull()
		return
	}
	ib.Append(*v)
}

func (c *cursor) f32(v float32) {
	c.b.Field(c.next()).(*array.Float32Builder).Append(v)
}

func (c *cursor) f64(v float64) {
	c.b.Field(c.next()).(*array.Float64Builder).Append(v)
}

func (c *cursor) optF64(v *float64) {
	fb := c.b.Field(c.next()).(*array.Float64Builder)
	if v == nil {
		fb.AppendNull()
		return
	}
	fb.Append(*v)
}

func (c *cursor) boolean(v bool) {
	c.b.Field(c.next()).(*array.BooleanBuilder).Append(v)
}

func (c *cursor) optBool(v *bool) {
	bb := c.b.Field(c.next()).(*array.BooleanBuilder)
	if v == nil {
		bb.AppendNull()
		return
	}
	bb.Append(*v)
}

// appendRow runs the codec for one row, turning builder panics (a field
// type that does not match the schema) into errors.
func appendRow[T any](codec Codec[T], b *array.RecordBuilder, row *T) (err error) {
	if codec.Partition(row) == "" {
		return fmt.Errorf("%s: row has empty %s", codec.Table, types.PartitionColumn)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %v", codec.Table, r)
		}
	}()
	c := &cursor{b: b}
	codec.Append(c, row)
	if n := len(b.Schema().Fields()); c.i != n {
		return fmt.Errorf("%s: appended %d columns, schema has %d", codec.Table, c.i, n)
	}
	return nil
}

var BeatmapCodec = Codec[types.BeatmapRow]{
	Table:     types.TableBeatmaps,
	Partition: func(r *types.BeatmapRow) string { return r.FolderID },
	Append: func(c *cursor, r *types.BeatmapRow) {
		c.str(r.FolderID)
		c.str(r.OsuFile)
		c.i32(r.FormatVersion)
		c.str(r.AudioFile)
		c.f64(r.AudioLeadIn)
		c.i32(r.PreviewTime)
		c.i32(r.DefaultSampleBank)
		c.i32(r.DefaultSampleVolume)
		c.f32(r.StackLeniency)
		c.i32(r.Mode)
		c.boolean(r.LetterboxInBreaks)
		c.boolean(r.SpecialStyle)
		c.boolean(r.WidescreenStoryboard)
		c.boolean(r.EpilepsyWarning)
		c.boolean(r.SamplesMatchPlaybackRate)
		c.i32(r.Countdown)
		c.i32(r.CountdownOffset)
		c.str(r.Bookmarks)
		c.f64(r.DistanceSpacing)
		c.i32(r.BeatDivisor)
		c.i32(r.GridSize)
		c.f64(r.TimelineZoom)
		c.str(r.Title)
		c.str(r.TitleUnicode)
		c.str(r.Artist)
		c.str(r.ArtistUnicode)
		c.str(r.Creator)
		c.str(r.Version)
		c.str(r.Source)
		c.str(r.Tags)
		c.i32(r.BeatmapID)
		c.i32(r.BeatmapSetID)
		c.f32(r.HPDrainRate)
		c.f32(r.CircleSize)
		c.f32(r.OverallDifficulty)
		c.f32(r.ApproachRate)
		c.f64(r.SliderMultiplier)
		c.f64(r.SliderTickRate)
		c.str(r.BackgroundFile)
		c.str(r.AudioPath)
		c.str(r.BackgroundPath)
	},
}

var HitObjectCodec = Codec[types.HitObjectRow]{
	Table:     types.TableHitObjects,
	Partition: func(r *types.HitObjectRow) string { return r.FolderID },
	Append: func(c *cursor, r *types.HitObjectRow) {
		c.str(r.FolderID)
		c.str(r.OsuFile)
		c.i32(r.Index)
		c.f64(r.StartTime)
		c.str(r.ObjectType)
		c.optI32(r.PosX)
		c.optI32(r.PosY)
		c.boolean(r.NewCombo)
		c.i32(r.ComboOffset)
		c.optStr(r.CurveType)
		c.optI32(r.Slides)
		c.optF64(r.Length)
		c.optF64(r.EndTime)
	},
}

var TimingPointCodec = Codec[types.TimingPointRow]{
	Table:     types.TableTimingPoints,
	Partition: func(r *types.TimingPointRow) string { return r.FolderID },
	Append: func(c *cursor, r *types.TimingPointRow) {
		c.str(r.FolderID)
		c.str(r.OsuFile)
		c.f64(r.Time)
		c.str(r.PointType)
		c.optF64(r.BeatLength)
		c.optStr(r.TimeSignature)
		c.optF64(r.SliderVelocity)
		c.optBool(r.Kiai)
		c.optStr(r.SampleBank)
		c.optI32(r.SampleVolume)
	},
}

var StoryboardElementCodec = Codec[types.StoryboardElementRow]{
	Table:     types.TableStoryboardElements,
	Partition: func(r *types.StoryboardElementRow) string { return r.FolderID },
	Append: func(c *cursor, r *types.StoryboardElementRow) {
		c.str(r.FolderID)
		c.str(r.SourceFile)
		c.i32(r.ElementIndex)
		c.str(r.LayerName)
		c.str(r.ElementPath)
		c.str(r.ElementType)
		c.str(r.Origin)
		c.f32(r.InitialPosX)
		c.f32(r.InitialPosY)
		c.optI32(r.FrameCount)
		c.optF64(r.FrameDelay)
		c.optStr(r.LoopType)
		c.boolean(r.IsEmbedded)
	},
}

var StoryboardCommandCodec = Codec[types.StoryboardCommandRow]{
	Table:     types.TableStoryboardCommands,
	Partition: func(r *types.StoryboardCommandRow) string { return r.FolderID },
	Append: func(c *cursor, r *types.StoryboardCommandRow) {
		c.str(r.FolderID)
		c.str(r.SourceFile)
		c.i32(r.ElementIndex)
		c.str(r.CommandType)
		c.f64(r.StartTime)
		c.f64(r.EndTime)
		c.str(r.StartValue)
		c.str(r.EndValue)
		c.i32(r.Easing)
		c.boolean(r.IsEmbedded)
	},
}

var SliderControlPointCodec = Codec[types.SliderControlPointRow]{
	Table:     types.TableSliderControlPoints,
	Partition: func(r *types.SliderControlPointRow) string { return r.FolderID },
	Append: func(c *cursor, r *types.SliderControlPointRow) {
		c.str(r.FolderID)
		c.str(r.OsuFile)
		c.i32(r.HitObjectIndex)
		c.i32(r.PointIndex)
		c.f32(r.PosX)
		c.f32(r.PosY)
		c.optStr(r.PathType)
	},
}

var SliderDataCodec = Codec[types.SliderDataRow]{
	Table:     types.TableSliderData,
	Partition: func(r *types.SliderDataRow) string { return r.FolderID },
	Append: func(c *cursor, r *types.SliderDataRow) {
		c.str(r.FolderID)
		c.str(r.OsuFile)
		c.i32(r.HitObjectIndex)
		c.i32(r.RepeatCount)
		c.f64(r.Velocity)
		c.optF64(r.ExpectedDist)
	},
}

var BreakCodec = Codec[types.BreakRow]{
	Table:     types.TableBreaks,
	Partition: func(r *types.BreakRow) string { return r.FolderID },
	Append: func(c *cursor, r *types.BreakRow) {
		c.str(r.FolderID)
		c.str(r.OsuFile)
		c.f64(r.StartTime)
		c.f64(r.EndTime)
	},
}

var ComboColorCodec = Codec[types.ComboColorRow]{
	Table:     types.TableComboColors,
	Partition: func(r *types.ComboColorRow) string { return r.FolderID },
	Append: func(c *cursor, r *types.ComboColorRow) {
		c.str(r.FolderID)
		c.str(r.OsuFile)
		c.i32(r.ColorIndex)
		c.str(r.ColorType)
		c.optStr(r.CustomName)
		c.i32(r.Red)
		c.i32(r.Green)
		c.i32(r.Blue)
	},
}

var HitSampleCodec = Codec[types.HitSampleRow]{
	Table:     types.TableHitSamples,
	Partition: func(r *types.HitSampleRow) string { return r.FolderID },
	Append: func(c *cursor, r *types.HitSampleRow) {
		c.str(r.FolderID)
		c.str(r.OsuFile)
		c.i32(r.HitObjectIndex)
		c.i32(r.SampleIndex)
		c.str(r.Name)
		c.str(r.Bank)
		c.optStr(r.Suffix)
		c.i32(r.Volume)
	},
}

var StoryboardLoopCodec = Codec[types.StoryboardLoopRow]{
	Table:     types.TableStoryboardLoops,
	Partition: func(r *types.StoryboardLoopRow) string { return r.FolderID },
	Append: func(c *cursor, r *types.StoryboardLoopRow) {
		c.str(r.FolderID)
		c.str(r.SourceFile)
		c.i32(r.ElementIndex)
		c.i32(r.LoopIndex)
		c.f64(r.LoopStartTime)
		c.i32(r.LoopCount)
		c.boolean(r.IsEmbedded)
	},
}

var StoryboardTriggerCodec = Codec[types.StoryboardTriggerRow]{
	Table:     types.TableStoryboardTriggers,
	Partition: func(r *types.StoryboardTriggerRow) string { return r.FolderID },
	Append: func(c *cursor, r *types.StoryboardTriggerRow) {
		c.str(r.FolderID)
		c.str(r.SourceFile)
		c.i32(r.ElementIndex)
		c.i32(r.TriggerIndex)
		c.str(r.TriggerName)
		c.f64(r.TriggerStartTime)
		c.f64(r.TriggerEndTime)
		c.i32(r.GroupNumber)
		c.boolean(r.IsEmbedded)
	},
}
