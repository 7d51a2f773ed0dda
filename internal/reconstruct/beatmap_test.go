package reconstruct

import (
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/internal/flatten"
	"github.com/beatset/beatset/pkg/beatmap"
	"github.com/beatset/beatset/pkg/types"
)

func roundTrip(t *testing.T, bm *beatmap.Beatmap) (*beatmap.Beatmap, *types.RowSet) {
	t.Helper()
	rs := &types.RowSet{}
	require.NoError(t, flatten.New(nil).Beatmap("1", "a.osu", bm, rs))
	got, errs := Beatmap(&rs.Beatmaps[0], rs.ForFile("a.osu"))
	require.Empty(t, errs)
	return got, rs
}

func TestBeatmap_CircleRoundTrip(t *testing.T) {
	bm := beatmap.New()
	bm.HitObjects = []beatmap.HitObject{{
		StartTime: 1000,
		Kind:      &beatmap.Circle{Pos: beatmap.Pos{X: 256, Y: 192}, NewCombo: true},
	}}

	got, _ := roundTrip(t, bm)
	require.Len(t, got.HitObjects, 1)
	ho := got.HitObjects[0]
	assert.Equal(t, 1000.0, ho.StartTime)
	c, ok := ho.Kind.(*beatmap.Circle)
	require.True(t, ok, "got %T", ho.Kind)
	assert.Equal(t, beatmap.Pos{X: 256, Y: 192}, c.Pos)
	assert.True(t, c.NewCombo)
	assert.Zero(t, c.ComboOffset)
}

func TestBeatmap_SliderRoundTrip(t *testing.T) {
	points := []beatmap.ControlPoint{
		{Pos: beatmap.Pos{X: 0, Y: 0}, Type: beatmap.PathBezier},
		{Pos: beatmap.Pos{X: 50, Y: 50}},
		{Pos: beatmap.Pos{X: 100, Y: 0}},
	}
	bm := beatmap.New()
	bm.HitObjects = []beatmap.HitObject{{
		StartTime: 500,
		Kind:      &beatmap.Slider{ControlPoints: points, RepeatCount: 2, Velocity: 1.5},
	}}

	got, rs := roundTrip(t, bm)
	assert.Len(t, rs.HitObjects, 1)
	assert.Len(t, rs.SliderData, 1)
	assert.Len(t, rs.SliderControlPoints, 3)

	s, ok := got.HitObjects[0].Kind.(*beatmap.Slider)
	require.True(t, ok)
	assert.Equal(t, points, s.ControlPoints)
	assert.EqualValues(t, 2, s.RepeatCount)
	assert.Equal(t, 1.5, s.Velocity)
}

func TestBeatmap_MetadataRoundTrip(t *testing.T) {
	bm := beatmap.New()
	bm.Title = "Song"
	bm.Artist = "Artist"
	bm.Mode = beatmap.ModeMania
	bm.Countdown = beatmap.CountdownNone
	bm.DefaultSampleBank = beatmap.BankDrum
	bm.Bookmarks = []int32{10, 20}
	bm.AudioFile = "audio.ogg"
	bm.HitObjects = []beatmap.HitObject{
		{StartTime: 10, Kind: &beatmap.Hold{PosX: 64, Duration: 300}, Samples: []beatmap.HitSample{
			{Name: beatmap.SampleClap, Bank: beatmap.BankDrum, Suffix: 2, Volume: 40},
			{Name: beatmap.FileSampleName("kick.wav"), Volume: 70},
		}},
		{StartTime: 20, Kind: &beatmap.Spinner{Pos: beatmap.Pos{X: 256, Y: 192}, Duration: 1500}},
	}
	bm.Breaks = []beatmap.Break{{StartTime: 3000, EndTime: 6000}}
	bm.ComboColors = []beatmap.Color{{R: 1, G: 2, B: 3}}
	bm.CustomColors = []beatmap.CustomColor{{Name: "SliderBorder", Color: beatmap.Color{R: 9}}}

	got, _ := roundTrip(t, bm)
	assert.Equal(t, "Song", got.Title)
	assert.Equal(t, beatmap.ModeMania, got.Mode)
	assert.Equal(t, beatmap.CountdownNone, got.Countdown)
	assert.Equal(t, beatmap.BankDrum, got.DefaultSampleBank)
	assert.Equal(t, []int32{10, 20}, got.Bookmarks)
	assert.Equal(t, bm.Breaks, got.Breaks)
	assert.Equal(t, bm.ComboColors, got.ComboColors)
	assert.Equal(t, bm.CustomColors, got.CustomColors)

	hold := got.HitObjects[0]
	assert.Equal(t, &beatmap.Hold{PosX: 64, Duration: 300}, hold.Kind)
	assert.Equal(t, bm.HitObjects[0].Samples, hold.Samples)
	assert.Equal(t, &beatmap.Spinner{Pos: beatmap.Pos{X: 256, Y: 192}, Duration: 1500}, got.HitObjects[1].Kind)
}

func TestBeatmap_UnknownCodesFallBack(t *testing.T) {
	meta := &types.BeatmapRow{OsuFile: "a.osu", Mode: 9, Countdown: -1, DefaultSampleBank: 42}
	bm, errs := Beatmap(meta, &types.RowSet{})
	assert.Empty(t, errs)
	assert.Equal(t, beatmap.ModeOsu, bm.Mode)
	assert.Equal(t, beatmap.CountdownNormal, bm.Countdown)
	assert.Equal(t, beatmap.BankNone, bm.DefaultSampleBank)
	assert.Empty(t, bm.Bookmarks)
}

func TestBeatmap_TimingPointDispatch(t *testing.T) {
	rows := &types.RowSet{TimingPoints: []types.TimingPointRow{
		{OsuFile: "a.osu", Time: 2000, PointType: types.PointEffect, Kiai: types.Ptr(true)},
		{OsuFile: "a.osu", Time: 0, PointType: types.PointTiming, BeatLength: types.Ptr(500.0)},
		{OsuFile: "a.osu", Time: 1000, PointType: types.PointDifficulty, SliderVelocity: types.Ptr(2.0)},
	}}

	bm, errs := Beatmap(&types.BeatmapRow{OsuFile: "a.osu"}, rows)
	assert.Empty(t, errs)
	require.Len(t, bm.TimingPoints, 1)
	require.Len(t, bm.DifficultyPoints, 1)
	require.Len(t, bm.EffectPoints, 1)
	assert.Equal(t, beatmap.TimingPoint{Time: 0, BeatLength: 500, TimeSignature: 4}, bm.TimingPoints[0])
	assert.Equal(t, beatmap.DifficultyPoint{Time: 1000, SliderVelocity: 2}, bm.DifficultyPoints[0])
	assert.Equal(t, beatmap.EffectPoint{Time: 2000, Kiai: true}, bm.EffectPoints[0])
}

func TestBeatmap_TimingPointDefaults(t *testing.T) {
	rows := &types.RowSet{TimingPoints: []types.TimingPointRow{
		{PointType: types.PointTiming, TimeSignature: types.Ptr("TimeSignature(3)")},
		{PointType: types.PointDifficulty},
		{PointType: types.PointEffect},
	}}
	bm, errs := Beatmap(&types.BeatmapRow{}, rows)
	assert.Empty(t, errs)
	assert.Equal(t, DefaultBeatLength, bm.TimingPoints[0].BeatLength)
	assert.EqualValues(t, 3, bm.TimingPoints[0].TimeSignature)
	assert.Equal(t, DefaultSliderVelocity, bm.DifficultyPoints[0].SliderVelocity)
	assert.False(t, bm.EffectPoints[0].Kiai)
}

func TestBeatmap_ObjectErrors(t *testing.T) {
	rows := &types.RowSet{
		HitObjects: []types.HitObjectRow{
			{Index: 0, ObjectType: "circle"},
			{Index: 1, ObjectType: "slider"},
			{Index: 2, ObjectType: "drumroll"},
			{Index: 3, ObjectType: "slider"},
			{Index: 4, ObjectType: "circle"},
		},
		SliderData: []types.SliderDataRow{{HitObjectIndex: 3, RepeatCount: 1}},
		SliderControlPoints: []types.SliderControlPointRow{
			{HitObjectIndex: 3, PointIndex: 0, PathType: types.Ptr("Spline")},
		},
		TimingPoints: []types.TimingPointRow{{PointType: "sample"}},
		ComboColors: []types.ComboColorRow{
			{ColorType: "gradient"},
			{ColorType: types.ColorCustom},
		},
	}

	bm, errs := Beatmap(&types.BeatmapRow{OsuFile: "a.osu"}, rows)
	assert.Len(t, bm.HitObjects, 2, "the two circles survive")
	require.Len(t, errs, 6)

	codes := make(map[string]int)
	for _, e := range errs {
		assert.Equal(t, "a.osu", e.File)
		assert.True(t, errors.IsCategory(e, errors.ErrCategoryReference))
		codes[errors.GetCode(e)]++
	}
	assert.Equal(t, 1, codes[errors.CodeMissingSliderData])
	assert.Equal(t, 4, codes[errors.CodeUnknownTag])
	assert.Equal(t, 1, codes[errors.CodeBadValue])
	assert.Equal(t, types.TableHitObjects, errs[0].Table)
	assert.EqualValues(t, 1, errs[0].Index)
}

func TestBeatmap_OrderingResilience(t *testing.T) {
	bm := beatmap.New()
	var points []beatmap.ControlPoint
	for i := 0; i < 8; i++ {
		points = append(points, beatmap.ControlPoint{Pos: beatmap.Pos{X: float32(i * 10), Y: float32(i)}})
	}
	points[0].Type = beatmap.PathLinear
	points[4].Type = beatmap.PathPerfectCurve
	var samples []beatmap.HitSample
	for i := 0; i < 6; i++ {
		samples = append(samples, beatmap.HitSample{Name: beatmap.DefaultSampleName(i % 4), Volume: int32(10 * i)})
	}
	bm.HitObjects = []beatmap.HitObject{
		{StartTime: 0, Kind: &beatmap.Circle{}},
		{StartTime: 100, Kind: &beatmap.Slider{ControlPoints: points, RepeatCount: 1, Velocity: 1}, Samples: samples},
	}

	rs := &types.RowSet{}
	require.NoError(t, flatten.New(nil).Beatmap("1", "a.osu", bm, rs))

	properties := gopter.NewProperties(nil)
	properties.Property("storage order does not change paths or samples", prop.ForAll(
		func(seed int64) bool {
			rng := rand.New(rand.NewSource(seed))
			shuffled := *rs
			shuffled.SliderControlPoints = append([]types.SliderControlPointRow(nil), rs.SliderControlPoints...)
			shuffled.HitSamples = append([]types.HitSampleRow(nil), rs.HitSamples...)
			shuffled.HitObjects = append([]types.HitObjectRow(nil), rs.HitObjects...)
			rng.Shuffle(len(shuffled.SliderControlPoints), func(i, j int) {
				shuffled.SliderControlPoints[i], shuffled.SliderControlPoints[j] = shuffled.SliderControlPoints[j], shuffled.SliderControlPoints[i]
			})
			rng.Shuffle(len(shuffled.HitSamples), func(i, j int) {
				shuffled.HitSamples[i], shuffled.HitSamples[j] = shuffled.HitSamples[j], shuffled.HitSamples[i]
			})
			rng.Shuffle(len(shuffled.HitObjects), func(i, j int) {
				shuffled.HitObjects[i], shuffled.HitObjects[j] = shuffled.HitObjects[j], shuffled.HitObjects[i]
			})

			got, errs := Beatmap(&rs.Beatmaps[0], &shuffled)
			if len(errs) != 0 || len(got.HitObjects) != 2 {
				return false
			}
			s, ok := got.HitObjects[1].Kind.(*beatmap.Slider)
			if !ok || len(s.ControlPoints) != len(points) {
				return false
			}
			for i := range points {
				if s.ControlPoints[i] != points[i] {
					return false
				}
			}
			if len(got.HitObjects[1].Samples) != len(samples) {
				return false
			}
			for i := range samples {
				if got.HitObjects[1].Samples[i] != samples[i] {
					return false
				}
			}
			return true
		},
		gen.Int64(),
	))
	properties.TestingRun(t)
}
