package flatten

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/pkg/beatmap"
	"github.com/beatset/beatset/pkg/storyboard"
	"github.com/beatset/beatset/pkg/types"
)

func TestBeatmap_Circle(t *testing.T) {
	bm := beatmap.New()
	bm.HitObjects = []beatmap.HitObject{{
		StartTime: 1000,
		Kind:      &beatmap.Circle{Pos: beatmap.Pos{X: 256.9, Y: 192.2}, NewCombo: true},
		Samples:   []beatmap.HitSample{{Name: beatmap.SampleWhistle, Bank: beatmap.BankSoft, Volume: 80}},
	}}

	rs := &types.RowSet{}
	require.NoError(t, New(nil).Beatmap("1", "a.osu", bm, rs))

	require.Len(t, rs.Beatmaps, 1)
	require.Len(t, rs.HitObjects, 1)
	ho := rs.HitObjects[0]
	assert.Equal(t, "circle", ho.ObjectType)
	assert.EqualValues(t, 256, *ho.PosX, "positions are truncated")
	assert.EqualValues(t, 192, *ho.PosY)
	assert.True(t, ho.NewCombo)
	assert.Zero(t, ho.ComboOffset)
	assert.Nil(t, ho.Slides)
	assert.Nil(t, ho.EndTime)

	require.Len(t, rs.HitSamples, 1)
	s := rs.HitSamples[0]
	assert.Equal(t, "Whistle", s.Name)
	assert.Equal(t, "Soft", s.Bank)
	assert.Nil(t, s.Suffix)
	assert.EqualValues(t, 80, s.Volume)
}

func TestBeatmap_Slider(t *testing.T) {
	bm := beatmap.New()
	bm.HitObjects = []beatmap.HitObject{
		{StartTime: 0, Kind: &beatmap.Circle{}},
		{StartTime: 500, Kind: &beatmap.Slider{
			Pos: beatmap.Pos{X: 10, Y: 20},
			ControlPoints: []beatmap.ControlPoint{
				{Pos: beatmap.Pos{X: 0, Y: 0}, Type: beatmap.PathBezier},
				{Pos: beatmap.Pos{X: 50, Y: 50}},
				{Pos: beatmap.Pos{X: 100, Y: 0}},
			},
			RepeatCount: 2,
			Velocity:    1.5,
		}},
	}

	rs := &types.RowSet{}
	require.NoError(t, New(nil).Beatmap("1", "a.osu", bm, rs))

	require.Len(t, rs.HitObjects, 2)
	ho := rs.HitObjects[1]
	assert.EqualValues(t, 1, ho.Index)
	assert.Equal(t, "slider", ho.ObjectType)
	assert.Equal(t, "Bezier", *ho.CurveType)
	assert.EqualValues(t, 2, *ho.Slides)
	assert.Equal(t, 0.0, *ho.Length, "missing expected distance is stored as zero length")

	require.Len(t, rs.SliderData, 1)
	sd := rs.SliderData[0]
	assert.EqualValues(t, 1, sd.HitObjectIndex)
	assert.EqualValues(t, 2, sd.RepeatCount)
	assert.Equal(t, 1.5, sd.Velocity)
	assert.Nil(t, sd.ExpectedDist)

	require.Len(t, rs.SliderControlPoints, 3)
	for i, cp := range rs.SliderControlPoints {
		assert.EqualValues(t, i, cp.PointIndex)
		assert.EqualValues(t, 1, cp.HitObjectIndex)
	}
	assert.Equal(t, "Bezier", *rs.SliderControlPoints[0].PathType)
	assert.Nil(t, rs.SliderControlPoints[1].PathType)
	assert.Equal(t, float32(50), rs.SliderControlPoints[1].PosX)
}

func TestBeatmap_HoldAndSpinner(t *testing.T) {
	bm := beatmap.New()
	bm.HitObjects = []beatmap.HitObject{
		{StartTime: 100, Kind: &beatmap.Hold{PosX: 64.5, Duration: 400}},
		{StartTime: 900, Kind: &beatmap.Spinner{Pos: beatmap.Pos{X: 256, Y: 192}, Duration: 2000, NewCombo: true}},
	}

	rs := &types.RowSet{}
	require.NoError(t, New(nil).Beatmap("1", "a.osu", bm, rs))

	hold := rs.HitObjects[0]
	assert.Equal(t, "hold", hold.ObjectType)
	assert.EqualValues(t, 64, *hold.PosX)
	assert.Nil(t, hold.PosY)
	assert.False(t, hold.NewCombo)
	assert.Zero(t, hold.ComboOffset)
	assert.Equal(t, 400.0, *hold.EndTime)

	spin := rs.HitObjects[1]
	assert.Equal(t, "spinner", spin.ObjectType)
	assert.True(t, spin.NewCombo)
	assert.Equal(t, 2000.0, *spin.EndTime)
	assert.Empty(t, rs.SliderData)
}

func TestBeatmap_NoHitObjects(t *testing.T) {
	rs := &types.RowSet{}
	err := New(nil).Beatmap("1", "a.osu", beatmap.New(), rs)
	require.Error(t, err)
	assert.Equal(t, errors.CodeNoHitObjects, errors.GetCode(err))
	assert.Zero(t, rs.TotalRows())
}

func TestBeatmap_ControlPointsAndColours(t *testing.T) {
	bm := beatmap.New()
	bm.HitObjects = []beatmap.HitObject{{Kind: &beatmap.Circle{}}}
	bm.TimingPoints = []beatmap.TimingPoint{{Time: 0, BeatLength: 500, TimeSignature: 3}}
	bm.DifficultyPoints = []beatmap.DifficultyPoint{{Time: 1000, SliderVelocity: 2}}
	bm.EffectPoints = []beatmap.EffectPoint{{Time: 2000, Kiai: true}}
	bm.Breaks = []beatmap.Break{{StartTime: 5000, EndTime: 8000}}
	bm.ComboColors = []beatmap.Color{{R: 255}, {G: 255}}
	bm.CustomColors = []beatmap.CustomColor{{Name: "SliderBorder", Color: beatmap.Color{R: 1, G: 2, B: 3}}}
	bm.Bookmarks = []int32{100, 2000}
	bm.AudioFile = "audio.mp3"

	rs := &types.RowSet{}
	require.NoError(t, New(nil).Beatmap("77", "a.osu", bm, rs))

	require.Len(t, rs.TimingPoints, 3)
	timing, diff, effect := rs.TimingPoints[0], rs.TimingPoints[1], rs.TimingPoints[2]
	assert.Equal(t, types.PointTiming, timing.PointType)
	assert.Equal(t, 500.0, *timing.BeatLength)
	assert.Equal(t, "3", *timing.TimeSignature)
	assert.Nil(t, timing.SliderVelocity)
	assert.Equal(t, types.PointDifficulty, diff.PointType)
	assert.Equal(t, 2.0, *diff.SliderVelocity)
	assert.Nil(t, diff.BeatLength)
	assert.Equal(t, types.PointEffect, effect.PointType)
	assert.True(t, *effect.Kiai)

	require.Len(t, rs.Breaks, 1)
	require.Len(t, rs.ComboColors, 3)
	assert.Equal(t, types.ColorCombo, rs.ComboColors[1].ColorType)
	assert.EqualValues(t, 1, rs.ComboColors[1].ColorIndex)
	assert.EqualValues(t, 255, rs.ComboColors[1].Green)
	custom := rs.ComboColors[2]
	assert.Equal(t, types.ColorCustom, custom.ColorType)
	assert.EqualValues(t, 0, custom.ColorIndex)
	assert.Equal(t, "SliderBorder", *custom.CustomName)

	b := rs.Beatmaps[0]
	assert.Equal(t, "100,2000", b.Bookmarks)
	assert.Equal(t, "assets/77/audio.mp3", b.AudioPath)
	assert.Empty(t, b.BackgroundPath)
}

func sprite(path string, cmds ...storyboard.Command) *storyboard.Element {
	return &storyboard.Element{
		Path:   path,
		Origin: storyboard.OriginCentre,
		Kind:   &storyboard.Sprite{InitialPos: storyboard.Pos{X: 320, Y: 240}, Commands: cmds},
	}
}

func TestStoryboard_ElementIndexPerSource(t *testing.T) {
	f := New(nil)
	rs := &types.RowSet{}

	a := storyboard.New()
	a.Layer(storyboard.LayerBackground).Elements = []*storyboard.Element{sprite("a1.png")}
	a.Layer(storyboard.LayerForeground).Elements = []*storyboard.Element{sprite("a2.png")}
	b := storyboard.New()
	b.Layer(storyboard.LayerBackground).Elements = []*storyboard.Element{sprite("b1.png"), sprite("b2.png")}

	n, err := f.Storyboard("1", "a.osb", false, a, rs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = f.Storyboard("1", "b.osb", false, b, rs)
	require.NoError(t, err)
	_, err = f.Storyboard("1", "a.osu", true, b, rs)
	require.NoError(t, err)

	got := make(map[string][]int32)
	for _, e := range rs.StoryboardElements {
		key := e.SourceFile
		got[key] = append(got[key], e.ElementIndex)
	}
	assert.Equal(t, []int32{0, 1}, got["a.osb"], "one counter across layers of a file")
	assert.Equal(t, []int32{0, 1}, got["b.osb"])
	assert.Equal(t, []int32{0, 1}, got["a.osu"])
	assert.Equal(t, storyboard.LayerForeground, rs.StoryboardElements[1].LayerName)
}

func TestStoryboard_Commands(t *testing.T) {
	el := sprite("bg.png",
		storyboard.Command{Kind: storyboard.CmdColor, StartValue: storyboard.RGB{R: 255, G: 128}, EndValue: storyboard.RGB{B: 1}},
		storyboard.Command{Kind: storyboard.CmdX, StartTime: 10, EndTime: 20, StartValue: storyboard.Float(1.5), EndValue: storyboard.Float(2), Easing: 3},
		storyboard.Command{Kind: storyboard.CmdBlending, StartValue: storyboard.Blending{}, EndValue: storyboard.Blending{}},
		storyboard.Command{Kind: storyboard.CmdVectorScale, StartValue: storyboard.Vector{X: 1, Y: 0.5}, EndValue: storyboard.Vector{X: 2, Y: 2}},
		storyboard.Command{Kind: storyboard.CmdFlipH, StartValue: storyboard.Bool(true), EndValue: storyboard.Bool(false)},
	)
	sp := el.Kind.(*storyboard.Sprite)
	sp.Loops = []storyboard.Loop{{StartTime: 100, Count: 4}}
	sp.Triggers = []storyboard.Trigger{{Name: "HitSoundClap", StartTime: 0, EndTime: 500, GroupNumber: 1}}

	sb := storyboard.New()
	sb.Layer(storyboard.LayerOverlay).Elements = []*storyboard.Element{
		el,
		{Path: "hit.wav", Kind: &storyboard.Sample{StartTime: 5, Volume: 70}},
	}

	rs := &types.RowSet{}
	_, err := New(nil).Storyboard("1", "s.osb", false, sb, rs)
	require.NoError(t, err)

	require.Len(t, rs.StoryboardCommands, 5)
	kinds := make([]string, 0, 5)
	for _, c := range rs.StoryboardCommands {
		kinds = append(kinds, c.CommandType)
	}
	assert.Equal(t, []string{"x", "color", "flip_h", "vector_scale", "blending"}, kinds)

	x := rs.StoryboardCommands[0]
	assert.Equal(t, "1.5", x.StartValue)
	assert.Equal(t, "2", x.EndValue)
	assert.EqualValues(t, 3, x.Easing)
	assert.Equal(t, "255,128,0", rs.StoryboardCommands[1].StartValue)
	assert.Equal(t, "true", rs.StoryboardCommands[2].StartValue)
	assert.Equal(t, "1,0.5", rs.StoryboardCommands[3].StartValue)
	assert.Equal(t, "A", rs.StoryboardCommands[4].StartValue, "blending is stored as a fixed placeholder")
	assert.Equal(t, "A", rs.StoryboardCommands[4].EndValue)

	require.Len(t, rs.StoryboardLoops, 1)
	assert.EqualValues(t, 4, rs.StoryboardLoops[0].LoopCount)
	require.Len(t, rs.StoryboardTriggers, 1)
	assert.Equal(t, "HitSoundClap", rs.StoryboardTriggers[0].TriggerName)

	require.Len(t, rs.StoryboardElements, 2)
	sample := rs.StoryboardElements[1]
	assert.Equal(t, "sample", sample.ElementType)
	assert.Empty(t, sample.Origin)
	assert.Zero(t, sample.InitialPosX)
	assert.EqualValues(t, 1, sample.ElementIndex)
}

func TestStoryboard_Animation(t *testing.T) {
	sb := storyboard.New()
	sb.Layer(storyboard.LayerForeground).Elements = []*storyboard.Element{{
		Path:   "anim.png",
		Origin: storyboard.OriginTopLeft,
		Kind: &storyboard.Animation{
			Sprite:     storyboard.Sprite{InitialPos: storyboard.Pos{X: 1, Y: 2}},
			FrameCount: 6,
			FrameDelay: 50,
			LoopType:   storyboard.LoopOnce,
		},
	}}

	rs := &types.RowSet{}
	_, err := New(nil).Storyboard("1", "a.osu", true, sb, rs)
	require.NoError(t, err)

	e := rs.StoryboardElements[0]
	assert.Equal(t, "animation", e.ElementType)
	assert.Equal(t, "TopLeft", e.Origin)
	assert.EqualValues(t, 6, *e.FrameCount)
	assert.Equal(t, 50.0, *e.FrameDelay)
	assert.Equal(t, "LoopOnce", *e.LoopType)
	assert.True(t, e.IsEmbedded)
}

func TestStoryboard_BadValueAppendsNothing(t *testing.T) {
	sb := storyboard.New()
	sb.Layer(storyboard.LayerBackground).Elements = []*storyboard.Element{
		sprite("ok.png"),
		sprite("bad.png", storyboard.Command{Kind: storyboard.CmdColor, StartValue: storyboard.Float(1), EndValue: storyboard.Float(1)}),
	}

	rs := &types.RowSet{}
	_, err := New(nil).Storyboard("1", "s.osb", false, sb, rs)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.ErrCategoryParse))
	assert.Zero(t, rs.TotalRows())
}

func TestAssetPath(t *testing.T) {
	assert.Equal(t, "assets/9/sb/bg.png", AssetPath("9", `"sb\bg.png"`))
	assert.Empty(t, AssetPath("9", ""))
	assert.Equal(t, "a b.mp3", NormalizeAssetName(" a b.mp3 "))
}
