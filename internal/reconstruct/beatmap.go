// Package reconstruct rebuilds beatmap and storyboard documents from the
// rows of one file.
//
// Row order is never trusted: children are grouped under their parent's
// positional index and sorted by their own index column before use. Rows
// that cannot be decoded are reported as ObjectErrors and skipped; the rest
// of the file is still rebuilt.
package reconstruct

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/pkg/beatmap"
	"github.com/beatset/beatset/pkg/types"
)

// Defaults for values missing from optional columns.
const (
	DefaultBeatLength     = 500.0
	DefaultSliderVelocity = 1.0
	DefaultTimeSignature  = 4
	DefaultSpinnerX       = 256
	DefaultSpinnerY       = 192
)

// ObjectError is a row that could not be turned into part of a document.
type ObjectError struct {
	File  string
	Table types.Table
	// Index is the row's positional index, or its position among the
	// file's rows for tables without one.
	Index int32
	Err   error
}

func (e ObjectError) Error() string {
	return fmt.Sprintf("%s: %s[%d]: %v", e.File, e.Table, e.Index, e.Err)
}

func (e ObjectError) Unwrap() error { return e.Err }

func unknownTag(what, tag string) error {
	return errors.NewReferenceError(errors.CodeUnknownTag, fmt.Sprintf("unknown %s %q", what, tag), nil)
}

// fileIndex holds the lookup indices built once per decoded file.
type fileIndex struct {
	sliderData    map[int32]*types.SliderDataRow
	controlPoints map[int32][]*types.SliderControlPointRow
	samples       map[int32][]*types.HitSampleRow
}

func buildIndex(rows *types.RowSet) fileIndex {
	idx := fileIndex{
		sliderData:    make(map[int32]*types.SliderDataRow, len(rows.SliderData)),
		controlPoints: make(map[int32][]*types.SliderControlPointRow),
		samples:       make(map[int32][]*types.HitSampleRow),
	}
	for i := range rows.SliderData {
		r := &rows.SliderData[i]
		idx.sliderData[r.HitObjectIndex] = r
	}
	for i := range rows.SliderControlPoints {
		r := &rows.SliderControlPoints[i]
		idx.controlPoints[r.HitObjectIndex] = append(idx.controlPoints[r.HitObjectIndex], r)
	}
	for _, cps := range idx.controlPoints {
		sort.SliceStable(cps, func(a, b int) bool { return cps[a].PointIndex < cps[b].PointIndex })
	}
	for i := range rows.HitSamples {
		r := &rows.HitSamples[i]
		idx.samples[r.HitObjectIndex] = append(idx.samples[r.HitObjectIndex], r)
	}
	for _, ss := range idx.samples {
		sort.SliceStable(ss, func(a, b int) bool { return ss[a].SampleIndex < ss[b].SampleIndex })
	}
	return idx
}

// Beatmap rebuilds the beatmap described by meta from rows, which must
// hold only rows of meta's file (see types.RowSet.ForFile).
func Beatmap(meta *types.BeatmapRow, rows *types.RowSet) (*beatmap.Beatmap, []ObjectError) {
	bm := metadata(meta)
	var errs []ObjectError
	report := func(t types.Table, i int32, err error) {
		errs = append(errs, ObjectError{File: meta.OsuFile, Table: t, Index: i, Err: err})
	}

	idx := buildIndex(rows)

	hitObjects := make([]*types.HitObjectRow, len(rows.HitObjects))
	for i := range rows.HitObjects {
		hitObjects[i] = &rows.HitObjects[i]
	}
	sort.SliceStable(hitObjects, func(a, b int) bool { return hitObjects[a].Index < hitObjects[b].Index })

	for _, r := range hitObjects {
		ho, err := hitObject(r, idx)
		if err != nil {
			report(types.TableHitObjects, r.Index, err)
			continue
		}
		for _, s := range idx.samples[r.Index] {
			ho.Samples = append(ho.Samples, hitSample(s))
		}
		bm.HitObjects = append(bm.HitObjects, *ho)
	}

	for i := range rows.TimingPoints {
		if err := controlPoint(bm, &rows.TimingPoints[i]); err != nil {
			report(types.TableTimingPoints, int32(i), err)
		}
	}
	sort.SliceStable(bm.TimingPoints, func(a, b int) bool { return bm.TimingPoints[a].Time < bm.TimingPoints[b].Time })
	sort.SliceStable(bm.DifficultyPoints, func(a, b int) bool { return bm.DifficultyPoints[a].Time < bm.DifficultyPoints[b].Time })
	sort.SliceStable(bm.EffectPoints, func(a, b int) bool { return bm.EffectPoints[a].Time < bm.EffectPoints[b].Time })

	for _, b := range rows.Breaks {
		bm.Breaks = append(bm.Breaks, beatmap.Break{StartTime: b.StartTime, EndTime: b.EndTime})
	}
	sort.SliceStable(bm.Breaks, func(a, b int) bool { return bm.Breaks[a].StartTime < bm.Breaks[b].StartTime })

	errs = append(errs, colours(bm, meta.OsuFile, rows.ComboColors)...)
	return bm, errs
}

func metadata(r *types.BeatmapRow) *beatmap.Beatmap {
	bm := beatmap.New()
	bm.FormatVersion = r.FormatVersion
	bm.AudioFile = r.AudioFile
	bm.AudioLeadIn = r.AudioLeadIn
	bm.PreviewTime = r.PreviewTime
	bm.DefaultSampleBank = beatmap.SampleBankFromCode(r.DefaultSampleBank)
	bm.DefaultSampleVolume = r.DefaultSampleVolume
	bm.StackLeniency = r.StackLeniency
	bm.Mode = beatmap.GameModeFromCode(r.Mode)
	bm.LetterboxInBreaks = r.LetterboxInBreaks
	bm.SpecialStyle = r.SpecialStyle
	bm.WidescreenStoryboard = r.WidescreenStoryboard
	bm.EpilepsyWarning = r.EpilepsyWarning
	bm.SamplesMatchPlaybackRate = r.SamplesMatchPlaybackRate
	bm.Countdown = beatmap.CountdownFromCode(r.Countdown)
	bm.CountdownOffset = r.CountdownOffset

	bm.Bookmarks = nil
	for _, s := range strings.Split(r.Bookmarks, ",") {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32); err == nil {
			bm.Bookmarks = append(bm.Bookmarks, int32(n))
		}
	}
	bm.DistanceSpacing = r.DistanceSpacing
	bm.BeatDivisor = r.BeatDivisor
	bm.GridSize = r.GridSize
	bm.TimelineZoom = r.TimelineZoom

	bm.Title = r.Title
	bm.TitleUnicode = r.TitleUnicode
	bm.Artist = r.Artist
	bm.ArtistUnicode = r.ArtistUnicode
	bm.Creator = r.Creator
	bm.Version = r.Version
	bm.Source = r.Source
	bm.Tags = r.Tags
	bm.BeatmapID = r.BeatmapID
	bm.BeatmapSetID = r.BeatmapSetID

	bm.HPDrainRate = r.HPDrainRate
	bm.CircleSize = r.CircleSize
	bm.OverallDifficulty = r.OverallDifficulty
	bm.ApproachRate = r.ApproachRate
	bm.SliderMultiplier = r.SliderMultiplier
	bm.SliderTickRate = r.SliderTickRate

	bm.BackgroundFile = r.BackgroundFile
	return bm
}

func pos(x, y *int32, dx, dy int32) beatmap.Pos {
	p := beatmap.Pos{X: float32(dx), Y: float32(dy)}
	if x != nil {
		p.X = float32(*x)
	}
	if y != nil {
		p.Y = float32(*y)
	}
	return p
}

func hitObject(r *types.HitObjectRow, idx fileIndex) (*beatmap.HitObject, error) {
	kind, err := beatmap.ParseObjectType(r.ObjectType)
	if err != nil {
		return nil, unknownTag("object type", r.ObjectType)
	}

	ho := &beatmap.HitObject{StartTime: r.StartTime}
	switch kind {
	case beatmap.ObjectCircle:
		ho.Kind = &beatmap.Circle{
			Pos:         pos(r.PosX, r.PosY, 0, 0),
			NewCombo:    r.NewCombo,
			ComboOffset: r.ComboOffset,
		}
	case beatmap.ObjectSlider:
		sd, ok := idx.sliderData[r.Index]
		if !ok {
			return nil, errors.NewReferenceError(errors.CodeMissingSliderData,
				fmt.Sprintf("slider %d has no slider data", r.Index), nil)
		}
		s := &beatmap.Slider{
			Pos:          pos(r.PosX, r.PosY, 0, 0),
			NewCombo:     r.NewCombo,
			ComboOffset:  r.ComboOffset,
			ExpectedDist: sd.ExpectedDist,
			RepeatCount:  sd.RepeatCount,
			Velocity:     sd.Velocity,
		}
		for _, cp := range idx.controlPoints[r.Index] {
			pt := beatmap.PathInherit
			if cp.PathType != nil {
				if pt, err = beatmap.ParsePathType(*cp.PathType); err != nil {
					return nil, unknownTag("path type", *cp.PathType)
				}
			}
			s.ControlPoints = append(s.ControlPoints, beatmap.ControlPoint{
				Pos:  beatmap.Pos{X: cp.PosX, Y: cp.PosY},
				Type: pt,
			})
		}
		ho.Kind = s
	case beatmap.ObjectSpinner:
		ho.Kind = &beatmap.Spinner{
			Pos:      pos(r.PosX, r.PosY, DefaultSpinnerX, DefaultSpinnerY),
			Duration: deref(r.EndTime, 0),
			NewCombo: r.NewCombo,
		}
	case beatmap.ObjectHold:
		x := float32(0)
		if r.PosX != nil {
			x = float32(*r.PosX)
		}
		ho.Kind = &beatmap.Hold{PosX: x, Duration: deref(r.EndTime, 0)}
	}
	return ho, nil
}

func hitSample(r *types.HitSampleRow) beatmap.HitSample {
	s := beatmap.HitSample{
		Name:   beatmap.ParseSampleName(r.Name),
		Bank:   beatmap.ParseSampleBank(r.Bank),
		Volume: r.Volume,
	}
	if r.Suffix != nil {
		if n, err := strconv.ParseInt(*r.Suffix, 10, 32); err == nil && n > 0 {
			s.Suffix = int32(n)
		}
	}
	return s
}

func controlPoint(bm *beatmap.Beatmap, r *types.TimingPointRow) error {
	switch r.PointType {
	case types.PointTiming:
		bm.TimingPoints = append(bm.TimingPoints, beatmap.TimingPoint{
			Time:          r.Time,
			BeatLength:    deref(r.BeatLength, DefaultBeatLength),
			TimeSignature: timeSignature(r.TimeSignature),
		})
	case types.PointDifficulty:
		bm.DifficultyPoints = append(bm.DifficultyPoints, beatmap.DifficultyPoint{
			Time:           r.Time,
			SliderVelocity: deref(r.SliderVelocity, DefaultSliderVelocity),
		})
	case types.PointEffect:
		bm.EffectPoints = append(bm.EffectPoints, beatmap.EffectPoint{
			Time: r.Time,
			Kiai: deref(r.Kiai, false),
		})
	default:
		return unknownTag("point type", r.PointType)
	}
	return nil
}

// timeSignature accepts the plain number and wrapped forms such as
// "TimeSignature(3)".
func timeSignature(s *string) int32 {
	if s == nil {
		return DefaultTimeSignature
	}
	digits := strings.TrimFunc(*s, func(r rune) bool { return r < '0' || r > '9' })
	n, err := strconv.ParseInt(digits, 10, 32)
	if err != nil || n <= 0 {
		return DefaultTimeSignature
	}
	return int32(n)
}

func colours(bm *beatmap.Beatmap, file string, rows []types.ComboColorRow) []ObjectError {
	var errs []ObjectError
	var combo, custom []*types.ComboColorRow
	for i := range rows {
		r := &rows[i]
		switch r.ColorType {
		case types.ColorCombo:
			combo = append(combo, r)
		case types.ColorCustom:
			if r.CustomName == nil {
				errs = append(errs, ObjectError{File: file, Table: types.TableComboColors, Index: r.ColorIndex,
					Err: errors.NewReferenceError(errors.CodeBadValue, "custom colour without a name", nil)})
				continue
			}
			custom = append(custom, r)
		default:
			errs = append(errs, ObjectError{File: file, Table: types.TableComboColors, Index: r.ColorIndex,
				Err: unknownTag("color type", r.ColorType)})
		}
	}
	byIndex := func(rs []*types.ComboColorRow) {
		sort.SliceStable(rs, func(a, b int) bool { return rs[a].ColorIndex < rs[b].ColorIndex })
	}
	byIndex(combo)
	byIndex(custom)
	for _, r := range combo {
		bm.ComboColors = append(bm.ComboColors, rgb(r))
	}
	for _, r := range custom {
		bm.CustomColors = append(bm.CustomColors, beatmap.CustomColor{Name: *r.CustomName, Color: rgb(r)})
	}
	return errs
}

func rgb(r *types.ComboColorRow) beatmap.Color {
	return beatmap.Color{R: channel(r.Red), G: channel(r.Green), B: channel(r.Blue)}
}

func channel(v int32) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
