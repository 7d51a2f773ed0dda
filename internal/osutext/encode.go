package osutext

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/beatset/beatset/pkg/beatmap"
)

// textWriter remembers the first write error so encoders can write
// unconditionally and check once.
type textWriter struct {
	w   *bufio.Writer
	err error
}

func newTextWriter(w io.Writer) *textWriter {
	return &textWriter{w: bufio.NewWriter(w)}
}

func (t *textWriter) line(format string, args ...interface{}) {
	if t.err != nil {
		return
	}
	if len(args) == 0 {
		_, t.err = t.w.WriteString(format)
	} else {
		_, t.err = fmt.Fprintf(t.w, format, args...)
	}
	if t.err == nil {
		t.err = t.w.WriteByte('\n')
	}
}

func (t *textWriter) flush() error {
	if t.err != nil {
		return t.err
	}
	return t.w.Flush()
}

// EncodeBeatmap writes bm in the .osu text format. Storyboard elements are
// never part of the output; they are written separately with
// EncodeStoryboard.
func EncodeBeatmap(w io.Writer, bm *beatmap.Beatmap) error {
	t := newTextWriter(w)
	t.line("%s%d", formatHeader, bm.FormatVersion)
	t.line("")

	t.line("[General]")
	t.line("AudioFilename: %s", bm.AudioFile)
	t.line("AudioLeadIn: %s", formatFloat(bm.AudioLeadIn))
	t.line("PreviewTime: %d", bm.PreviewTime)
	t.line("Countdown: %d", bm.Countdown)
	t.line("SampleSet: %s", bm.DefaultSampleBank)
	t.line("SampleVolume: %d", bm.DefaultSampleVolume)
	t.line("StackLeniency: %s", formatFloat32(bm.StackLeniency))
	t.line("Mode: %d", bm.Mode)
	t.line("LetterboxInBreaks: %s", formatBool(bm.LetterboxInBreaks))
	t.line("SpecialStyle: %s", formatBool(bm.SpecialStyle))
	t.line("WidescreenStoryboard: %s", formatBool(bm.WidescreenStoryboard))
	t.line("EpilepsyWarning: %s", formatBool(bm.EpilepsyWarning))
	t.line("SamplesMatchPlaybackRate: %s", formatBool(bm.SamplesMatchPlaybackRate))
	t.line("CountdownOffset: %d", bm.CountdownOffset)
	t.line("")

	t.line("[Editor]")
	if len(bm.Bookmarks) > 0 {
		marks := make([]string, len(bm.Bookmarks))
		for i, b := range bm.Bookmarks {
			marks[i] = strconv.Itoa(int(b))
		}
		t.line("Bookmarks: %s", strings.Join(marks, ","))
	}
	t.line("DistanceSpacing: %s", formatFloat(bm.DistanceSpacing))
	t.line("BeatDivisor: %d", bm.BeatDivisor)
	t.line("GridSize: %d", bm.GridSize)
	t.line("TimelineZoom: %s", formatFloat(bm.TimelineZoom))
	t.line("")

	t.line("[Metadata]")
	t.line("Title:%s", bm.Title)
	t.line("TitleUnicode:%s", bm.TitleUnicode)
	t.line("Artist:%s", bm.Artist)
	t.line("ArtistUnicode:%s", bm.ArtistUnicode)
	t.line("Creator:%s", bm.Creator)
	t.line("Version:%s", bm.Version)
	t.line("Source:%s", bm.Source)
	t.line("Tags:%s", bm.Tags)
	t.line("BeatmapID:%d", bm.BeatmapID)
	t.line("BeatmapSetID:%d", bm.BeatmapSetID)
	t.line("")

	t.line("[Difficulty]")
	t.line("HPDrainRate:%s", formatFloat32(bm.HPDrainRate))
	t.line("CircleSize:%s", formatFloat32(bm.CircleSize))
	t.line("OverallDifficulty:%s", formatFloat32(bm.OverallDifficulty))
	t.line("ApproachRate:%s", formatFloat32(bm.ApproachRate))
	t.line("SliderMultiplier:%s", formatFloat(bm.SliderMultiplier))
	t.line("SliderTickRate:%s", formatFloat(bm.SliderTickRate))
	t.line("")

	t.line("[Events]")
	t.line("//Background and Video events")
	if bm.BackgroundFile != "" {
		t.line(`0,0,"%s",0,0`, bm.BackgroundFile)
	}
	t.line("//Break Periods")
	for _, b := range bm.Breaks {
		t.line("2,%s,%s", formatFloat(b.StartTime), formatFloat(b.EndTime))
	}
	t.line("")

	t.line("[TimingPoints]")
	for _, l := range timingLines(bm) {
		t.line("%s", l)
	}
	t.line("")

	if len(bm.ComboColors) > 0 || len(bm.CustomColors) > 0 {
		t.line("[Colours]")
		for i, c := range bm.ComboColors {
			t.line("Combo%d : %d,%d,%d", i+1, c.R, c.G, c.B)
		}
		for _, c := range bm.CustomColors {
			t.line("%s : %d,%d,%d", c.Name, c.Color.R, c.Color.G, c.Color.B)
		}
		t.line("")
	}

	t.line("[HitObjects]")
	for i := range bm.HitObjects {
		l, err := hitObjectLine(&bm.HitObjects[i])
		if err != nil {
			return fmt.Errorf("hit object %d: %w", i, err)
		}
		t.line("%s", l)
	}
	return t.flush()
}

// timingLines merges the three point lists back into TimingPoints lines.
// Effect points that share a time with another point set its kiai flag;
// the others get an inherited line carrying the current velocity.
func timingLines(bm *beatmap.Beatmap) []string {
	const (
		red = iota
		green
		effect
	)
	type entry struct {
		time float64
		kind int
		tp   beatmap.TimingPoint
		sv   float64
	}
	var entries []entry
	times := make(map[float64]bool)
	for _, tp := range bm.TimingPoints {
		entries = append(entries, entry{time: tp.Time, kind: red, tp: tp})
		times[tp.Time] = true
	}
	for _, dp := range bm.DifficultyPoints {
		entries = append(entries, entry{time: dp.Time, kind: green, sv: dp.SliderVelocity})
		times[dp.Time] = true
	}
	for _, ep := range bm.EffectPoints {
		if !times[ep.Time] {
			entries = append(entries, entry{time: ep.Time, kind: effect})
			times[ep.Time] = true
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].time != entries[j].time {
			return entries[i].time < entries[j].time
		}
		return entries[i].kind < entries[j].kind
	})

	effects := append([]beatmap.EffectPoint(nil), bm.EffectPoints...)
	sort.SliceStable(effects, func(i, j int) bool { return effects[i].Time < effects[j].Time })
	kiaiAt := func(t float64) bool {
		i := sort.Search(len(effects), func(i int) bool { return effects[i].Time > t })
		return i > 0 && effects[i-1].Kiai
	}

	bank := int32(bm.DefaultSampleBank)
	meter := int32(4)
	sv := 1.0
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		beatLength := 0.0
		uninherited := 0
		switch e.kind {
		case red:
			beatLength = e.tp.BeatLength
			meter = e.tp.TimeSignature
			uninherited = 1
		case green:
			sv = e.sv
			fallthrough
		default:
			beatLength = -100
			if sv > 0 {
				beatLength = -100 / sv
			}
		}
		kiai := 0
		if kiaiAt(e.time) {
			kiai = 1
		}
		out = append(out, fmt.Sprintf("%s,%s,%d,%d,0,%d,%d,%d",
			formatFloat(e.time), formatFloat(beatLength), meter, bank, bm.DefaultSampleVolume, uninherited, kiai))
	}
	return out
}

func hitObjectLine(ho *beatmap.HitObject) (string, error) {
	sound, extra := encodeSamples(ho.Samples)
	start := formatFloat(ho.StartTime)

	combo := func(newCombo bool, offset int32) int32 {
		typ := int32(0)
		if newCombo {
			typ |= typeNewCombo
		}
		return typ | (offset&comboOffsetMask)<<comboOffsetShift
	}
	xy := func(p beatmap.Pos) string { return formatFloat32(p.X) + "," + formatFloat32(p.Y) }

	switch k := ho.Kind.(type) {
	case *beatmap.Circle:
		typ := typeCircle | combo(k.NewCombo, k.ComboOffset)
		return fmt.Sprintf("%s,%s,%d,%d,%s", xy(k.Pos), start, typ, sound, extra), nil
	case *beatmap.Slider:
		typ := typeSlider | combo(k.NewCombo, k.ComboOffset)
		length := 0.0
		if k.ExpectedDist != nil {
			length = *k.ExpectedDist
		}
		edges := int(k.RepeatCount) + 1
		if edges < 2 {
			edges = 2
		}
		edgeSounds := strings.TrimSuffix(strings.Repeat("0|", edges), "|")
		edgeSets := strings.TrimSuffix(strings.Repeat("0:0|", edges), "|")
		return fmt.Sprintf("%s,%s,%d,%d,%s,%d,%s,%s,%s,%s",
			xy(k.Pos), start, typ, sound, sliderPathText(k), k.RepeatCount, formatFloat(length),
			edgeSounds, edgeSets, extra), nil
	case *beatmap.Spinner:
		typ := typeSpinner | combo(k.NewCombo, 0)
		return fmt.Sprintf("%s,%s,%d,%d,%s,%s",
			xy(k.Pos), start, typ, sound, formatFloat(ho.StartTime+k.Duration), extra), nil
	case *beatmap.Hold:
		return fmt.Sprintf("%s,192,%s,%d,%d,%s:%s",
			formatFloat32(k.PosX), start, typeHold, sound, formatFloat(ho.StartTime+k.Duration), extra), nil
	}
	return "", fmt.Errorf("unsupported hit object kind %T", ho.Kind)
}

// sliderPathText writes control points as absolute positions after the
// initial curve letter. A point that starts a segment of the initial type is
// written twice; a point of another type is preceded by its letter.
func sliderPathText(s *beatmap.Slider) string {
	initial := beatmap.PathBezier
	if len(s.ControlPoints) > 0 && s.ControlPoints[0].Type != beatmap.PathInherit {
		initial = s.ControlPoints[0].Type
	}
	var b strings.Builder
	b.WriteString(initial.Letter())
	for i, cp := range s.ControlPoints {
		if i == 0 {
			continue
		}
		abs := formatFloat32(s.Pos.X+cp.Pos.X) + ":" + formatFloat32(s.Pos.Y+cp.Pos.Y)
		switch {
		case cp.Type == beatmap.PathInherit:
			b.WriteString("|" + abs)
		case cp.Type == initial:
			b.WriteString("|" + abs + "|" + abs)
		default:
			b.WriteString("|" + cp.Type.Letter() + "|" + abs)
		}
	}
	return b.String()
}

// encodeSamples is the inverse of samples.
func encodeSamples(ss []beatmap.HitSample) (int32, string) {
	var normal *beatmap.HitSample
	var addition *beatmap.HitSample
	sound := int32(0)
	for i := range ss {
		s := &ss[i]
		switch n := s.Name.(type) {
		case beatmap.FileSampleName:
			return 0, fmt.Sprintf("%d:0:%d:%d:%s", s.Bank, s.Suffix, s.Volume, string(n))
		case beatmap.DefaultSampleName:
			switch n {
			case beatmap.SampleWhistle:
				sound |= soundWhistle
			case beatmap.SampleFinish:
				sound |= soundFinish
			case beatmap.SampleClap:
				sound |= soundClap
			default:
				if normal == nil {
					normal = s
				}
				continue
			}
			if addition == nil {
				addition = s
			}
		}
	}
	base := normal
	if base == nil {
		base = addition
	}
	if base == nil {
		return sound, "0:0:0:0:"
	}
	additionSet := beatmap.BankNone
	if addition != nil && normal != nil && addition.Bank != normal.Bank {
		additionSet = addition.Bank
	}
	normalSet := beatmap.BankNone
	if normal != nil {
		normalSet = normal.Bank
	} else {
		additionSet = addition.Bank
	}
	return sound, fmt.Sprintf("%d:%d:%d:%d:", normalSet, additionSet, base.Suffix, base.Volume)
}
