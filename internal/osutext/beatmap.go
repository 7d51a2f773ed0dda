package osutext

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/beatset/beatset/pkg/beatmap"
)

// Hit object type bits.
const (
	typeCircle   = 1 << 0
	typeSlider   = 1 << 1
	typeNewCombo = 1 << 2
	typeSpinner  = 1 << 3
	typeHold     = 1 << 7

	comboOffsetShift = 4
	comboOffsetMask  = 7
)

// Hit sound bits. Normal is implied by every object.
const (
	soundWhistle = 1 << 1
	soundFinish  = 1 << 2
	soundClap    = 1 << 3
)

func decodeBeatmap(doc *document) (*beatmap.Beatmap, []lineError) {
	bm := beatmap.New()
	bm.FormatVersion = doc.Version

	var errs []lineError
	errs = append(errs, doc.pairs("General", func(k, v string) error { return general(bm, k, v) })...)
	errs = append(errs, doc.pairs("Editor", func(k, v string) error { return editor(bm, k, v) })...)
	errs = append(errs, doc.pairs("Metadata", func(k, v string) error { return metadata(bm, k, v) })...)
	errs = append(errs, doc.pairs("Difficulty", func(k, v string) error { return difficulty(bm, k, v) })...)
	errs = append(errs, events(bm, doc.Sections["Events"])...)
	errs = append(errs, timingPoints(bm, doc.Sections["TimingPoints"])...)
	errs = append(errs, colours(bm, doc)...)
	errs = append(errs, hitObjects(bm, doc.Sections["HitObjects"])...)
	return bm, errs
}

// set parses v into one of the typed fields of the model.
func set(dst interface{}, v string) error {
	var err error
	switch p := dst.(type) {
	case *string:
		*p = v
	case *int32:
		*p, err = parseInt(v)
	case *float32:
		*p, err = parseFloat32(v)
	case *float64:
		*p, err = parseFloat(v)
	case *bool:
		*p, err = parseBool(v)
	default:
		panic(fmt.Sprintf("osutext: unsupported field type %T", dst))
	}
	return err
}

func general(bm *beatmap.Beatmap, k, v string) error {
	switch k {
	case "AudioFilename":
		return set(&bm.AudioFile, v)
	case "AudioLeadIn":
		return set(&bm.AudioLeadIn, v)
	case "PreviewTime":
		return set(&bm.PreviewTime, v)
	case "Countdown":
		n, err := parseInt(v)
		bm.Countdown = beatmap.CountdownFromCode(n)
		return err
	case "SampleSet":
		bm.DefaultSampleBank = beatmap.ParseSampleBank(v)
	case "SampleVolume":
		return set(&bm.DefaultSampleVolume, v)
	case "StackLeniency":
		return set(&bm.StackLeniency, v)
	case "Mode":
		n, err := parseInt(v)
		bm.Mode = beatmap.GameModeFromCode(n)
		return err
	case "LetterboxInBreaks":
		return set(&bm.LetterboxInBreaks, v)
	case "SpecialStyle":
		return set(&bm.SpecialStyle, v)
	case "WidescreenStoryboard":
		return set(&bm.WidescreenStoryboard, v)
	case "EpilepsyWarning":
		return set(&bm.EpilepsyWarning, v)
	case "SamplesMatchPlaybackRate":
		return set(&bm.SamplesMatchPlaybackRate, v)
	case "CountdownOffset":
		return set(&bm.CountdownOffset, v)
	}
	return nil
}

func editor(bm *beatmap.Beatmap, k, v string) error {
	switch k {
	case "Bookmarks":
		bm.Bookmarks = nil
		for _, s := range strings.Split(v, ",") {
			if strings.TrimSpace(s) == "" {
				continue
			}
			n, err := parseInt(s)
			if err != nil {
				return err
			}
			bm.Bookmarks = append(bm.Bookmarks, n)
		}
	case "DistanceSpacing":
		return set(&bm.DistanceSpacing, v)
	case "BeatDivisor":
		return set(&bm.BeatDivisor, v)
	case "GridSize":
		return set(&bm.GridSize, v)
	case "TimelineZoom":
		return set(&bm.TimelineZoom, v)
	}
	return nil
}

func metadata(bm *beatmap.Beatmap, k, v string) error {
	switch k {
	case "Title":
		bm.Title = v
	case "TitleUnicode":
		bm.TitleUnicode = v
	case "Artist":
		bm.Artist = v
	case "ArtistUnicode":
		bm.ArtistUnicode = v
	case "Creator":
		bm.Creator = v
	case "Version":
		bm.Version = v
	case "Source":
		bm.Source = v
	case "Tags":
		bm.Tags = v
	case "BeatmapID":
		return set(&bm.BeatmapID, v)
	case "BeatmapSetID":
		return set(&bm.BeatmapSetID, v)
	}
	return nil
}

func difficulty(bm *beatmap.Beatmap, k, v string) error {
	switch k {
	case "HPDrainRate":
		return set(&bm.HPDrainRate, v)
	case "CircleSize":
		return set(&bm.CircleSize, v)
	case "OverallDifficulty":
		return set(&bm.OverallDifficulty, v)
	case "ApproachRate":
		return set(&bm.ApproachRate, v)
	case "SliderMultiplier":
		return set(&bm.SliderMultiplier, v)
	case "SliderTickRate":
		return set(&bm.SliderTickRate, v)
	}
	return nil
}

// events picks the background and breaks out of the Events section.
// Storyboard lines are left to the storyboard decoder.
func events(bm *beatmap.Beatmap, lines []line) []lineError {
	var errs []lineError
	for _, l := range lines {
		if depth(l.Text) > 0 {
			continue
		}
		fields := splitFields(l.Text)
		switch fields[0] {
		case "0", "Background":
			if len(fields) < 3 {
				errs = append(errs, lineError{l.No, fmt.Errorf("background: want 3 fields")})
				continue
			}
			bm.BackgroundFile = unquote(fields[2])
		case "2", "Break":
			if len(fields) < 3 {
				errs = append(errs, lineError{l.No, fmt.Errorf("break: want 3 fields")})
				continue
			}
			start, err1 := parseFloat(fields[1])
			end, err2 := parseFloat(fields[2])
			if err1 != nil || err2 != nil {
				errs = append(errs, lineError{l.No, fmt.Errorf("break: bad times")})
				continue
			}
			bm.Breaks = append(bm.Breaks, beatmap.Break{StartTime: start, EndTime: end})
		}
	}
	return errs
}

// timingPoints splits the TimingPoints section into timing, difficulty and
// effect points. Inherited lines that repeat the current velocity and lines
// that repeat the current kiai state add nothing.
func timingPoints(bm *beatmap.Beatmap, lines []line) []lineError {
	var errs []lineError
	velocity := 1.0
	kiai := false
	for _, l := range lines {
		fields := splitFields(l.Text)
		if len(fields) < 2 {
			errs = append(errs, lineError{l.No, fmt.Errorf("timing point: want at least 2 fields")})
			continue
		}
		t, err := parseFloat(fields[0])
		if err != nil {
			errs = append(errs, lineError{l.No, err})
			continue
		}
		beatLength, err := parseFloat(fields[1])
		if err != nil {
			errs = append(errs, lineError{l.No, err})
			continue
		}
		meter := int32(4)
		if len(fields) > 2 {
			if n, err := parseInt(fields[2]); err == nil && n > 0 {
				meter = n
			}
		}
		uninherited := true
		if len(fields) > 6 {
			uninherited = fields[6] != "0"
		}
		effects := int32(0)
		if len(fields) > 7 {
			effects, _ = parseInt(fields[7])
		}

		if uninherited {
			bm.TimingPoints = append(bm.TimingPoints, beatmap.TimingPoint{Time: t, BeatLength: beatLength, TimeSignature: meter})
		} else {
			sv := 1.0
			if beatLength < 0 {
				sv = -100 / beatLength
			}
			if sv != velocity {
				bm.DifficultyPoints = append(bm.DifficultyPoints, beatmap.DifficultyPoint{Time: t, SliderVelocity: sv})
				velocity = sv
			}
		}
		if on := effects&1 != 0; on != kiai {
			bm.EffectPoints = append(bm.EffectPoints, beatmap.EffectPoint{Time: t, Kiai: on})
			kiai = on
		}
	}
	sort.SliceStable(bm.TimingPoints, func(i, j int) bool { return bm.TimingPoints[i].Time < bm.TimingPoints[j].Time })
	sort.SliceStable(bm.DifficultyPoints, func(i, j int) bool { return bm.DifficultyPoints[i].Time < bm.DifficultyPoints[j].Time })
	sort.SliceStable(bm.EffectPoints, func(i, j int) bool { return bm.EffectPoints[i].Time < bm.EffectPoints[j].Time })
	return errs
}

func colours(bm *beatmap.Beatmap, doc *document) []lineError {
	type combo struct {
		n int
		c beatmap.Color
	}
	var combos []combo
	errs := doc.pairs("Colours", func(k, v string) error {
		c, err := parseColor(v)
		if err != nil {
			return err
		}
		if strings.HasPrefix(k, "Combo") {
			n, err := strconv.Atoi(strings.TrimPrefix(k, "Combo"))
			if err != nil {
				return fmt.Errorf("colour key %q", k)
			}
			combos = append(combos, combo{n, c})
			return nil
		}
		bm.CustomColors = append(bm.CustomColors, beatmap.CustomColor{Name: k, Color: c})
		return nil
	})
	sort.SliceStable(combos, func(i, j int) bool { return combos[i].n < combos[j].n })
	for _, c := range combos {
		bm.ComboColors = append(bm.ComboColors, c.c)
	}
	return errs
}

func parseColor(v string) (beatmap.Color, error) {
	parts := strings.Split(v, ",")
	if len(parts) < 3 {
		return beatmap.Color{}, fmt.Errorf("colour %q: want r,g,b", v)
	}
	var rgb [3]uint8
	for i := range rgb {
		n, err := strconv.ParseUint(strings.TrimSpace(parts[i]), 10, 8)
		if err != nil {
			return beatmap.Color{}, fmt.Errorf("colour %q: %w", v, err)
		}
		rgb[i] = uint8(n)
	}
	return beatmap.Color{R: rgb[0], G: rgb[1], B: rgb[2]}, nil
}

func hitObjects(bm *beatmap.Beatmap, lines []line) []lineError {
	var errs []lineError
	for _, l := range lines {
		ho, err := hitObject(bm, splitFields(l.Text))
		if err != nil {
			errs = append(errs, lineError{l.No, err})
			continue
		}
		bm.HitObjects = append(bm.HitObjects, *ho)
	}
	return errs
}

func hitObject(bm *beatmap.Beatmap, fields []string) (*beatmap.HitObject, error) {
	if len(fields) < 5 {
		return nil, fmt.Errorf("hit object: want at least 5 fields, got %d", len(fields))
	}
	x, err := parseFloat32(fields[0])
	if err != nil {
		return nil, fmt.Errorf("hit object x: %w", err)
	}
	y, err := parseFloat32(fields[1])
	if err != nil {
		return nil, fmt.Errorf("hit object y: %w", err)
	}
	start, err := parseFloat(fields[2])
	if err != nil {
		return nil, fmt.Errorf("hit object time: %w", err)
	}
	typ, err := parseInt(fields[3])
	if err != nil {
		return nil, fmt.Errorf("hit object type: %w", err)
	}
	sound, err := parseInt(fields[4])
	if err != nil {
		return nil, fmt.Errorf("hit object sound: %w", err)
	}

	pos := beatmap.Pos{X: x, Y: y}
	newCombo := typ&typeNewCombo != 0
	comboOffset := (typ >> comboOffsetShift) & comboOffsetMask
	ho := &beatmap.HitObject{StartTime: start}
	extra := ""

	switch {
	case typ&typeCircle != 0:
		ho.Kind = &beatmap.Circle{Pos: pos, NewCombo: newCombo, ComboOffset: comboOffset}
		extra = field(fields, 5)
	case typ&typeSlider != 0:
		s, err := slider(fields, pos)
		if err != nil {
			return nil, err
		}
		s.NewCombo = newCombo
		s.ComboOffset = comboOffset
		s.Velocity = velocityAt(bm.DifficultyPoints, start)
		ho.Kind = s
		extra = field(fields, 10)
	case typ&typeSpinner != 0:
		end, err := parseFloat(field(fields, 5))
		if err != nil {
			return nil, fmt.Errorf("spinner end time: %w", err)
		}
		ho.Kind = &beatmap.Spinner{Pos: pos, Duration: end - start, NewCombo: newCombo}
		extra = field(fields, 6)
	case typ&typeHold != 0:
		endText, rest, _ := strings.Cut(field(fields, 5), ":")
		end, err := parseFloat(endText)
		if err != nil {
			return nil, fmt.Errorf("hold end time: %w", err)
		}
		ho.Kind = &beatmap.Hold{PosX: x, Duration: end - start}
		extra = rest
	default:
		return nil, fmt.Errorf("hit object type %d has no kind bit", typ)
	}

	ho.Samples = samples(sound, extra)
	return ho, nil
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

func slider(fields []string, head beatmap.Pos) (*beatmap.Slider, error) {
	if len(fields) < 7 {
		return nil, fmt.Errorf("slider: want at least 7 fields, got %d", len(fields))
	}
	points, err := sliderPath(fields[5], head)
	if err != nil {
		return nil, err
	}
	slides, err := parseInt(fields[6])
	if err != nil {
		return nil, fmt.Errorf("slider slides: %w", err)
	}
	s := &beatmap.Slider{Pos: head, ControlPoints: points, RepeatCount: slides}
	if v := field(fields, 7); v != "" {
		length, err := parseFloat(v)
		if err != nil {
			return nil, fmt.Errorf("slider length: %w", err)
		}
		if length > 0 {
			s.ExpectedDist = &length
		}
	}
	return s, nil
}

// sliderPath decodes "B|x:y|x:y". Points are made relative to the head,
// which becomes the first control point. A single-letter token sets the
// type of the point after it, and a repeated point starts a new segment of
// the path's initial type.
func sliderPath(s string, head beatmap.Pos) ([]beatmap.ControlPoint, error) {
	tokens := strings.Split(s, "|")
	initial, ok := beatmap.PathTypeFromLetter(tokens[0])
	if !ok {
		return nil, fmt.Errorf("slider path %q: bad curve type", s)
	}
	points := []beatmap.ControlPoint{{Type: initial}}
	pending := beatmap.PathInherit
	for _, tok := range tokens[1:] {
		if pt, ok := beatmap.PathTypeFromLetter(tok); ok {
			pending = pt
			continue
		}
		xs, ys, ok := strings.Cut(tok, ":")
		if !ok {
			return nil, fmt.Errorf("slider path %q: bad point %q", s, tok)
		}
		x, err1 := parseFloat32(xs)
		y, err2 := parseFloat32(ys)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("slider path %q: bad point %q", s, tok)
		}
		p := beatmap.Pos{X: x - head.X, Y: y - head.Y}
		last := &points[len(points)-1]
		if pending == beatmap.PathInherit && len(points) > 1 && last.Pos == p {
			if last.Type == beatmap.PathInherit {
				last.Type = initial
			}
			continue
		}
		points = append(points, beatmap.ControlPoint{Pos: p, Type: pending})
		pending = beatmap.PathInherit
	}
	return points, nil
}

// velocityAt returns the slider velocity multiplier in effect at t.
func velocityAt(points []beatmap.DifficultyPoint, t float64) float64 {
	i := sort.Search(len(points), func(i int) bool { return points[i].Time > t })
	if i == 0 {
		return 1
	}
	return points[i-1].SliderVelocity
}

// samples expands the hit sound bits and the normalSet:additionSet:index:
// volume:filename field into the object's sample list.
func samples(sound int32, extra string) []beatmap.HitSample {
	parts := strings.Split(extra, ":")
	num := func(i int) int32 {
		if i < len(parts) {
			n, _ := parseInt(parts[i])
			return n
		}
		return 0
	}
	normal := beatmap.SampleBankFromCode(num(0))
	addition := beatmap.SampleBankFromCode(num(1))
	if addition == beatmap.BankNone {
		addition = normal
	}
	suffix, volume := num(2), num(3)

	if len(parts) > 4 && strings.TrimSpace(parts[4]) != "" {
		return []beatmap.HitSample{{
			Name:   beatmap.FileSampleName(strings.TrimSpace(parts[4])),
			Bank:   normal,
			Suffix: suffix,
			Volume: volume,
		}}
	}

	out := []beatmap.HitSample{{Name: beatmap.SampleNormal, Bank: normal, Suffix: suffix, Volume: volume}}
	for _, a := range []struct {
		bit  int32
		name beatmap.DefaultSampleName
	}{{soundWhistle, beatmap.SampleWhistle}, {soundFinish, beatmap.SampleFinish}, {soundClap, beatmap.SampleClap}} {
		if sound&a.bit != 0 {
			out = append(out, beatmap.HitSample{Name: a.name, Bank: addition, Suffix: suffix, Volume: volume})
		}
	}
	return out
}

// splitFields splits a comma separated line, trimming each field. Commas
// inside double quotes do not split.
func splitFields(s string) []string {
	s = strings.TrimLeft(s, " _")
	var out []string
	quoted := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}

// depth counts the leading spaces or underscores that nest an Events line.
func depth(s string) int {
	n := 0
	for n < len(s) && (s[n] == ' ' || s[n] == '_') {
		n++
	}
	return n
}
