// Package beatmap holds the in-memory document model of one beatmap file.
// The model is what the text parser produces and what the row
// reconstructor rebuilds; it carries no storage concerns.
package beatmap

import "fmt"

// GameMode identifies the ruleset a beatmap was made for.
type GameMode int32

const (
	ModeOsu GameMode = iota
	ModeTaiko
	ModeCatch
	ModeMania
)

// String returns the mode name.
func (m GameMode) String() string {
	switch m {
	case ModeOsu:
		return "Osu"
	case ModeTaiko:
		return "Taiko"
	case ModeCatch:
		return "Catch"
	case ModeMania:
		return "Mania"
	default:
		return fmt.Sprintf("GameMode(%d)", int32(m))
	}
}

// GameModeFromCode maps a stored mode code. Unknown codes fall back to ModeOsu.
func GameModeFromCode(code int32) GameMode {
	if code >= int32(ModeOsu) && code <= int32(ModeMania) {
		return GameMode(code)
	}
	return ModeOsu
}

// SampleBank selects a family of hitsounds.
type SampleBank int32

const (
	BankNone SampleBank = iota
	BankNormal
	BankSoft
	BankDrum
)

// String returns the bank name as stored in the hit sample table.
func (b SampleBank) String() string {
	switch b {
	case BankNormal:
		return "Normal"
	case BankSoft:
		return "Soft"
	case BankDrum:
		return "Drum"
	default:
		return "None"
	}
}

// SampleBankFromCode maps a stored bank code. Unknown codes fall back to BankNone.
func SampleBankFromCode(code int32) SampleBank {
	if code >= int32(BankNone) && code <= int32(BankDrum) {
		return SampleBank(code)
	}
	return BankNone
}

// ParseSampleBank maps a stored bank name. Unknown names fall back to BankNone.
func ParseSampleBank(s string) SampleBank {
	switch s {
	case "Normal":
		return BankNormal
	case "Soft":
		return BankSoft
	case "Drum":
		return BankDrum
	default:
		return BankNone
	}
}

// CountdownType is the countdown shown before the first object.
type CountdownType int32

const (
	CountdownNone CountdownType = iota
	CountdownNormal
	CountdownHalfSpeed
	CountdownDoubleSpeed
)

// CountdownFromCode maps a stored countdown code. Unknown codes fall back to
// CountdownNormal.
func CountdownFromCode(code int32) CountdownType {
	if code >= int32(CountdownNone) && code <= int32(CountdownDoubleSpeed) {
		return CountdownType(code)
	}
	return CountdownNormal
}

// Beatmap is one parsed .osu file.
type Beatmap struct {
	FormatVersion int32

	// General
	AudioFile                string
	AudioLeadIn              float64
	PreviewTime              int32
	DefaultSampleBank        SampleBank
	DefaultSampleVolume      int32
	StackLeniency            float32
	Mode                     GameMode
	LetterboxInBreaks        bool
	SpecialStyle             bool
	WidescreenStoryboard     bool
	EpilepsyWarning          bool
	SamplesMatchPlaybackRate bool
	Countdown                CountdownType
	CountdownOffset          int32

	// Editor
	Bookmarks       []int32
	DistanceSpacing float64
	BeatDivisor     int32
	GridSize        int32
	TimelineZoom    float64

	// Metadata
	Title         string
	TitleUnicode  string
	Artist        string
	ArtistUnicode string
	Creator       string
	Version       string
	Source        string
	Tags          string
	BeatmapID     int32
	BeatmapSetID  int32

	// Difficulty
	HPDrainRate       float32
	CircleSize        float32
	OverallDifficulty float32
	ApproachRate      float32
	SliderMultiplier  float64
	SliderTickRate    float64

	// Events
	BackgroundFile string
	Breaks         []Break

	TimingPoints     []TimingPoint
	DifficultyPoints []DifficultyPoint
	EffectPoints     []EffectPoint

	ComboColors  []Color
	CustomColors []CustomColor

	HitObjects []HitObject
}

// New returns a beatmap carrying the defaults of the text format.
func New() *Beatmap {
	return &Beatmap{
		FormatVersion:       14,
		DefaultSampleBank:   BankNormal,
		DefaultSampleVolume: 100,
		StackLeniency:       0.7,
		Countdown:           CountdownNormal,
		DistanceSpacing:     1,
		BeatDivisor:         4,
		GridSize:            32,
		TimelineZoom:        1,
		BeatmapID:           -1,
		BeatmapSetID:        -1,
		HPDrainRate:         5,
		CircleSize:          5,
		OverallDifficulty:   5,
		ApproachRate:        5,
		SliderMultiplier:    1.4,
		SliderTickRate:      1,
	}
}

// Break is a non-play interval.
type Break struct {
	StartTime float64
	EndTime   float64
}

// TimingPoint is an uninherited (red) control point.
type TimingPoint struct {
	Time          float64
	BeatLength    float64
	TimeSignature int32
}

// DifficultyPoint changes the slider velocity multiplier.
type DifficultyPoint struct {
	Time           float64
	SliderVelocity float64
}

// EffectPoint toggles kiai time.
type EffectPoint struct {
	Time float64
	Kiai bool
}

// Color is an RGB palette entry.
type Color struct {
	R, G, B uint8
}

// CustomColor is a named colour from the Colours section such as
// SliderBorder or SliderTrackOverride.
type CustomColor struct {
	Name  string
	Color Color
}
