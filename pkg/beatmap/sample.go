package beatmap

// HitSample is one audio sample attached to a hit object.
type HitSample struct {
	Name SampleName
	Bank SampleBank
	// Suffix selects a numbered custom sample set; zero means none.
	Suffix int32
	Volume int32
}

// SampleName is either a DefaultSampleName or a FileSampleName.
type SampleName interface {
	String() string
	sampleName()
}

// DefaultSampleName is one of the four built-in hitsounds.
type DefaultSampleName int

const (
	SampleNormal DefaultSampleName = iota
	SampleWhistle
	SampleFinish
	SampleClap
)

func (n DefaultSampleName) String() string {
	switch n {
	case SampleWhistle:
		return "Whistle"
	case SampleFinish:
		return "Finish"
	case SampleClap:
		return "Clap"
	default:
		return "Normal"
	}
}

func (DefaultSampleName) sampleName() {}

// FileSampleName names a custom sample file.
type FileSampleName string

func (f FileSampleName) String() string { return string(f) }

func (FileSampleName) sampleName() {}

// ParseSampleName maps a stored name: the four default names map to their
// DefaultSampleName, anything else is a file name.
func ParseSampleName(s string) SampleName {
	switch s {
	case "Normal":
		return SampleNormal
	case "Whistle":
		return SampleWhistle
	case "Finish":
		return SampleFinish
	case "Clap":
		return SampleClap
	default:
		return FileSampleName(s)
	}
}
