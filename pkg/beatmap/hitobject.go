package beatmap

import "fmt"

// Pos is a playfield position.
type Pos struct {
	X, Y float32
}

// ObjectType is the storage tag of a hit object variant.
type ObjectType int

const (
	ObjectCircle ObjectType = iota
	ObjectSlider
	ObjectSpinner
	ObjectHold
)

var objectTypeNames = [...]string{"circle", "slider", "spinner", "hold"}

func (t ObjectType) String() string {
	if t >= 0 && int(t) < len(objectTypeNames) {
		return objectTypeNames[t]
	}
	return fmt.Sprintf("ObjectType(%d)", int(t))
}

// ParseObjectType maps a stored tag back to its variant.
func ParseObjectType(s string) (ObjectType, error) {
	for i, name := range objectTypeNames {
		if name == s {
			return ObjectType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown object type %q", s)
}

// HitObject is one playable object. Kind carries the variant-specific data.
type HitObject struct {
	StartTime float64
	Kind      HitObjectKind
	Samples   []HitSample
}

// HitObjectKind is implemented by *Circle, *Slider, *Spinner and *Hold.
type HitObjectKind interface {
	Type() ObjectType
	hitObjectKind()
}

// Circle is a single-tap object.
type Circle struct {
	Pos         Pos
	NewCombo    bool
	ComboOffset int32
}

// Slider follows a path of control points.
type Slider struct {
	Pos           Pos
	NewCombo      bool
	ComboOffset   int32
	ControlPoints []ControlPoint
	// ExpectedDist is the pixel length declared in the file, nil when absent.
	ExpectedDist *float64
	RepeatCount  int32
	Velocity     float64
}

// Spinner is held for Duration milliseconds.
type Spinner struct {
	Pos      Pos
	Duration float64
	NewCombo bool
}

// Hold is a mania long note.
type Hold struct {
	PosX     float32
	Duration float64
}

func (*Circle) Type() ObjectType  { return ObjectCircle }
func (*Slider) Type() ObjectType  { return ObjectSlider }
func (*Spinner) Type() ObjectType { return ObjectSpinner }
func (*Hold) Type() ObjectType    { return ObjectHold }

func (*Circle) hitObjectKind()  {}
func (*Slider) hitObjectKind()  {}
func (*Spinner) hitObjectKind() {}
func (*Hold) hitObjectKind()    {}

// EndTime returns the time the object finishes. Sliders need timing context
// to compute an exact end, so their start time is returned.
func (h *HitObject) EndTime() float64 {
	switch k := h.Kind.(type) {
	case *Spinner:
		return h.StartTime + k.Duration
	case *Hold:
		return h.StartTime + k.Duration
	default:
		return h.StartTime
	}
}

// PathType is the curve type starting at a control point.
type PathType int

const (
	// PathInherit marks a control point that continues the previous segment.
	PathInherit PathType = iota
	PathBezier
	PathLinear
	PathCatmull
	PathPerfectCurve
)

func (p PathType) String() string {
	switch p {
	case PathBezier:
		return "Bezier"
	case PathLinear:
		return "Linear"
	case PathCatmull:
		return "Catmull"
	case PathPerfectCurve:
		return "PerfectCurve"
	default:
		return ""
	}
}

// ParsePathType maps a stored path type name.
func ParsePathType(s string) (PathType, error) {
	switch s {
	case "Bezier":
		return PathBezier, nil
	case "Linear":
		return PathLinear, nil
	case "Catmull":
		return PathCatmull, nil
	case "PerfectCurve":
		return PathPerfectCurve, nil
	}
	return PathInherit, fmt.Errorf("unknown path type %q", s)
}

// Letter returns the single-letter token used in the text format.
func (p PathType) Letter() string {
	switch p {
	case PathBezier:
		return "B"
	case PathLinear:
		return "L"
	case PathCatmull:
		return "C"
	case PathPerfectCurve:
		return "P"
	default:
		return ""
	}
}

// PathTypeFromLetter is the inverse of Letter.
func PathTypeFromLetter(s string) (PathType, bool) {
	switch s {
	case "B":
		return PathBezier, true
	case "L":
		return PathLinear, true
	case "C":
		return PathCatmull, true
	case "P":
		return PathPerfectCurve, true
	}
	return PathInherit, false
}

// ControlPoint is one vertex of a slider path, relative to the slider head.
type ControlPoint struct {
	Pos  Pos
	Type PathType
}
