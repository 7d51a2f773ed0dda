package storyboard

import (
	"fmt"
	"strconv"
	"strings"
)

// CommandKind is one of the ten animatable properties.
type CommandKind int

const (
	CmdX CommandKind = iota
	CmdY
	CmdScale
	CmdRotation
	CmdAlpha
	CmdColor
	CmdFlipH
	CmdFlipV
	CmdVectorScale
	CmdBlending
)

var commandKindNames = [...]string{
	"x", "y", "scale", "rotation", "alpha", "color",
	"flip_h", "flip_v", "vector_scale", "blending",
}

// CommandKinds lists every kind in storage order.
var CommandKinds = []CommandKind{
	CmdX, CmdY, CmdScale, CmdRotation, CmdAlpha, CmdColor,
	CmdFlipH, CmdFlipV, CmdVectorScale, CmdBlending,
}

func (k CommandKind) String() string {
	if k >= 0 && int(k) < len(commandKindNames) {
		return commandKindNames[k]
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// ParseCommandKind maps a stored command type.
func ParseCommandKind(s string) (CommandKind, error) {
	for i, name := range commandKindNames {
		if name == s {
			return CommandKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown command type %q", s)
}

// Easing is the numeric easing function id of the text format.
type Easing int32

// Command is one keyframe of one property.
type Command struct {
	Kind       CommandKind
	Easing     Easing
	StartTime  float64
	EndTime    float64
	StartValue Value
	EndValue   Value
}

// Value is the typed payload of a command: Float, Bool, RGB, Vector or Blending.
type Value interface {
	// Format renders the value the way it is stored in the command table.
	Format() string
	value()
}

// Float is the value of x, y, scale, rotation and alpha commands.
type Float float32

// Bool is the value of flip commands.
type Bool bool

// RGB is the value of colour commands.
type RGB struct {
	R, G, B uint8
}

// Vector is the value of vector scale commands.
type Vector struct {
	X, Y float32
}

// Blending is the value of blending commands.
type Blending struct {
	Additive bool
}

func (f Float) Format() string  { return formatFloat(float32(f)) }
func (b Bool) Format() string   { return strconv.FormatBool(bool(b)) }
func (c RGB) Format() string    { return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B) }
func (v Vector) Format() string { return formatFloat(v.X) + "," + formatFloat(v.Y) }
func (b Blending) Format() string {
	if b.Additive {
		return "A"
	}
	return ""
}

func (Float) value()    {}
func (Bool) value()     {}
func (RGB) value()      {}
func (Vector) value()   {}
func (Blending) value() {}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'f', -1, 32)
}

// ParseValue decodes a stored value for the given command kind.
func ParseValue(kind CommandKind, s string) (Value, error) {
	switch kind {
	case CmdX, CmdY, CmdScale, CmdRotation, CmdAlpha:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
		if err != nil {
			return nil, fmt.Errorf("%s value %q: %w", kind, s, err)
		}
		return Float(f), nil
	case CmdColor:
		parts := strings.Split(s, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("color value %q: want r,g,b", s)
		}
		var rgb [3]uint8
		for i, p := range parts {
			n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
			if err != nil {
				return nil, fmt.Errorf("color value %q: %w", s, err)
			}
			rgb[i] = uint8(n)
		}
		return RGB{R: rgb[0], G: rgb[1], B: rgb[2]}, nil
	case CmdFlipH, CmdFlipV:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%s value %q: %w", kind, s, err)
		}
		return Bool(b), nil
	case CmdVectorScale:
		parts := strings.Split(s, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("vector value %q: want x,y", s)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 32)
		if err != nil {
			return nil, fmt.Errorf("vector value %q: %w", s, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 32)
		if err != nil {
			return nil, fmt.Errorf("vector value %q: %w", s, err)
		}
		return Vector{X: float32(x), Y: float32(y)}, nil
	case CmdBlending:
		// only the additive flag survives storage
		return Blending{Additive: true}, nil
	}
	return nil, fmt.Errorf("unknown command kind %d", int(kind))
}

// ValueMatches reports whether v has the payload type of kind.
func ValueMatches(kind CommandKind, v Value) bool {
	switch v.(type) {
	case Float:
		return kind <= CmdAlpha
	case RGB:
		return kind == CmdColor
	case Bool:
		return kind == CmdFlipH || kind == CmdFlipV
	case Vector:
		return kind == CmdVectorScale
	case Blending:
		return kind == CmdBlending
	}
	return false
}
