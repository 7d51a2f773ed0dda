// Package storyboard holds the in-memory model of a layered storyboard,
// either embedded in a beatmap's Events section or defined in a standalone
// .osb file.
package storyboard

import "strings"

// Canonical layer names, in drawing order.
const (
	LayerBackground = "Background"
	LayerFail       = "Fail"
	LayerPass       = "Pass"
	LayerForeground = "Foreground"
	LayerOverlay    = "Overlay"
	LayerVideo      = "Video"
)

// LayerOrder lists the layers in the order they are written.
var LayerOrder = []string{LayerVideo, LayerBackground, LayerFail, LayerPass, LayerForeground, LayerOverlay}

// Storyboard is an ordered list of layers.
type Storyboard struct {
	Layers []*Layer
}

// Layer groups elements drawn at the same depth.
type Layer struct {
	Name     string
	Elements []*Element
}

// New returns an empty storyboard.
func New() *Storyboard {
	return &Storyboard{}
}

// Layer returns the named layer, creating it in canonical order if missing.
func (s *Storyboard) Layer(name string) *Layer {
	for _, l := range s.Layers {
		if l.Name == name {
			return l
		}
	}
	l := &Layer{Name: name}
	s.Layers = append(s.Layers, l)
	s.sortLayers()
	return l
}

// Find returns the named layer or nil.
func (s *Storyboard) Find(name string) *Layer {
	for _, l := range s.Layers {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// ElementCount returns the number of elements across all layers.
func (s *Storyboard) ElementCount() int {
	n := 0
	for _, l := range s.Layers {
		n += len(l.Elements)
	}
	return n
}

// HasDrawable reports whether any layer holds a sprite or animation.
func (s *Storyboard) HasDrawable() bool {
	for _, l := range s.Layers {
		for _, e := range l.Elements {
			switch e.Kind.(type) {
			case *Sprite, *Animation:
				return true
			}
		}
	}
	return false
}

func (s *Storyboard) sortLayers() {
	rank := func(name string) int {
		for i, n := range LayerOrder {
			if n == name {
				return i
			}
		}
		return len(LayerOrder)
	}
	// insertion sort keeps unknown layers in arrival order at the end
	for i := 1; i < len(s.Layers); i++ {
		for j := i; j > 0 && rank(s.Layers[j].Name) < rank(s.Layers[j-1].Name); j-- {
			s.Layers[j], s.Layers[j-1] = s.Layers[j-1], s.Layers[j]
		}
	}
}

// Pos is a storyboard position in the 640x480 space.
type Pos struct {
	X, Y float32
}

// ElementType is the storage tag of an element variant.
type ElementType string

const (
	TypeSprite    ElementType = "sprite"
	TypeAnimation ElementType = "animation"
	TypeSample    ElementType = "sample"
	TypeVideo     ElementType = "video"
)

// Element is one storyboard object.
type Element struct {
	Path   string
	Origin Origin
	Kind   ElementKind
}

// ElementKind is implemented by *Sprite, *Animation, *Sample and *Video.
type ElementKind interface {
	ElementType() ElementType
	elementKind()
}

// Sprite is a static image with command timelines.
type Sprite struct {
	InitialPos Pos
	Commands   []Command
	Loops      []Loop
	Triggers   []Trigger
}

// Animation is a sprite cycling through numbered frames.
type Animation struct {
	Sprite
	FrameCount int32
	FrameDelay float64
	LoopType   LoopType
}

// Sample plays an audio file.
type Sample struct {
	StartTime float64
	Volume    int32
}

// Video plays a video file.
type Video struct {
	StartTime float64
}

func (*Sprite) ElementType() ElementType    { return TypeSprite }
func (*Animation) ElementType() ElementType { return TypeAnimation }
func (*Sample) ElementType() ElementType    { return TypeSample }
func (*Video) ElementType() ElementType     { return TypeVideo }

func (*Sprite) elementKind()    {}
func (*Animation) elementKind() {}
func (*Sample) elementKind()    {}
func (*Video) elementKind()     {}

// Drawable returns the sprite part of sprite and animation elements.
func (e *Element) Drawable() (*Sprite, bool) {
	switch k := e.Kind.(type) {
	case *Sprite:
		return k, true
	case *Animation:
		return &k.Sprite, true
	}
	return nil, false
}

// Origin is the anchor point of an element.
type Origin int

const (
	OriginTopLeft Origin = iota
	OriginCentre
	OriginCentreLeft
	OriginTopRight
	OriginBottomCentre
	OriginTopCentre
	OriginCustom
	OriginCentreRight
	OriginBottomLeft
	OriginBottomRight
)

var originNames = [...]string{
	"TopLeft", "Centre", "CentreLeft", "TopRight", "BottomCentre",
	"TopCentre", "Custom", "CentreRight", "BottomLeft", "BottomRight",
}

func (o Origin) String() string {
	if o >= 0 && int(o) < len(originNames) {
		return originNames[o]
	}
	return "Centre"
}

// originMatchOrder puts compound names before the names they contain.
var originMatchOrder = []Origin{
	OriginTopLeft, OriginTopCentre, OriginTopRight,
	OriginCentreLeft, OriginCentreRight,
	OriginBottomLeft, OriginBottomCentre, OriginBottomRight,
	OriginCustom, OriginCentre,
}

// ParseOrigin accepts any string containing an origin name. Unrecognized
// values fall back to OriginCentre.
func ParseOrigin(s string) Origin {
	for _, o := range originMatchOrder {
		if strings.Contains(s, originNames[o]) {
			return o
		}
	}
	return OriginCentre
}

// LoopType controls animation frame cycling.
type LoopType int

const (
	LoopForever LoopType = iota
	LoopOnce
)

func (l LoopType) String() string {
	if l == LoopOnce {
		return "LoopOnce"
	}
	return "LoopForever"
}

// ParseLoopType falls back to LoopForever for unknown values.
func ParseLoopType(s string) LoopType {
	if strings.Contains(s, "LoopOnce") {
		return LoopOnce
	}
	return LoopForever
}

// Loop repeats a group of commands.
type Loop struct {
	StartTime float64
	Count     int32
	Commands  []Command
}

// Trigger runs a group of commands when a gameplay event fires.
type Trigger struct {
	Name        string
	StartTime   float64
	EndTime     float64
	GroupNumber int32
	Commands    []Command
}
