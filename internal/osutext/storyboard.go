package osutext

import (
	"fmt"

	"github.com/beatset/beatset/pkg/storyboard"
)

// layerNames maps the numeric layer ids of the Events section.
var layerNames = []string{
	storyboard.LayerBackground,
	storyboard.LayerFail,
	storyboard.LayerPass,
	storyboard.LayerForeground,
	storyboard.LayerOverlay,
}

func parseLayer(s string) (string, error) {
	for i, name := range layerNames {
		if s == name || s == fmt.Sprint(i) {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown layer %q", s)
}

func decodeStoryboard(doc *document) (*storyboard.Storyboard, []lineError) {
	sb := storyboard.New()
	vars := doc.variables()

	var errs []lineError
	fail := func(no int, err error) { errs = append(errs, lineError{no, err}) }

	var current *storyboard.Sprite
	var group *[]storyboard.Command
	for _, l := range doc.Sections["Events"] {
		text := l.Text
		if vars != nil {
			text = vars.Replace(text)
		}
		fields := splitFields(text)

		if d := depth(text); d > 0 {
			if current == nil {
				fail(l.No, fmt.Errorf("command outside of an element"))
				continue
			}
			if d > 1 {
				if group == nil {
					fail(l.No, fmt.Errorf("nested command outside of a loop or trigger"))
					continue
				}
				cmds, err := parseCommands(fields)
				if err != nil {
					fail(l.No, err)
					continue
				}
				*group = append(*group, cmds...)
				continue
			}

			group = nil
			switch fields[0] {
			case "L":
				loop, err := parseLoop(fields)
				if err != nil {
					fail(l.No, err)
					continue
				}
				current.Loops = append(current.Loops, loop)
				group = &current.Loops[len(current.Loops)-1].Commands
			case "T":
				trigger, err := parseTrigger(fields)
				if err != nil {
					fail(l.No, err)
					continue
				}
				current.Triggers = append(current.Triggers, trigger)
				group = &current.Triggers[len(current.Triggers)-1].Commands
			default:
				cmds, err := parseCommands(fields)
				if err != nil {
					fail(l.No, err)
					continue
				}
				current.Commands = append(current.Commands, cmds...)
			}
			continue
		}

		current, group = nil, nil
		layer, el, err := parseElement(fields)
		if err != nil {
			fail(l.No, err)
			continue
		}
		if el == nil {
			continue
		}
		lay := sb.Layer(layer)
		lay.Elements = append(lay.Elements, el)
		if sp, ok := el.Drawable(); ok {
			current = sp
		}
	}
	return sb, errs
}

// parseElement decodes an element definition line. Lines that define no
// storyboard element, such as backgrounds and breaks, return a nil element.
func parseElement(fields []string) (string, *storyboard.Element, error) {
	switch fields[0] {
	case "Sprite", "4":
		if len(fields) < 6 {
			return "", nil, fmt.Errorf("sprite: want 6 fields, got %d", len(fields))
		}
		layer, el, sp, err := drawable(fields)
		if err != nil {
			return "", nil, err
		}
		el.Kind = sp
		return layer, el, nil
	case "Animation", "6":
		if len(fields) < 8 {
			return "", nil, fmt.Errorf("animation: want at least 8 fields, got %d", len(fields))
		}
		layer, el, sp, err := drawable(fields)
		if err != nil {
			return "", nil, err
		}
		frames, err := parseInt(fields[6])
		if err != nil {
			return "", nil, fmt.Errorf("animation frame count: %w", err)
		}
		delay, err := parseFloat(fields[7])
		if err != nil {
			return "", nil, fmt.Errorf("animation frame delay: %w", err)
		}
		el.Kind = &storyboard.Animation{
			Sprite:     *sp,
			FrameCount: frames,
			FrameDelay: delay,
			LoopType:   storyboard.ParseLoopType(field(fields, 8)),
		}
		return layer, el, nil
	case "Sample", "5":
		if len(fields) < 4 {
			return "", nil, fmt.Errorf("sample: want at least 4 fields, got %d", len(fields))
		}
		t, err := parseFloat(fields[1])
		if err != nil {
			return "", nil, fmt.Errorf("sample time: %w", err)
		}
		layer, err := parseLayer(fields[2])
		if err != nil {
			return "", nil, err
		}
		volume := int32(100)
		if v := field(fields, 4); v != "" {
			if volume, err = parseInt(v); err != nil {
				return "", nil, fmt.Errorf("sample volume: %w", err)
			}
		}
		return layer, &storyboard.Element{
			Path: unquote(fields[3]),
			Kind: &storyboard.Sample{StartTime: t, Volume: volume},
		}, nil
	case "Video", "1":
		if len(fields) < 3 {
			return "", nil, fmt.Errorf("video: want at least 3 fields, got %d", len(fields))
		}
		t, err := parseFloat(fields[1])
		if err != nil {
			return "", nil, fmt.Errorf("video time: %w", err)
		}
		return storyboard.LayerVideo, &storyboard.Element{
			Path: unquote(fields[2]),
			Kind: &storyboard.Video{StartTime: t},
		}, nil
	}
	return "", nil, nil
}

func drawable(fields []string) (string, *storyboard.Element, *storyboard.Sprite, error) {
	layer, err := parseLayer(fields[1])
	if err != nil {
		return "", nil, nil, err
	}
	x, err := parseFloat32(fields[4])
	if err != nil {
		return "", nil, nil, fmt.Errorf("element x: %w", err)
	}
	y, err := parseFloat32(fields[5])
	if err != nil {
		return "", nil, nil, fmt.Errorf("element y: %w", err)
	}
	el := &storyboard.Element{
		Path:   unquote(fields[3]),
		Origin: storyboard.ParseOrigin(fields[2]),
	}
	return layer, el, &storyboard.Sprite{InitialPos: storyboard.Pos{X: x, Y: y}}, nil
}

func parseLoop(fields []string) (storyboard.Loop, error) {
	if len(fields) < 3 {
		return storyboard.Loop{}, fmt.Errorf("loop: want 3 fields, got %d", len(fields))
	}
	start, err := parseFloat(fields[1])
	if err != nil {
		return storyboard.Loop{}, fmt.Errorf("loop start: %w", err)
	}
	count, err := parseInt(fields[2])
	if err != nil {
		return storyboard.Loop{}, fmt.Errorf("loop count: %w", err)
	}
	return storyboard.Loop{StartTime: start, Count: count}, nil
}

func parseTrigger(fields []string) (storyboard.Trigger, error) {
	if len(fields) < 4 {
		return storyboard.Trigger{}, fmt.Errorf("trigger: want at least 4 fields, got %d", len(fields))
	}
	start, err := parseFloat(fields[2])
	if err != nil {
		return storyboard.Trigger{}, fmt.Errorf("trigger start: %w", err)
	}
	end, err := parseFloat(fields[3])
	if err != nil {
		return storyboard.Trigger{}, fmt.Errorf("trigger end: %w", err)
	}
	t := storyboard.Trigger{Name: fields[1], StartTime: start, EndTime: end}
	if g := field(fields, 4); g != "" {
		if t.GroupNumber, err = parseInt(g); err != nil {
			return storyboard.Trigger{}, fmt.Errorf("trigger group: %w", err)
		}
	}
	return t, nil
}

// eventKinds maps command events to the properties they animate and the
// number of parameters per value.
var eventKinds = map[string]struct {
	kinds []storyboard.CommandKind
	arity int
}{
	"F":  {[]storyboard.CommandKind{storyboard.CmdAlpha}, 1},
	"S":  {[]storyboard.CommandKind{storyboard.CmdScale}, 1},
	"R":  {[]storyboard.CommandKind{storyboard.CmdRotation}, 1},
	"MX": {[]storyboard.CommandKind{storyboard.CmdX}, 1},
	"MY": {[]storyboard.CommandKind{storyboard.CmdY}, 1},
	"M":  {[]storyboard.CommandKind{storyboard.CmdX, storyboard.CmdY}, 2},
	"V":  {[]storyboard.CommandKind{storyboard.CmdVectorScale}, 2},
	"C":  {[]storyboard.CommandKind{storyboard.CmdColor}, 3},
}

// parseCommands decodes one command line. A line with more than one value
// is shorthand for consecutive segments of the same duration; M lines
// produce separate x and y commands.
func parseCommands(fields []string) ([]storyboard.Command, error) {
	if len(fields) < 5 {
		return nil, fmt.Errorf("command %q: want at least 5 fields, got %d", fields[0], len(fields))
	}
	easing, err := parseInt(fields[1])
	if err != nil {
		return nil, fmt.Errorf("command easing: %w", err)
	}
	start, err := parseFloat(fields[2])
	if err != nil {
		return nil, fmt.Errorf("command start: %w", err)
	}
	end := start
	if fields[3] != "" {
		if end, err = parseFloat(fields[3]); err != nil {
			return nil, fmt.Errorf("command end: %w", err)
		}
	}
	params := fields[4:]

	if fields[0] == "P" {
		cmd := storyboard.Command{Easing: storyboard.Easing(easing), StartTime: start, EndTime: end}
		switch params[0] {
		case "H", "V":
			cmd.Kind = storyboard.CmdFlipH
			if params[0] == "V" {
				cmd.Kind = storyboard.CmdFlipV
			}
			// a flip holds only between its times unless they are equal
			cmd.StartValue = storyboard.Bool(true)
			cmd.EndValue = storyboard.Bool(start == end)
		case "A":
			cmd.Kind = storyboard.CmdBlending
			cmd.StartValue = storyboard.Blending{Additive: true}
			cmd.EndValue = storyboard.Blending{Additive: true}
		default:
			return nil, fmt.Errorf("parameter command %q", params[0])
		}
		return []storyboard.Command{cmd}, nil
	}

	ev, ok := eventKinds[fields[0]]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", fields[0])
	}
	if len(params)%ev.arity != 0 {
		return nil, fmt.Errorf("command %q: %d parameters is not a multiple of %d", fields[0], len(params), ev.arity)
	}

	type tuple []float64
	values := make([]tuple, 0, len(params)/ev.arity)
	for i := 0; i < len(params); i += ev.arity {
		v := make(tuple, ev.arity)
		for j := range v {
			if v[j], err = parseFloat(params[i+j]); err != nil {
				return nil, fmt.Errorf("command %q value: %w", fields[0], err)
			}
		}
		values = append(values, v)
	}
	if len(values) == 1 {
		values = append(values, values[0])
	}

	duration := end - start
	var out []storyboard.Command
	for seg := 0; seg+1 < len(values); seg++ {
		offset := float64(seg) * duration
		for k, kind := range ev.kinds {
			from, to := values[seg], values[seg+1]
			if len(ev.kinds) > 1 {
				from, to = from[k:k+1], to[k:k+1]
			}
			out = append(out, storyboard.Command{
				Kind:       kind,
				Easing:     storyboard.Easing(easing),
				StartTime:  start + offset,
				EndTime:    end + offset,
				StartValue: commandValue(kind, from),
				EndValue:   commandValue(kind, to),
			})
		}
	}
	return out, nil
}

func commandValue(kind storyboard.CommandKind, v []float64) storyboard.Value {
	switch kind {
	case storyboard.CmdColor:
		return storyboard.RGB{R: colorByte(v[0]), G: colorByte(v[1]), B: colorByte(v[2])}
	case storyboard.CmdVectorScale:
		return storyboard.Vector{X: float32(v[0]), Y: float32(v[1])}
	}
	return storyboard.Float(v[0])
}

func colorByte(f float64) uint8 {
	switch {
	case f <= 0:
		return 0
	case f >= 255:
		return 255
	}
	return uint8(f)
}
