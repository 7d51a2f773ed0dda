package osutext

import (
	"fmt"
	"io"
	"strings"

	"github.com/beatset/beatset/pkg/storyboard"
)

var eventNames = map[storyboard.CommandKind]string{
	storyboard.CmdX:           "MX",
	storyboard.CmdY:           "MY",
	storyboard.CmdScale:       "S",
	storyboard.CmdRotation:    "R",
	storyboard.CmdAlpha:       "F",
	storyboard.CmdColor:       "C",
	storyboard.CmdVectorScale: "V",
}

// EncodeStoryboard writes the sprites and animations of sb as an [Events]
// section. Samples and videos are not written. The Overlay header appears
// only when that layer exists.
func EncodeStoryboard(w io.Writer, sb *storyboard.Storyboard) error {
	t := newTextWriter(w)
	t.line("[Events]")
	t.line("//Background and Video events")
	for i, name := range layerNames {
		if name == storyboard.LayerOverlay && sb.Find(name) == nil {
			continue
		}
		t.line("//Storyboard Layer %d (%s)", i, name)
		lay := sb.Find(name)
		if lay == nil {
			continue
		}
		for _, el := range lay.Elements {
			if err := writeElement(t, name, el); err != nil {
				return err
			}
		}
	}
	t.line("//Storyboard Sound Samples")
	return t.flush()
}

func writeElement(t *textWriter, layer string, el *storyboard.Element) error {
	switch k := el.Kind.(type) {
	case *storyboard.Sprite:
		t.line(`Sprite,%s,%s,"%s",%d,%d`, layer, el.Origin, el.Path,
			int32(k.InitialPos.X), int32(k.InitialPos.Y))
		return writeTimelines(t, k)
	case *storyboard.Animation:
		t.line(`Animation,%s,%s,"%s",%d,%d,%d,%d,%s`, layer, el.Origin, el.Path,
			int32(k.InitialPos.X), int32(k.InitialPos.Y), k.FrameCount, int64(k.FrameDelay), k.LoopType)
		return writeTimelines(t, &k.Sprite)
	}
	return nil
}

func writeTimelines(t *textWriter, sp *storyboard.Sprite) error {
	for _, c := range sp.Commands {
		if err := writeCommand(t, " ", c); err != nil {
			return err
		}
	}
	for _, l := range sp.Loops {
		t.line(" L,%s,%d", formatFloat(l.StartTime), l.Count)
		for _, c := range l.Commands {
			if err := writeCommand(t, "  ", c); err != nil {
				return err
			}
		}
	}
	for _, tr := range sp.Triggers {
		t.line(" T,%s,%s,%s,%d", tr.Name, formatFloat(tr.StartTime), formatFloat(tr.EndTime), tr.GroupNumber)
		for _, c := range tr.Commands {
			if err := writeCommand(t, "  ", c); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeCommand(t *textWriter, indent string, c storyboard.Command) error {
	if c.StartValue == nil || c.EndValue == nil {
		return fmt.Errorf("%s command at %s has no value", c.Kind, formatFloat(c.StartTime))
	}
	start := formatFloat(c.StartTime)

	switch c.Kind {
	case storyboard.CmdFlipH, storyboard.CmdFlipV, storyboard.CmdBlending:
		param := "A"
		switch c.Kind {
		case storyboard.CmdFlipH:
			param = "H"
		case storyboard.CmdFlipV:
			param = "V"
		}
		end := ""
		if c.EndTime != c.StartTime {
			end = formatFloat(c.EndTime)
		}
		t.line("%sP,%d,%s,%s,%s", indent, c.Easing, start, end, param)
		return nil
	}

	event, ok := eventNames[c.Kind]
	if !ok {
		return fmt.Errorf("unknown command kind %s", c.Kind)
	}
	values := textValue(c.StartValue)
	if c.EndValue.Format() != c.StartValue.Format() {
		values += "," + textValue(c.EndValue)
	}
	t.line("%s%s,%d,%s,%s,%s", indent, event, c.Easing, start, formatFloat(c.EndTime), values)
	return nil
}

// textValue renders a command value with the separators of the text format.
func textValue(v storyboard.Value) string {
	switch v := v.(type) {
	case storyboard.RGB:
		return fmt.Sprintf("%d,%d,%d", v.R, v.G, v.B)
	case storyboard.Vector:
		return formatFloat32(v.X) + "," + formatFloat32(v.Y)
	case storyboard.Float:
		return formatFloat32(float32(v))
	}
	return strings.TrimSpace(v.Format())
}
