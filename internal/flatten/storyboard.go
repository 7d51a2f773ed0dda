package flatten

import (
	"fmt"

	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/pkg/storyboard"
	"github.com/beatset/beatset/pkg/types"
)

// blendingValue is stored for every blending command whatever its
// parameter. Decoding restores additive blending.
const blendingValue = "A"

// elementCounter hands out element indices for one (source file, embedded)
// index space.
type elementCounter struct {
	next int32
}

func (c *elementCounter) take() int32 {
	i := c.next
	c.next++
	return i
}

// storyboardRows appends rows for one storyboard source.
type storyboardRows struct {
	folderID string
	source   string
	embedded bool
	rs       *types.RowSet
}

// Storyboard appends the rows of one storyboard to rs. Element indices
// start at zero for every call, so each call must cover one whole source
// file and embedding flag. It returns the number of elements written.
// On error nothing is appended.
func (f *Flattener) Storyboard(folderID, sourceFile string, embedded bool, sb *storyboard.Storyboard, rs *types.RowSet) (int, error) {
	out := storyboardRows{folderID: folderID, source: sourceFile, embedded: embedded, rs: &types.RowSet{}}
	var counter elementCounter

	for _, layer := range sb.Layers {
		for _, el := range layer.Elements {
			if err := out.element(counter.take(), layer.Name, el); err != nil {
				return 0, errors.NewParseError(errors.CodeBadValue,
					fmt.Sprintf("%s: storyboard layer %s", sourceFile, layer.Name), err)
			}
		}
	}
	rs.Append(out.rs)
	return int(counter.next), nil
}

func (s *storyboardRows) element(idx int32, layer string, el *storyboard.Element) error {
	row := types.StoryboardElementRow{
		FolderID:     s.folderID,
		SourceFile:   s.source,
		ElementIndex: idx,
		LayerName:    layer,
		ElementPath:  el.Path,
		ElementType:  string(el.Kind.ElementType()),
		IsEmbedded:   s.embedded,
	}
	if a, ok := el.Kind.(*storyboard.Animation); ok {
		row.FrameCount = types.Ptr(a.FrameCount)
		row.FrameDelay = types.Ptr(a.FrameDelay)
		row.LoopType = types.Ptr(a.LoopType.String())
	}

	sp, drawable := el.Drawable()
	if drawable {
		row.Origin = el.Origin.String()
		row.InitialPosX = sp.InitialPos.X
		row.InitialPosY = sp.InitialPos.Y
	}
	s.rs.StoryboardElements = append(s.rs.StoryboardElements, row)
	if !drawable {
		return nil
	}

	// commands are grouped by property in storage order
	for _, kind := range storyboard.CommandKinds {
		for _, c := range sp.Commands {
			if c.Kind != kind {
				continue
			}
			if err := s.command(idx, c); err != nil {
				return err
			}
		}
	}
	for i, l := range sp.Loops {
		s.rs.StoryboardLoops = append(s.rs.StoryboardLoops, types.StoryboardLoopRow{
			FolderID:      s.folderID,
			SourceFile:    s.source,
			ElementIndex:  idx,
			LoopIndex:     int32(i),
			LoopStartTime: l.StartTime,
			LoopCount:     l.Count,
			IsEmbedded:    s.embedded,
		})
	}
	for i, t := range sp.Triggers {
		s.rs.StoryboardTriggers = append(s.rs.StoryboardTriggers, types.StoryboardTriggerRow{
			FolderID:         s.folderID,
			SourceFile:       s.source,
			ElementIndex:     idx,
			TriggerIndex:     int32(i),
			TriggerName:      t.Name,
			TriggerStartTime: t.StartTime,
			TriggerEndTime:   t.EndTime,
			GroupNumber:      t.GroupNumber,
			IsEmbedded:       s.embedded,
		})
	}
	return nil
}

func (s *storyboardRows) command(idx int32, c storyboard.Command) error {
	start, err := formatValue(c.Kind, c.StartValue)
	if err != nil {
		return err
	}
	end, err := formatValue(c.Kind, c.EndValue)
	if err != nil {
		return err
	}
	s.rs.StoryboardCommands = append(s.rs.StoryboardCommands, types.StoryboardCommandRow{
		FolderID:     s.folderID,
		SourceFile:   s.source,
		ElementIndex: idx,
		CommandType:  c.Kind.String(),
		StartTime:    c.StartTime,
		EndTime:      c.EndTime,
		StartValue:   start,
		EndValue:     end,
		Easing:       int32(c.Easing),
		IsEmbedded:   s.embedded,
	})
	return nil
}

func formatValue(kind storyboard.CommandKind, v storyboard.Value) (string, error) {
	if kind == storyboard.CmdBlending {
		return blendingValue, nil
	}
	if v == nil || !storyboard.ValueMatches(kind, v) {
		return "", fmt.Errorf("%s command has value %T", kind, v)
	}
	return v.Format(), nil
}
