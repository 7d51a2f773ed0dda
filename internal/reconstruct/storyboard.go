package reconstruct

import (
	"fmt"
	"sort"

	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/pkg/storyboard"
	"github.com/beatset/beatset/pkg/types"
)

// Animation defaults for missing optional columns.
const (
	DefaultFrameCount = 1
	DefaultFrameDelay = 100.0
)

// Storyboard rebuilds the storyboard of one source file and embedding flag
// from rows (see types.RowSet.ForSource). Elements keep their element_index
// order within each layer; layers are returned in drawing order.
//
// Commands are sorted by start time, then property, so output is stable
// whatever the storage order. Loops and triggers are restored in index
// order, without the commands they held.
func Storyboard(sourceFile string, rows *types.RowSet) (*storyboard.Storyboard, []ObjectError) {
	sb := storyboard.New()
	var errs []ObjectError
	report := func(t types.Table, i int32, err error) {
		errs = append(errs, ObjectError{File: sourceFile, Table: t, Index: i, Err: err})
	}

	commands := make(map[int32][]*types.StoryboardCommandRow)
	for i := range rows.StoryboardCommands {
		r := &rows.StoryboardCommands[i]
		commands[r.ElementIndex] = append(commands[r.ElementIndex], r)
	}
	loops := make(map[int32][]*types.StoryboardLoopRow)
	for i := range rows.StoryboardLoops {
		r := &rows.StoryboardLoops[i]
		loops[r.ElementIndex] = append(loops[r.ElementIndex], r)
	}
	triggers := make(map[int32][]*types.StoryboardTriggerRow)
	for i := range rows.StoryboardTriggers {
		r := &rows.StoryboardTriggers[i]
		triggers[r.ElementIndex] = append(triggers[r.ElementIndex], r)
	}

	elements := make([]*types.StoryboardElementRow, len(rows.StoryboardElements))
	for i := range rows.StoryboardElements {
		elements[i] = &rows.StoryboardElements[i]
	}
	sort.SliceStable(elements, func(a, b int) bool { return elements[a].ElementIndex < elements[b].ElementIndex })

	for _, r := range elements {
		el, err := element(r)
		if err != nil {
			report(types.TableStoryboardElements, r.ElementIndex, err)
			continue
		}
		if sp, ok := el.Drawable(); ok {
			for _, c := range sortedCommands(commands[r.ElementIndex]) {
				cmd, err := command(c)
				if err != nil {
					report(types.TableStoryboardCommands, r.ElementIndex, err)
					continue
				}
				sp.Commands = append(sp.Commands, cmd)
			}

			ls := loops[r.ElementIndex]
			sort.SliceStable(ls, func(a, b int) bool { return ls[a].LoopIndex < ls[b].LoopIndex })
			for _, l := range ls {
				sp.Loops = append(sp.Loops, storyboard.Loop{StartTime: l.LoopStartTime, Count: l.LoopCount})
			}

			ts := triggers[r.ElementIndex]
			sort.SliceStable(ts, func(a, b int) bool { return ts[a].TriggerIndex < ts[b].TriggerIndex })
			for _, t := range ts {
				sp.Triggers = append(sp.Triggers, storyboard.Trigger{
					Name:        t.TriggerName,
					StartTime:   t.TriggerStartTime,
					EndTime:     t.TriggerEndTime,
					GroupNumber: t.GroupNumber,
				})
			}
		}
		layer := sb.Layer(r.LayerName)
		layer.Elements = append(layer.Elements, el)
	}
	return sb, errs
}

func element(r *types.StoryboardElementRow) (*storyboard.Element, error) {
	el := &storyboard.Element{Path: r.ElementPath, Origin: storyboard.ParseOrigin(r.Origin)}
	initial := storyboard.Pos{X: r.InitialPosX, Y: r.InitialPosY}

	switch storyboard.ElementType(r.ElementType) {
	case storyboard.TypeSprite:
		el.Kind = &storyboard.Sprite{InitialPos: initial}
	case storyboard.TypeAnimation:
		a := &storyboard.Animation{
			Sprite:     storyboard.Sprite{InitialPos: initial},
			FrameCount: DefaultFrameCount,
			FrameDelay: DefaultFrameDelay,
			LoopType:   storyboard.LoopForever,
		}
		if r.FrameCount != nil {
			a.FrameCount = *r.FrameCount
		}
		if r.FrameDelay != nil {
			a.FrameDelay = *r.FrameDelay
		}
		if r.LoopType != nil {
			a.LoopType = storyboard.ParseLoopType(*r.LoopType)
		}
		el.Kind = a
	case storyboard.TypeSample:
		el.Kind = &storyboard.Sample{}
	case storyboard.TypeVideo:
		el.Kind = &storyboard.Video{}
	default:
		return nil, unknownTag("element type", r.ElementType)
	}
	return el, nil
}

// sortedCommands orders commands by start time, then by property. Rows with
// an unknown property sort last and are reported by command.
func sortedCommands(rows []*types.StoryboardCommandRow) []*types.StoryboardCommandRow {
	rank := func(r *types.StoryboardCommandRow) int {
		k, err := storyboard.ParseCommandKind(r.CommandType)
		if err != nil {
			return len(storyboard.CommandKinds)
		}
		return int(k)
	}
	out := append([]*types.StoryboardCommandRow(nil), rows...)
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].StartTime != out[b].StartTime {
			return out[a].StartTime < out[b].StartTime
		}
		return rank(out[a]) < rank(out[b])
	})
	return out
}

func command(r *types.StoryboardCommandRow) (storyboard.Command, error) {
	kind, err := storyboard.ParseCommandKind(r.CommandType)
	if err != nil {
		return storyboard.Command{}, unknownTag("command type", r.CommandType)
	}
	start, err := storyboard.ParseValue(kind, r.StartValue)
	if err != nil {
		return storyboard.Command{}, badValue(kind, err)
	}
	end, err := storyboard.ParseValue(kind, r.EndValue)
	if err != nil {
		return storyboard.Command{}, badValue(kind, err)
	}
	return storyboard.Command{
		Kind:       kind,
		Easing:     storyboard.Easing(r.Easing),
		StartTime:  r.StartTime,
		EndTime:    r.EndTime,
		StartValue: start,
		EndValue:   end,
	}, nil
}

func badValue(kind storyboard.CommandKind, err error) error {
	return errors.NewReferenceError(errors.CodeBadValue, fmt.Sprintf("%s command", kind), err)
}
