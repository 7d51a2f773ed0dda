package types

import "fmt"

// Table identifies one of the twelve tables of a dataset.
type Table int

const (
	TableBeatmaps Table = iota
	TableHitObjects
	TableTimingPoints
	TableStoryboardElements
	TableStoryboardCommands
	TableSliderControlPoints
	TableSliderData
	TableBreaks
	TableComboColors
	TableHitSamples
	TableStoryboardLoops
	TableStoryboardTriggers
)

var tableNames = [...]string{
	"beatmaps",
	"hit_objects",
	"timing_points",
	"storyboard_elements",
	"storyboard_commands",
	"slider_control_points",
	"slider_data",
	"breaks",
	"combo_colors",
	"hit_samples",
	"storyboard_loops",
	"storyboard_triggers",
}

// Tables lists every table in write order.
var Tables = []Table{
	TableBeatmaps, TableHitObjects, TableTimingPoints,
	TableStoryboardElements, TableStoryboardCommands,
	TableSliderControlPoints, TableSliderData, TableBreaks,
	TableComboColors, TableHitSamples,
	TableStoryboardLoops, TableStoryboardTriggers,
}

// Name returns the table name.
func (t Table) Name() string {
	if t >= 0 && int(t) < len(tableNames) {
		return tableNames[t]
	}
	return fmt.Sprintf("table_%d", int(t))
}

func (t Table) String() string { return t.Name() }

// FileName returns the file the table is stored in.
func (t Table) FileName() string {
	return t.Name() + ".parquet"
}

// FileColumn returns the name of the column identifying the source file.
func (t Table) FileColumn() string {
	switch t {
	case TableStoryboardElements, TableStoryboardCommands, TableStoryboardLoops, TableStoryboardTriggers:
		return "source_file"
	default:
		return "osu_file"
	}
}

// PartitionColumn is the partition key column shared by every table.
const PartitionColumn = "folder_id"

// RowSet holds rows for the twelve tables, typically one partition's worth.
type RowSet struct {
	Beatmaps            []BeatmapRow
	HitObjects          []HitObjectRow
	TimingPoints        []TimingPointRow
	StoryboardElements  []StoryboardElementRow
	StoryboardCommands  []StoryboardCommandRow
	SliderControlPoints []SliderControlPointRow
	SliderData          []SliderDataRow
	Breaks              []BreakRow
	ComboColors         []ComboColorRow
	HitSamples          []HitSampleRow
	StoryboardLoops     []StoryboardLoopRow
	StoryboardTriggers  []StoryboardTriggerRow
}

// Len returns the row count of one table.
func (s *RowSet) Len(t Table) int {
	switch t {
	case TableBeatmaps:
		return len(s.Beatmaps)
	case TableHitObjects:
		return len(s.HitObjects)
	case TableTimingPoints:
		return len(s.TimingPoints)
	case TableStoryboardElements:
		return len(s.StoryboardElements)
	case TableStoryboardCommands:
		return len(s.StoryboardCommands)
	case TableSliderControlPoints:
		return len(s.SliderControlPoints)
	case TableSliderData:
		return len(s.SliderData)
	case TableBreaks:
		return len(s.Breaks)
	case TableComboColors:
		return len(s.ComboColors)
	case TableHitSamples:
		return len(s.HitSamples)
	case TableStoryboardLoops:
		return len(s.StoryboardLoops)
	case TableStoryboardTriggers:
		return len(s.StoryboardTriggers)
	}
	return 0
}

// TotalRows returns the row count across all tables.
func (s *RowSet) TotalRows() int {
	n := 0
	for _, t := range Tables {
		n += s.Len(t)
	}
	return n
}

// Append adds all rows of o to s.
func (s *RowSet) Append(o *RowSet) {
	s.Beatmaps = append(s.Beatmaps, o.Beatmaps...)
	s.HitObjects = append(s.HitObjects, o.HitObjects...)
	s.TimingPoints = append(s.TimingPoints, o.TimingPoints...)
	s.StoryboardElements = append(s.StoryboardElements, o.StoryboardElements...)
	s.StoryboardCommands = append(s.StoryboardCommands, o.StoryboardCommands...)
	s.SliderControlPoints = append(s.SliderControlPoints, o.SliderControlPoints...)
	s.SliderData = append(s.SliderData, o.SliderData...)
	s.Breaks = append(s.Breaks, o.Breaks...)
	s.ComboColors = append(s.ComboColors, o.ComboColors...)
	s.HitSamples = append(s.HitSamples, o.HitSamples...)
	s.StoryboardLoops = append(s.StoryboardLoops, o.StoryboardLoops...)
	s.StoryboardTriggers = append(s.StoryboardTriggers, o.StoryboardTriggers...)
}

// ForFile returns the beatmap-side rows of one osu file.
func (s *RowSet) ForFile(osuFile string) *RowSet {
	out := &RowSet{
		Beatmaps:            filter(s.Beatmaps, func(r *BeatmapRow) bool { return r.OsuFile == osuFile }),
		HitObjects:          filter(s.HitObjects, func(r *HitObjectRow) bool { return r.OsuFile == osuFile }),
		TimingPoints:        filter(s.TimingPoints, func(r *TimingPointRow) bool { return r.OsuFile == osuFile }),
		SliderControlPoints: filter(s.SliderControlPoints, func(r *SliderControlPointRow) bool { return r.OsuFile == osuFile }),
		SliderData:          filter(s.SliderData, func(r *SliderDataRow) bool { return r.OsuFile == osuFile }),
		Breaks:              filter(s.Breaks, func(r *BreakRow) bool { return r.OsuFile == osuFile }),
		ComboColors:         filter(s.ComboColors, func(r *ComboColorRow) bool { return r.OsuFile == osuFile }),
		HitSamples:          filter(s.HitSamples, func(r *HitSampleRow) bool { return r.OsuFile == osuFile }),
	}
	return out
}

// ForSource returns the storyboard rows of one source file and embedding flag.
func (s *RowSet) ForSource(sourceFile string, embedded bool) *RowSet {
	return &RowSet{
		StoryboardElements: filter(s.StoryboardElements, func(r *StoryboardElementRow) bool {
			return r.SourceFile == sourceFile && r.IsEmbedded == embedded
		}),
		StoryboardCommands: filter(s.StoryboardCommands, func(r *StoryboardCommandRow) bool {
			return r.SourceFile == sourceFile && r.IsEmbedded == embedded
		}),
		StoryboardLoops: filter(s.StoryboardLoops, func(r *StoryboardLoopRow) bool {
			return r.SourceFile == sourceFile && r.IsEmbedded == embedded
		}),
		StoryboardTriggers: filter(s.StoryboardTriggers, func(r *StoryboardTriggerRow) bool {
			return r.SourceFile == sourceFile && r.IsEmbedded == embedded
		}),
	}
}

// StoryboardSources returns the distinct source files with storyboard
// elements for the given embedding flag, in first-seen order.
func (s *RowSet) StoryboardSources(embedded bool) []string {
	seen := make(map[string]bool)
	var out []string
	for i := range s.StoryboardElements {
		r := &s.StoryboardElements[i]
		if r.IsEmbedded != embedded || seen[r.SourceFile] {
			continue
		}
		seen[r.SourceFile] = true
		out = append(out, r.SourceFile)
	}
	return out
}

func filter[T any](rows []T, keep func(*T) bool) []T {
	var out []T
	for i := range rows {
		if keep(&rows[i]) {
			out = append(out, rows[i])
		}
	}
	return out
}
