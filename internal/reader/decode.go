package reader

import (
	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"

	"github.com/beatset/beatset/internal/schema"
	"github.com/beatset/beatset/pkg/types"
)

// stringColumn is satisfied by both String and LargeString arrays.
type stringColumn interface {
	Len() int
	IsNull(i int) bool
	Value(i int) string
}

// view gives typed access to the columns of one record. Column types were
// checked by schema.Validate when the file was opened.
type view struct {
	rec  arrow.Record
	cols schema.Columns
}

func (v view) col(name string) arrow.Array { return v.rec.Column(v.cols[name]) }

func (v view) str(name string) stringColumn       { return v.col(name).(stringColumn) }
func (v view) i32(name string) *array.Int32       { return v.col(name).(*array.Int32) }
func (v view) f32(name string) *array.Float32     { return v.col(name).(*array.Float32) }
func (v view) f64(name string) *array.Float64     { return v.col(name).(*array.Float64) }
func (v view) boolean(name string) *array.Boolean { return v.col(name).(*array.Boolean) }

func optStr(a stringColumn, i int) *string {
	if a.IsNull(i) {
		return nil
	}
	s := a.Value(i)
	return &s
}

func optI32(a *array.Int32, i int) *int32 {
	if a.IsNull(i) {
		return nil
	}
	n := a.Value(i)
	return &n
}

func optF64(a *array.Float64, i int) *float64 {
	if a.IsNull(i) {
		return nil
	}
	f := a.Value(i)
	return &f
}

func optBool(a *array.Boolean, i int) *bool {
	if a.IsNull(i) {
		return nil
	}
	b := a.Value(i)
	return &b
}

// decoder appends the rows of one record to the matching RowSet slice.
type decoder func(v view, rs *types.RowSet)

var decoders = map[types.Table]decoder{
	types.TableBeatmaps:            decodeBeatmaps,
	types.TableHitObjects:          decodeHitObjects,
	types.TableTimingPoints:        decodeTimingPoints,
	types.TableStoryboardElements:  decodeStoryboardElements,
	types.TableStoryboardCommands:  decodeStoryboardCommands,
	types.TableSliderControlPoints: decodeSliderControlPoints,
	types.TableSliderData:          decodeSliderData,
	types.TableBreaks:              decodeBreaks,
	types.TableComboColors:         decodeComboColors,
	types.TableHitSamples:          decodeHitSamples,
	types.TableStoryboardLoops:     decodeStoryboardLoops,
	types.TableStoryboardTriggers:  decodeStoryboardTriggers,
}

func decodeBeatmaps(v view, rs *types.RowSet) {
	var (
		folder, file, audio       = v.str("folder_id"), v.str("osu_file"), v.str("audio_file")
		formatVersion             = v.i32("format_version")
		leadIn                    = v.f64("audio_lead_in")
		preview                   = v.i32("preview_time")
		bank, volume              = v.i32("default_sample_bank"), v.i32("default_sample_volume")
		stack                     = v.f32("stack_leniency")
		mode                      = v.i32("mode")
		letterbox, special        = v.boolean("letterbox_in_breaks"), v.boolean("special_style")
		widescreen, epilepsy      = v.boolean("widescreen_storyboard"), v.boolean("epilepsy_warning")
		matchRate                 = v.boolean("samples_match_playback_rate")
		countdown, countdownOff   = v.i32("countdown"), v.i32("countdown_offset")
		bookmarks                 = v.str("bookmarks")
		spacing                   = v.f64("distance_spacing")
		divisor, grid             = v.i32("beat_divisor"), v.i32("grid_size")
		zoom                      = v.f64("timeline_zoom")
		title, titleU             = v.str("title"), v.str("title_unicode")
		artist, artistU           = v.str("artist"), v.str("artist_unicode")
		creator, version          = v.str("creator"), v.str("version")
		source, tags              = v.str("source"), v.str("tags")
		beatmapID, setID          = v.i32("beatmap_id"), v.i32("beatmap_set_id")
		hp, cs                    = v.f32("hp_drain_rate"), v.f32("circle_size")
		od, ar                    = v.f32("overall_difficulty"), v.f32("approach_rate")
		sliderMul, tickRate       = v.f64("slider_multiplier"), v.f64("slider_tick_rate")
		bg, audioPath, bgPath     = v.str("background_file"), v.str("audio_path"), v.str("background_path")
	)
	for i := 0; i < int(v.rec.NumRows()); i++ {
		rs.Beatmaps = append(rs.Beatmaps, types.BeatmapRow{
			FolderID:                 folder.Value(i),
			OsuFile:                  file.Value(i),
			FormatVersion:            formatVersion.Value(i),
			AudioFile:                audio.Value(i),
			AudioLeadIn:              leadIn.Value(i),
			PreviewTime:              preview.Value(i),
			DefaultSampleBank:        bank.Value(i),
			DefaultSampleVolume:      volume.Value(i),
			StackLeniency:            stack.Value(i),
			Mode:                     mode.Value(i),
			LetterboxInBreaks:        letterbox.Value(i),
			SpecialStyle:             special.Value(i),
			WidescreenStoryboard:     widescreen.Value(i),
			EpilepsyWarning:          epilepsy.Value(i),
			SamplesMatchPlaybackRate: matchRate.Value(i),
			Countdown:                countdown.Value(i),
			CountdownOffset:          countdownOff.Value(i),
			Bookmarks:                bookmarks.Value(i),
			DistanceSpacing:          spacing.Value(i),
			BeatDivisor:              divisor.Value(i),
			GridSize:                 grid.Value(i),
			TimelineZoom:             zoom.Value(i),
			Title:                    title.Value(i),
			TitleUnicode:             titleU.Value(i),
			Artist:                   artist.Value(i),
			ArtistUnicode:            artistU.Value(i),
			Creator:                  creator.Value(i),
			Version:                  version.Value(i),
			Source:                   source.Value(i),
			Tags:                     tags.Value(i),
			BeatmapID:                beatmapID.Value(i),
			BeatmapSetID:             setID.Value(i),
			HPDrainRate:              hp.Value(i),
			CircleSize:               cs.Value(i),
			OverallDifficulty:        od.Value(i),
			ApproachRate:             ar.Value(i),
			SliderMultiplier:         sliderMul.Value(i),
			SliderTickRate:           tickRate.Value(i),
			BackgroundFile:           bg.Value(i),
			AudioPath:                audioPath.Value(i),
			BackgroundPath:           bgPath.Value(i),
		})
	}
}

func decodeHitObjects(v view, rs *types.RowSet) {
	folder, file := v.str("folder_id"), v.str("osu_file")
	index, start, kind := v.i32("index"), v.f64("start_time"), v.str("object_type")
	posX, posY := v.i32("pos_x"), v.i32("pos_y")
	newCombo, comboOffset := v.boolean("new_combo"), v.i32("combo_offset")
	curve, slides := v.str("curve_type"), v.i32("slides")
	length, end := v.f64("length"), v.f64("end_time")
	for i := 0; i < int(v.rec.NumRows()); i++ {
		rs.HitObjects = append(rs.HitObjects, types.HitObjectRow{
			FolderID:    folder.Value(i),
			OsuFile:     file.Value(i),
			Index:       index.Value(i),
			StartTime:   start.Value(i),
			ObjectType:  kind.Value(i),
			PosX:        optI32(posX, i),
			PosY:        optI32(posY, i),
			NewCombo:    newCombo.Value(i),
			ComboOffset: comboOffset.Value(i),
			CurveType:   optStr(curve, i),
			Slides:      optI32(slides, i),
			Length:      optF64(length, i),
			EndTime:     optF64(end, i),
		})
	}
}

func decodeTimingPoints(v view, rs *types.RowSet) {
	folder, file := v.str("folder_id"), v.str("osu_file")
	t, kind := v.f64("time"), v.str("point_type")
	beatLen, sig := v.f64("beat_length"), v.str("time_signature")
	sv, kiai := v.f64("slider_velocity"), v.boolean("kiai")
	bank, volume := v.str("sample_bank"), v.i32("sample_volume")
	for i := 0; i < int(v.rec.NumRows()); i++ {
		rs.TimingPoints = append(rs.TimingPoints, types.TimingPointRow{
			FolderID:       folder.Value(i),
			OsuFile:        file.Value(i),
			Time:           t.Value(i),
			PointType:      kind.Value(i),
			BeatLength:     optF64(beatLen, i),
			TimeSignature:  optStr(sig, i),
			SliderVelocity: optF64(sv, i),
			Kiai:           optBool(kiai, i),
			SampleBank:     optStr(bank, i),
			SampleVolume:   optI32(volume, i),
		})
	}
}

func decodeStoryboardElements(v view, rs *types.RowSet) {
	folder, src := v.str("folder_id"), v.str("source_file")
	idx, layer := v.i32("element_index"), v.str("layer_name")
	path, kind, origin := v.str("element_path"), v.str("element_type"), v.str("origin")
	x, y := v.f32("initial_pos_x"), v.f32("initial_pos_y")
	frames, delay, loop := v.i32("frame_count"), v.f64("frame_delay"), v.str("loop_type")
	embedded := v.boolean("is_embedded")
	for i := 0; i < int(v.rec.NumRows()); i++ {
		rs.StoryboardElements = append(rs.StoryboardElements, types.StoryboardElementRow{
			FolderID:     folder.Value(i),
			SourceFile:   src.Value(i),
			ElementIndex: idx.Value(i),
			LayerName:    layer.Value(i),
			ElementPath:  path.Value(i),
			ElementType:  kind.Value(i),
			Origin:       origin.Value(i),
			InitialPosX:  x.Value(i),
			InitialPosY:  y.Value(i),
			FrameCount:   optI32(frames, i),
			FrameDelay:   optF64(delay, i),
			LoopType:     optStr(loop, i),
			IsEmbedded:   embedded.Value(i),
		})
	}
}

func decodeStoryboardCommands(v view, rs *types.RowSet) {
	folder, src := v.str("folder_id"), v.str("source_file")
	idx, kind := v.i32("element_index"), v.str("command_type")
	start, end := v.f64("start_time"), v.f64("end_time")
	startVal, endVal := v.str("start_value"), v.str("end_value")
	easing, embedded := v.i32("easing"), v.boolean("is_embedded")
	for i := 0; i < int(v.rec.NumRows()); i++ {
		rs.StoryboardCommands = append(rs.StoryboardCommands, types.StoryboardCommandRow{
			FolderID:     folder.Value(i),
			SourceFile:   src.Value(i),
			ElementIndex: idx.Value(i),
			CommandType:  kind.Value(i),
			StartTime:    start.Value(i),
			EndTime:      end.Value(i),
			StartValue:   startVal.Value(i),
			EndValue:     endVal.Value(i),
			Easing:       easing.Value(i),
			IsEmbedded:   embedded.Value(i),
		})
	}
}

func decodeSliderControlPoints(v view, rs *types.RowSet) {
	folder, file := v.str("folder_id"), v.str("osu_file")
	obj, point := v.i32("hit_object_index"), v.i32("point_index")
	x, y, pathType := v.f32("pos_x"), v.f32("pos_y"), v.str("path_type")
	for i := 0; i < int(v.rec.NumRows()); i++ {
		rs.SliderControlPoints = append(rs.SliderControlPoints, types.SliderControlPointRow{
			FolderID:       folder.Value(i),
			OsuFile:        file.Value(i),
			HitObjectIndex: obj.Value(i),
			PointIndex:     point.Value(i),
			PosX:           x.Value(i),
			PosY:           y.Value(i),
			PathType:       optStr(pathType, i),
		})
	}
}

func decodeSliderData(v view, rs *types.RowSet) {
	folder, file := v.str("folder_id"), v.str("osu_file")
	obj, repeats := v.i32("hit_object_index"), v.i32("repeat_count")
	velocity, dist := v.f64("velocity"), v.f64("expected_dist")
	for i := 0; i < int(v.rec.NumRows()); i++ {
		rs.SliderData = append(rs.SliderData, types.SliderDataRow{
			FolderID:       folder.Value(i),
			OsuFile:        file.Value(i),
			HitObjectIndex: obj.Value(i),
			RepeatCount:    repeats.Value(i),
			Velocity:       velocity.Value(i),
			ExpectedDist:   optF64(dist, i),
		})
	}
}

func decodeBreaks(v view, rs *types.RowSet) {
	folder, file := v.str("folder_id"), v.str("osu_file")
	start, end := v.f64("start_time"), v.f64("end_time")
	for i := 0; i < int(v.rec.NumRows()); i++ {
		rs.Breaks = append(rs.Breaks, types.BreakRow{
			FolderID:  folder.Value(i),
			OsuFile:   file.Value(i),
			StartTime: start.Value(i),
			EndTime:   end.Value(i),
		})
	}
}

func decodeComboColors(v view, rs *types.RowSet) {
	folder, file := v.str("folder_id"), v.str("osu_file")
	idx, kind, name := v.i32("color_index"), v.str("color_type"), v.str("custom_name")
	r, g, b := v.i32("red"), v.i32("green"), v.i32("blue")
	for i := 0; i < int(v.rec.NumRows()); i++ {
		rs.ComboColors = append(rs.ComboColors, types.ComboColorRow{
			FolderID:   folder.Value(i),
			OsuFile:    file.Value(i),
			ColorIndex: idx.Value(i),
			ColorType:  kind.Value(i),
			CustomName: optStr(name, i),
			Red:        r.Value(i),
			Green:      g.Value(i),
			Blue:       b.Value(i),
		})
	}
}

func decodeHitSamples(v view, rs *types.RowSet) {
	folder, file := v.str("folder_id"), v.str("osu_file")
	obj, idx := v.i32("hit_object_index"), v.i32("sample_index")
	name, bank, suffix := v.str("name"), v.str("bank"), v.str("suffix")
	volume := v.i32("volume")
	for i := 0; i < int(v.rec.NumRows()); i++ {
		rs.HitSamples = append(rs.HitSamples, types.HitSampleRow{
			FolderID:       folder.Value(i),
			OsuFile:        file.Value(i),
			HitObjectIndex: obj.Value(i),
			SampleIndex:    idx.Value(i),
			Name:           name.Value(i),
			Bank:           bank.Value(i),
			Suffix:         optStr(suffix, i),
			Volume:         volume.Value(i),
		})
	}
}

func decodeStoryboardLoops(v view, rs *types.RowSet) {
	folder, src := v.str("folder_id"), v.str("source_file")
	elem, idx := v.i32("element_index"), v.i32("loop_index")
	start, count := v.f64("loop_start_time"), v.i32("loop_count")
	embedded := v.boolean("is_embedded")
	for i := 0; i < int(v.rec.NumRows()); i++ {
		rs.StoryboardLoops = append(rs.StoryboardLoops, types.StoryboardLoopRow{
			FolderID:      folder.Value(i),
			SourceFile:    src.Value(i),
			ElementIndex:  elem.Value(i),
			LoopIndex:     idx.Value(i),
			LoopStartTime: start.Value(i),
			LoopCount:     count.Value(i),
			IsEmbedded:    embedded.Value(i),
		})
	}
}

func decodeStoryboardTriggers(v view, rs *types.RowSet) {
	folder, src := v.str("folder_id"), v.str("source_file")
	elem, idx, name := v.i32("element_index"), v.i32("trigger_index"), v.str("trigger_name")
	start, end := v.f64("trigger_start_time"), v.f64("trigger_end_time")
	group, embedded := v.i32("group_number"), v.boolean("is_embedded")
	for i := 0; i < int(v.rec.NumRows()); i++ {
		rs.StoryboardTriggers = append(rs.StoryboardTriggers, types.StoryboardTriggerRow{
			FolderID:         folder.Value(i),
			SourceFile:       src.Value(i),
			ElementIndex:     elem.Value(i),
			TriggerIndex:     idx.Value(i),
			TriggerName:      name.Value(i),
			TriggerStartTime: start.Value(i),
			TriggerEndTime:   end.Value(i),
			GroupNumber:      group.Value(i),
			IsEmbedded:       embedded.Value(i),
		})
	}
}
