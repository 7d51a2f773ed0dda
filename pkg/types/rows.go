// Package types provides the row types of the twelve beatset tables.
//
// Rows are linked by natural keys only: every row carries its partition
// (FolderID) and file (OsuFile or SourceFile), and child rows reference
// their parent through positional index columns. Nullable columns are
// pointer fields.
package types

// BeatmapRow holds the global metadata of one beatmap file.
type BeatmapRow struct {
	FolderID string `json:"folder_id"`
	OsuFile  string `json:"osu_file"`

	FormatVersion            int32   `json:"format_version"`
	AudioFile                string  `json:"audio_file"`
	AudioLeadIn              float64 `json:"audio_lead_in"`
	PreviewTime              int32   `json:"preview_time"`
	DefaultSampleBank        int32   `json:"default_sample_bank"`
	DefaultSampleVolume      int32   `json:"default_sample_volume"`
	StackLeniency            float32 `json:"stack_leniency"`
	Mode                     int32   `json:"mode"`
	LetterboxInBreaks        bool    `json:"letterbox_in_breaks"`
	SpecialStyle             bool    `json:"special_style"`
	WidescreenStoryboard     bool    `json:"widescreen_storyboard"`
	EpilepsyWarning          bool    `json:"epilepsy_warning"`
	SamplesMatchPlaybackRate bool    `json:"samples_match_playback_rate"`
	Countdown                int32   `json:"countdown"`
	CountdownOffset          int32   `json:"countdown_offset"`

	Bookmarks       string  `json:"bookmarks"`
	DistanceSpacing float64 `json:"distance_spacing"`
	BeatDivisor     int32   `json:"beat_divisor"`
	GridSize        int32   `json:"grid_size"`
	TimelineZoom    float64 `json:"timeline_zoom"`

	Title         string `json:"title"`
	TitleUnicode  string `json:"title_unicode"`
	Artist        string `json:"artist"`
	ArtistUnicode string `json:"artist_unicode"`
	Creator       string `json:"creator"`
	Version       string `json:"version"`
	Source        string `json:"source"`
	Tags          string `json:"tags"`
	BeatmapID     int32  `json:"beatmap_id"`
	BeatmapSetID  int32  `json:"beatmap_set_id"`

	HPDrainRate       float32 `json:"hp_drain_rate"`
	CircleSize        float32 `json:"circle_size"`
	OverallDifficulty float32 `json:"overall_difficulty"`
	ApproachRate      float32 `json:"approach_rate"`
	SliderMultiplier  float64 `json:"slider_multiplier"`
	SliderTickRate    float64 `json:"slider_tick_rate"`

	BackgroundFile string `json:"background_file"`
	AudioPath      string `json:"audio_path"`
	BackgroundPath string `json:"background_path"`
}

// HitObjectRow is one playable object. Index is its position in the file's
// object list and is referenced by SliderData, SliderControlPoint and
// HitSample rows.
type HitObjectRow struct {
	FolderID    string   `json:"folder_id"`
	OsuFile     string   `json:"osu_file"`
	Index       int32    `json:"index"`
	StartTime   float64  `json:"start_time"`
	ObjectType  string   `json:"object_type"`
	PosX        *int32   `json:"pos_x"`
	PosY        *int32   `json:"pos_y"`
	NewCombo    bool     `json:"new_combo"`
	ComboOffset int32    `json:"combo_offset"`
	CurveType   *string  `json:"curve_type"`
	Slides      *int32   `json:"slides"`
	Length      *float64 `json:"length"`
	// EndTime holds the duration of spinners and holds.
	EndTime *float64 `json:"end_time"`
}

// TimingPointRow is a timing, difficulty or effect control point. PointType
// decides which optional columns are populated.
type TimingPointRow struct {
	FolderID       string   `json:"folder_id"`
	OsuFile        string   `json:"osu_file"`
	Time           float64  `json:"time"`
	PointType      string   `json:"point_type"`
	BeatLength     *float64 `json:"beat_length"`
	TimeSignature  *string  `json:"time_signature"`
	SliderVelocity *float64 `json:"slider_velocity"`
	Kiai           *bool    `json:"kiai"`
	SampleBank     *string  `json:"sample_bank"`
	SampleVolume   *int32   `json:"sample_volume"`
}

// StoryboardElementRow is one sprite, animation, sample or video.
type StoryboardElementRow struct {
	FolderID     string   `json:"folder_id"`
	SourceFile   string   `json:"source_file"`
	ElementIndex int32    `json:"element_index"`
	LayerName    string   `json:"layer_name"`
	ElementPath  string   `json:"element_path"`
	ElementType  string   `json:"element_type"`
	Origin       string   `json:"origin"`
	InitialPosX  float32  `json:"initial_pos_x"`
	InitialPosY  float32  `json:"initial_pos_y"`
	FrameCount   *int32   `json:"frame_count"`
	FrameDelay   *float64 `json:"frame_delay"`
	LoopType     *string  `json:"loop_type"`
	IsEmbedded   bool     `json:"is_embedded"`
}

// StoryboardCommandRow is one keyframe of one element property. Values are
// stored in their text form whatever the property type.
type StoryboardCommandRow struct {
	FolderID     string  `json:"folder_id"`
	SourceFile   string  `json:"source_file"`
	ElementIndex int32   `json:"element_index"`
	CommandType  string  `json:"command_type"`
	StartTime    float64 `json:"start_time"`
	EndTime      float64 `json:"end_time"`
	StartValue   string  `json:"start_value"`
	EndValue     string  `json:"end_value"`
	Easing       int32   `json:"easing"`
	IsEmbedded   bool    `json:"is_embedded"`
}

// SliderControlPointRow is one vertex of a slider path.
type SliderControlPointRow struct {
	FolderID       string  `json:"folder_id"`
	OsuFile        string  `json:"osu_file"`
	HitObjectIndex int32   `json:"hit_object_index"`
	PointIndex     int32   `json:"point_index"`
	PosX           float32 `json:"pos_x"`
	PosY           float32 `json:"pos_y"`
	PathType       *string `json:"path_type"`
}

// SliderDataRow carries the slider-only attributes of one hit object.
type SliderDataRow struct {
	FolderID       string   `json:"folder_id"`
	OsuFile        string   `json:"osu_file"`
	HitObjectIndex int32    `json:"hit_object_index"`
	RepeatCount    int32    `json:"repeat_count"`
	Velocity       float64  `json:"velocity"`
	ExpectedDist   *float64 `json:"expected_dist"`
}

// BreakRow is one break period.
type BreakRow struct {
	FolderID  string  `json:"folder_id"`
	OsuFile   string  `json:"osu_file"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// ComboColorRow is a palette entry ("combo") or a named colour ("custom").
type ComboColorRow struct {
	FolderID   string  `json:"folder_id"`
	OsuFile    string  `json:"osu_file"`
	ColorIndex int32   `json:"color_index"`
	ColorType  string  `json:"color_type"`
	CustomName *string `json:"custom_name"`
	Red        int32   `json:"red"`
	Green      int32   `json:"green"`
	Blue       int32   `json:"blue"`
}

// HitSampleRow is one sample of one hit object.
type HitSampleRow struct {
	FolderID       string  `json:"folder_id"`
	OsuFile        string  `json:"osu_file"`
	HitObjectIndex int32   `json:"hit_object_index"`
	SampleIndex    int32   `json:"sample_index"`
	Name           string  `json:"name"`
	Bank           string  `json:"bank"`
	Suffix         *string `json:"suffix"`
	Volume         int32   `json:"volume"`
}

// StoryboardLoopRow is a loop block on a sprite or animation.
type StoryboardLoopRow struct {
	FolderID      string  `json:"folder_id"`
	SourceFile    string  `json:"source_file"`
	ElementIndex  int32   `json:"element_index"`
	LoopIndex     int32   `json:"loop_index"`
	LoopStartTime float64 `json:"loop_start_time"`
	LoopCount     int32   `json:"loop_count"`
	IsEmbedded    bool    `json:"is_embedded"`
}

// StoryboardTriggerRow is a trigger block on a sprite or animation.
type StoryboardTriggerRow struct {
	FolderID         string  `json:"folder_id"`
	SourceFile       string  `json:"source_file"`
	ElementIndex     int32   `json:"element_index"`
	TriggerIndex     int32   `json:"trigger_index"`
	TriggerName      string  `json:"trigger_name"`
	TriggerStartTime float64 `json:"trigger_start_time"`
	TriggerEndTime   float64 `json:"trigger_end_time"`
	GroupNumber      int32   `json:"group_number"`
	IsEmbedded       bool    `json:"is_embedded"`
}

// Tag values stored in discriminator columns.
const (
	PointTiming     = "timing"
	PointDifficulty = "difficulty"
	PointEffect     = "effect"

	ColorCombo  = "combo"
	ColorCustom = "custom"
)

// Ptr returns a pointer to v. It is used to fill nullable columns.
func Ptr[T any](v T) *T {
	return &v
}
