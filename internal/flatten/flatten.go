// Package flatten turns parsed beatmap and storyboard documents into the
// rows of the twelve dataset tables.
//
// Rows carry no foreign keys. Children point at their parent through
// positional index columns assigned here: hit_objects.index is the object's
// position in the file, and storyboard element_index is a flat counter over
// all layers of one source file, restarted for every (source file,
// embedded) pair.
package flatten

import (
	"io"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/internal/logger"
	"github.com/beatset/beatset/pkg/beatmap"
	"github.com/beatset/beatset/pkg/storyboard"
	"github.com/beatset/beatset/pkg/types"
)

// Parser builds documents from the native text format.
type Parser interface {
	ParseBeatmap(r io.Reader) (*beatmap.Beatmap, error)
	// ParseStoryboard reads the storyboard part of a .osb file or of the
	// Events section of a .osu file.
	ParseStoryboard(r io.Reader) (*storyboard.Storyboard, error)
}

// Flattener converts documents into rows.
type Flattener struct {
	parser Parser
	logger *zap.Logger
}

// Option configures a Flattener.
type Option func(*Flattener)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Flattener) { f.logger = logger.OrNop(l) }
}

// New returns a Flattener reading files through parser.
func New(parser Parser, opts ...Option) *Flattener {
	f := &Flattener{parser: parser, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Beatmap appends the rows of one beatmap file to rs: its metadata row,
// hit objects with their slider data, control points and samples, timing
// points, breaks and colours. A beatmap without hit objects is rejected and
// nothing is appended.
func (f *Flattener) Beatmap(folderID, osuFile string, bm *beatmap.Beatmap, rs *types.RowSet) error {
	if len(bm.HitObjects) == 0 {
		return errors.NewParseError(errors.CodeNoHitObjects, osuFile+": no hit objects", nil)
	}

	rs.Beatmaps = append(rs.Beatmaps, beatmapRow(folderID, osuFile, bm))

	for i := range bm.HitObjects {
		ho := &bm.HitObjects[i]
		idx := int32(i)
		row := types.HitObjectRow{
			FolderID:   folderID,
			OsuFile:    osuFile,
			Index:      idx,
			StartTime:  ho.StartTime,
			ObjectType: ho.Kind.Type().String(),
		}

		switch k := ho.Kind.(type) {
		case *beatmap.Circle:
			row.PosX, row.PosY = truncPos(k.Pos)
			row.NewCombo = k.NewCombo
			row.ComboOffset = k.ComboOffset
		case *beatmap.Slider:
			row.PosX, row.PosY = truncPos(k.Pos)
			row.NewCombo = k.NewCombo
			row.ComboOffset = k.ComboOffset
			if len(k.ControlPoints) > 0 && k.ControlPoints[0].Type != beatmap.PathInherit {
				row.CurveType = types.Ptr(k.ControlPoints[0].Type.String())
			}
			row.Slides = types.Ptr(k.RepeatCount)
			length := 0.0
			if k.ExpectedDist != nil {
				length = *k.ExpectedDist
			}
			row.Length = &length

			rs.SliderData = append(rs.SliderData, types.SliderDataRow{
				FolderID:       folderID,
				OsuFile:        osuFile,
				HitObjectIndex: idx,
				RepeatCount:    k.RepeatCount,
				Velocity:       k.Velocity,
				ExpectedDist:   k.ExpectedDist,
			})
			for j, cp := range k.ControlPoints {
				var pt *string
				if cp.Type != beatmap.PathInherit {
					pt = types.Ptr(cp.Type.String())
				}
				rs.SliderControlPoints = append(rs.SliderControlPoints, types.SliderControlPointRow{
					FolderID:       folderID,
					OsuFile:        osuFile,
					HitObjectIndex: idx,
					PointIndex:     int32(j),
					PosX:           cp.Pos.X,
					PosY:           cp.Pos.Y,
					PathType:       pt,
				})
			}
		case *beatmap.Spinner:
			row.PosX, row.PosY = truncPos(k.Pos)
			row.NewCombo = k.NewCombo
			row.EndTime = types.Ptr(k.Duration)
		case *beatmap.Hold:
			// holds have no y position and never start a combo
			row.PosX = types.Ptr(trunc(k.PosX))
			row.EndTime = types.Ptr(k.Duration)
		default:
			return errors.NewParseError(errors.CodeBadValue, osuFile+": hit object without kind", nil)
		}
		rs.HitObjects = append(rs.HitObjects, row)

		for j, s := range ho.Samples {
			rs.HitSamples = append(rs.HitSamples, sampleRow(folderID, osuFile, idx, int32(j), s))
		}
	}

	for _, tp := range bm.TimingPoints {
		rs.TimingPoints = append(rs.TimingPoints, types.TimingPointRow{
			FolderID:      folderID,
			OsuFile:       osuFile,
			Time:          tp.Time,
			PointType:     types.PointTiming,
			BeatLength:    types.Ptr(tp.BeatLength),
			TimeSignature: types.Ptr(strconv.Itoa(int(tp.TimeSignature))),
		})
	}
	for _, dp := range bm.DifficultyPoints {
		rs.TimingPoints = append(rs.TimingPoints, types.TimingPointRow{
			FolderID:       folderID,
			OsuFile:        osuFile,
			Time:           dp.Time,
			PointType:      types.PointDifficulty,
			SliderVelocity: types.Ptr(dp.SliderVelocity),
		})
	}
	for _, ep := range bm.EffectPoints {
		rs.TimingPoints = append(rs.TimingPoints, types.TimingPointRow{
			FolderID:  folderID,
			OsuFile:   osuFile,
			Time:      ep.Time,
			PointType: types.PointEffect,
			Kiai:      types.Ptr(ep.Kiai),
		})
	}

	for _, b := range bm.Breaks {
		rs.Breaks = append(rs.Breaks, types.BreakRow{
			FolderID:  folderID,
			OsuFile:   osuFile,
			StartTime: b.StartTime,
			EndTime:   b.EndTime,
		})
	}

	for i, c := range bm.ComboColors {
		rs.ComboColors = append(rs.ComboColors, colorRow(folderID, osuFile, int32(i), types.ColorCombo, nil, c))
	}
	for i, c := range bm.CustomColors {
		rs.ComboColors = append(rs.ComboColors, colorRow(folderID, osuFile, int32(i), types.ColorCustom, types.Ptr(c.Name), c.Color))
	}
	return nil
}

func beatmapRow(folderID, osuFile string, bm *beatmap.Beatmap) types.BeatmapRow {
	bookmarks := make([]byte, 0, len(bm.Bookmarks)*6)
	for i, b := range bm.Bookmarks {
		if i > 0 {
			bookmarks = append(bookmarks, ',')
		}
		bookmarks = strconv.AppendInt(bookmarks, int64(b), 10)
	}

	return types.BeatmapRow{
		FolderID:                 folderID,
		OsuFile:                  osuFile,
		FormatVersion:            bm.FormatVersion,
		AudioFile:                bm.AudioFile,
		AudioLeadIn:              bm.AudioLeadIn,
		PreviewTime:              bm.PreviewTime,
		DefaultSampleBank:        int32(bm.DefaultSampleBank),
		DefaultSampleVolume:      bm.DefaultSampleVolume,
		StackLeniency:            bm.StackLeniency,
		Mode:                     int32(bm.Mode),
		LetterboxInBreaks:        bm.LetterboxInBreaks,
		SpecialStyle:             bm.SpecialStyle,
		WidescreenStoryboard:     bm.WidescreenStoryboard,
		EpilepsyWarning:          bm.EpilepsyWarning,
		SamplesMatchPlaybackRate: bm.SamplesMatchPlaybackRate,
		Countdown:                int32(bm.Countdown),
		CountdownOffset:          bm.CountdownOffset,
		Bookmarks:                string(bookmarks),
		DistanceSpacing:          bm.DistanceSpacing,
		BeatDivisor:              bm.BeatDivisor,
		GridSize:                 bm.GridSize,
		TimelineZoom:             bm.TimelineZoom,
		Title:                    bm.Title,
		TitleUnicode:             bm.TitleUnicode,
		Artist:                   bm.Artist,
		ArtistUnicode:            bm.ArtistUnicode,
		Creator:                  bm.Creator,
		Version:                  bm.Version,
		Source:                   bm.Source,
		Tags:                     bm.Tags,
		BeatmapID:                bm.BeatmapID,
		BeatmapSetID:             bm.BeatmapSetID,
		HPDrainRate:              bm.HPDrainRate,
		CircleSize:               bm.CircleSize,
		OverallDifficulty:        bm.OverallDifficulty,
		ApproachRate:             bm.ApproachRate,
		SliderMultiplier:         bm.SliderMultiplier,
		SliderTickRate:           bm.SliderTickRate,
		BackgroundFile:           bm.BackgroundFile,
		AudioPath:                AssetPath(folderID, bm.AudioFile),
		BackgroundPath:           AssetPath(folderID, bm.BackgroundFile),
	}
}

func sampleRow(folderID, osuFile string, hitObject, index int32, s beatmap.HitSample) types.HitSampleRow {
	name := beatmap.SampleName(beatmap.SampleNormal)
	if s.Name != nil {
		name = s.Name
	}
	var suffix *string
	if s.Suffix != 0 {
		suffix = types.Ptr(strconv.Itoa(int(s.Suffix)))
	}
	return types.HitSampleRow{
		FolderID:       folderID,
		OsuFile:        osuFile,
		HitObjectIndex: hitObject,
		SampleIndex:    index,
		Name:           name.String(),
		Bank:           s.Bank.String(),
		Suffix:         suffix,
		Volume:         s.Volume,
	}
}

func colorRow(folderID, osuFile string, index int32, kind string, name *string, c beatmap.Color) types.ComboColorRow {
	return types.ComboColorRow{
		FolderID:   folderID,
		OsuFile:    osuFile,
		ColorIndex: index,
		ColorType:  kind,
		CustomName: name,
		Red:        int32(c.R),
		Green:      int32(c.G),
		Blue:       int32(c.B),
	}
}

// AssetPath returns the dataset-relative path of an asset of a partition,
// or "" when file is empty.
func AssetPath(folderID, file string) string {
	if file == "" {
		return ""
	}
	return AssetPrefix(folderID) + NormalizeAssetName(file)
}

// AssetPrefix returns the dataset-relative directory holding the assets of
// a partition, with a trailing slash.
func AssetPrefix(folderID string) string {
	return "assets/" + folderID + "/"
}

// trunc drops the fractional part of a coordinate, saturating at the int32
// range. Positions are stored as whole pixels.
func trunc(f float32) int32 {
	switch {
	case math.IsNaN(float64(f)):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

func truncPos(p beatmap.Pos) (*int32, *int32) {
	return types.Ptr(trunc(p.X)), types.Ptr(trunc(p.Y))
}
