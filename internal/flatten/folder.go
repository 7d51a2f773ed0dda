package flatten

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/beatset/beatset/internal/errors"
	"github.com/beatset/beatset/pkg/types"
)

// FileError records a source file that could not be flattened.
type FileError struct {
	File string
	Err  error
}

func (e FileError) Error() string { return e.File + ": " + e.Err.Error() }

func (e FileError) Unwrap() error { return e.Err }

// FolderResult is the flattened content of one partition folder.
type FolderResult struct {
	FolderID string
	Rows     *types.RowSet
	// Files lists the source files whose rows are in Rows.
	Files []string
	// Assets lists the referenced asset files, relative to the folder,
	// with forward slashes.
	Assets []string
	// Elements is the number of storyboard elements flattened.
	Elements   int
	FileErrors []FileError
}

// Folder flattens every .osu file directly inside dir, each with its
// embedded storyboard, then every .osb file as a standalone storyboard. The
// partition id is the folder name.
//
// A file that fails to parse or flatten is recorded in FileErrors and
// contributes no rows. The folder itself fails when it holds no .osu file
// or when no .osu file could be flattened.
func (f *Flattener) Folder(ctx context.Context, dir string) (*FolderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	folderID := filepath.Base(dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewParseError(errors.CodeUnreadableFile,
			fmt.Sprintf("failed to list %s", dir), err)
	}

	var osuFiles, osbFiles []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".osu":
			osuFiles = append(osuFiles, e.Name())
		case ".osb":
			osbFiles = append(osbFiles, e.Name())
		}
	}
	if len(osuFiles) == 0 {
		return nil, errors.NewParseError(errors.CodeNoBeatmapFiles,
			fmt.Sprintf("%s: no .osu files", folderID), nil)
	}

	res := &FolderResult{FolderID: folderID, Rows: &types.RowSet{}}
	assets := make(map[string]struct{})
	addAsset := func(p string) {
		if p != "" {
			assets[NormalizeAssetName(p)] = struct{}{}
		}
	}

	for _, name := range osuFiles {
		rows, refs, n, err := f.beatmapFile(folderID, filepath.Join(dir, name), name)
		if err != nil {
			f.logger.Debug("skipping beatmap file", zap.String("folder", folderID), zap.String("file", name), zap.Error(err))
			res.FileErrors = append(res.FileErrors, FileError{File: name, Err: err})
			continue
		}
		res.Rows.Append(rows)
		res.Files = append(res.Files, name)
		res.Elements += n
		for _, r := range refs {
			addAsset(r)
		}
	}
	if len(res.Files) == 0 {
		return nil, errors.NewParseError(errors.CodeUnreadableFile,
			fmt.Sprintf("%s: none of %d beatmap files could be flattened", folderID, len(osuFiles)),
			res.FileErrors[0])
	}

	for _, name := range osbFiles {
		rows, refs, n, err := f.storyboardFile(folderID, filepath.Join(dir, name), name)
		if err != nil {
			f.logger.Debug("skipping storyboard file", zap.String("folder", folderID), zap.String("file", name), zap.Error(err))
			res.FileErrors = append(res.FileErrors, FileError{File: name, Err: err})
			continue
		}
		res.Rows.Append(rows)
		res.Files = append(res.Files, name)
		res.Elements += n
		for _, r := range refs {
			addAsset(r)
		}
	}

	for a := range assets {
		res.Assets = append(res.Assets, a)
	}
	sort.Strings(res.Assets)
	return res, nil
}

// beatmapFile flattens one .osu file and its embedded storyboard. A broken
// embedded storyboard is dropped without failing the beatmap.
func (f *Flattener) beatmapFile(folderID, path, name string) (*types.RowSet, []string, int, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, errors.NewParseError(errors.CodeUnreadableFile, "failed to open "+name, err)
	}
	bm, err := f.parser.ParseBeatmap(fh)
	fh.Close()
	if err != nil {
		return nil, nil, 0, errors.NewParseError(errors.CodeMalformedLine, "failed to parse "+name, err)
	}

	rs := &types.RowSet{}
	if err := f.Beatmap(folderID, name, bm, rs); err != nil {
		return nil, nil, 0, err
	}
	refs := []string{bm.AudioFile, bm.BackgroundFile}

	sbRows, sbRefs, n, err := f.storyboardFile(folderID, path, name)
	if err != nil {
		f.logger.Debug("dropping embedded storyboard", zap.String("folder", folderID), zap.String("file", name), zap.Error(err))
		return rs, refs, 0, nil
	}
	rs.Append(sbRows)
	return rs, append(refs, sbRefs...), n, nil
}

// storyboardFile flattens the storyboard of path. Storyboards read from
// .osu files are embedded; .osb files are standalone.
func (f *Flattener) storyboardFile(folderID, path, name string) (*types.RowSet, []string, int, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, errors.NewParseError(errors.CodeUnreadableFile, "failed to open "+name, err)
	}
	sb, err := f.parser.ParseStoryboard(fh)
	fh.Close()
	if err != nil {
		return nil, nil, 0, errors.NewParseError(errors.CodeMalformedLine, "failed to parse storyboard of "+name, err)
	}

	embedded := strings.EqualFold(filepath.Ext(name), ".osu")
	rs := &types.RowSet{}
	n, err := f.Storyboard(folderID, name, embedded, sb, rs)
	if err != nil {
		return nil, nil, 0, err
	}
	var refs []string
	for _, l := range sb.Layers {
		for _, el := range l.Elements {
			refs = append(refs, el.Path)
		}
	}
	return rs, refs, n, nil
}

// NormalizeAssetName turns a path referenced by a beatmap into a clean
// forward-slash relative path.
func NormalizeAssetName(p string) string {
	p = strings.Trim(strings.TrimSpace(p), `"`)
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.TrimPrefix(filepath.ToSlash(filepath.Clean(p)), "./")
}
