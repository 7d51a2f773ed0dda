package app

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/beatset/beatset/internal/storage"
	"github.com/beatset/beatset/internal/zonemap"
	"github.com/beatset/beatset/pkg/types"
)

// remotePrefix holds the table files of a dataset kept in object storage.
const remotePrefix = "dataset/"

// tableFiles returns the file names of every table and its sidecar.
func tableFiles() []string {
	names := make([]string, 0, 2*len(types.Tables))
	for _, t := range types.Tables {
		names = append(names, t.FileName(), t.FileName()+zonemap.Suffix)
	}
	return names
}

// pushTables uploads the committed table files in dir. A sidecar missing
// locally is removed remotely so it cannot be paired with a newer file.
func (a *App) pushTables(ctx context.Context, dir string) (int, error) {
	n := 0
	for _, name := range tableFiles() {
		local := filepath.Join(dir, name)
		if _, err := os.Stat(local); os.IsNotExist(err) {
			if strings.HasSuffix(name, zonemap.Suffix) {
				if err := a.assets.Delete(ctx, remotePrefix+name); err != nil {
					return n, err
				}
			}
			continue
		}
		if err := a.assets.Upload(ctx, local, remotePrefix+name); err != nil {
			return n, err
		}
		n++
	}
	a.logger.Info("pushed dataset", zap.Int("files", n))
	return n, nil
}

// pullTables downloads the remote table files into dir, replacing local
// copies. The beatmaps table is fetched first.
func (a *App) pullTables(ctx context.Context, dir string) (int, error) {
	objects, err := a.assets.ListObjects(ctx, remotePrefix)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool)
	for _, name := range tableFiles() {
		known[remotePrefix+name] = true
	}

	var paths []string
	var priority []int
	for _, obj := range objects {
		if !known[obj] {
			continue
		}
		os.Remove(filepath.Join(dir, strings.TrimPrefix(obj, remotePrefix)))
		paths = append(paths, obj)
		if strings.HasPrefix(obj, remotePrefix+types.TableBeatmaps.FileName()) {
			priority = append(priority, 0)
		} else {
			priority = append(priority, 1)
		}
	}
	if len(paths) == 0 {
		return 0, nil
	}

	downloader := storage.NewBatchDownloader(a.assets, a.cfg.Reconstruct.Concurrency, dir)
	res, err := downloader.Download(ctx, &storage.BatchRequest{
		ObjectPaths: paths,
		Priority:    priority,
		TrimPrefix:  remotePrefix,
	})
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		failed := make([]string, 0, len(res.Errors))
		for obj := range res.Errors {
			failed = append(failed, obj)
		}
		sort.Strings(failed)
		var errs error
		for _, obj := range failed {
			errs = multierr.Append(errs, res.Errors[obj])
		}
		return res.Downloads, errs
	}
	a.logger.Info("pulled dataset", zap.Int("files", res.Downloads), zap.String("dir", dir))
	return res.Downloads, nil
}
