package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/beatset/beatset/internal/errors"
)

// BatchDownloader coordinates parallel downloads from object storage into a
// local directory. Objects already present locally are not fetched again.
type BatchDownloader struct {
	storage     ObjectStorage
	concurrency int
	dir         string
}

// BatchRequest specifies which objects to download with optional priorities.
type BatchRequest struct {
	ObjectPaths []string
	Priority    []int // 0=critical, 1=prefetch
	// TrimPrefix is removed from each object path to form its local path
	// under the downloader's directory.
	TrimPrefix string
}

// BatchResult contains the outcome of a batch download operation.
type BatchResult struct {
	LocalPaths map[string]string
	Errors     map[string]error
	CacheHits  int
	Downloads  int
}

// NewBatchDownloader creates a new batch downloader writing under dir.
func NewBatchDownloader(storage ObjectStorage, concurrency int, dir string) *BatchDownloader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchDownloader{
		storage:     storage,
		concurrency: concurrency,
		dir:         dir,
	}
}

// Download downloads multiple objects in parallel with priority ordering.
// Per-object failures are reported in the result; the returned error is
// only set for a malformed request.
func (b *BatchDownloader) Download(ctx context.Context, req *BatchRequest) (*BatchResult, error) {
	result := &BatchResult{
		LocalPaths: make(map[string]string),
		Errors:     make(map[string]error),
	}
	if len(req.ObjectPaths) == 0 {
		return result, nil
	}

	priority := req.Priority
	if len(priority) == 0 {
		priority = make([]int, len(req.ObjectPaths))
	} else if len(priority) != len(req.ObjectPaths) {
		return nil, fmt.Errorf("priority array length must match object paths count")
	}

	type pathWithPriority struct {
		path      string
		priority  int
		localPath string
	}
	paths := make([]pathWithPriority, 0, len(req.ObjectPaths))
	for i, p := range req.ObjectPaths {
		local, err := b.localPath(p, req.TrimPrefix)
		if err != nil {
			result.Errors[p] = err
			continue
		}
		paths = append(paths, pathWithPriority{path: p, priority: priority[i], localPath: local})
	}
	sort.SliceStable(paths, func(i, j int) bool {
		return paths[i].priority < paths[j].priority
	})

	var downloadQueue []pathWithPriority
	for _, p := range paths {
		if info, err := os.Stat(p.localPath); err == nil && !info.IsDir() {
			result.LocalPaths[p.path] = p.localPath
			result.CacheHits++
			continue
		}
		downloadQueue = append(downloadQueue, p)
	}

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range downloadQueue {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.Errors[p.path] = err
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(path, local string) {
			defer sem.Release(1)
			defer wg.Done()

			if err := b.storage.Download(ctx, path, local); err != nil {
				mu.Lock()
				result.Errors[path] = err
				mu.Unlock()
				return
			}

			mu.Lock()
			result.LocalPaths[path] = local
			result.Downloads++
			mu.Unlock()
		}(p.path, p.localPath)
	}

	wg.Wait()
	return result, nil
}

// localPath maps an object path to a file under the downloader's
// directory, keeping its relative layout.
func (b *BatchDownloader) localPath(objectPath, trim string) (string, error) {
	clean, err := CleanObjectPath(objectPath)
	if err != nil {
		return "", err
	}
	rel := clean
	if trim != "" {
		rel = strings.TrimPrefix(clean, strings.TrimSuffix(trim, "/")+"/")
		if rel == clean && strings.TrimSuffix(trim, "/") != "" {
			return "", errors.NewStorageError(errors.CodeInvalidPath,
				fmt.Sprintf("object %s is outside %s", objectPath, trim), nil)
		}
	}
	return filepath.Join(b.dir, filepath.FromSlash(rel)), nil
}

// UploadTree uploads every regular file under dir to prefix/<relative
// path>, skipping files for which skip returns true. It returns the number
// of files and bytes uploaded.
func UploadTree(ctx context.Context, store ObjectStorage, dir, prefix string, skip func(rel string) bool) (int, int64, error) {
	var files int
	var size int64
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if skip != nil && skip(rel) {
			return nil
		}
		if err := store.Upload(ctx, path, strings.TrimSuffix(prefix, "/")+"/"+rel); err != nil {
			return err
		}
		files++
		size += info.Size()
		return nil
	})
	return files, size, err
}
