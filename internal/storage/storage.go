// Package storage moves dataset files and beatmap assets between the local
// filesystem and an object store. Object paths always use forward slashes
// and are relative to the store root.
package storage

import (
	"context"
	"path"
	"strings"

	"github.com/beatset/beatset/internal/errors"
)

// Sentinel errors, matched with errors.Is on category and code.
var (
	ErrObjectNotFound = errors.NewStorageError(errors.CodeObjectNotFound, "object not found", nil)
	ErrInvalidPath    = errors.NewStorageError(errors.CodeInvalidPath, "invalid object path", nil)
)

// ObjectStorage abstracts the asset and dataset store.
// Implementations are LocalStorage and S3Storage.
type ObjectStorage interface {
	// Upload copies the local file at localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to localPath, creating parent directories.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether objectPath exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns the paths of all objects under prefix, sorted.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// MultipartUploadConfig controls how large table files are split on upload.
type MultipartUploadConfig struct {
	// PartSize is the size of each part in bytes. Files up to one part are
	// sent with a single request.
	PartSize int64
	// Concurrency bounds the parts in flight for one file.
	Concurrency int
}

// DefaultMultipartConfig returns 8MB parts, four at a time.
func DefaultMultipartConfig() MultipartUploadConfig {
	return MultipartUploadConfig{
		PartSize:    8 << 20,
		Concurrency: 4,
	}
}

// CleanObjectPath normalizes an object path and rejects paths that are
// absolute or escape the store root.
func CleanObjectPath(p string) (string, error) {
	p = strings.ReplaceAll(p, `\`, "/")
	if p == "" || strings.HasPrefix(p, "/") {
		return "", errors.NewStorageError(errors.CodeInvalidPath, "invalid object path "+p, nil)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", errors.NewStorageError(errors.CodeInvalidPath, "invalid object path "+p, nil)
	}
	return clean, nil
}
