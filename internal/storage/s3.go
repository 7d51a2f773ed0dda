package storage

import (
	"context"
	stderrors "errors"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jpillora/backoff"
	"golang.org/x/sync/errgroup"

	"github.com/beatset/beatset/internal/errors"
)

// S3Storage keeps dataset tables and assets in an S3 bucket, or any store
// speaking the S3 API.
type S3Storage struct {
	client  *s3.Client
	bucket  string
	prefix  string
	part    MultipartUploadConfig
	retries int
}

// S3Config configures an S3Storage.
type S3Config struct {
	Region string
	// Endpoint overrides the AWS endpoint, e.g. for MinIO.
	Endpoint     string
	UsePathStyle bool
	// Prefix is prepended to every object key.
	Prefix    string
	Multipart MultipartUploadConfig
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{
		Region:    "us-east-1",
		Multipart: DefaultMultipartConfig(),
	}
}

// NewS3Storage loads the AWS default credential chain and returns a store
// for bucket.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryConfig, errors.CodeInvalidConfig, "failed to load AWS config", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StorageWithClient(client, bucket, cfg), nil
}

// NewS3StorageWithClient wraps an existing client.
func NewS3StorageWithClient(client *s3.Client, bucket string, cfg S3Config) *S3Storage {
	part := cfg.Multipart
	def := DefaultMultipartConfig()
	if part.PartSize <= 0 {
		part.PartSize = def.PartSize
	}
	if part.Concurrency <= 0 {
		part.Concurrency = def.Concurrency
	}
	return &S3Storage{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		part:    part,
		retries: 3,
	}
}

func (s *S3Storage) key(objectPath string) (string, error) {
	clean, err := CleanObjectPath(objectPath)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return clean, nil
	}
	return s.prefix + "/" + clean, nil
}

// contentType guesses from the extension. Beatmap and storyboard documents
// are plain text; unknown extensions stay unset.
func contentType(objectPath string) string {
	switch ext := strings.ToLower(path.Ext(objectPath)); ext {
	case ".osu", ".osb":
		return "text/plain; charset=utf-8"
	case ".parquet":
		return "application/vnd.apache.parquet"
	default:
		return mime.TypeByExtension(ext)
	}
}

// Upload sends a file in one request, or as a multipart upload when it is
// larger than one part.
func (s *S3Storage) Upload(ctx context.Context, localPath, objectPath string) error {
	key, err := s.key(objectPath)
	if err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed, "upload "+objectPath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed, "upload "+objectPath, err)
	}

	var ctype *string
	if t := contentType(objectPath); t != "" {
		ctype = aws.String(t)
	}
	if info.Size() > s.part.PartSize {
		err = s.multipart(ctx, f, info.Size(), key, ctype)
	} else {
		err = s.retry(ctx, func() error {
			_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
				Bucket:        aws.String(s.bucket),
				Key:           aws.String(key),
				Body:          io.NewSectionReader(f, 0, info.Size()),
				ContentLength: aws.Int64(info.Size()),
				ContentType:   ctype,
			})
			return err
		})
	}
	if err != nil {
		return errors.NewStorageError(errors.CodeUploadFailed, "upload "+objectPath, err)
	}
	return nil
}

// multipart uploads the parts of f concurrently. Any failure aborts the
// upload so no partial object is left behind.
func (s *S3Storage) multipart(ctx context.Context, f *os.File, size int64, key string, ctype *string) error {
	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: ctype,
	})
	if err != nil {
		return err
	}
	id := created.UploadId
	abort := func() {
		_, _ = s.client.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(key),
			UploadId: id,
		})
	}

	n := int((size + s.part.PartSize - 1) / s.part.PartSize)
	parts := make([]types.CompletedPart, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.part.Concurrency)
	for i := 0; i < n; i++ {
		i := i
		off := int64(i) * s.part.PartSize
		length := min(s.part.PartSize, size-off)
		num := aws.Int32(int32(i + 1))
		g.Go(func() error {
			return s.retry(gctx, func() error {
				out, err := s.client.UploadPart(gctx, &s3.UploadPartInput{
					Bucket:        aws.String(s.bucket),
					Key:           aws.String(key),
					UploadId:      id,
					PartNumber:    num,
					Body:          io.NewSectionReader(f, off, length),
					ContentLength: aws.Int64(length),
				})
				if err != nil {
					return err
				}
				parts[i] = types.CompletedPart{ETag: out.ETag, PartNumber: num}
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		abort()
		return err
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        id,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		abort()
	}
	return err
}

// Download writes the object to a temporary file next to localPath and
// renames it into place, so readers never see a half written table.
func (s *S3Storage) Download(ctx context.Context, objectPath, localPath string) error {
	key, err := s.key(objectPath)
	if err != nil {
		return err
	}
	fail := func(err error) error {
		return errors.NewStorageError(errors.CodeDownloadFailed, "download "+objectPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fail(err)
	}

	tmp := localPath + ".part"
	err = s.retry(ctx, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var nsk *types.NoSuchKey
			if stderrors.As(err, &nsk) {
				return ErrObjectNotFound
			}
			return err
		}
		defer out.Body.Close()
		f, err := os.Create(tmp)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, out.Body); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		os.Remove(tmp)
		if stderrors.Is(err, ErrObjectNotFound) {
			return errors.NewStorageError(errors.CodeObjectNotFound, "object not found: "+objectPath, nil)
		}
		return fail(err)
	}
	if err := os.Rename(tmp, localPath); err != nil {
		os.Remove(tmp)
		return fail(err)
	}
	return nil
}

// Delete removes an object. S3 treats a missing key as deleted.
func (s *S3Storage) Delete(ctx context.Context, objectPath string) error {
	key, err := s.key(objectPath)
	if err != nil {
		return err
	}
	err = s.retry(ctx, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		return errors.NewStorageError(errors.CodeDeleteFailed, "delete "+objectPath, err)
	}
	return nil
}

// Exists issues a HEAD request for the object.
func (s *S3Storage) Exists(ctx context.Context, objectPath string) (bool, error) {
	key, err := s.key(objectPath)
	if err != nil {
		return false, err
	}
	found := false
	err = s.retry(ctx, func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		var nf *types.NotFound
		switch {
		case err == nil:
			found = true
		case stderrors.As(err, &nf):
			found = false
		default:
			return err
		}
		return nil
	})
	if err != nil {
		return false, errors.NewStorageError(errors.CodeDownloadFailed, "stat "+objectPath, err)
	}
	return found, nil
}

// ListObjects pages through the keys under prefix and returns them relative
// to the configured key prefix.
func (s *S3Storage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	full := ""
	if prefix != "" {
		clean, err := CleanObjectPath(prefix)
		if err != nil {
			return nil, err
		}
		full = clean
		if strings.HasSuffix(prefix, "/") {
			full += "/"
		}
	}
	if s.prefix != "" {
		full = s.prefix + "/" + full
	}

	var keys []string
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(full),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, errors.NewStorageError(errors.CodeDownloadFailed, "list "+prefix, err)
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			if s.prefix != "" {
				k = strings.TrimPrefix(k, s.prefix+"/")
			}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// retry runs op up to s.retries extra times with jittered exponential
// backoff. Missing objects and cancellation are returned at once.
func (s *S3Storage) retry(ctx context.Context, op func() error) error {
	b := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op()
		if err == nil || stderrors.Is(err, ErrObjectNotFound) || int(b.Attempt()) >= s.retries {
			return err
		}
		t := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
