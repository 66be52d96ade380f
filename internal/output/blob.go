package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver
)

// BlobSink writes files to a gocloud blob bucket
type BlobSink struct {
	bucket *blob.Bucket
	url    string
	prefix string
}

// OpenBlobSink opens bucketURL, e.g. file:///tmp/out, mem:// or
// s3://bucket?region=eu-west-2&endpoint=http://localhost:4566&use_path_style=true
func OpenBlobSink(ctx context.Context, bucketURL, prefix string) (*BlobSink, error) {
	if bucketURL == "" {
		return nil, fmt.Errorf("blob URL cannot be empty")
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}

	return NewBlobSink(bucket, bucketURL, prefix), nil
}

// NewBlobSink wraps an already opened bucket
func NewBlobSink(bucket *blob.Bucket, bucketURL, prefix string) *BlobSink {
	return &BlobSink{bucket: bucket, url: bucketURL, prefix: prefix}
}

// Write stores data under prefix+name
func (s *BlobSink) Write(ctx context.Context, name string, data []byte) error {
	key := s.prefix + name

	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: contentType(name)})
	if err != nil {
		return fmt.Errorf("%w: create writer for %s: %v", ErrFileWriteFailed, key, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("%w: write %s: %v", ErrFileWriteFailed, key, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: close writer for %s: %v", ErrFileWriteFailed, key, err)
	}

	return nil
}

// List returns the names below the prefix
func (s *BlobSink) List(ctx context.Context) ([]string, error) {
	var names []string
	iter := s.bucket.List(&blob.ListOptions{Prefix: s.prefix})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", s.url, err)
		}
		if obj.IsDir {
			continue
		}
		names = append(names, strings.TrimPrefix(obj.Key, s.prefix))
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the content of name
func (s *BlobSink) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, s.prefix+name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// URI returns the bucket URL scheme and host joined with the key
func (s *BlobSink) URI(name string) string {
	base := s.url
	if i := strings.Index(base, "?"); i >= 0 {
		base = base[:i]
	}
	return strings.TrimSuffix(base, "/") + "/" + s.prefix + name
}

// Close releases the bucket
func (s *BlobSink) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

func contentType(name string) string {
	if strings.HasSuffix(name, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}
