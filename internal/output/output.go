// Package output writes generated file pairs to a local directory, S3 or any gocloud blob bucket.
package output

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrFileWriteFailed is returned when a sink cannot store a file
var ErrFileWriteFailed = errors.New("file write failed")

// Sink stores generated files
type Sink interface {
	// Write stores data under name, replacing any existing file
	Write(ctx context.Context, name string, data []byte) error

	// URI returns the canonical URI of name, e.g. file:///path or s3://bucket/key
	URI(name string) string

	// Close releases any resources
	Close() error
}

// Source reads files back for verification
type Source interface {
	// List returns every file name, sorted
	List(ctx context.Context) ([]string, error)

	// Read returns the content of name
	Read(ctx context.Context, name string) ([]byte, error)

	Close() error
}

// Names returns the metadata and data file names for sequence seq of batch
func Names(batch string, seq int) (metadataName string, dataName string) {
	base := fmt.Sprintf("%s.%04d.json", batch, seq)
	return base + ".encryption.json", base + ".gz.enc"
}

// Config selects and configures a sink
type Config struct {
	Type   string // local | s3 | blob
	Dir    string
	URL    string
	Prefix string // blob key prefix
	S3     S3Config
}

// New creates the sink described by cfg
func New(ctx context.Context, cfg Config) (Sink, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "local":
		return NewLocalSink(cfg.Dir)
	case "s3":
		return NewS3Sink(ctx, &cfg.S3)
	case "blob":
		return OpenBlobSink(ctx, cfg.URL, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown sink type: %s", cfg.Type)
	}
}

// OpenSource opens dirOrURL for reading. Anything containing "://" is opened as a blob URL.
func OpenSource(ctx context.Context, dirOrURL string) (Source, error) {
	if strings.Contains(dirOrURL, "://") {
		return OpenBlobSink(ctx, dirOrURL, "")
	}
	return NewLocalSink(dirOrURL)
}
