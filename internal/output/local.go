package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalSink writes files into a directory
type LocalSink struct {
	baseDir string
}

// NewLocalSink creates the directory if it is missing
func NewLocalSink(baseDir string) (*LocalSink, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("output directory cannot be empty")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create directory %s: %v", ErrFileWriteFailed, baseDir, err)
	}

	return &LocalSink{baseDir: baseDir}, nil
}

// Write stores data using a temp file and rename, so a crash never leaves a partial file
func (s *LocalSink) Write(_ context.Context, name string, data []byte) error {
	path := filepath.Join(s.baseDir, name)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("%w: write temp file %s: %v", ErrFileWriteFailed, tempPath, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("%w: rename %s to %s: %v", ErrFileWriteFailed, tempPath, path, err)
	}

	return nil
}

// List returns the regular files in the directory
func (s *LocalSink) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", s.baseDir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && !strings.HasSuffix(entry.Name(), ".tmp") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the content of name
func (s *LocalSink) Read(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, name))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// URI returns the canonical URI for the given name
func (s *LocalSink) URI(name string) string {
	absPath, err := filepath.Abs(filepath.Join(s.baseDir, name))
	if err != nil {
		absPath = filepath.Join(s.baseDir, name)
	}
	return "file://" + absPath
}

// Close is a no-op for local storage
func (s *LocalSink) Close() error {
	return nil
}
