// Package local implements the filesystem blob store that produces the backup
// directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the backup root. It is created on the first write.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes mirrored files under a base directory.
type BlobStore struct {
	baseDir string
}

// New validates the base directory. A missing directory is fine; a path that
// exists and is not a directory is rejected. Nothing is created until the
// first PutObject, so a run that stores nothing leaves no trace.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, errors.New("base directory is required")
	}
	baseDir, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	info, err := os.Stat(baseDir)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("base directory %s is not a directory", baseDir)
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("stat base directory: %w", err)
	}
	return &BlobStore{baseDir: baseDir}, nil
}

// BaseDir returns the absolute backup root.
func (s *BlobStore) BaseDir() string {
	return s.baseDir
}

// PutObject writes data to the slash-separated path under the base directory,
// creating parent directories, and returns a file:// URI. Existing files are
// overwritten.
func (s *BlobStore) PutObject(ctx context.Context, path string, _ string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path is required")
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(path))
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}

	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}
	if err := os.WriteFile(fullPath, byteData, 0o600); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return "file://" + filepath.ToSlash(fullPath), nil
}
