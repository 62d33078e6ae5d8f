// Package local implements a checkpoint store backed by a JSON file on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/JakeFAU/wayback-archiver/internal/cache"
)

// Config captures the parameters for the local file store.
type Config struct {
	// Path is the result file. Its parent directory is created on first write.
	Path string `mapstructure:"path" yaml:"path"`
}

// FileStore reads and writes the result cache as a single JSON document.
type FileStore struct {
	path string
}

// New creates a file-backed store.
func New(cfg Config) (*FileStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("path is required")
	}
	info, err := os.Stat(cfg.Path)
	if err == nil && info.IsDir() {
		return nil, fmt.Errorf("path %q is a directory", cfg.Path)
	}
	return &FileStore{path: filepath.Clean(cfg.Path)}, nil
}

// Name implements storage.Provider.
func (s *FileStore) Name() string { return "local" }

// Path returns the result file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the result file. A missing file yields an empty cache.
func (s *FileStore) Load(_ context.Context) (*cache.Cache, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cache.New(), nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	c, err := cache.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}
	return c, nil
}

// Checkpoint writes the whole cache to a temporary file in the same directory and renames it
// over the destination, so readers never observe a partial document.
func (s *FileStore) Checkpoint(ctx context.Context, c *cache.Cache, _ bool) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("checkpoint %s: %w", s.path, err)
	}
	data, err := cache.Marshal(c)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}
	tmp := filepath.Join(dir, "."+filepath.Base(s.path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}
