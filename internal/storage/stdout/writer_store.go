// Package stdout implements the "no destination" sink: results are printed once at the end of
// a run and nothing is loaded.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/JakeFAU/wayback-archiver/internal/cache"
)

// Store writes the final result document to a writer.
type Store struct {
	w io.Writer
}

// New creates a store writing to w, or to os.Stdout when w is nil.
func New(w io.Writer) *Store {
	if w == nil {
		w = os.Stdout
	}
	return &Store{w: w}
}

// Name implements storage.Provider.
func (s *Store) Name() string { return "stdout" }

// Load always returns an empty cache.
func (s *Store) Load(_ context.Context) (*cache.Cache, error) {
	return cache.New(), nil
}

// Checkpoint prints the document on the final call and ignores intermediate ones.
func (s *Store) Checkpoint(_ context.Context, c *cache.Cache, final bool) error {
	if !final {
		return nil
	}
	data, err := cache.Marshal(c)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
