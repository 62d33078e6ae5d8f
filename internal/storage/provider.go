// Package storage defines where the result cache is loaded from and checkpointed to.
// This abstraction keeps the pipeline independent of the destination (a local file, a Cloud
// Storage object, a Postgres table or standard output).
package storage

import (
	"context"
	"errors"

	"github.com/JakeFAU/wayback-archiver/internal/cache"
)

// ErrNotConfigured is returned when a provider is used without its required settings.
var ErrNotConfigured = errors.New("storage provider is not configured")

// Provider persists the result cache.
type Provider interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Load returns the previously persisted cache. A missing source yields an empty cache.
	Load(ctx context.Context) (*cache.Cache, error)
	// Checkpoint persists the cache. final is set on the last call of a run.
	Checkpoint(ctx context.Context, c *cache.Cache, final bool) error
}

// NoOpProvider discards every checkpoint and always loads an empty cache.
type NoOpProvider struct{}

// Name implements Provider.
func (NoOpProvider) Name() string { return "noop" }

// Load implements Provider.
func (NoOpProvider) Load(context.Context) (*cache.Cache, error) { return cache.New(), nil }

// Checkpoint implements Provider.
func (NoOpProvider) Checkpoint(context.Context, *cache.Cache, bool) error { return nil }
