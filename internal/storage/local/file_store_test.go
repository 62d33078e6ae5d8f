package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wayback-archiver/internal/archiver"
	"github.com/JakeFAU/wayback-archiver/internal/cache"
	"github.com/JakeFAU/wayback-archiver/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("MissingPath", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("PathIsDirectory", func(t *testing.T) {
		_, err := local.New(local.Config{Path: t.TempDir()})
		assert.Error(t, err)
	})
}

func TestLoadMissingFileYieldsEmptyCache(t *testing.T) {
	store, err := local.New(local.Config{Path: filepath.Join(t.TempDir(), "results.json")})
	require.NoError(t, err)

	c, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, c.Len())
}

func TestLoadInvalidFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	store, err := local.New(local.Config{Path: path})
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	assert.Error(t, err)
}

func TestCheckpointThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "results.json")
	store, err := local.New(local.Config{Path: path})
	require.NoError(t, err)

	at := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	c := cache.New()
	c.Update("example.com/a", archiver.Snapshot("https://web.archive.org/web/20250501093000/example.com/a", at, false))
	c.Update("example.com/b", archiver.Tombstone(at))

	require.NoError(t, store.Checkpoint(context.Background(), c, false))

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
	assert.Equal(t, "results.json", entries[0].Name())

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com/a", "example.com/b"}, loaded.Keys())

	a, _ := loaded.Lookup("example.com/a")
	assert.Equal(t, "https://web.archive.org/web/20250501093000/example.com/a", a.SnapshotURL())
	assert.True(t, a.LastArchived.Equal(at))
}

func TestCheckpointOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	store, err := local.New(local.Config{Path: path})
	require.NoError(t, err)

	c := cache.New()
	c.Update("example.com/a", archiver.Tombstone(time.Now()))
	require.NoError(t, store.Checkpoint(context.Background(), c, false))

	c.Update("example.com/b", archiver.Tombstone(time.Now()))
	require.NoError(t, store.Checkpoint(context.Background(), c, true))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
}

func TestCheckpointHonoursCancelledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	store, err := local.New(local.Config{Path: path})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = store.Checkpoint(ctx, cache.New(), false)
	require.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
