package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wayback-archiver/internal/config"
)

type fakeRunner struct {
	input  string
	runErr error
	closed bool
}

func (f *fakeRunner) Run(_ context.Context, input io.Reader) error {
	data, err := io.ReadAll(input)
	if err != nil {
		return err
	}
	f.input = string(data)
	return f.runErr
}

func (f *fakeRunner) Close() error {
	f.closed = true
	return nil
}

// withFakeRunner swaps the application factory for the duration of a test.
func withFakeRunner(t *testing.T, runner *fakeRunner) *config.Config {
	t.Helper()

	var got config.Config
	orig := newRunner
	newRunner = func(_ context.Context, cfg config.Config, _ io.Writer) (Runner, error) {
		got = cfg
		return runner, nil
	}
	t.Cleanup(func() {
		newRunner = orig
		cfgFile = ""
	})
	return &got
}

func execute(t *testing.T, stdin string, args ...string) error {
	t.Helper()

	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(bytes.NewBufferString(stdin))
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.Execute()
}

func TestArchiveReadsStdinWithDefaults(t *testing.T) {
	runner := &fakeRunner{}
	cfg := withFakeRunner(t, runner)

	require.NoError(t, execute(t, "example.com/a\n", "archive"))

	assert.Equal(t, "example.com/a\n", runner.input)
	assert.True(t, runner.closed)
	assert.Equal(t, config.BackendStdout, cfg.Cache.Backend)
	assert.True(t, cfg.Cache.Merge)
	assert.Equal(t, 100, cfg.Cache.CheckpointEvery)
	assert.Empty(t, cfg.Server.Addr)
}

func TestArchiveFlagsOverrideConfig(t *testing.T) {
	runner := &fakeRunner{}
	cfg := withFakeRunner(t, runner)

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "urls.txt")
	require.NoError(t, os.WriteFile(inputPath, []byte("example.com/x\nexample.com/y\n"), 0o600))
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("cache:\n  checkpoint_every: 7\n  merge: true\n"), 0o600))
	out := filepath.Join(dir, "results.json")

	require.NoError(t, execute(t, "",
		"archive",
		"--config", configPath,
		"--input", inputPath,
		"--out", out,
		"--merge=false",
		"--status-addr", "127.0.0.1:9000",
	))

	assert.Equal(t, "example.com/x\nexample.com/y\n", runner.input)
	assert.Equal(t, config.BackendLocal, cfg.Cache.Backend)
	assert.Equal(t, out, cfg.Cache.Path)
	assert.False(t, cfg.Cache.Merge)
	assert.Equal(t, 7, cfg.Cache.CheckpointEvery, "unset flags leave the config file value")
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
}

func TestArchiveCheckpointFlag(t *testing.T) {
	cfg := withFakeRunner(t, &fakeRunner{})

	require.NoError(t, execute(t, "", "archive", "--checkpoint-every", "5"))
	assert.Equal(t, 5, cfg.Cache.CheckpointEvery)
}

func TestArchiveRejectsInvalidConfig(t *testing.T) {
	withFakeRunner(t, &fakeRunner{})

	err := execute(t, "", "archive", "--checkpoint-every", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.checkpoint_every")
}

func TestArchiveMissingInputFile(t *testing.T) {
	withFakeRunner(t, &fakeRunner{})

	err := execute(t, "", "archive", "--input", filepath.Join(t.TempDir(), "nope.txt"))
	require.ErrorContains(t, err, "open input")
}

func TestArchivePropagatesRunFailure(t *testing.T) {
	runner := &fakeRunner{runErr: errors.New("checkpoint: disk full")}
	withFakeRunner(t, runner)

	err := execute(t, "example.com/a\n", "archive")
	require.ErrorContains(t, err, "disk full")
	assert.True(t, runner.closed)
}

func TestArchiveCancellationIsNotAnError(t *testing.T) {
	withFakeRunner(t, &fakeRunner{runErr: context.Canceled})

	require.NoError(t, execute(t, "", "archive"))
}
