package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/wayback-archiver/internal/config"
)

// archiveFlags map CLI flags onto configuration keys.
var archiveFlags = map[string]string{
	"out":              "cache.path",
	"merge":            "cache.merge",
	"backend":          "cache.backend",
	"checkpoint-every": "cache.checkpoint_every",
	"status-addr":      "server.addr",
}

// newArchiveCmd creates and configures the 'archive' subcommand.
func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archives every URL read from the input",
		Long: `Reads URLs (one per line; blank lines and lines starting with # are ignored)
from --input or standard input and resolves each to a recent Wayback Machine
snapshot. Without --out the results are printed to standard output at the end.`,
		Args: cobra.NoArgs,
		RunE: runArchiveCommand,
	}
	cmd.Flags().String("input", "-", "file to read URLs from (- for standard input)")
	cmd.Flags().String("out", "", "result file to load and checkpoint to")
	cmd.Flags().Bool("merge", true, "load prior results from the destination and skip recent ones")
	cmd.Flags().String("backend", "", "checkpoint store: local, gcs, postgres or stdout")
	cmd.Flags().Int("checkpoint-every", 100, "URLs processed between checkpoints")
	cmd.Flags().String("status-addr", "", "address for the status server (disabled when empty)")
	return cmd
}

func runArchiveCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	input, closeInput, err := openInput(cmd)
	if err != nil {
		return err
	}
	defer closeInput()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// After the first signal a second one terminates the process immediately.
	context.AfterFunc(ctx, stop)

	runner, err := newRunner(ctx, cfg, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	runErr := runner.Run(ctx, input)
	closeErr := runner.Close()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("archive: %w", runErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close: %w", closeErr)
	}
	return nil
}

// loadConfig layers changed flags over the config file, environment and defaults.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	for flag, key := range archiveFlags {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return config.Config{}, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return config.FromViper(v)
}

func openInput(cmd *cobra.Command) (io.Reader, func(), error) {
	path, err := cmd.Flags().GetString("input")
	if err != nil {
		return nil, nil, fmt.Errorf("read --input: %w", err)
	}
	if path == "" || path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
