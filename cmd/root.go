// Package cmd defines and implements the CLI commands for the wayback-archiver executable.
package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-archiver/internal/app"
	"github.com/JakeFAU/wayback-archiver/internal/config"
	"github.com/JakeFAU/wayback-archiver/internal/logging"
)

var cfgFile string

// Runner is the part of app.App that commands use. It allows tests to inject a fake run.
type Runner interface {
	Run(ctx context.Context, input io.Reader) error
	Close() error
}

// newRunner is the application factory. It's a variable so tests can replace it.
var newRunner = func(ctx context.Context, cfg config.Config, stdout io.Writer) (Runner, error) {
	return app.Build(ctx, cfg, app.Options{Stdout: stdout})
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wayback-archiver",
		Short: "Archives lists of URLs in the Wayback Machine.",
		Long: `wayback-archiver reads URLs, one per line, and makes sure each has a recent
snapshot in the Internet Archive's Wayback Machine, requesting a new capture
only when no recent one exists. Results are checkpointed so interrupted runs
can resume.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.AddCommand(newArchiveCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logger, lerr := logging.New(false, "")
		if lerr != nil {
			logger = zap.NewExample()
		}
		logger.Fatal("Command execution failed", zap.Error(err))
	}
}
