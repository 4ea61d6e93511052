package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/banksync/banksync/internal/buildinfo"
	"github.com/banksync/banksync/internal/config"
	"github.com/banksync/banksync/internal/pipeline"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitFatal    = 1
	ExitPartial  = 2
	ExitCanceled = 130
)

type globalOptions struct {
	configPath string
	logLevel   string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "banksync",
		Short:   "Incrementally sync bank transactions into a local store",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", config.FileName, "path to banksync.yaml")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newETLCommand(opts))
	rootCmd.AddCommand(newExportCommand(opts))

	return rootCmd
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitCanceled
	case errors.Is(err, pipeline.ErrPartialFailure):
		return ExitPartial
	default:
		return ExitFatal
	}
}
