package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/banksync/banksync/internal/config"
	"github.com/banksync/banksync/internal/lifecycle"
	"github.com/banksync/banksync/internal/logger"
	"github.com/banksync/banksync/internal/store"
)

type exportOptions struct {
	sinceID  int64
	exportTo string
}

func newExportCommand(global *globalOptions) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored transactions with an id greater than --since-id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), cmd.OutOrStdout(), global, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.sinceID, "since-id", 0, "export transactions with an id greater than this")
	cmd.Flags().StringVar(&opts.exportTo, "export-to", string(config.DestinationCSV), "destination to export to (csv or sheets)")

	return cmd
}

func runExport(ctx context.Context, out io.Writer, global *globalOptions, opts *exportOptions) error {
	if opts.sinceID < 0 {
		return fmt.Errorf("--since-id must not be negative, got %d", opts.sinceID)
	}
	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	dest := config.Destination(opts.exportTo)
	if err := cfg.ValidateDestination(dest); err != nil {
		return err
	}

	ctx, err = contextWithLogger(ctx, cfg.Log.Level)
	if err != nil {
		return err
	}

	return lifecycle.Run(ctx, cfg.Pipeline.ShutdownGrace, func(ctx context.Context, td *lifecycle.Teardown) error {
		db, err := store.Open(ctx, cfg.Database.Path)
		if err != nil {
			return err
		}
		td.Register("store", db.Close)

		exp, err := newExporter(ctx, cfg, dest, store.NewRepository(db), false)
		if err != nil {
			return err
		}
		log := logger.FromContext(ctx)
		log.Info().Str("exporter", exp.Name()).Int64("since_id", opts.sinceID).Msg("exporting")
		if err := exp.Export(ctx, opts.sinceID); err != nil {
			return fmt.Errorf("export %s: %w", exp.Name(), err)
		}
		fmt.Fprintf(out, "export %s: ok\n", exp.Name())
		return nil
	})
}
