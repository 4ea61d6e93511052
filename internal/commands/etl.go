package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banksync/banksync/internal/categorizer"
	"github.com/banksync/banksync/internal/config"
	"github.com/banksync/banksync/internal/extractor"
	"github.com/banksync/banksync/internal/feeds"
	"github.com/banksync/banksync/internal/lifecycle"
	"github.com/banksync/banksync/internal/loader"
	"github.com/banksync/banksync/internal/logger"
	"github.com/banksync/banksync/internal/mapper"
	"github.com/banksync/banksync/internal/model"
	"github.com/banksync/banksync/internal/pipeline"
	"github.com/banksync/banksync/internal/store"
	"github.com/banksync/banksync/internal/teller"
	"github.com/banksync/banksync/internal/transformer"
)

type etlOptions struct {
	extractFrom string
	exportTo    string
	dryRun      bool
	verbose     bool
}

func newETLCommand(global *globalOptions) *cobra.Command {
	opts := &etlOptions{}

	cmd := &cobra.Command{
		Use:   "etl",
		Short: "Extract new transactions, load them into the store and export them",
		Long: `Reads every feed for the chosen source, keeps records dated after the
feed's bookmark, categorizes them and inserts them into the store. Transactions
inserted by the run are then exported to the chosen destination.

With --dry-run nothing is written: inserts are logged instead of executed and
the export is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runETL(cmd.Context(), cmd.OutOrStdout(), global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.extractFrom, "extract-from", string(config.SourceCSV), "source to extract from (csv or teller)")
	cmd.Flags().StringVar(&opts.exportTo, "export-to", string(config.DestinationCSV), "destination to export to (csv or sheets)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "read and transform without writing anything")
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, "log every statement skipped by --dry-run")

	return cmd
}

func runETL(ctx context.Context, out io.Writer, global *globalOptions, opts *etlOptions) error {
	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	source := config.Source(opts.extractFrom)
	dest := config.Destination(opts.exportTo)
	if err := cfg.Validate(source, dest); err != nil {
		return err
	}

	ctx, err = contextWithLogger(ctx, cfg.Log.Level)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)

	rules, err := merchantRules(ctx, cfg.Merchants.OverridesPath)
	if err != nil {
		return err
	}

	discovered, err := discoverFeeds(cfg, source)
	if err != nil {
		return err
	}
	if len(discovered) == 0 {
		log.Warn().Str("source", string(source)).Msg("no feeds found, nothing to do")
		return nil
	}

	return lifecycle.Run(ctx, cfg.Pipeline.ShutdownGrace, func(ctx context.Context, td *lifecycle.Teardown) error {
		db, err := store.Open(ctx, cfg.Database.Path)
		if err != nil {
			return err
		}
		td.Register("store", db.Close)
		repo := store.NewRepository(db)

		var fetcher extractor.Fetcher
		if source == config.SourceTeller {
			client, err := teller.New(teller.Config{
				BaseURL:           cfg.Teller.BaseURL,
				CertificatePath:   cfg.Teller.CertificatePath,
				PrivateKeyPath:    cfg.Teller.PrivateKeyPath,
				Timeout:           cfg.Teller.Timeout,
				MaxAttempts:       cfg.Teller.MaxAttempts,
				BackoffBase:       cfg.Teller.BackoffBase,
				RequestsPerSecond: cfg.Teller.RequestsPerSecond,
				Burst:             cfg.Teller.Burst,
			})
			if err != nil {
				return err
			}
			td.Register("teller client", client.Close)
			fetcher = client
		}

		sink := loader.Store(repo)
		if opts.dryRun {
			log.Info().Msg("dry run, no changes will be written")
			sink = store.NewRepository(store.NoOp{Verbose: opts.verbose})
		}

		exp, err := newExporter(ctx, cfg, dest, repo, opts.dryRun)
		if err != nil {
			return err
		}

		mappers := mapper.DefaultRegistry()
		runner := pipeline.New(
			extractor.New(repo, mappers, fetcher, cfg.Teller.PageSize),
			transformer.New(mappers, categorizer.New(rules)),
			loader.New(sink, cfg.Pipeline.BatchSize),
			repo,
			[]pipeline.Exporter{exp},
			cfg.Pipeline.Concurrency,
		)

		report, err := runner.Run(ctx, discovered)
		if err != nil {
			return err
		}
		printReport(out, report)

		if report.Status() == pipeline.StatusCanceled {
			return context.Canceled
		}
		return report.Err()
	})
}

func discoverFeeds(cfg *config.Config, source config.Source) ([]model.Feed, error) {
	if source == config.SourceTeller {
		return feeds.LoadRemote(cfg.Teller.FeedsFile)
	}
	return feeds.Scan(cfg.Import.Directory, cfg.Import.FilePatterns)
}

func printReport(out io.Writer, report *pipeline.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FEED\tEXTRACTED\tTRANSFORMED\tINSERTED\tBOOKMARK\tERROR")
	for _, f := range report.Feeds {
		bookmark := "-"
		if !f.Bookmark.IsZero() {
			bookmark = f.Bookmark.Format(model.DateLayout)
		}
		errText := ""
		if f.Err != nil {
			errText = f.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\n", f.Feed, f.Extracted, f.Transformed, f.Inserted, bookmark, errText)
	}
	_ = w.Flush()

	for _, e := range report.Exports {
		if e.Err != nil {
			fmt.Fprintf(out, "export %s: %v\n", e.Name, e.Err)
		} else {
			fmt.Fprintf(out, "export %s: ok\n", e.Name)
		}
	}
	fmt.Fprintf(out, "run %s: %s, %d inserted in %s\n",
		report.RunID, report.Status(), report.Inserted(), report.Finished.Sub(report.Started).Round(time.Millisecond))
}
