package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/banksync/banksync/internal/categorizer"
	"github.com/banksync/banksync/internal/config"
	"github.com/banksync/banksync/internal/exporter"
	"github.com/banksync/banksync/internal/logger"
	"github.com/banksync/banksync/internal/model"
	"github.com/banksync/banksync/internal/pipeline"
)

// loadConfig reads the config file and applies .env and BANKSYNC_* overrides.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("%w (run 'banksync init' to create one)", err)
	}
	if err := cfg.LoadEnv(filepath.Join(filepath.Dir(opts.configPath), ".env")); err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	return cfg, nil
}

func contextWithLogger(ctx context.Context, level string) (context.Context, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := logger.New(level)
	if err != nil {
		return nil, err
	}
	return logger.WithContext(ctx, log), nil
}

// merchantRules returns the built-in catalog merged with user overrides.
func merchantRules(ctx context.Context, path string) (categorizer.Catalog, error) {
	base, err := categorizer.DefaultCatalog()
	if err != nil {
		return nil, err
	}
	overrides, err := categorizer.LoadOverrides(path)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	if len(overrides) == 0 {
		log.Info().Str("path", path).Msg("no merchant overrides")
	} else {
		log.Info().Int("rules", len(overrides)).Str("path", path).Msg("loaded merchant overrides")
	}
	return categorizer.Merge(base, overrides), nil
}

// newExporter builds the exporter for dest. Dry runs never write anywhere.
func newExporter(ctx context.Context, cfg *config.Config, dest config.Destination, source exporter.Source, dryRun bool) (pipeline.Exporter, error) {
	if dryRun {
		return exporter.NewDiscard(source), nil
	}
	switch dest {
	case config.DestinationSheets:
		svc, err := exporter.NewSheetsService(ctx, cfg.Sheets.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return exporter.NewSheets(source, svc, model.SheetSink{
			SpreadsheetID: cfg.Sheets.SpreadsheetID,
			SheetName:     cfg.Sheets.SheetName,
			StartRow:      cfg.Sheets.StartRow,
		}), nil
	default:
		return exporter.NewCSV(source, model.CSVSink{
			Path:          exporter.Filename(cfg.Export.Directory, time.Now()),
			IncludeHeader: cfg.Export.IncludeHeader,
		}), nil
	}
}
