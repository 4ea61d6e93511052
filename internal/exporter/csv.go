package exporter

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banksync/banksync/internal/logger"
	"github.com/banksync/banksync/internal/model"
)

// CSV appends exported transactions to a local file.
type CSV struct {
	source Source
	sink   model.CSVSink
}

// NewCSV creates a CSV exporter for sink.
func NewCSV(source Source, sink model.CSVSink) *CSV {
	return &CSV{source: source, sink: sink}
}

// Name identifies the exporter in logs.
func (c *CSV) Name() string { return "csv" }

// Export appends every transaction stored after sinceID. The file and its
// parent directories are created on the first row; a new file gets the header
// when IncludeHeader is set.
func (c *CSV) Export(ctx context.Context, sinceID int64) error {
	log := logger.FromContext(ctx)

	var (
		f    *os.File
		w    *csv.Writer
		rows int
	)
	defer func() {
		if f != nil {
			_ = f.Close()
		}
	}()

	err := c.source.TransactionsNewerThan(ctx, sinceID, func(t model.Transaction) error {
		if w == nil {
			var err error
			f, err = c.open()
			if err != nil {
				return err
			}
			w = csv.NewWriter(f)
			if c.sink.IncludeHeader {
				if info, err := f.Stat(); err == nil && info.Size() == 0 {
					if err := w.Write(model.ExportHeader); err != nil {
						return fmt.Errorf("writing header: %w", err)
					}
				}
			}
		}
		rows++
		return w.Write(t.Row())
	})
	if err != nil {
		return err
	}

	if w == nil {
		log.Info().Int64("since_id", sinceID).Msg("no new transactions to export")
		return nil
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing %s: %w", c.sink.Path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", c.sink.Path, err)
	}
	f = nil

	log.Info().Int("rows", rows).Str("path", c.sink.Path).Msg("exported transactions")
	return nil
}

func (c *CSV) open() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(c.sink.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	f, err := os.OpenFile(c.sink.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", c.sink.Path, err)
	}
	return f, nil
}
