package exporter

import (
	"context"
	"path/filepath"
	"time"

	"github.com/banksync/banksync/internal/logger"
	"github.com/banksync/banksync/internal/model"
)

// Source streams stored transactions newer than an id, newest first.
type Source interface {
	TransactionsNewerThan(ctx context.Context, sinceID int64, fn func(model.Transaction) error) error
}

// Filename returns a per-run export file path inside dir.
func Filename(dir string, now time.Time) string {
	return filepath.Join(dir, "export_"+now.Format("2006-01-02T150405")+".csv")
}

// Discard counts what would be exported without writing anywhere.
type Discard struct {
	source Source
}

// NewDiscard creates a Discard exporter.
func NewDiscard(source Source) *Discard {
	return &Discard{source: source}
}

// Name identifies the exporter in logs.
func (d *Discard) Name() string { return "discard" }

// Export logs the number of rows that would be exported.
func (d *Discard) Export(ctx context.Context, sinceID int64) error {
	n := 0
	if err := d.source.TransactionsNewerThan(ctx, sinceID, func(model.Transaction) error {
		n++
		return nil
	}); err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	log.Info().Int("rows", n).Int64("since_id", sinceID).Msg("dry run, export discarded")
	return nil
}
