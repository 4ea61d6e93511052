package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/banksync/banksync/internal/loader"
	"github.com/banksync/banksync/internal/logger"
	"github.com/banksync/banksync/internal/model"
)

// DefaultConcurrency bounds how many feeds run at once.
const DefaultConcurrency = 4

// Extractor reads a feed's new records.
type Extractor interface {
	Extract(ctx context.Context, feed model.Feed) ([]model.RawRecord, error)
}

// Transformer converts raw records to transactions.
type Transformer interface {
	Transform(ctx context.Context, records []model.RawRecord, source string) []model.Transaction
}

// Loader persists a feed's transactions.
type Loader interface {
	Save(ctx context.Context, feed model.Feed, txns []model.Transaction) (loader.Result, error)
}

// Exporter publishes transactions stored after sinceID.
type Exporter interface {
	Name() string
	Export(ctx context.Context, sinceID int64) error
}

// TransactionIDs reports the newest stored transaction id.
type TransactionIDs interface {
	LatestTransactionID(ctx context.Context) (int64, error)
}

// Runner drives every feed through extract, transform and load, then exports.
type Runner struct {
	extractor   Extractor
	transformer Transformer
	loader      Loader
	ids         TransactionIDs
	exporters   []Exporter
	concurrency int
}

// New creates a Runner. A non-positive concurrency uses DefaultConcurrency.
func New(e Extractor, t Transformer, l Loader, ids TransactionIDs, exporters []Exporter, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Runner{
		extractor:   e,
		transformer: t,
		loader:      l,
		ids:         ids,
		exporters:   exporters,
		concurrency: concurrency,
	}
}

// Run processes feeds concurrently. A failing feed never cancels its siblings.
// The returned error covers only failures before any feed started.
func (r *Runner) Run(ctx context.Context, feeds []model.Feed) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), Started: time.Now()}
	ctx = logger.With(ctx, "run_id", report.RunID)
	log := logger.FromContext(ctx)

	sinceID, err := r.ids.LatestTransactionID(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading latest transaction id: %w", err)
	}
	report.SinceID = sinceID
	log.Info().Int("feeds", len(feeds)).Int64("since_id", sinceID).Msg("starting run")

	report.Feeds = make([]FeedOutcome, len(feeds))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, feed := range feeds {
		g.Go(func() error {
			report.Feeds[i] = r.runFeed(ctx, feed)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		log.Warn().Msg("run canceled, skipping export")
		report.Canceled = true
	} else {
		for _, e := range r.exporters {
			report.Exports = append(report.Exports, r.runExport(ctx, e, sinceID))
		}
	}

	report.Finished = time.Now()
	log.Info().Str("status", report.Status().String()).Dur("took", report.Finished.Sub(report.Started)).Msg("run finished")
	return report, nil
}

func (r *Runner) runFeed(ctx context.Context, feed model.Feed) (out FeedOutcome) {
	out = FeedOutcome{Feed: feed}
	ctx = logger.With(ctx, "feed", feed.BookmarkName())
	log := logger.FromContext(ctx)

	defer func() {
		switch {
		case out.Err == nil:
			log.Info().Int("extracted", out.Extracted).Int("inserted", out.Inserted).Msg("feed complete")
		case out.Canceled():
			log.Warn().Msg("feed canceled")
		default:
			log.Error().Err(out.Err).Msg("feed failed")
		}
	}()
	defer func() {
		if p := recover(); p != nil {
			out.Err = fmt.Errorf("%w: %s: %v", ErrFeedPanicked, feed.BookmarkName(), p)
		}
	}()

	records, err := r.extractor.Extract(ctx, feed)
	if err != nil {
		out.Err = fmt.Errorf("extracting %s: %w", feed.BookmarkName(), err)
		return out
	}
	out.Extracted = len(records)

	txns := r.transformer.Transform(ctx, records, fmt.Sprint(feed))
	out.Transformed = len(txns)

	res, err := r.loader.Save(ctx, feed, txns)
	out.Inserted = res.Inserted
	out.Bookmark = res.Bookmark
	if err != nil {
		out.Err = fmt.Errorf("loading %s: %w", feed.BookmarkName(), err)
	}
	return out
}

func (r *Runner) runExport(ctx context.Context, e Exporter, sinceID int64) ExportOutcome {
	ctx = logger.With(ctx, "exporter", e.Name())
	log := logger.FromContext(ctx)

	out := ExportOutcome{Name: e.Name()}
	if err := e.Export(ctx, sinceID); err != nil {
		out.Err = fmt.Errorf("exporting to %s: %w", e.Name(), err)
		if !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("export failed")
		}
	}
	return out
}
