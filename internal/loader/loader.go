package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/banksync/banksync/internal/logger"
	"github.com/banksync/banksync/internal/model"
)

// DefaultBatchSize is the number of transactions written per batch.
const DefaultBatchSize = 500

// Store persists transactions and bookmarks.
type Store interface {
	InsertTransactions(ctx context.Context, txns []model.Transaction) (int, error)
	LatestBookmark(ctx context.Context, name string) (time.Time, bool, error)
	SaveBookmark(ctx context.Context, name string, watermark time.Time) error
}

// Result summarizes one feed's load.
type Result struct {
	Attempted int
	Inserted  int
	Batches   int
	Bookmark  time.Time // zero when no bookmark was written
}

// Loader writes transactions in batches and advances the feed bookmark.
type Loader struct {
	store     Store
	batchSize int
}

// New creates a Loader. A non-positive batchSize uses DefaultBatchSize.
func New(store Store, batchSize int) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Loader{store: store, batchSize: batchSize}
}

// Save writes txns and, once every batch succeeded, records the latest
// transaction date as the feed's bookmark. Duplicates are skipped silently.
func (l *Loader) Save(ctx context.Context, feed model.Feed, txns []model.Transaction) (Result, error) {
	log := logger.FromContext(ctx)
	name := feed.BookmarkName()

	var (
		res    Result
		latest time.Time
	)
	for start := 0; start < len(txns); start += l.batchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+l.batchSize, len(txns))
		batch := txns[start:end]

		n, err := l.store.InsertTransactions(ctx, batch)
		if err != nil {
			return res, fmt.Errorf("saving batch %d of %s: %w", res.Batches+1, name, err)
		}
		res.Batches++
		res.Attempted += len(batch)
		res.Inserted += n
		for _, t := range batch {
			if t.Date.After(latest) {
				latest = t.Date
			}
		}
		log.Info().Int("saved", res.Attempted).Int("inserted", res.Inserted).Msg("saved batch")
	}

	if res.Attempted == 0 {
		log.Info().Msg("no new transactions, bookmark unchanged")
		return res, nil
	}

	current, ok, err := l.store.LatestBookmark(ctx, name)
	if err != nil {
		return res, err
	}
	if ok && latest.Before(current) {
		log.Warn().
			Str("bookmark", current.Format(model.DateLayout)).
			Str("latest", latest.Format(model.DateLayout)).
			Msg("latest transaction precedes stored bookmark, not regressing")
		return res, nil
	}
	if err := l.store.SaveBookmark(ctx, name, latest); err != nil {
		return res, err
	}
	res.Bookmark = latest
	log.Info().Str("bookmark", latest.Format(model.DateLayout)).Msg("saved bookmark")
	return res, nil
}
