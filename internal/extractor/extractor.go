package extractor

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banksync/banksync/internal/logger"
	"github.com/banksync/banksync/internal/mapper"
	"github.com/banksync/banksync/internal/model"
)

var (
	// ErrInvalidInputKind is returned for file feeds that are not regular .csv files.
	ErrInvalidInputKind = errors.New("input is not a csv file")
	// ErrNoMapperConfigured is returned when a file's header set has no mapper.
	ErrNoMapperConfigured = errors.New("no mapper configured for header set")
	// ErrNoRemoteClient is returned for remote feeds when no fetcher is configured.
	ErrNoRemoteClient = errors.New("no remote client configured")
)

// BookmarkReader looks up a feed's last synchronized date.
type BookmarkReader interface {
	LatestBookmark(ctx context.Context, name string) (time.Time, bool, error)
}

// Fetcher retrieves remote transactions newer than a bookmark.
type Fetcher interface {
	Transactions(ctx context.Context, accountID, accessToken string, bookmark time.Time, pageSize int) ([]model.RemoteTransaction, error)
}

// Extractor reads records newer than each feed's bookmark.
type Extractor struct {
	bookmarks BookmarkReader
	mappers   *mapper.Registry
	fetcher   Fetcher
	pageSize  int
}

// New creates an Extractor. fetcher may be nil when no remote feeds are used.
func New(bookmarks BookmarkReader, mappers *mapper.Registry, fetcher Fetcher, pageSize int) *Extractor {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Extractor{bookmarks: bookmarks, mappers: mappers, fetcher: fetcher, pageSize: pageSize}
}

// Extract returns the feed's records dated strictly after its bookmark.
func (e *Extractor) Extract(ctx context.Context, feed model.Feed) ([]model.RawRecord, error) {
	bookmark, err := e.bookmark(ctx, feed)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	log.Info().Str("bookmark", bookmark.Format(model.DateLayout)).Msg("extracting")

	switch f := feed.(type) {
	case model.FileFeed:
		return e.extractFile(ctx, f, bookmark)
	case model.RemoteFeed:
		return e.extractRemote(ctx, f, bookmark)
	default:
		return nil, fmt.Errorf("unsupported feed type %T", feed)
	}
}

func (e *Extractor) bookmark(ctx context.Context, feed model.Feed) (time.Time, error) {
	b, ok, err := e.bookmarks.LatestBookmark(ctx, feed.BookmarkName())
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return model.Epoch, nil
	}
	return b, nil
}

func (e *Extractor) extractFile(ctx context.Context, feed model.FileFeed, bookmark time.Time) ([]model.RawRecord, error) {
	log := logger.FromContext(ctx)

	if !strings.EqualFold(filepath.Ext(feed.Path), ".csv") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInputKind, feed.Path)
	}
	info, err := os.Stat(feed.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", feed.Path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInputKind, feed.Path)
	}

	f, err := os.Open(feed.Path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", feed.Path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header of %s: %w", feed.Path, err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	m, ok := e.mappers.Lookup(header)
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrNoMapperConfigured, feed.Path, header)
	}

	var (
		records []model.RawRecord
		line    = 1
		stale   int
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading %s line %d: %w", feed.Path, line, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		fields := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				fields[h] = row[i]
			} else {
				fields[h] = ""
			}
		}

		date, err := m.Date(fields)
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("dropping row")
			continue
		}
		if !date.After(bookmark) {
			stale++
			log.Debug().Int("line", line).Str("date", date.Format(model.DateLayout)).Msg("row not newer than bookmark")
			continue
		}
		records = append(records, model.CSVRow{Fields: fields})
	}

	log.Info().Int("records", len(records)).Int("skipped", stale).Str("mapper", m.Name).Msg("read csv")
	return records, nil
}

func (e *Extractor) extractRemote(ctx context.Context, feed model.RemoteFeed, bookmark time.Time) ([]model.RawRecord, error) {
	if e.fetcher == nil {
		return nil, fmt.Errorf("%w for %s", ErrNoRemoteClient, feed.Name)
	}
	txns, err := e.fetcher.Transactions(ctx, feed.AccountID, feed.AccessToken, bookmark, e.pageSize)
	if err != nil {
		return nil, err
	}
	records := make([]model.RawRecord, len(txns))
	for i, t := range txns {
		records[i] = model.RemoteRecord{Txn: t, Feed: feed.Name}
	}
	log := logger.FromContext(ctx)
	log.Info().Int("records", len(records)).Msg("fetched remote transactions")
	return records, nil
}
