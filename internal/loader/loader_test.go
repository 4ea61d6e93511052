package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banksync/banksync/internal/model"
	"github.com/banksync/banksync/internal/store"
)

var feed = model.FileFeed{Path: "gold.csv", Name: model.FeedAmexGold}

func newRepo(t *testing.T) *store.Repository {
	t.Helper()
	db, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "banksync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return store.NewRepository(db)
}

func txns(n int, start time.Time) []model.Transaction {
	out := make([]model.Transaction, n)
	for i := range out {
		out[i] = model.Transaction{
			Date:        start.AddDate(0, 0, i%30),
			Description: "row",
			Amount:      decimal.NewFromInt(int64(i)),
			Category:    model.CategoryOther,
			Type:        model.Debit,
			OriginHash:  fmt.Sprintf("hash-%d", i),
		}
	}
	return out
}

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSaveBatchesAndBookmarks(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	res, err := New(repo, 0).Save(ctx, feed, txns(1201, jan1))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 1201, res.Attempted)
	assert.Equal(t, 1201, res.Inserted)

	b, ok, err := repo.LatestBookmark(ctx, "AMEX_GOLD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, jan1.AddDate(0, 0, 29), b)
	assert.Equal(t, b, res.Bookmark)
}

func TestSaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	l := New(repo, 10)
	batch := txns(25, jan1)

	_, err := l.Save(ctx, feed, batch)
	require.NoError(t, err)
	first, err := repo.LatestTransactionID(ctx)
	require.NoError(t, err)

	res, err := l.Save(ctx, feed, batch)
	require.NoError(t, err)
	assert.Equal(t, 25, res.Attempted)
	assert.Zero(t, res.Inserted)

	second, err := repo.LatestTransactionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSaveEmptyDoesNotWriteBookmark(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	res, err := New(repo, 0).Save(ctx, feed, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Batches)
	assert.True(t, res.Bookmark.IsZero())

	_, ok, err := repo.LatestBookmark(ctx, "AMEX_GOLD")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveNeverRegressesBookmark(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	later := jan1.AddDate(0, 2, 0)
	require.NoError(t, repo.SaveBookmark(ctx, "AMEX_GOLD", later))

	res, err := New(repo, 0).Save(ctx, feed, txns(3, jan1))
	require.NoError(t, err)
	assert.True(t, res.Bookmark.IsZero())

	b, _, err := repo.LatestBookmark(ctx, "AMEX_GOLD")
	require.NoError(t, err)
	assert.Equal(t, later, b)
}

type failingStore struct {
	*store.Repository
	failOnBatch int
	batches     int
}

func (f *failingStore) InsertTransactions(ctx context.Context, txns []model.Transaction) (int, error) {
	f.batches++
	if f.batches == f.failOnBatch {
		return 0, assert.AnError
	}
	return f.Repository.InsertTransactions(ctx, txns)
}

func TestSaveFailedBatchLeavesBookmark(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	fs := &failingStore{Repository: repo, failOnBatch: 2}

	res, err := New(fs, 10).Save(ctx, feed, txns(30, jan1))
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, res.Batches)

	_, ok, err := repo.LatestBookmark(ctx, "AMEX_GOLD")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(newRepo(t), 0).Save(ctx, feed, txns(3, jan1))
	assert.ErrorIs(t, err, context.Canceled)
}
