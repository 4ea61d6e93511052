package store

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
)

func openTestDB(t *testing.T) *SQLite {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "banksync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func txn(d int, hash string) model.Transaction {
	return model.Transaction{
		Date:        day(d),
		Description: "desc " + hash,
		Amount:      decimal.RequireFromString("4.50"),
		Category:    model.CategoryCoffee,
		Type:        model.Debit,
		OriginHash:  hash,
	}
}

func TestOpenIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banksync.db")
	db, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestInsertTransactionsIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(openTestDB(t))

	n, err := repo.InsertTransactions(ctx, []model.Transaction{txn(1, "a"), txn(2, "b")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.InsertTransactions(ctx, []model.Transaction{txn(1, "a"), txn(3, "c")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	id, err := repo.LatestTransactionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
}

func TestInsertTransactionsEmpty(t *testing.T) {
	n, err := NewRepository(openTestDB(t)).InsertTransactions(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLatestTransactionIDEmpty(t *testing.T) {
	id, err := NewRepository(openTestDB(t)).LatestTransactionID(context.Background())
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestBookmarks(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(openTestDB(t))

	_, ok, err := repo.LatestBookmark(ctx, "AMEX_GOLD")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.SaveBookmark(ctx, "AMEX_GOLD", day(5)))
	require.NoError(t, repo.SaveBookmark(ctx, "AMEX_GOLD", day(9)))
	require.NoError(t, repo.SaveBookmark(ctx, "CHASE_CHECKING", day(20)))

	got, ok, err := repo.LatestBookmark(ctx, "AMEX_GOLD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day(9), got)
}

func TestTransactionsNewerThan(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(openTestDB(t))

	var batch []model.Transaction
	for i := 1; i <= 12; i++ {
		batch = append(batch, txn(i, fmt.Sprintf("h%d", i)))
	}
	_, err := repo.InsertTransactions(ctx, batch)
	require.NoError(t, err)

	var got []model.Transaction
	err = repo.TransactionsNewerThan(ctx, 10, func(t model.Transaction) error {
		got = append(got, t)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(12), got[0].ID)
	assert.Equal(t, int64(11), got[1].ID)
	assert.Equal(t, day(12), got[0].Date)
	assert.Equal(t, "4.50", got[0].Amount.StringFixed(2))
	assert.Equal(t, model.CategoryCoffee, got[0].Category)
	assert.Equal(t, model.Debit, got[0].Type)
	assert.Equal(t, "h12", got[0].OriginHash)
}

func TestTransactionsNewerThanSameDateOrdersByID(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(openTestDB(t))

	_, err := repo.InsertTransactions(ctx, []model.Transaction{txn(3, "a"), txn(3, "b"), txn(1, "c")})
	require.NoError(t, err)

	var ids []int64
	require.NoError(t, repo.TransactionsNewerThan(ctx, 0, func(t model.Transaction) error {
		ids = append(ids, t.ID)
		return nil
	}))
	assert.Equal(t, []int64{2, 1, 3}, ids)
}

func TestTransactionsNewerThanStopsOnCallbackError(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(openTestDB(t))
	_, err := repo.InsertTransactions(ctx, []model.Transaction{txn(1, "a"), txn(2, "b")})
	require.NoError(t, err)

	calls := 0
	err = repo.TransactionsNewerThan(ctx, 0, func(model.Transaction) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}

func TestExecuteBatchRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ExecuteBatch(ctx, "INSERT INTO bookmarks (name, bookmark, run_timestamp) VALUES (?, ?, ?)", [][]any{
		{"A", "2024-01-01", 1},
		{"B", nil, 2},
	})
	require.Error(t, err)

	_, ok, err := NewRepository(db).LatestBookmark(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoOpWritesNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(NoOp{Verbose: true})

	n, err := repo.InsertTransactions(ctx, []model.Transaction{txn(1, "a")})
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, repo.SaveBookmark(ctx, "AMEX_GOLD", day(1)))

	_, ok, err := repo.LatestBookmark(ctx, "AMEX_GOLD")
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := repo.LatestTransactionID(ctx)
	require.NoError(t, err)
	assert.Zero(t, id)
}
