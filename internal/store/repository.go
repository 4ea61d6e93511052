package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/banksync/banksync/internal/model"
)

// Repository maps bookmarks and transactions onto a DB.
type Repository struct {
	db  DB
	now func() time.Time
}

// NewRepository creates a Repository over db.
func NewRepository(db DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// LatestBookmark returns the most advanced watermark recorded for name.
func (r *Repository) LatestBookmark(ctx context.Context, name string) (time.Time, bool, error) {
	var (
		raw   string
		found bool
	)
	err := r.db.Query(ctx,
		"SELECT bookmark FROM bookmarks WHERE name = ? ORDER BY bookmark DESC LIMIT 1",
		[]any{name},
		func(s Scanner) error {
			found = true
			return s.Scan(&raw)
		})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading bookmark %s: %w", name, err)
	}
	if !found {
		return time.Time{}, false, nil
	}
	d, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parsing bookmark %s %q: %w", name, raw, err)
	}
	return d, true, nil
}

// SaveBookmark appends a bookmark record for name.
func (r *Repository) SaveBookmark(ctx context.Context, name string, watermark time.Time) error {
	_, err := r.db.Execute(ctx,
		"INSERT INTO bookmarks (name, bookmark, run_timestamp) VALUES (?, ?, ?)",
		name, watermark.Format(model.DateLayout), r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("saving bookmark %s: %w", name, err)
	}
	return nil
}

const insertTransaction = `INSERT OR IGNORE INTO transactions
    (date, description, amount, category, type, origin_hash)
    VALUES (?, ?, ?, ?, ?, ?)`

// InsertTransactions writes txns as one batch, skipping rows whose origin hash
// already exists. It returns the number of rows actually inserted.
func (r *Repository) InsertTransactions(ctx context.Context, txns []model.Transaction) (int, error) {
	if len(txns) == 0 {
		return 0, nil
	}
	batch := make([][]any, len(txns))
	for i, t := range txns {
		batch[i] = []any{
			t.Date.Format(model.DateLayout),
			t.Description,
			t.Amount.String(),
			string(t.Category),
			string(t.Type),
			t.OriginHash,
		}
	}
	counts, err := r.db.ExecuteBatch(ctx, insertTransaction, batch)
	if err != nil {
		return 0, fmt.Errorf("inserting transactions: %w", err)
	}
	inserted := 0
	for _, n := range counts {
		inserted += int(n)
	}
	return inserted, nil
}

// LatestTransactionID returns the highest stored transaction id, or 0.
func (r *Repository) LatestTransactionID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.Query(ctx, "SELECT COALESCE(MAX(id), 0) FROM transactions", nil,
		func(s Scanner) error { return s.Scan(&id) })
	if err != nil {
		return 0, fmt.Errorf("reading latest transaction id: %w", err)
	}
	return id, nil
}

// TransactionsNewerThan calls fn for each transaction with id > sinceID,
// newest date first and higher id first within a date.
func (r *Repository) TransactionsNewerThan(ctx context.Context, sinceID int64, fn func(model.Transaction) error) error {
	err := r.db.Query(ctx,
		`SELECT id, date, description, amount, category, type, origin_hash
		 FROM transactions WHERE id > ? ORDER BY date DESC, id DESC`,
		[]any{sinceID},
		func(s Scanner) error {
			t, err := scanTransaction(s)
			if err != nil {
				return err
			}
			return fn(t)
		})
	if err != nil {
		return fmt.Errorf("reading transactions after id %d: %w", sinceID, err)
	}
	return nil
}

func scanTransaction(s Scanner) (model.Transaction, error) {
	var (
		t                           model.Transaction
		date, amount, category, typ string
	)
	if err := s.Scan(&t.ID, &date, &t.Description, &amount, &category, &typ, &t.OriginHash); err != nil {
		return model.Transaction{}, err
	}
	d, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %d: parsing date %q: %w", t.ID, date, err)
	}
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %d: parsing amount %q: %w", t.ID, amount, err)
	}
	t.Date = d
	t.Amount = a
	t.Category = model.Category(category)
	t.Type = model.TransactionType(typ)
	return t, nil
}
