package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the direction of money movement.
type TransactionType string

const (
	Debit  TransactionType = "DEBIT"
	Credit TransactionType = "CREDIT"
)

// ExportHeader is the column order of Transaction.Row.
var ExportHeader = []string{"date", "description", "amount", "category", "type", "originHash"}

// Transaction is the canonical persisted record.
type Transaction struct {
	ID          int64 // 0 until stored
	Date        time.Time
	Description string
	Amount      decimal.Decimal // always non-negative
	Category    Category
	Type        TransactionType
	OriginHash  string
}

// Row renders t in ExportHeader order.
func (t Transaction) Row() []string {
	return []string{
		t.Date.Format(DateLayout),
		t.Description,
		t.Amount.StringFixed(2),
		string(t.Category),
		string(t.Type),
		t.OriginHash,
	}
}
