package mapper

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/banksync/banksync/internal/model"
)

// SignRule decides the transaction type from the sign of a source amount.
type SignRule int

const (
	// NegativeIsDebit treats outflows as negative amounts (bank accounts).
	NegativeIsDebit SignRule = iota
	// PositiveIsDebit treats charges as positive amounts (most card exports).
	PositiveIsDebit
)

// TypeOf returns the transaction type for amount.
func (r SignRule) TypeOf(amount decimal.Decimal) model.TransactionType {
	negative := amount.IsNegative()
	if (r == NegativeIsDebit) == negative {
		return model.Debit
	}
	return model.Credit
}

func (r SignRule) String() string {
	if r == PositiveIsDebit {
		return "positive-is-debit"
	}
	return "negative-is-debit"
}

// ForRemoteFeed returns the sign rule used for remote API amounts of feed.
// Card accounts report purchases as positive amounts.
func ForRemoteFeed(feed model.FeedName) SignRule {
	if feed == model.FeedChaseChecking {
		return NegativeIsDebit
	}
	return PositiveIsDebit
}

// Mapper translates one CSV schema into canonical fields.
type Mapper struct {
	Name              string
	DateColumn        string
	DescriptionColumn string
	AmountColumn      string
	DateLayout        string
	Sign              SignRule
}

var amountCleaner = strings.NewReplacer("$", "", ",", "")

// Date parses the date cell.
func (m Mapper) Date(fields map[string]string) (time.Time, error) {
	raw := strings.TrimSpace(fields[m.DateColumn])
	d, err := time.Parse(m.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", raw, err)
	}
	return model.Civil(d), nil
}

// Amount parses the signed amount cell.
func (m Mapper) Amount(fields map[string]string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(fields[m.AmountColumn])
	raw = amountCleaner.Replace(raw)
	a, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing amount %q: %w", fields[m.AmountColumn], err)
	}
	return a, nil
}

// Description returns the trimmed description cell.
func (m Mapper) Description(fields map[string]string) string {
	return strings.TrimSpace(fields[m.DescriptionColumn])
}

// Registry holds mappers keyed by their exact header set.
type Registry struct {
	mappers map[string]Mapper
}

// NewRegistry creates an empty mapper registry.
func NewRegistry() *Registry {
	return &Registry{mappers: make(map[string]Mapper)}
}

// Register adds a mapper for headers. Panics on a duplicate header set or a
// header list naming a column twice.
func (r *Registry) Register(headers []string, m Mapper) {
	key, ok := headerKey(headers)
	if !ok {
		panic("mapper " + m.Name + " names a header column twice")
	}
	if existing, ok := r.mappers[key]; ok {
		panic("duplicate mapper header set: " + existing.Name + " and " + m.Name)
	}
	r.mappers[key] = m
}

// Lookup returns the mapper registered for exactly this header set, in any
// order. Headers with a repeated column never match.
func (r *Registry) Lookup(headers []string) (Mapper, bool) {
	key, ok := headerKey(headers)
	if !ok {
		return Mapper{}, false
	}
	m, ok := r.mappers[key]
	return m, ok
}

// Len returns the number of registered mappers.
func (r *Registry) Len() int { return len(r.mappers) }

// headerKey reports false when a column name repeats.
func headerKey(headers []string) (string, bool) {
	keys := slices.Clone(headers)
	slices.Sort(keys)
	for i := 1; i < len(keys); i++ {
		if keys[i] == keys[i-1] {
			return "", false
		}
	}
	return strings.Join(keys, "\x1f"), true
}

const usDateLayout = "01/02/2006"

// DefaultRegistry returns a registry with the built-in bank schemas.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register([]string{"Date", "Description", "Amount"}, Mapper{
		Name:              "AMEX",
		DateColumn:        "Date",
		DescriptionColumn: "Description",
		AmountColumn:      "Amount",
		DateLayout:        usDateLayout,
		Sign:              PositiveIsDebit,
	})
	r.Register([]string{"Transaction Date", "Post Date", "Description", "Category", "Type", "Amount", "Memo"}, Mapper{
		Name:              "CHASE_CREDIT_CARD",
		DateColumn:        "Post Date",
		DescriptionColumn: "Description",
		AmountColumn:      "Amount",
		DateLayout:        usDateLayout,
		Sign:              NegativeIsDebit,
	})
	r.Register([]string{"Details", "Posting Date", "Description", "Amount", "Type", "Balance", "Check or Slip #", ""}, Mapper{
		Name:              "CHASE_CHECKING",
		DateColumn:        "Posting Date",
		DescriptionColumn: "Description",
		AmountColumn:      "Amount",
		DateLayout:        usDateLayout,
		Sign:              NegativeIsDebit,
	})
	return r
}
