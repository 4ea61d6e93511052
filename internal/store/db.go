package store

import "context"

// Scanner reads the current result row.
type Scanner interface {
	Scan(dest ...any) error
}

// DB is the persistence surface used by Repository.
type DB interface {
	// Execute runs a statement and returns the affected row count.
	Execute(ctx context.Context, query string, args ...any) (int64, error)
	// ExecuteBatch runs query once per argument list inside one transaction
	// and returns the affected row count of each.
	ExecuteBatch(ctx context.Context, query string, batch [][]any) ([]int64, error)
	// Query calls scan once per result row.
	Query(ctx context.Context, query string, args []any, scan func(Scanner) error) error
}
