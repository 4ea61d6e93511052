package store

import (
	"context"

	"github.com/banksync/banksync/internal/logger"
)

// NoOp is a DB that performs no writes and returns no rows. Used for dry runs.
type NoOp struct {
	Verbose bool
}

// Execute logs the statement and reports zero affected rows.
func (n NoOp) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	if n.Verbose {
		log := logger.FromContext(ctx)
		log.Info().Str("sql", query).Int("params", len(args)).Msg("no-op execute")
	}
	return 0, nil
}

// ExecuteBatch logs the batch and reports zero affected rows per entry.
func (n NoOp) ExecuteBatch(ctx context.Context, query string, batch [][]any) ([]int64, error) {
	if n.Verbose {
		log := logger.FromContext(ctx)
		log.Info().Str("sql", query).Int("rows", len(batch)).Msg("no-op execute batch")
	}
	return make([]int64, len(batch)), nil
}

// Query returns no rows.
func (n NoOp) Query(ctx context.Context, query string, _ []any, _ func(Scanner) error) error {
	if n.Verbose {
		log := logger.FromContext(ctx)
		log.Info().Str("sql", query).Msg("no-op query")
	}
	return nil
}
