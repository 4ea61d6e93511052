package transformer

import (
	"context"
	"fmt"

	"github.com/banksync/banksync/internal/logger"
	"github.com/banksync/banksync/internal/mapper"
	"github.com/banksync/banksync/internal/model"
)

const progressEvery = 100

// Categorizer assigns a category to a description.
type Categorizer interface {
	Categorize(description string) model.Category
}

// Transformer maps raw records to canonical transactions.
type Transformer struct {
	mappers     *mapper.Registry
	categorizer Categorizer
}

// New creates a Transformer.
func New(mappers *mapper.Registry, categorizer Categorizer) *Transformer {
	return &Transformer{mappers: mappers, categorizer: categorizer}
}

// Transform converts records, logging and dropping any that cannot be mapped.
func (t *Transformer) Transform(ctx context.Context, records []model.RawRecord, source string) []model.Transaction {
	log := logger.FromContext(ctx).With().Str("source", source).Logger()

	out := make([]model.Transaction, 0, len(records))
	for i, rec := range records {
		txn, err := t.transaction(rec)
		if err != nil {
			log.Warn().Err(err).Int("record", i+1).Msg("dropping record")
			continue
		}
		if txn.Category == model.CategoryUncategorized {
			log.Info().Str("description", txn.Description).Msg("uncategorized transaction")
		}
		out = append(out, txn)
		if len(out)%progressEvery == 0 {
			log.Info().Int("transformed", len(out)).Msg("transform progress")
		}
	}
	log.Info().Int("transformed", len(out)).Int("dropped", len(records)-len(out)).Msg("transform complete")
	return out
}

func (t *Transformer) transaction(rec model.RawRecord) (model.Transaction, error) {
	switch r := rec.(type) {
	case model.CSVRow:
		return t.fromCSV(r)
	case model.RemoteRecord:
		return t.fromRemote(r), nil
	default:
		return model.Transaction{}, fmt.Errorf("unsupported record type %T", rec)
	}
}

func (t *Transformer) fromCSV(row model.CSVRow) (model.Transaction, error) {
	m, ok := t.mappers.Lookup(row.Headers())
	if !ok {
		return model.Transaction{}, fmt.Errorf("no mapper for headers %q", row.Headers())
	}
	date, err := m.Date(row.Fields)
	if err != nil {
		return model.Transaction{}, err
	}
	amount, err := m.Amount(row.Fields)
	if err != nil {
		return model.Transaction{}, err
	}
	desc := m.Description(row.Fields)
	return model.Transaction{
		Date:        date,
		Description: desc,
		Amount:      amount.Abs(),
		Category:    t.categorizer.Categorize(desc),
		Type:        m.Sign.TypeOf(amount),
		OriginHash:  model.Fingerprint(row.FieldMap()),
	}, nil
}

func (t *Transformer) fromRemote(r model.RemoteRecord) model.Transaction {
	return model.Transaction{
		Date:        model.Civil(r.Txn.Date),
		Description: r.Txn.Description,
		Amount:      r.Txn.Amount.Abs(),
		Category:    t.categorizer.Categorize(r.Txn.Description),
		Type:        mapper.ForRemoteFeed(r.Feed).TypeOf(r.Txn.Amount),
		OriginHash:  model.Fingerprint(r.FieldMap()),
	}
}
