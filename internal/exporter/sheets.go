package exporter

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/banksync/banksync/internal/logger"
	"github.com/banksync/banksync/internal/model"
)

const userEntered = "USER_ENTERED"

// NewSheetsService creates a Sheets API client authorized by a service
// account or OAuth client credentials file.
func NewSheetsService(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*sheets.Service, error) {
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, option.WithScopes(sheets.SpreadsheetsScope))
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets client: %w", err)
	}
	return svc, nil
}

// Sheets writes exported transactions into a spreadsheet tab.
type Sheets struct {
	source Source
	svc    *sheets.Service
	sink   model.SheetSink
}

// NewSheets creates a Sheets exporter for sink.
func NewSheets(source Source, svc *sheets.Service, sink model.SheetSink) *Sheets {
	return &Sheets{source: source, svc: svc, sink: sink}
}

// Name identifies the exporter in logs.
func (s *Sheets) Name() string { return "sheets" }

// Export writes every transaction stored after sinceID. With a start row the
// rows are inserted there, pushing existing rows down; otherwise they go after
// the last filled row of column A.
func (s *Sheets) Export(ctx context.Context, sinceID int64) error {
	log := logger.FromContext(ctx)

	var rows [][]any
	err := s.source.TransactionsNewerThan(ctx, sinceID, func(t model.Transaction) error {
		cells := t.Row()
		row := make([]any, len(cells))
		for i, c := range cells {
			row[i] = c
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		log.Info().Int64("since_id", sinceID).Msg("no new transactions to export")
		return nil
	}

	body := &sheets.ValueRange{Values: rows}
	if s.sink.StartRow != nil {
		start := *s.sink.StartRow
		if start < 1 {
			return fmt.Errorf("invalid start row %d", start)
		}
		if err := s.insertRows(ctx, start, len(rows)); err != nil {
			return err
		}
		_, err = s.svc.Spreadsheets.Values.Update(s.sink.SpreadsheetID, s.cell(start), body).
			ValueInputOption(userEntered).Context(ctx).Do()
	} else {
		var start int
		start, err = s.firstEmptyRow(ctx)
		if err != nil {
			return err
		}
		_, err = s.svc.Spreadsheets.Values.Append(s.sink.SpreadsheetID, s.cell(start), body).
			ValueInputOption(userEntered).Context(ctx).Do()
	}
	if err != nil {
		return fmt.Errorf("writing rows to sheet %s: %w", s.sink.SheetName, err)
	}

	log.Info().Int("rows", len(rows)).Str("sheet", s.sink.SheetName).Msg("exported transactions")
	return nil
}

// insertRows inserts count blank rows before the 1-based row start.
func (s *Sheets) insertRows(ctx context.Context, start, count int) error {
	sheetID, err := s.sheetID(ctx)
	if err != nil {
		return err
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			InsertDimension: &sheets.InsertDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(start - 1),
					EndIndex:        int64(start - 1 + count),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
				InheritFromBefore: false,
			},
		}},
	}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.sink.SpreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("inserting rows into sheet %s: %w", s.sink.SheetName, err)
	}
	return nil
}

func (s *Sheets) sheetID(ctx context.Context) (int64, error) {
	ss, err := s.svc.Spreadsheets.Get(s.sink.SpreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("reading spreadsheet %s: %w", s.sink.SpreadsheetID, err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.sink.SheetName {
			return sh.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %s not found in spreadsheet %s", s.sink.SheetName, s.sink.SpreadsheetID)
}

func (s *Sheets) firstEmptyRow(ctx context.Context) (int, error) {
	vr, err := s.svc.Spreadsheets.Values.Get(s.sink.SpreadsheetID, s.sheetRef()+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("reading sheet %s: %w", s.sink.SheetName, err)
	}
	return len(vr.Values) + 1, nil
}

func (s *Sheets) cell(row int) string {
	return fmt.Sprintf("%s!A%d", s.sheetRef(), row)
}

func (s *Sheets) sheetRef() string {
	return "'" + strings.ReplaceAll(s.sink.SheetName, "'", "''") + "'"
}
