package model

// Sink is an export destination. Implemented by CSVSink and SheetSink only.
type Sink interface {
	isSink()
}

// CSVSink appends rows to a local file.
type CSVSink struct {
	Path          string
	IncludeHeader bool
}

func (CSVSink) isSink() {}

// SheetSink appends rows to a Google Sheets tab.
type SheetSink struct {
	SpreadsheetID string
	SheetName     string
	StartRow      *int // 1-based; nil appends after the last filled row
}

func (SheetSink) isSink() {}
