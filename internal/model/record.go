package model

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RemoteStatus is the settlement state reported by the remote API.
type RemoteStatus string

const (
	StatusPosted  RemoteStatus = "posted"
	StatusPending RemoteStatus = "pending"
)

// RemoteTransaction is one transaction as returned by the remote API.
type RemoteTransaction struct {
	Status      RemoteStatus
	ID          string
	Amount      decimal.Decimal
	Date        time.Time
	Description string
}

// RawRecord is an unmapped source record. Implemented by CSVRow and RemoteRecord only.
type RawRecord interface {
	FieldMap() map[string]string
	isRawRecord()
}

// CSVRow is a CSV line keyed by header name.
type CSVRow struct {
	Fields map[string]string
}

// FieldMap returns the row's cells.
func (r CSVRow) FieldMap() map[string]string { return r.Fields }

// Headers returns the row's column names.
func (r CSVRow) Headers() []string {
	headers := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		headers = append(headers, k)
	}
	return headers
}

func (CSVRow) isRawRecord() {}

// RemoteRecord is a remote transaction tagged with the feed it came from.
type RemoteRecord struct {
	Txn  RemoteTransaction
	Feed FeedName
}

// FieldMap returns the transaction's source fields.
func (r RemoteRecord) FieldMap() map[string]string {
	return map[string]string{
		"status":      string(r.Txn.Status),
		"id":          r.Txn.ID,
		"amount":      r.Txn.Amount.String(),
		"date":        r.Txn.Date.Format(DateLayout),
		"description": r.Txn.Description,
	}
}

func (RemoteRecord) isRawRecord() {}

// Fingerprint hashes fields independent of key order: md5 of sorted "k=v" pairs joined by ",".
func Fingerprint(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + fields[k]
	}
	sum := md5.Sum([]byte(strings.Join(pairs, ",")))
	return hex.EncodeToString(sum[:])
}
