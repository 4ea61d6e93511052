package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/banksync/banksync/internal/model"
)

// Status summarizes a run.
type Status int

const (
	StatusSuccess Status = iota
	StatusPartial
	StatusFailed
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPartial:
		return "partial"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	}
	return "unknown"
}

// ErrPartialFailure marks a run where some feeds or exports failed.
var ErrPartialFailure = errors.New("run partially failed")

// ErrRunFailed marks a run where every feed failed.
var ErrRunFailed = errors.New("run failed")

// ErrFeedPanicked marks a feed whose processing panicked.
var ErrFeedPanicked = errors.New("feed panicked")

// FeedOutcome is the result of one feed.
type FeedOutcome struct {
	Feed        model.Feed
	Extracted   int
	Transformed int
	Inserted    int
	Bookmark    time.Time
	Err         error
}

// Canceled reports whether the feed stopped because the run was canceled.
func (o FeedOutcome) Canceled() bool {
	return o.Err != nil && (errors.Is(o.Err, context.Canceled) || errors.Is(o.Err, context.DeadlineExceeded))
}

// ExportOutcome is the result of one exporter.
type ExportOutcome struct {
	Name string
	Err  error
}

// Report collects the outcome of a run.
type Report struct {
	RunID    string
	SinceID  int64
	Started  time.Time
	Finished time.Time
	Feeds    []FeedOutcome
	Exports  []ExportOutcome
	Canceled bool
}

// Status classifies the run. Canceled feeds never count as failures.
func (r *Report) Status() Status {
	if r.Canceled {
		return StatusCanceled
	}
	failed, canceled := 0, 0
	for _, f := range r.Feeds {
		switch {
		case f.Canceled():
			canceled++
		case f.Err != nil:
			failed++
		}
	}
	if canceled > 0 {
		return StatusCanceled
	}
	if failed > 0 && failed == len(r.Feeds) {
		return StatusFailed
	}
	if failed > 0 {
		return StatusPartial
	}
	for _, e := range r.Exports {
		if e.Err != nil {
			return StatusPartial
		}
	}
	return StatusSuccess
}

// Err aggregates feed and export failures, wrapped in ErrPartialFailure or
// ErrRunFailed. It is nil for successful and canceled runs.
func (r *Report) Err() error {
	var errs *multierror.Error
	for _, f := range r.Feeds {
		if f.Err != nil && !f.Canceled() {
			errs = multierror.Append(errs, f.Err)
		}
	}
	for _, e := range r.Exports {
		if e.Err != nil {
			errs = multierror.Append(errs, e.Err)
		}
	}

	switch r.Status() {
	case StatusPartial:
		return errors.Join(ErrPartialFailure, errs.ErrorOrNil())
	case StatusFailed:
		return errors.Join(ErrRunFailed, errs.ErrorOrNil())
	}
	return nil
}

// Inserted totals inserted transactions across feeds.
func (r *Report) Inserted() int {
	n := 0
	for _, f := range r.Feeds {
		n += f.Inserted
	}
	return n
}
