package model

import "time"

// DateLayout is the storage and export layout for calendar dates.
const DateLayout = "2006-01-02"

// Epoch is the bookmark of a feed that has never been synchronized.
var Epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// Bookmark is the furthest date already synchronized for a feed.
type Bookmark struct {
	FeedName   string
	Watermark  time.Time
	RecordedAt time.Time
}

// Civil truncates t to midnight UTC of its calendar date.
func Civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
