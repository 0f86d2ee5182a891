// Package datetime provides the calendar arithmetic behind price history
// windows. All dates are UTC.
package datetime

import (
	"time"
)

// DateLayout is the format of a calendar day key.
const DateLayout = "2006-01-02"

// StartOfDay returns the datetime at 00:00:00 UTC of t's UTC date.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WindowStart returns the start of a window of days whole days ending with
// t's day. A one day window starts at midnight of t's day.
func WindowStart(t time.Time, days int) time.Time {
	if days < 1 {
		days = 1
	}
	return StartOfDay(t).AddDate(0, 0, -(days - 1))
}

// DayKey returns t's UTC date as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDay parses a YYYY-MM-DD key back into midnight UTC.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
