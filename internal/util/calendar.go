package util

import (
	"fmt"
	"time"
)

// Day truncates t to midnight UTC of its calendar day. Daily observations
// are keyed by this value everywhere.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date as a UTC day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing day %q: %w", s, err)
	}
	return t, nil
}

// IsWeekday reports whether t falls Monday through Friday.
func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// LastCompletedWeekday returns the most recent weekday strictly before the
// day of now. Daily bars for that day are final.
func LastCompletedWeekday(now time.Time) time.Time {
	d := Day(now).AddDate(0, 0, -1)
	for !IsWeekday(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
