package domain

import (
	"fmt"
	"time"
)

// Clock abstracts wall time so period boundaries are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in Location (local time when nil).
type SystemClock struct {
	Location *time.Location
}

// Now returns the current time in the clock's location.
func (c SystemClock) Now() time.Time {
	if c.Location != nil {
		return time.Now().In(c.Location)
	}
	return time.Now()
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// DayKey returns the calendar-day key, e.g. "Wed Oct 14 2026".
// The format matches documents written by earlier clients.
func DayKey(t time.Time) string {
	return t.Format("Mon Jan 02 2006")
}

// WeekKey returns "<year>-W<week>" with week = (dayOfMonth − weekday + 12) / 7,
// weekday counted from Sunday = 0.
func WeekKey(t time.Time) string {
	week := (t.Day() - int(t.Weekday()) + 12) / 7
	return fmt.Sprintf("%d-W%d", t.Year(), week)
}
