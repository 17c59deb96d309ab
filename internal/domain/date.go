package domain

import (
	"fmt"
	"time"
)

// Date is a calendar day in the user's local time zone. Records and entries
// are keyed by Date, never by instants, so that a workout synced late still
// files under the day it was performed.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day containing t, in t's location.
func DateOf(t time.Time) Date {
	year, month, day := t.Date()
	return Date{Year: year, Month: month, Day: day}
}

// ParseDate parses the YYYY-MM-DD form produced by String.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return DateOf(t), nil
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Midnight returns the first instant of the day in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays returns the date shifted by the given number of calendar days.
func (d Date) AddDays(days int) Date {
	return DateOf(d.Midnight(time.UTC).AddDate(0, 0, days))
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}
