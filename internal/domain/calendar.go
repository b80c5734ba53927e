// Package domain defines the business logic for the coaching schedule service.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// referenceZone is the fixed business offset every instant is normalised
// against. A plain offset, not an IANA name, so normalisation never depends
// on host tzdata or locale.
var referenceZone = time.FixedZone("UTC+02:00", 2*60*60)

// CalendarDay is a year-month-day value with no time-of-day or zone
// component. It is the only currency for "which day" decisions: weekday
// matching, completion keys, and cadence math all operate on this type,
// never on raw instants.
type CalendarDay struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf converts an absolute instant into the calendar day it falls on in
// the reference zone. Total function; any instant maps to exactly one day.
func DayOf(instant time.Time) CalendarDay {
	t := instant.In(referenceZone)
	return CalendarDay{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// DayFromDate builds a CalendarDay from the date components of t, ignoring
// its clock and zone. Used when scanning DATE columns, which carry no
// meaningful time-of-day.
func DayFromDate(t time.Time) CalendarDay {
	return CalendarDay{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// ParseCalendarDay parses an ISO "2006-01-02" day string.
func ParseCalendarDay(value string) (CalendarDay, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return CalendarDay{}, fmt.Errorf("invalid calendar day %q: %w", value, err)
	}
	return DayFromDate(t), nil
}

// Weekday computes the day of week from the Y-M-D value alone. It is pure
// calendar arithmetic and deliberately never consults the instant the day
// was derived from.
func (d CalendarDay) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// AddDays returns the day n days after d (n may be negative).
func (d CalendarDay) AddDays(n int) CalendarDay {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return DayFromDate(t)
}

// Date returns the day as a UTC midnight timestamp, for binding DATE
// parameters.
func (d CalendarDay) Date() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d falls strictly before other.
func (d CalendarDay) Before(other CalendarDay) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// After reports whether d falls strictly after other.
func (d CalendarDay) After(other CalendarDay) bool {
	return other.Before(d)
}

// Equal reports whether d and other are the same day.
func (d CalendarDay) Equal(other CalendarDay) bool {
	return d == other
}

// IsZero reports whether d is the zero value.
func (d CalendarDay) IsZero() bool {
	return d == CalendarDay{}
}

// String formats the day as ISO "2006-01-02".
func (d CalendarDay) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalJSON encodes the day as an ISO date string.
func (d CalendarDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes an ISO date string.
func (d *CalendarDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseCalendarDay(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
