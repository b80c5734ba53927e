package domain

import (
	"strings"
	"time"
)

// ActivityKind distinguishes recurring workouts from periodic check-ins.
type ActivityKind string

const (
	ActivityKindWorkout ActivityKind = "workout"
	ActivityKindCheckin ActivityKind = "checkin"
)

// Valid reports whether the kind is one of the known values.
func (k ActivityKind) Valid() bool {
	return k == ActivityKindWorkout || k == ActivityKindCheckin
}

// WeekdaySet is a bitmask over time.Weekday. A scheduled activity always
// carries a non-empty set.
type WeekdaySet uint8

// NewWeekdaySet builds a set from the given weekdays.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << uint(d)
	}
	return s
}

// Contains reports whether the set includes d.
func (s WeekdaySet) Contains(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

// IsEmpty reports whether the set contains no weekdays.
func (s WeekdaySet) IsEmpty() bool { return s == 0 }

// Weekdays returns the members in Sunday-first order.
func (s WeekdaySet) Weekdays() []time.Weekday {
	out := make([]time.Weekday, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Contains(d) {
			out = append(out, d)
		}
	}
	return out
}

// String renders the set as a comma-joined list of short weekday names.
func (s WeekdaySet) String() string {
	names := make([]string, 0, 7)
	for _, d := range s.Weekdays() {
		names = append(names, d.String()[:3])
	}
	return strings.Join(names, ",")
}

// ScheduledActivity is a recurring assignment a trainer placed on a
// client's calendar. Records are owned by the schedule-management surface;
// this service only reads them.
type ScheduledActivity struct {
	ID        string
	TenantID  string
	ClientID  string
	Kind      ActivityKind
	Title     string
	Weekdays  WeekdaySet
	ValidFrom CalendarDay
	ValidTo   *CalendarDay // nil = open-ended
	DeletedAt *time.Time
}

// DueOn reports whether the activity is due on the given day: not
// soft-deleted, day inside the validity window, and the day's weekday in
// the activity's weekday set.
func (a ScheduledActivity) DueOn(day CalendarDay) bool {
	if a.DeletedAt != nil {
		return false
	}
	if day.Before(a.ValidFrom) {
		return false
	}
	if a.ValidTo != nil && day.After(*a.ValidTo) {
		return false
	}
	return a.Weekdays.Contains(day.Weekday())
}

// DueActivities returns every activity due on the given day. All matches
// are returned, duplicates included; callers decide how to present
// multiplicity. Pure function, no I/O.
func DueActivities(activities []ScheduledActivity, day CalendarDay) []ScheduledActivity {
	due := make([]ScheduledActivity, 0, len(activities))
	for _, a := range activities {
		if a.DueOn(day) {
			due = append(due, a)
		}
	}
	return due
}
