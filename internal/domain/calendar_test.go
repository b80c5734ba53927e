package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDayOfIgnoresHostTimezone(t *testing.T) {
	instant := time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC)

	zones := []*time.Location{
		time.UTC,
		time.FixedZone("UTC-08", -8*60*60),
		time.FixedZone("UTC+09", 9*60*60),
		time.FixedZone("UTC+13", 13*60*60),
	}

	original := time.Local
	defer func() { time.Local = original }()

	var days []CalendarDay
	for _, zone := range zones {
		time.Local = zone
		days = append(days, DayOf(instant.In(zone)))
	}

	for _, day := range days {
		require.Equal(t, days[0], day, "normalised day must not depend on host zone")
	}
	require.Equal(t, CalendarDay{2025, time.January, 15}, days[0])
}

func TestDayOfSameReferenceDayCollapses(t *testing.T) {
	// Reference day 2025-01-15 runs from 2025-01-14T22:00Z to 2025-01-15T22:00Z.
	instants := []time.Time{
		time.Date(2025, time.January, 14, 22, 0, 0, 0, time.UTC),
		time.Date(2025, time.January, 15, 8, 30, 0, 0, time.UTC),
		time.Date(2025, time.January, 15, 21, 59, 59, 0, time.UTC),
	}
	for _, instant := range instants {
		require.Equal(t, CalendarDay{2025, time.January, 15}, DayOf(instant))
	}
}

func TestDayOfBoundarySplits(t *testing.T) {
	before := time.Date(2025, time.January, 15, 21, 59, 59, 0, time.UTC)
	after := time.Date(2025, time.January, 15, 22, 0, 0, 0, time.UTC)

	require.Equal(t, CalendarDay{2025, time.January, 15}, DayOf(before))
	require.Equal(t, CalendarDay{2025, time.January, 16}, DayOf(after))
}

func TestWeekdayIsPureCalendarMath(t *testing.T) {
	require.Equal(t, time.Wednesday, CalendarDay{2025, time.January, 15}.Weekday())
	require.Equal(t, time.Saturday, CalendarDay{2025, time.February, 1}.Weekday())

	// An instant late on a UTC Tuesday is already Wednesday in the
	// reference zone; the weekday must follow the normalised day.
	instant := time.Date(2025, time.January, 14, 23, 30, 0, 0, time.UTC)
	require.Equal(t, time.Wednesday, DayOf(instant).Weekday())
}

func TestAddDaysCrossesMonthAndYear(t *testing.T) {
	require.Equal(t, CalendarDay{2025, time.February, 2}, CalendarDay{2025, time.January, 26}.AddDays(7))
	require.Equal(t, CalendarDay{2026, time.January, 1}, CalendarDay{2025, time.December, 31}.AddDays(1))
	require.Equal(t, CalendarDay{2025, time.January, 9}, CalendarDay{2025, time.January, 16}.AddDays(-7))
}

func TestCalendarDayOrdering(t *testing.T) {
	a := CalendarDay{2025, time.January, 10}
	b := CalendarDay{2025, time.January, 11}

	require.True(t, a.Before(b))
	require.True(t, b.After(a))
	require.False(t, a.After(b))
	require.True(t, a.Equal(a))
	require.False(t, a.Equal(b))
}

func TestCalendarDayJSONRoundTrip(t *testing.T) {
	day := CalendarDay{2025, time.March, 7}

	data, err := json.Marshal(day)
	require.NoError(t, err)
	require.JSONEq(t, `"2025-03-07"`, string(data))

	var decoded CalendarDay
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, day, decoded)
}

func TestParseCalendarDayRejectsGarbage(t *testing.T) {
	_, err := ParseCalendarDay("15/01/2025")
	require.Error(t, err)

	_, err = ParseCalendarDay("2025-13-40")
	require.Error(t, err)
}
