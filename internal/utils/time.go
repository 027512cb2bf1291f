package utils

import "time"

// FarFuture marks open-ended dates in factor and map files.
var FarFuture = time.Date(2050, 12, 31, 0, 0, 0, 0, time.UTC)

// DateOf returns the calendar date of t, in t's own location, as midnight UTC.
// It is the key used to compare dates across time zones.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfDay returns midnight of the calendar date in the given location.
func StartOfDay(date time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}

	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
}

// SameDate reports whether two times fall on the same calendar date in their own locations.
func SameDate(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}
