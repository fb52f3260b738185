// Package timeutil provides UTC calendar-day utilities for PMCraft Hub.
// Streaks and daily activity are counted in whole UTC calendar days, so every
// timestamp is normalized to a UTC day boundary before any day arithmetic.
package timeutil

import "time"

// Date creates a UTC time with the given date at midnight.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// DateTime creates a UTC time with the given date and time.
func DateTime(year, month, day, hour, min, sec int) time.Time {
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
}

// StartOfDay returns the start of the day (00:00:00) in UTC.
func StartOfDay(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

// IsSameDay checks if two times fall on the same UTC calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	u1, u2 := t1.UTC(), t2.UTC()
	return u1.Year() == u2.Year() && u1.YearDay() == u2.YearDay()
}

// IsConsecutiveDay checks if t2 falls on the UTC day right after t1.
func IsConsecutiveDay(t1, t2 time.Time) bool {
	nextDay := StartOfDay(t1).AddDate(0, 0, 1)
	return IsSameDay(nextDay, t2)
}

// DaysBetween returns the number of whole UTC calendar days from t1 to t2.
// The result is negative when t2 is on an earlier day than t1, which is how
// callers detect clock skew and replayed events.
func DaysBetween(t1, t2 time.Time) int {
	d1 := StartOfDay(t1)
	d2 := StartOfDay(t2)
	// Both values are UTC midnights, so plain hour division is exact.
	return int(d2.Sub(d1).Hours() / 24)
}

// UntilEndOfDay returns the duration from t until its UTC day boundary.
// The streak sweep uses this to know how long a user still has to keep a
// streak alive.
func UntilEndOfDay(t time.Time) time.Duration {
	return StartOfDay(t).AddDate(0, 0, 1).Sub(t.UTC())
}

// FormatDate is the wire format for calendar dates (YYYY-MM-DD).
const FormatDate = "2006-01-02"

// ParseDate parses a date string (YYYY-MM-DD) as a UTC midnight.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, time.UTC)
}
