// Package civiltime computes calendar boundaries in a single injected civil
// timezone. Every "today" and rolling-window read in the entitlement core goes
// through these helpers so day boundaries agree across components.
package civiltime

import "time"

// Day truncates the instant to midnight of its calendar day in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// Today returns midnight of the current calendar day in loc.
func Today(loc *time.Location) time.Time {
	return Day(time.Now(), loc)
}

// WindowStart returns midnight of the first day of the trailing window of
// `days` calendar days ending at (and including) the day containing t.
func WindowStart(t time.Time, days int, loc *time.Location) time.Time {
	if days < 1 {
		days = 1
	}
	return Day(t, loc).AddDate(0, 0, -(days - 1))
}

// MonthStart returns midnight of the first day of the month containing t.
func MonthStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
}

// NextMonth returns midnight of the first day of the month after t.
func NextMonth(t time.Time, loc *time.Location) time.Time {
	return MonthStart(t, loc).AddDate(0, 1, 0)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return Day(a, loc).Equal(Day(b, loc))
}
