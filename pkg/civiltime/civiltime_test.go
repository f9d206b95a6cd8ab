package civiltime

import (
	"testing"
	"time"
)

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("loading timezone: %v", err)
	}
	return loc
}

func TestDayUsesCivilTimezoneNotUTC(t *testing.T) {
	loc := saoPaulo(t)
	// 01:30 UTC is still the previous civil day in Sao Paulo (UTC-3).
	instant := time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC)
	day := Day(instant, loc)
	if day.Day() != 9 || day.Month() != time.March {
		t.Fatalf("expected civil day March 9, got %s", day)
	}
	if h, m, s := day.Clock(); h != 0 || m != 0 || s != 0 {
		t.Fatalf("expected midnight, got %s", day)
	}
}

func TestWindowStartSpansSevenDaysInclusive(t *testing.T) {
	loc := saoPaulo(t)
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, loc)
	start := WindowStart(now, 7, loc)
	want := time.Date(2026, 3, 4, 0, 0, 0, 0, loc)
	if !start.Equal(want) {
		t.Fatalf("expected window start %s, got %s", want, start)
	}
}

func TestMonthBoundaries(t *testing.T) {
	loc := saoPaulo(t)
	now := time.Date(2026, 2, 14, 23, 59, 0, 0, loc)
	if got := MonthStart(now, loc); got.Day() != 1 || got.Month() != time.February {
		t.Fatalf("expected Feb 1, got %s", got)
	}
	if got := NextMonth(now, loc); got.Day() != 1 || got.Month() != time.March {
		t.Fatalf("expected Mar 1, got %s", got)
	}
}

func TestSameDayAcrossTimezones(t *testing.T) {
	loc := saoPaulo(t)
	a := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)  // Mar 9 in Sao Paulo
	b := time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC)  // Mar 9 in Sao Paulo
	c := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) // Mar 10 in Sao Paulo
	if !SameDay(a, b, loc) {
		t.Fatal("expected a and b on the same civil day")
	}
	if SameDay(a, c, loc) {
		t.Fatal("expected a and c on different civil days")
	}
}
