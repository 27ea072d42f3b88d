// Package calendar holds the date arithmetic used by recurring and depreciation
// vouchers. Every function works at day granularity in the location of its
// arguments; callers pick the location once and pass it through.
package calendar

import (
	"fmt"
	"time"
)

// DateLayout is the layout accepted by ParseDate.
const DateLayout = "2006-01-02"

// IsLeapYear reports whether year has a February 29th.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	switch month {
	case time.February:
		if IsLeapYear(year) {
			return 29
		}
		return 28
	case time.April, time.June, time.September, time.November:
		return 30
	default:
		return 31
	}
}

// LastDayOfMonth returns midnight of the last calendar day of month in loc.
func LastDayOfMonth(year int, month time.Month, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(year, month, DaysIn(year, month), 0, 0, 0, 0, loc)
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// NextDay returns midnight of the day after t.
func NextDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar date. b is
// compared in a's location.
func SameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FromEpoch converts epoch seconds into a time in loc.
func FromEpoch(sec int64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(sec, 0).In(loc)
}

// ToEpoch converts t into epoch seconds.
func ToEpoch(t time.Time) int64 {
	return t.Unix()
}

// ParseDate parses a YYYY-MM-DD date at midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: parse date %q: %w", value, err)
	}
	return t, nil
}

// WeekdayDates returns every date in [start, end] falling on weekday, in
// ascending order. Times of day on start and end are ignored.
func WeekdayDates(start, end time.Time, weekday time.Weekday) []time.Time {
	from := StartOfDay(start)
	to := StartOfDay(end.In(from.Location()))
	if to.Before(from) {
		return nil
	}
	offset := (int(weekday) - int(from.Weekday()) + 7) % 7
	y, m, d := from.Date()
	var out []time.Time
	for step := offset; ; step += 7 {
		day := time.Date(y, m, d+step, 0, 0, 0, 0, from.Location())
		if day.After(to) {
			break
		}
		out = append(out, day)
	}
	return out
}

// MonthEnds returns the last day of every occurrence of month whose month-end
// lies in [start, end], in ascending order.
func MonthEnds(start, end time.Time, month time.Month) []time.Time {
	from := StartOfDay(start)
	to := StartOfDay(end.In(from.Location()))
	if to.Before(from) {
		return nil
	}
	var out []time.Time
	for year := from.Year(); year <= to.Year(); year++ {
		last := LastDayOfMonth(year, month, from.Location())
		if last.Before(from) || last.After(to) {
			continue
		}
		out = append(out, last)
	}
	return out
}
