package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func formatAll(days []time.Time) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, d.Format(DateLayout))
	}
	return out
}

func TestIsLeapYear(t *testing.T) {
	tests := []struct {
		year int
		want bool
	}{
		{2023, false},
		{2024, true},
		{1900, false},
		{2000, true},
		{2100, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsLeapYear(tt.year), "IsLeapYear(%d)", tt.year)
	}
}

func TestLastDayOfMonth(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		want  string
	}{
		{2024, time.February, "2024-02-29"},
		{2023, time.February, "2023-02-28"},
		{2024, time.April, "2024-04-30"},
		{2024, time.December, "2024-12-31"},
		{2024, time.January, "2024-01-31"},
	}
	for _, tt := range tests {
		got := LastDayOfMonth(tt.year, tt.month, time.UTC)
		assert.Equal(t, tt.want, got.Format(DateLayout))
	}
}

func TestWeekdayDates(t *testing.T) {
	got := WeekdayDates(date(2024, 1, 1), date(2024, 1, 31), time.Monday)
	assert.Equal(t, []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22", "2024-01-29"}, formatAll(got))

	got = WeekdayDates(date(2024, 1, 2), date(2024, 1, 14), time.Sunday)
	assert.Equal(t, []string{"2024-01-07", "2024-01-14"}, formatAll(got))

	assert.Empty(t, WeekdayDates(date(2024, 1, 31), date(2024, 1, 1), time.Monday))
}

func TestWeekdayDatesIgnoresTimeOfDay(t *testing.T) {
	start := time.Date(2024, 1, 1, 18, 30, 0, 0, time.UTC)
	end := time.Date(2024, 1, 8, 1, 0, 0, 0, time.UTC)
	got := WeekdayDates(start, end, time.Monday)
	assert.Equal(t, []string{"2024-01-01", "2024-01-08"}, formatAll(got))
}

func TestWeekdayDatesAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, loc)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, loc)
	got := WeekdayDates(start, end, time.Sunday)
	require.Len(t, got, 5)
	for _, d := range got {
		assert.Equal(t, 0, d.Hour())
	}
	assert.Equal(t, "2024-03-10", got[1].Format(DateLayout))
}

func TestMonthEnds(t *testing.T) {
	got := MonthEnds(date(2024, 1, 1), date(2024, 4, 30), time.February)
	assert.Equal(t, []string{"2024-02-29"}, formatAll(got))

	got = MonthEnds(date(2024, 1, 1), date(2024, 4, 30), time.April)
	assert.Equal(t, []string{"2024-04-30"}, formatAll(got))

	got = MonthEnds(date(2023, 3, 1), date(2025, 3, 30), time.March)
	assert.Equal(t, []string{"2023-03-31", "2024-03-31"}, formatAll(got))

	assert.Empty(t, MonthEnds(date(2024, 1, 1), date(2024, 4, 29), time.April))
}

func TestSameDayAndNextDay(t *testing.T) {
	a := time.Date(2024, 2, 28, 23, 0, 0, 0, time.UTC)
	assert.True(t, SameDay(a, date(2024, 2, 28)))
	assert.False(t, SameDay(a, date(2024, 2, 29)))
	assert.Equal(t, "2024-02-29", NextDay(a).Format(DateLayout))
	assert.Equal(t, "2024-03-01", NextDay(date(2024, 2, 29)).Format(DateLayout))
}

func TestEpochRoundTrip(t *testing.T) {
	d := date(2024, 1, 15)
	sec := ToEpoch(d)
	assert.Equal(t, int64(1705276800), sec)
	assert.True(t, FromEpoch(sec, time.UTC).Equal(d))
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-02-29", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, date(2024, 2, 29), got)

	_, err = ParseDate("2023-02-29", time.UTC)
	assert.Error(t, err)
}
