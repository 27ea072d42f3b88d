package ledger

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/calendar"
)

// RecurrenceInput describes a weekly or monthly schedule. Dates are epoch
// seconds; DaysOfWeek uses 0=Sunday..6=Saturday, MonthsOfYear uses 1..12.
type RecurrenceInput struct {
	Frequency    Frequency
	StartDate    int64
	EndDate      int64
	DaysOfWeek   []int
	MonthsOfYear []int
}

// DefaultMaxOccurrences caps the dates one schedule may produce. It fits a
// Monday, Wednesday and Friday schedule over ten years.
const DefaultMaxOccurrences = 2000

// RecurrenceGenerator materialises future vouchers for a schedule.
type RecurrenceGenerator struct {
	loc            *time.Location
	newRef         func() string
	maxOccurrences int
}

// NewRecurrenceGenerator builds a generator evaluating dates in loc.
func NewRecurrenceGenerator(loc *time.Location) RecurrenceGenerator {
	if loc == nil {
		loc = time.UTC
	}
	return RecurrenceGenerator{loc: loc, newRef: uuid.NewString, maxOccurrences: DefaultMaxOccurrences}
}

// WithMaxOccurrences returns a copy of g capped at n dates. n <= 0 keeps
// the current cap.
func (g RecurrenceGenerator) WithMaxOccurrences(n int) RecurrenceGenerator {
	if n > 0 {
		g.maxOccurrences = n
	}
	return g
}

// Validate checks the schedule without computing dates.
func (in RecurrenceInput) Validate() error {
	if in.Frequency != FrequencyWeekly && in.Frequency != FrequencyMonthly {
		return fmt.Errorf("%w: %q", ErrUnsupportedFrequency, in.Frequency)
	}
	if in.StartDate <= 0 || in.EndDate <= 0 {
		return fmt.Errorf("%w: start and end date required", ErrInvalidSchedule)
	}
	if in.EndDate < in.StartDate {
		return fmt.Errorf("%w: end date before start date", ErrInvalidSchedule)
	}
	switch in.Frequency {
	case FrequencyWeekly:
		if len(in.DaysOfWeek) == 0 {
			return fmt.Errorf("%w: days of week required", ErrInvalidSchedule)
		}
		for _, d := range in.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("%w: day of week %d", ErrInvalidSchedule, d)
			}
		}
	case FrequencyMonthly:
		if len(in.MonthsOfYear) == 0 {
			return fmt.Errorf("%w: months of year required", ErrInvalidSchedule)
		}
		for _, m := range in.MonthsOfYear {
			if m < 1 || m > 12 {
				return fmt.Errorf("%w: month %d", ErrInvalidSchedule, m)
			}
		}
	}
	return nil
}

// Dates returns the occurrence dates for the schedule, ascending. When the
// earliest occurrence falls on originDate the start moves forward one day so
// the triggering voucher is not repeated.
func (g RecurrenceGenerator) Dates(originDate int64, in RecurrenceInput) ([]time.Time, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if g.maxOccurrences > 0 && minOccurrences(in)-1 > g.maxOccurrences {
		return nil, fmt.Errorf("%w: more than %d occurrences", ErrInvalidSchedule, g.maxOccurrences)
	}
	start := calendar.FromEpoch(in.StartDate, g.loc)
	end := calendar.FromEpoch(in.EndDate, g.loc)
	dates := g.occurrences(start, end, in)
	if len(dates) > 0 && calendar.SameDay(dates[0], calendar.FromEpoch(originDate, g.loc)) {
		dates = g.occurrences(calendar.NextDay(start), end, in)
	}
	if g.maxOccurrences > 0 && len(dates) > g.maxOccurrences {
		return nil, fmt.Errorf("%w: %d occurrences, at most %d allowed", ErrInvalidSchedule, len(dates), g.maxOccurrences)
	}
	return dates, nil
}

// minOccurrences is a lower bound on the dates of a validated schedule: every
// full week holds each weekday once and every full leap-sized year holds each
// month end once. It lets oversized spans be rejected before enumeration.
func minOccurrences(in RecurrenceInput) int {
	days := (in.EndDate - in.StartDate) / 86400
	switch in.Frequency {
	case FrequencyWeekly:
		return len(dedupe(in.DaysOfWeek)) * int(days/7)
	case FrequencyMonthly:
		return len(dedupe(in.MonthsOfYear)) * int(days/366)
	}
	return 0
}

func (g RecurrenceGenerator) occurrences(start, end time.Time, in RecurrenceInput) []time.Time {
	var dates []time.Time
	switch in.Frequency {
	case FrequencyWeekly:
		for _, d := range dedupe(in.DaysOfWeek) {
			dates = append(dates, calendar.WeekdayDates(start, end, time.Weekday(d))...)
		}
	case FrequencyMonthly:
		for _, m := range dedupe(in.MonthsOfYear) {
			dates = append(dates, calendar.MonthEnds(start, end, time.Month(m))...)
		}
	}
	slices.SortStableFunc(dates, func(a, b time.Time) int { return a.Compare(b) })
	return dates
}

// Generate builds one UPCOMING voucher per occurrence, copied from origin,
// and the REPEAT event pairing origin with each of them.
func (g RecurrenceGenerator) Generate(origin Voucher, in RecurrenceInput) (Event, []Voucher, error) {
	dates, err := g.Dates(origin.Date, in)
	if err != nil {
		return Event{}, nil, err
	}
	if len(dates) == 0 {
		return Event{}, nil, ErrEmptySchedule
	}
	event := Event{
		CompanyID: origin.CompanyID,
		Type:      EventTypeRepeat,
		Frequency: in.Frequency,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
	}
	if in.Frequency == FrequencyWeekly {
		event.DaysOfWeek = dedupe(in.DaysOfWeek)
	} else {
		event.MonthsOfYear = dedupe(in.MonthsOfYear)
	}
	vouchers := make([]Voucher, 0, len(dates))
	for _, day := range dates {
		v := g.copyVoucher(origin, calendar.ToEpoch(day))
		vouchers = append(vouchers, v)
		event.Pairs = append(event.Pairs, AssociateVoucherPair{OriginalVoucher: origin, ResultVoucher: v})
	}
	return event, vouchers, nil
}

func (g RecurrenceGenerator) copyVoucher(origin Voucher, date int64) Voucher {
	lines := make([]LineItem, 0, len(origin.LineItems))
	for _, li := range origin.LineItems {
		lines = append(lines, LineItem{
			Ref:         g.newRef(),
			AccountID:   li.AccountID,
			Account:     li.Account,
			Debit:       li.Debit,
			Amount:      li.Amount,
			Description: li.Description,
		})
	}
	return Voucher{
		Ref:            g.newRef(),
		CompanyID:      origin.CompanyID,
		IssuerID:       origin.IssuerID,
		CounterpartyID: origin.CounterpartyID,
		Type:           origin.Type,
		Status:         VoucherStatusUpcoming,
		Editable:       true,
		Number:         origin.Number,
		Date:           date,
		LineItems:      lines,
	}
}

func dedupe(values []int) []int {
	out := make([]int, 0, len(values))
	for _, v := range values {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
