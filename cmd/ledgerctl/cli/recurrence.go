package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledger/calendar"
)

func newRecurrenceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurrence",
		Short: "Inspect recurring voucher schedules",
	}
	cmd.AddCommand(newRecurrencePreviewCommand())
	return cmd
}

type previewOptions struct {
	frequency string
	start     string
	end       string
	origin    string
	timezone  string
	days      []int
	months    []int
}

func newRecurrencePreviewCommand() *cobra.Command {
	var opts previewOptions

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the dates a recurring voucher would be generated on",
		Example: `  ledgerctl recurrence preview --frequency weekly --start 2024-01-01 --end 2024-01-31 --days 1
  ledgerctl recurrence preview --frequency monthly --start 2024-01-01 --end 2024-12-31 --months 2,3 --origin 2024-01-15`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dates, err := previewDates(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range dates {
				fmt.Fprintf(out, "%s %s\n", d.Format(calendar.DateLayout), d.Weekday())
			}
			fmt.Fprintf(out, "%d occurrence(s)\n", len(dates))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.frequency, "frequency", "", "WEEKLY or MONTHLY (required)")
	cmd.Flags().StringVar(&opts.start, "start", "", "schedule start date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&opts.end, "end", "", "schedule end date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&opts.origin, "origin", "", "date of the originating voucher; an occurrence on this day is skipped")
	cmd.Flags().StringVar(&opts.timezone, "timezone", "", "IANA timezone, defaults to LEDGER_TIMEZONE or UTC")
	cmd.Flags().IntSliceVar(&opts.days, "days", nil, "weekdays for WEEKLY, 0=Sunday..6=Saturday")
	cmd.Flags().IntSliceVar(&opts.months, "months", nil, "months for MONTHLY, 1..12")
	_ = cmd.MarkFlagRequired("frequency")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

func previewDates(opts previewOptions) ([]time.Time, error) {
	tz := opts.timezone
	if tz == "" {
		tz = os.Getenv("LEDGER_TIMEZONE")
	}
	loc := time.UTC
	if tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("timezone %q: %w", tz, err)
		}
	}

	frequency, err := ledger.ParseFrequency(opts.frequency)
	if err != nil {
		return nil, err
	}
	start, err := calendar.ParseDate(opts.start, loc)
	if err != nil {
		return nil, err
	}
	end, err := calendar.ParseDate(opts.end, loc)
	if err != nil {
		return nil, err
	}
	var origin int64
	if opts.origin != "" {
		day, err := calendar.ParseDate(opts.origin, loc)
		if err != nil {
			return nil, err
		}
		origin = calendar.ToEpoch(day)
	}

	return ledger.NewRecurrenceGenerator(loc).Dates(origin, ledger.RecurrenceInput{
		Frequency:    frequency,
		StartDate:    calendar.ToEpoch(start),
		EndDate:      calendar.ToEpoch(end),
		DaysOfWeek:   opts.days,
		MonthsOfYear: opts.months,
	})
}
