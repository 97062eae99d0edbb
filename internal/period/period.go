// Package period models the (year, month) compositing grid and inclusive date ranges.
package period

import (
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Period is one calendar month.
type Period struct {
	Year  int `json:"year" yaml:"year"`
	Month int `json:"month" yaml:"month"`
}

// Start returns the first instant of the month in UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant of the following month (exclusive bound).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Contains reports whether t falls inside the month.
func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start()) && t.Before(p.End())
}

// TimeStartMillis is the month start as milliseconds since the Unix epoch.
func (p Period) TimeStartMillis() int64 {
	return p.Start().UnixMilli()
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Range is the Cartesian product of an inclusive year range and an inclusive
// month range, iterated year-major.
type Range struct {
	YearStart  int `json:"year_start" yaml:"year_start"`
	YearEnd    int `json:"year_end" yaml:"year_end"`
	MonthStart int `json:"month_start" yaml:"month_start"`
	MonthEnd   int `json:"month_end" yaml:"month_end"`
}

// Validate rejects ranges that would yield no periods.
func (r Range) Validate() error {
	if r.MonthStart < 1 || r.MonthEnd > 12 {
		return eris.Errorf("period: months must be within 1..12, got %d..%d", r.MonthStart, r.MonthEnd)
	}
	if r.YearStart > r.YearEnd {
		return eris.Errorf("period: empty year range %d..%d", r.YearStart, r.YearEnd)
	}
	if r.MonthStart > r.MonthEnd {
		return eris.Errorf("period: empty month range %d..%d", r.MonthStart, r.MonthEnd)
	}
	return nil
}

// Len is the number of periods in the range, zero when it is empty.
func (r Range) Len() int {
	years := r.YearEnd - r.YearStart + 1
	months := r.MonthEnd - r.MonthStart + 1
	if years <= 0 || months <= 0 {
		return 0
	}
	return years * months
}

// All yields every period in year-major order. It can be ranged over repeatedly.
func (r Range) All() iter.Seq[Period] {
	return func(yield func(Period) bool) {
		for y := r.YearStart; y <= r.YearEnd; y++ {
			for m := r.MonthStart; m <= r.MonthEnd; m++ {
				if !yield(Period{Year: y, Month: m}) {
					return
				}
			}
		}
	}
}

// Slice materializes the range.
func (r Range) Slice() []Period {
	out := make([]Period, 0, r.Len())
	for p := range r.All() {
		out = append(out, p)
	}
	return out
}

// DateLayout is the ISO date layout used for date range bounds.
const DateLayout = "2006-01-02"

// DateRange is an inclusive [Start, End] calendar-date filter.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses two ISO dates and checks start <= end.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, eris.Wrapf(err, "period: parse start date %q", start)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, eris.Wrapf(err, "period: parse end date %q", end)
	}
	dr := DateRange{Start: s, End: e}
	if err := dr.Validate(); err != nil {
		return DateRange{}, err
	}
	return dr, nil
}

// Validate checks start <= end.
func (d DateRange) Validate() error {
	if d.End.Before(d.Start) {
		return eris.Errorf("period: start date %s is after end date %s",
			d.Start.Format(DateLayout), d.End.Format(DateLayout))
	}
	return nil
}

// Contains reports whether t falls on or between the start and end dates.
// The end date includes its whole day.
func (d DateRange) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(d.Start) && t.Before(d.End.AddDate(0, 0, 1))
}

// Overlaps reports whether any day of p lies inside the date range.
func (d DateRange) Overlaps(p Period) bool {
	return p.Start().Before(d.End.AddDate(0, 0, 1)) && p.End().After(d.Start)
}

// Clip narrows the range to the days of p. It reports false when p lies
// entirely outside the range.
func (d DateRange) Clip(p Period) (DateRange, bool) {
	if !d.Overlaps(p) {
		return DateRange{}, false
	}
	out := d
	if p.Start().After(out.Start) {
		out.Start = p.Start()
	}
	if last := p.End().AddDate(0, 0, -1); last.Before(out.End) {
		out.End = last
	}
	return out, true
}

// MarshalText encodes the range as "start/end".
func (d DateRange) MarshalText() ([]byte, error) {
	return []byte(d.Start.Format(DateLayout) + "/" + d.End.Format(DateLayout)), nil
}

// UnmarshalText parses "start/end".
func (d *DateRange) UnmarshalText(b []byte) error {
	start, end, ok := strings.Cut(string(b), "/")
	if !ok {
		return eris.Errorf("period: date range %q must be start/end", string(b))
	}
	dr, err := ParseDateRange(start, end)
	if err != nil {
		return err
	}
	*d = dr
	return nil
}
