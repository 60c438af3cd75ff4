package commerce

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - One calendar month in the reference time zone
// =============================================================================

// Period identifies a calendar month. It is resolved against a reference
// *time.Location when turned into instants.
type Period struct {
	Month time.Month
	Year  int
}

// NewPeriod validates and builds a Period from plain integers.
func NewPeriod(month, year int) (Period, error) {
	p := Period{Month: time.Month(month), Year: year}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// PeriodOf returns the month containing t, as seen in loc.
func PeriodOf(t time.Time, loc *time.Location) Period {
	t = t.In(locationOrLocal(loc))
	return Period{Month: t.Month(), Year: t.Year()}
}

func (p Period) Validate() error {
	if p.Month < time.January || p.Month > time.December || p.Year <= 0 {
		return &PeriodError{Month: int(p.Month), Year: p.Year}
	}
	return nil
}

// Bounds returns the inclusive range [first day 00:00:00, last day 23:59:59.999999999].
func (p Period) Bounds(loc *time.Location) (start, end time.Time) {
	loc = locationOrLocal(loc)
	start = time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, loc)
	end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end
}

// Contains reports whether t falls inside the period in loc.
func (p Period) Contains(t time.Time, loc *time.Location) bool {
	start, end := p.Bounds(loc)
	return !t.Before(start) && !t.After(end)
}

func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func locationOrLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
