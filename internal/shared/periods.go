package shared

import (
	"errors"
	"time"
)

// Period identifies a calendar month as "YYYY-MM".
type Period string

// ErrInvalidPeriod indicates a malformed period key.
var ErrInvalidPeriod = errors.New("period key must be YYYY-MM")

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period(t.Format("2006-01"))
}

// ParsePeriod validates a period key.
func ParsePeriod(s string) (Period, error) {
	if _, err := time.Parse("2006-01", s); err != nil {
		return "", ErrInvalidPeriod
	}
	return Period(s), nil
}

// Bounds returns the half-open interval [start, end) covered by the period.
func (p Period) Bounds() (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01", string(p))
	if err != nil {
		return time.Time{}, time.Time{}, ErrInvalidPeriod
	}
	return start, start.AddDate(0, 1, 0), nil
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	start, end, err := p.Bounds()
	if err != nil {
		return false
	}
	return !t.Before(start) && t.Before(end)
}

func (p Period) String() string { return string(p) }
