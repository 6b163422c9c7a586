package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var ErrInvalidDateRange = errors.New("invalid date range")

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func ParseDateRange(start string, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, strings.TrimSpace(start))
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: start %q is not YYYY-MM-DD", ErrInvalidDateRange, start)
	}
	e, err := time.Parse(DateLayout, strings.TrimSpace(end))
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: end %q is not YYYY-MM-DD", ErrInvalidDateRange, end)
	}
	if e.Before(s) {
		return DateRange{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidDateRange, start, end)
	}
	return DateRange{Start: s, End: e}, nil
}

// Bounds returns both ends formatted as YYYY-MM-DD for SQL parameters.
func (r DateRange) Bounds() (string, string) {
	return r.Start.Format(DateLayout), r.End.Format(DateLayout)
}

func (r DateRange) String() string {
	s, e := r.Bounds()
	return s + ".." + e
}
