package parser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

var (
	// ErrInvalidTimedelta is returned for compact durations that cannot be parsed
	ErrInvalidTimedelta = errors.New("invalid time delta")
	// ErrInvalidDateRange is returned when a date range cannot be computed from the given bounds
	ErrInvalidDateRange = errors.New("invalid date range")
)

const day = 24 * time.Hour

// Month and year are imprecise: 30.4 and 365 days
var timedeltaUnits = map[byte]float64{
	'y': float64(365 * day),
	'm': 30.4 * float64(day),
	'w': float64(7 * day),
	'd': float64(day),
	'H': float64(time.Hour),
	'M': float64(time.Minute),
	'S': float64(time.Second),
}

// BuildTimedelta parses a compact duration "<n><unit>" where n is a positive integer
// and unit is one of y, m, w, d, H, M, S. For example "5H" is five hours.
func BuildTimedelta(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q is shorter than 2 characters", ErrInvalidTimedelta, s)
	}

	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q does not start with a number", ErrInvalidTimedelta, s)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: %q must be > 0", ErrInvalidTimedelta, s)
	}

	unit, ok := timedeltaUnits[s[len(s)-1]]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit in %q, expecting one of y,m,w,d,H,M,S", ErrInvalidTimedelta, s)
	}

	d := float64(n) * unit
	if d >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidTimedelta, s)
	}
	return time.Duration(d), nil
}

// CalcDateRange returns (from, from+delta) when from is set or (to-delta, to) when to is set.
// Exactly one of from and to must be given.
func CalcDateRange(delta time.Duration, from, to *time.Time) (time.Time, time.Time, error) {
	if delta <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: delta must be > 0", ErrInvalidDateRange)
	}
	switch {
	case from != nil && to != nil:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: only one of from or to may be set", ErrInvalidDateRange)
	case from != nil:
		return *from, from.Add(delta), nil
	case to != nil:
		return to.Add(-delta), *to, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: one of from or to is required", ErrInvalidDateRange)
	}
}

var whenLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseWhen parses a timestamp or a bare date. A bare date (2006-01-02) is midnight local time.
func ParseWhen(s string) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, s, time.Local); err == nil {
		return t, nil
	}
	for _, layout := range whenLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date/time %q", s)
}
