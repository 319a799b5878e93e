package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrInvalidRule is returned for out-of-range weekdays or month days,
	// a non-positive interval, or an unknown rule kind.
	ErrInvalidRule = errors.New("invalid recurrence rule")
	// ErrInvalidBound is returned for a negative occurrence cap.
	ErrInvalidBound = errors.New("invalid recurrence bound")
)

// Kind selects the expansion strategy of a Rule.
type Kind string

const (
	KindSingle  Kind = "single"
	KindWeekly  Kind = "weekly"
	KindMonthly Kind = "monthly"
)

// Rule is the normalized input of the generators.
type Rule struct {
	Kind Kind

	// Anchor is the first possible occurrence. Every occurrence carries its
	// time-of-day. It is interpreted in UTC.
	Anchor time.Time

	// Weekdays holds 0 (Sunday) .. 6 (Saturday). Used by KindWeekly.
	Weekdays []int
	// MonthDays holds 1..31. Used by KindMonthly.
	MonthDays []int

	// Interval repeats every Interval weeks or months. Must be >= 1 for
	// recurring kinds.
	Interval int
}

// Bounds limits the generated sequence.
type Bounds struct {
	// EndDate, if set, is inclusive: an occurrence exactly at EndDate is
	// emitted, anything strictly after it is not.
	EndDate *time.Time
	// MaxOccurrences caps the sequence length. Zero means no cap.
	MaxOccurrences int
}

// Until is a convenience for building Bounds with an end date.
func Until(t time.Time) *time.Time {
	return &t
}

func (b Bounds) validate() error {
	if b.MaxOccurrences < 0 {
		return fmt.Errorf("%w: max occurrences %d is negative", ErrInvalidBound, b.MaxOccurrences)
	}
	return nil
}

// normalizeDays removes duplicates, sorts ascending and checks every value
// lies in [lo, hi]. An empty input defaults to fallback.
func normalizeDays(days []int, lo, hi, fallback int, what string) ([]int, error) {
	if len(days) == 0 {
		return []int{fallback}, nil
	}
	out := slices.Clone(days)
	for _, d := range out {
		if d < lo || d > hi {
			return nil, fmt.Errorf("%w: %s %d out of range %d-%d", ErrInvalidRule, what, d, lo, hi)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func validateInterval(interval int) error {
	if interval < 1 {
		return fmt.Errorf("%w: interval %d must be a positive integer", ErrInvalidRule, interval)
	}
	return nil
}
