package recurrence

import (
	"fmt"
	"iter"
	"time"
)

// Occurrences validates r and b and returns the lazily produced, strictly
// ascending occurrence sequence. Every range over the sequence recomputes it
// from the rule, so it may be consumed repeatedly and concurrently.
func Occurrences(r Rule, b Bounds) (iter.Seq[time.Time], error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	anchor := r.Anchor.UTC()
	p := newPolicy(b, anchor)

	switch r.Kind {
	case KindSingle, "":
		return single(anchor, p), nil

	case KindWeekly:
		if err := validateInterval(r.Interval); err != nil {
			return nil, err
		}
		days, err := normalizeDays(r.Weekdays, 0, 6, int(anchor.Weekday()), "weekday")
		if err != nil {
			return nil, err
		}
		return weekly(anchor, days, r.Interval, p), nil

	case KindMonthly:
		if err := validateInterval(r.Interval); err != nil {
			return nil, err
		}
		days, err := normalizeDays(r.MonthDays, 1, 31, anchor.Day(), "month day")
		if err != nil {
			return nil, err
		}
		return monthly(anchor, days, r.Interval, p), nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, r.Kind)
	}
}

// Generate expands r according to its Kind. An empty Kind is treated as
// KindSingle.
func Generate(r Rule, b Bounds) ([]time.Time, error) {
	seq, err := Occurrences(r, b)
	if err != nil {
		return nil, err
	}
	return collect(seq), nil
}

// GenerateSingle returns the anchor alone, or nothing when the anchor is
// after b.EndDate.
func GenerateSingle(anchor time.Time, b Bounds) ([]time.Time, error) {
	return Generate(Rule{Kind: KindSingle, Anchor: anchor}, b)
}

func single(anchor time.Time, p policy) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if p.stop(progress{}, anchor) {
			return
		}
		yield(anchor)
	}
}

func collect(seq iter.Seq[time.Time]) []time.Time {
	out := make([]time.Time, 0)
	for t := range seq {
		out = append(out, t)
	}
	return out
}
