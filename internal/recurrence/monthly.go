package recurrence

import (
	"iter"
	"time"
)

// monthly expands a month-day-set rule. Block 0 is the anchor's month. Days
// missing from a month (Feb 30, Apr 31) are skipped for that month.
func monthly(anchor time.Time, monthDays []int, interval int, p policy) iter.Seq[time.Time] {
	return expand(anchor, interval, maxMonthOffset, p, func(offset int) (time.Time, []time.Time) {
		first := startOfMonth(anchor, offset)
		candidates := make([]time.Time, 0, len(monthDays))
		for _, d := range monthDays {
			c, ok := DateInMonth(first.Year(), first.Month(), d, anchor)
			if !ok {
				continue
			}
			candidates = append(candidates, c)
		}
		return first, candidates
	})
}

// GenerateMonthly expands r as a monthly rule, ignoring r.Kind. Month days
// are 1..31; an empty set defaults to the anchor's day of month.
func GenerateMonthly(r Rule, b Bounds) ([]time.Time, error) {
	r.Kind = KindMonthly
	seq, err := Occurrences(r, b)
	if err != nil {
		return nil, err
	}
	return collect(seq), nil
}
