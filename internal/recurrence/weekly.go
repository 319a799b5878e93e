package recurrence

import (
	"iter"
	"time"
)

// weekly expands a weekday-set rule. Block 0 is the Sunday-first week that
// contains the anchor; candidates earlier in that week than the anchor are
// dropped by expand.
func weekly(anchor time.Time, weekdays []int, interval int, p policy) iter.Seq[time.Time] {
	weekStart := startOfWeek(anchor)
	// Sunday of the anchor's week at the anchor's time-of-day.
	sunday := AddDays(anchor, -int(anchor.Weekday()))

	return expand(anchor, interval, maxWeekOffset, p, func(offset int) (time.Time, []time.Time) {
		days := offset * 7
		candidates := make([]time.Time, 0, len(weekdays))
		for _, wd := range weekdays {
			candidates = append(candidates, AddDays(sunday, days+wd))
		}
		return AddDays(weekStart, days), candidates
	})
}

// GenerateWeekly expands r as a weekly rule, ignoring r.Kind. Weekdays are
// 0 (Sunday) .. 6 (Saturday); an empty set defaults to the anchor's weekday.
func GenerateWeekly(r Rule, b Bounds) ([]time.Time, error) {
	r.Kind = KindWeekly
	seq, err := Occurrences(r, b)
	if err != nil {
		return nil, err
	}
	return collect(seq), nil
}
