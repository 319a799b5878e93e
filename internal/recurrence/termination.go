package recurrence

import (
	"iter"
	"time"
)

const (
	// SafetyCap is the maximum number of occurrences produced by a single
	// expansion, whatever bounds the caller supplied.
	SafetyCap = 10000

	// HorizonYears is how far past the anchor's year an expansion may reach.
	// Some rules never yield a candidate (day 30 every 12 months from
	// February), so the output-length cap alone cannot guarantee termination.
	HorizonYears = 1_000_000

	// Block offsets past these limits start beyond the horizon. Checking
	// them before advancing keeps the offset arithmetic from overflowing
	// for huge intervals.
	maxWeekOffset  = (HorizonYears + 1) * 53
	maxMonthOffset = (HorizonYears + 1) * 12
)

// policy decides when an expansion stops. Weekly, monthly and single
// expansions share it.
type policy struct {
	end    time.Time
	hasEnd bool
	max    int

	// lastYear is the final calendar year inside the horizon.
	lastYear int
}

// progress is the per-expansion counter state. A fresh value is used for
// every iteration of a sequence.
type progress struct {
	emitted int
}

func newPolicy(b Bounds, anchor time.Time) policy {
	p := policy{max: b.MaxOccurrences, lastYear: anchor.Year() + HorizonYears}
	if b.EndDate != nil {
		p.end = b.EndDate.UTC()
		p.hasEnd = true
	}
	return p
}

func (p policy) boundExceeded(t time.Time) bool {
	return p.hasEnd && t.After(p.end)
}

func (p policy) capReached(pr progress) bool {
	return p.max > 0 && pr.emitted >= p.max
}

func (p policy) safetyCapReached(pr progress, t time.Time) bool {
	return pr.emitted >= SafetyCap || t.Year() > p.lastYear
}

// stop is the single place where the stopping predicates are evaluated,
// both for a block's first instant and for each candidate about to be
// emitted.
func (p policy) stop(pr progress, t time.Time) bool {
	return p.boundExceeded(t) || p.capReached(pr) || p.safetyCapReached(pr, t)
}

// blockFunc returns the first instant of the block offset units (weeks or
// months) past block 0, and its candidates in ascending order.
type blockFunc func(offset int) (start time.Time, candidates []time.Time)

// expand walks blocks 0, interval, 2*interval, ... up to maxOffset and
// yields admissible candidates until the policy says stop.
func expand(anchor time.Time, interval, maxOffset int, p policy, block blockFunc) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		var pr progress
		for offset := 0; ; offset += interval {
			start, candidates := block(offset)
			if p.stop(pr, start) {
				return
			}
			for _, c := range candidates {
				if !SameOrAfter(c, anchor) {
					continue
				}
				if p.stop(pr, c) {
					return
				}
				if !yield(c) {
					return
				}
				pr.emitted++
			}
			if interval > maxOffset-offset {
				return
			}
		}
	}
}
