package recurrence

import "time"

// AddDays returns t shifted by n calendar days in UTC. Time-of-day is kept.
func AddDays(t time.Time, n int) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day()+n,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// AddMonths returns t with year/month shifted by n months, keeping the day
// of month and time-of-day. Like time.Date it rolls over when the target
// month is shorter (Jan 31 + 1 month = Mar 3); callers that care must check
// the resulting month.
func AddMonths(t time.Time, n int) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+time.Month(n), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Compare orders two timestamps by absolute instant.
func Compare(a, b time.Time) int {
	return a.Compare(b)
}

// SameOrAfter reports whether a is the same instant as b or later.
func SameOrAfter(a, b time.Time) bool {
	return !a.Before(b)
}

// DateInMonth builds year-month-day at tod's time-of-day in UTC. ok is false
// when day does not exist in that month.
func DateInMonth(year int, month time.Month, day int, tod time.Time) (t time.Time, ok bool) {
	tod = tod.UTC()
	t = time.Date(year, month, day, tod.Hour(), tod.Minute(), tod.Second(), tod.Nanosecond(), time.UTC)
	return t, t.Month() == month && t.Day() == day
}

// startOfWeek returns midnight UTC of the Sunday that begins t's week.
func startOfWeek(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day()-int(t.Weekday()), 0, 0, 0, 0, time.UTC)
}

// startOfMonth returns midnight UTC of the first day of t's month shifted by n months.
func startOfMonth(t time.Time, n int) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
}
