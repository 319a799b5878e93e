package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// rruleWeekdays maps 0 (Sunday) .. 6 (Saturday) to rrule-go weekdays.
var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// ROption converts r and b into the equivalent rrule-go options with
// Dtstart set to the anchor. Single rules have no RRULE and return ok=false.
// Weeks start on Sunday (WKST=SU) so INTERVAL>1 lines up with week blocks.
func ROption(r Rule, b Bounds) (opt rrule.ROption, ok bool, err error) {
	if err := b.validate(); err != nil {
		return opt, false, err
	}
	anchor := r.Anchor.UTC()

	switch r.Kind {
	case KindSingle, "":
		return opt, false, nil

	case KindWeekly:
		if err := validateInterval(r.Interval); err != nil {
			return opt, false, err
		}
		days, err := normalizeDays(r.Weekdays, 0, 6, int(anchor.Weekday()), "weekday")
		if err != nil {
			return opt, false, err
		}
		opt.Freq = rrule.WEEKLY
		for _, d := range days {
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[d])
		}

	case KindMonthly:
		if err := validateInterval(r.Interval); err != nil {
			return opt, false, err
		}
		days, err := normalizeDays(r.MonthDays, 1, 31, anchor.Day(), "month day")
		if err != nil {
			return opt, false, err
		}
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = days

	default:
		return opt, false, fmt.Errorf("%w: unknown kind %q", ErrInvalidRule, r.Kind)
	}

	opt.Dtstart = anchor
	opt.Interval = r.Interval
	opt.Wkst = rrule.SU
	opt.Count = b.MaxOccurrences
	if b.EndDate != nil {
		opt.Until = b.EndDate.UTC()
	}
	return opt, true, nil
}

// ToRRule renders r and b as an RRULE value (without the "RRULE:" prefix
// and without DTSTART). Single rules return "".
func ToRRule(r Rule, b Bounds) (string, error) {
	opt, ok, err := ROption(r, b)
	if err != nil || !ok {
		return "", err
	}
	return opt.RRuleString(), nil
}

// FromRRule parses an RRULE value into a Rule anchored at anchor. Only the
// shapes this package can expand are accepted: FREQ=WEEKLY with plain BYDAY
// and FREQ=MONTHLY with positive BYMONTHDAY, plus INTERVAL, COUNT and UNTIL.
func FromRRule(value string, anchor time.Time) (Rule, Bounds, error) {
	var (
		r Rule
		b Bounds
	)
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return r, b, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if len(opt.Bysetpos) > 0 || len(opt.Bymonth) > 0 || len(opt.Byyearday) > 0 ||
		len(opt.Byweekno) > 0 || len(opt.Byhour) > 0 || len(opt.Byminute) > 0 ||
		len(opt.Bysecond) > 0 || len(opt.Byeaster) > 0 {
		return r, b, fmt.Errorf("%w: unsupported BY* part in %q", ErrInvalidRule, value)
	}

	r.Anchor = anchor.UTC()
	r.Interval = opt.Interval
	if r.Interval == 0 {
		r.Interval = 1
	}

	switch opt.Freq {
	case rrule.WEEKLY:
		if len(opt.Bymonthday) > 0 {
			return r, b, fmt.Errorf("%w: BYMONTHDAY with FREQ=WEEKLY", ErrInvalidRule)
		}
		if r.Interval > 1 && opt.Wkst.Day() != rrule.SU.Day() {
			return r, b, fmt.Errorf("%w: WKST=%s with INTERVAL>1", ErrInvalidRule, opt.Wkst.String())
		}
		r.Kind = KindWeekly
		for i := range opt.Byweekday {
			wd := &opt.Byweekday[i]
			if wd.N() != 0 {
				return r, b, fmt.Errorf("%w: ordinal BYDAY %s", ErrInvalidRule, wd.String())
			}
			// rrule-go numbers Monday as 0.
			r.Weekdays = append(r.Weekdays, (wd.Day()+1)%7)
		}

	case rrule.MONTHLY:
		if len(opt.Byweekday) > 0 {
			return r, b, fmt.Errorf("%w: BYDAY with FREQ=MONTHLY", ErrInvalidRule)
		}
		r.Kind = KindMonthly
		for _, d := range opt.Bymonthday {
			if d < 1 {
				return r, b, fmt.Errorf("%w: BYMONTHDAY %d", ErrInvalidRule, d)
			}
			r.MonthDays = append(r.MonthDays, d)
		}

	default:
		return r, b, fmt.Errorf("%w: unsupported FREQ=%v", ErrInvalidRule, opt.Freq)
	}

	b.MaxOccurrences = opt.Count
	if !opt.Until.IsZero() {
		b.EndDate = Until(opt.Until.UTC())
	}
	return r, b, nil
}
