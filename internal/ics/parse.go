package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "evsched/internal/log"
	"evsched/internal/model"
	"evsched/internal/recurrence"
)

// ParseResult is the outcome of importing one ICS payload.
type ParseResult struct {
	Events []*model.Event
	// Skipped counts VEVENTs that were dropped: missing UID or DTSTART,
	// RECURRENCE-ID overrides, or an RRULE outside the supported shapes.
	Skipped int
}

// ParseICS converts the VEVENTs of an ICS payload into events owned by sub.
//
//   - Events without RRULE become single events.
//   - FREQ=WEEKLY with plain BYDAY and FREQ=MONTHLY with positive BYMONTHDAY
//     become weekly/monthly recurrences, including INTERVAL, COUNT and UNTIL.
//   - Everything else is skipped and logged; one bad VEVENT does not fail
//     the whole payload.
//
// Event IDs are derived from the subscription ID and the VEVENT UID so that
// re-importing the same feed updates rather than duplicates.
func ParseICS(sub Subscription, body []byte) (ParseResult, error) {
	var res ParseResult
	if len(body) == 0 {
		return res, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", sub.ID, "url", redactURL(sub.URL))
		return res, err
	}

	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(sub, ve)
		if perr != nil {
			res.Skipped++
			appLog.Error("ics vevent skipped", perr, "id", sub.ID, "url", redactURL(sub.URL))
			continue
		}
		res.Events = append(res.Events, ev)
	}

	appLog.Info("ics parse completed", "id", sub.ID, "url", redactURL(sub.URL),
		"event_count", len(res.Events), "skipped", res.Skipped)
	return res, nil
}

func parseVEvent(sub Subscription, ve *ical.VEvent) (*model.Event, error) {
	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || strings.TrimSpace(uidProp.Value) == "" {
		return nil, errors.New("missing UID")
	}
	uid := strings.TrimSpace(uidProp.Value)

	// Overridden instances cannot be represented by a weekday/month-day rule.
	if ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")) != nil {
		return nil, errors.New("RECURRENCE-ID override for " + uid)
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return nil, err
	}
	if start.IsZero() {
		return nil, errors.New("missing DTSTART for " + uid)
	}

	ev := &model.Event{
		ID:        ImportedEventID(sub.ID, uid),
		StartDate: start.UTC(),
		Source:    sub.ID,
		UID:       uid,
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Title = p.Value
	}
	if ev.Title == "" {
		ev.Title = "(untitled)"
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Description = p.Value
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil && p.Value != "" {
		rule, bounds, err := recurrence.FromRRule(p.Value, ev.StartDate)
		if err != nil {
			return nil, err
		}
		ev.Recurrence = &model.Recurrence{
			Type:        rule.Kind,
			Weekdays:    rule.Weekdays,
			MonthDates:  rule.MonthDays,
			Interval:    rule.Interval,
			EndDate:     bounds.EndDate,
			Occurrences: bounds.MaxOccurrences,
		}
		// A bare FREQ=WEEKLY/MONTHLY repeats on the anchor's own day.
		switch {
		case rule.Kind == recurrence.KindWeekly && len(rule.Weekdays) == 0:
			ev.Recurrence.Weekdays = []int{int(ev.StartDate.Weekday())}
		case rule.Kind == recurrence.KindMonthly && len(rule.MonthDays) == 0:
			ev.Recurrence.MonthDates = []int{ev.StartDate.Day()}
		}
		if err := ev.Recurrence.Validate(ev.StartDate); err != nil {
			return nil, err
		}
	}

	return ev, nil
}

// ImportedEventID returns the stable event ID of VEVENT uid from
// subscription subID.
func ImportedEventID(subID, uid string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("evsched:"+subID+"/"+uid)).String()
}

// stamp fills the bookkeeping timestamps of imported events, keeping the
// creation time of events that already exist.
func stamp(ev *model.Event, existing *model.Event, now time.Time) {
	ev.CreatedAt = now
	if existing != nil && !existing.CreatedAt.IsZero() {
		ev.CreatedAt = existing.CreatedAt
	}
	ev.UpdatedAt = now
}
