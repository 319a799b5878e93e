package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"evsched/internal/model"
	"evsched/internal/recurrence"
)

const productID = "-//evsched//event scheduler//EN"

// Export renders events as a single VCALENDAR. Each event becomes one
// VEVENT whose DTSTART is the anchor in UTC and whose RRULE, when present,
// carries the rule's own INTERVAL/COUNT/UNTIL. stamp is written as DTSTAMP.
func Export(events []*model.Event, stamp time.Time) (string, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, ev := range events {
		if err := addEvent(cal, ev, stamp.UTC()); err != nil {
			return "", err
		}
	}
	return cal.Serialize(), nil
}

func addEvent(cal *ical.Calendar, ev *model.Event, stamp time.Time) error {
	rrule, err := recurrence.ToRRule(ev.Rule(), ev.Bounds())
	if err != nil {
		return fmt.Errorf("export event %s: %w", ev.ID, err)
	}

	ve := cal.AddEvent(eventUID(ev))
	ve.SetDtStampTime(stamp)
	if !ev.CreatedAt.IsZero() {
		ve.SetCreatedTime(ev.CreatedAt.UTC())
	}
	if !ev.UpdatedAt.IsZero() {
		ve.SetModifiedAt(ev.UpdatedAt.UTC())
	}
	ve.SetStartAt(ev.StartDate.UTC())
	ve.SetSummary(ev.Title)
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}
	if rrule != "" {
		ve.AddRrule(rrule)
	}
	return nil
}

// eventUID keeps the original UID of imported events so that calendar
// clients can match them with the upstream feed.
func eventUID(ev *model.Event) string {
	if ev.UID != "" {
		return ev.UID
	}
	return ev.ID + "@evsched"
}
