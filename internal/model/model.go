package model

import (
	"errors"
	"fmt"
	"time"

	"evsched/internal/recurrence"
)

// ErrInvalidEvent marks an event or recurrence record that fails the
// creation-time checks.
var ErrInvalidEvent = errors.New("invalid event")

// Event is a persisted calendar event. StartDate is the recurrence anchor
// and is stored in UTC.
type Event struct {
	ID          string `json:"id" bson:"_id"`
	Title       string `json:"title" bson:"title"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`

	StartDate  time.Time   `json:"startDate" bson:"start_date"`
	Recurrence *Recurrence `json:"recurrence" bson:"recurrence,omitempty"`

	CreatedBy string `json:"createdBy,omitempty" bson:"created_by,omitempty"`

	// Source and UID identify events imported from an ICS subscription.
	// Both are empty for events created through the API.
	Source string `json:"source,omitempty" bson:"source,omitempty"`
	UID    string `json:"uid,omitempty" bson:"uid,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// Recurrence is the stored form of a recurrence rule, including its own
// optional bounds.
type Recurrence struct {
	Type       recurrence.Kind `json:"type" bson:"type"`
	Weekdays   []int           `json:"weekdays,omitempty" bson:"weekdays,omitempty"`     // 0 (Sun) .. 6 (Sat)
	MonthDates []int           `json:"monthDates,omitempty" bson:"month_dates,omitempty"` // 1..31
	// Interval defaults to 1 when zero.
	Interval int `json:"interval" bson:"interval"`

	EndDate     *time.Time `json:"endDate,omitempty" bson:"end_date,omitempty"`
	Occurrences int        `json:"occurrences,omitempty" bson:"occurrences,omitempty"`
}

// Validate performs the checks applied when a recurrence is stored: a known
// type, an explicit day selection for weekly and monthly rules, and a rule
// the generator accepts.
func (r *Recurrence) Validate(anchor time.Time) error {
	if r == nil {
		return nil
	}
	switch r.Type {
	case recurrence.KindSingle:
	case recurrence.KindWeekly:
		if len(r.Weekdays) == 0 {
			return fmt.Errorf("%w: weekly recurrence requires weekdays", ErrInvalidEvent)
		}
	case recurrence.KindMonthly:
		if len(r.MonthDates) == 0 {
			return fmt.Errorf("%w: monthly recurrence requires monthDates", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: recurrence type must be single|weekly|monthly", ErrInvalidEvent)
	}
	if r.Interval < 0 {
		return fmt.Errorf("%w: interval %d must be a positive integer", recurrence.ErrInvalidRule, r.Interval)
	}
	if r.Occurrences < 0 {
		return fmt.Errorf("%w: occurrences %d is negative", recurrence.ErrInvalidBound, r.Occurrences)
	}
	_, _, err := recurrence.ROption(r.rule(anchor), recurrence.Bounds{})
	return err
}

// Rule converts the event into the generator's input. Events without a
// recurrence are single.
func (e *Event) Rule() recurrence.Rule {
	if e.Recurrence == nil {
		return recurrence.Rule{Kind: recurrence.KindSingle, Anchor: e.StartDate}
	}
	return e.Recurrence.rule(e.StartDate)
}

// Bounds returns the bounds stored on the recurrence itself.
func (e *Event) Bounds() recurrence.Bounds {
	var b recurrence.Bounds
	if e.Recurrence == nil {
		return b
	}
	if e.Recurrence.EndDate != nil {
		b.EndDate = recurrence.Until(*e.Recurrence.EndDate)
	}
	b.MaxOccurrences = e.Recurrence.Occurrences
	return b
}

func (r *Recurrence) rule(anchor time.Time) recurrence.Rule {
	interval := r.Interval
	if interval == 0 {
		interval = 1
	}
	return recurrence.Rule{
		Kind:      r.Type,
		Anchor:    anchor,
		Weekdays:  r.Weekdays,
		MonthDays: r.MonthDates,
		Interval:  interval,
	}
}
