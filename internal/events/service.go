package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appLog "evsched/internal/log"
	"evsched/internal/model"
	"evsched/internal/recurrence"
	"evsched/internal/store"
)

// ErrValidation marks malformed input to Create or Update.
var ErrValidation = errors.New("validation failed")

// Input is the body of a create request.
type Input struct {
	Title       string
	Description string
	StartDate   time.Time
	Recurrence  *model.Recurrence
	CreatedBy   string
}

// Patch is a partial update. Nil fields are left unchanged. ClearRecurrence
// removes the recurrence, turning the event into a single event.
type Patch struct {
	Title           *string
	Description     *string
	StartDate       *time.Time
	Recurrence      *model.Recurrence
	ClearRecurrence bool
}

// OccurrenceQuery carries the caller-supplied fallback bounds of an
// occurrence listing.
type OccurrenceQuery struct {
	Until *time.Time
	// Max caps the result. Zero means not supplied.
	Max int
}

// Service implements event management on top of a store.Store.
type Service struct {
	store store.Store
	now   func() time.Time

	// defaultMax applies when neither the rule nor the caller bound the
	// occurrence count. Zero leaves only the generator's safety cap.
	defaultMax int
}

// Option configures a Service.
type Option func(*Service)

// WithDefaultMax sets the occurrence cap used when no other count bound exists.
func WithDefaultMax(n int) Option {
	return func(s *Service) { s.defaultMax = n }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{store: st, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, in Input) (*model.Event, error) {
	if strings.TrimSpace(in.Title) == "" || in.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: title and startDate are required", ErrValidation)
	}
	now := storedTime(s.now())
	ev := &model.Event{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		StartDate:   storedTime(in.StartDate),
		Recurrence:  normalizeRecurrence(in.Recurrence),
		CreatedBy:   in.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validate(ev); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, ev); err != nil {
		return nil, err
	}
	appLog.Info("event created", "id", ev.ID, "title", ev.Title, "kind", ev.Rule().Kind)
	return ev, nil
}

func (s *Service) Get(ctx context.Context, id string) (*model.Event, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*model.Event, error) {
	return s.store.List(ctx)
}

func (s *Service) Update(ctx context.Context, id string, p Patch) (*model.Event, error) {
	ev, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return nil, fmt.Errorf("%w: title must not be empty", ErrValidation)
		}
		ev.Title = *p.Title
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.StartDate != nil {
		if p.StartDate.IsZero() {
			return nil, fmt.Errorf("%w: startDate must not be empty", ErrValidation)
		}
		ev.StartDate = storedTime(*p.StartDate)
	}
	switch {
	case p.ClearRecurrence:
		ev.Recurrence = nil
	case p.Recurrence != nil:
		ev.Recurrence = normalizeRecurrence(p.Recurrence)
	}
	if err := validate(ev); err != nil {
		return nil, err
	}
	ev.UpdatedAt = storedTime(s.now())

	if err := s.store.Update(ctx, ev); err != nil {
		return nil, err
	}
	appLog.Info("event updated", "id", ev.ID)
	return ev, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	appLog.Info("event deleted", "id", id)
	return nil
}

// Occurrences loads event id and expands it. Bounds stored on the rule win;
// q only fills in what the rule leaves open, then the default cap applies.
// Single events honour only the end date.
func (s *Service) Occurrences(ctx context.Context, id string, q OccurrenceQuery) ([]time.Time, error) {
	if q.Max < 0 {
		return nil, fmt.Errorf("%w: max %d is negative", recurrence.ErrInvalidBound, q.Max)
	}
	ev, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	b := MergeBounds(ev.Bounds(), q, s.defaultMax)
	rule := ev.Rule()
	if rule.Kind == recurrence.KindSingle {
		b.MaxOccurrences = 0
	}

	occ, err := recurrence.Generate(rule, b)
	if err != nil {
		return nil, err
	}
	appLog.Debug("occurrences generated", "id", ev.ID, "kind", rule.Kind, "count", len(occ))
	return occ, nil
}

// MergeBounds combines the rule's own bounds with the caller's fallback and
// a default cap, in that order of precedence.
func MergeBounds(rule recurrence.Bounds, q OccurrenceQuery, defaultMax int) recurrence.Bounds {
	b := rule
	if b.EndDate == nil && q.Until != nil {
		b.EndDate = recurrence.Until(q.Until.UTC())
	}
	if b.MaxOccurrences == 0 {
		b.MaxOccurrences = q.Max
	}
	if b.MaxOccurrences == 0 && b.EndDate == nil {
		b.MaxOccurrences = defaultMax
	}
	return b
}

// storedTime converts t to UTC at millisecond precision, the resolution of
// BSON datetimes, so every store driver returns the same instant.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func normalizeRecurrence(r *model.Recurrence) *model.Recurrence {
	if r == nil {
		return nil
	}
	c := *r
	if c.Interval == 0 {
		c.Interval = 1
	}
	if c.EndDate != nil {
		end := storedTime(*c.EndDate)
		c.EndDate = &end
	}
	return &c
}

func validate(ev *model.Event) error {
	if err := ev.Recurrence.Validate(ev.StartDate); err != nil {
		if errors.Is(err, model.ErrInvalidEvent) {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return err
	}
	return nil
}
