package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"evsched/internal/model"
	"evsched/internal/store"
)

// Store keeps events in a map. Values are copied on the way in and out so
// callers never share state with the store.
type Store struct {
	mu     sync.RWMutex
	events map[string]*model.Event
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{events: make(map[string]*model.Event)}
}

func (s *Store) Create(_ context.Context, ev *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.ID]; ok {
		return fmt.Errorf("event %s already exists", ev.ID)
	}
	s.events[ev.ID] = clone(ev)
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(ev), nil
}

func (s *Store) List(_ context.Context) ([]*model.Event, error) {
	s.mu.RLock()
	out := make([]*model.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, clone(ev))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Update(_ context.Context, ev *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.ID]; !ok {
		return store.ErrNotFound
	}
	s.events[ev.ID] = clone(ev)
	return nil
}

func (s *Store) Upsert(_ context.Context, ev *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = clone(ev)
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *Store) Close(context.Context) error { return nil }

func clone(ev *model.Event) *model.Event {
	c := *ev
	if ev.Recurrence != nil {
		r := *ev.Recurrence
		r.Weekdays = append([]int(nil), ev.Recurrence.Weekdays...)
		r.MonthDates = append([]int(nil), ev.Recurrence.MonthDates...)
		if ev.Recurrence.EndDate != nil {
			end := *ev.Recurrence.EndDate
			r.EndDate = &end
		}
		c.Recurrence = &r
	}
	return &c
}
