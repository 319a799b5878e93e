package store

import (
	"context"
	"errors"

	"evsched/internal/model"
)

// ErrNotFound is returned when no event has the requested ID.
var ErrNotFound = errors.New("event not found")

// Store persists events. Implementations must be safe for concurrent use.
type Store interface {
	// Create inserts a new event. The ID must already be set.
	Create(ctx context.Context, ev *model.Event) error
	Get(ctx context.Context, id string) (*model.Event, error)
	// List returns all events, most recently created first.
	List(ctx context.Context) ([]*model.Event, error)
	// Update replaces an existing event, returning ErrNotFound if absent.
	Update(ctx context.Context, ev *model.Event) error
	// Upsert inserts or replaces an event by ID.
	Upsert(ctx context.Context, ev *model.Event) error
	Delete(ctx context.Context, id string) error
	Close(ctx context.Context) error
}
