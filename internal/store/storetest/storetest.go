// Package storetest holds a conformance suite run against every store.Store
// implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evsched/internal/model"
	"evsched/internal/recurrence"
	"evsched/internal/store"
)

// Run exercises s. The store must be empty.
func Run(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	older := &model.Event{
		ID:        "evt-older",
		Title:     "Standup",
		StartDate: base,
		Recurrence: &model.Recurrence{
			Type:     recurrence.KindWeekly,
			Weekdays: []int{1, 3, 5},
			Interval: 1,
			EndDate:  &end,
		},
		CreatedAt: base,
		UpdatedAt: base,
	}
	newer := &model.Event{
		ID:        "evt-newer",
		Title:     "Review",
		StartDate: base.AddDate(0, 0, 3),
		CreatedAt: base.Add(time.Hour),
		UpdatedAt: base.Add(time.Hour),
	}

	require.NoError(t, s.Create(ctx, older))
	require.NoError(t, s.Create(ctx, newer))

	got, err := s.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, older.Title, got.Title)
	assert.True(t, got.StartDate.Equal(base))
	require.NotNil(t, got.Recurrence)
	assert.Equal(t, []int{1, 3, 5}, got.Recurrence.Weekdays)
	require.NotNil(t, got.Recurrence.EndDate)
	assert.True(t, got.Recurrence.EndDate.Equal(end))

	// Mutating the returned value must not leak into the store.
	got.Recurrence.Weekdays[0] = 6
	again, err := s.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Recurrence.Weekdays[0])

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	newer.Title = "Design review"
	require.NoError(t, s.Update(ctx, newer))
	got, err = s.Get(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, "Design review", got.Title)

	missing := &model.Event{ID: "evt-missing", Title: "x", StartDate: base}
	assert.ErrorIs(t, s.Update(ctx, missing), store.ErrNotFound)

	require.NoError(t, s.Upsert(ctx, missing))
	_, err = s.Get(ctx, missing.ID)
	require.NoError(t, err)
	missing.Title = "y"
	require.NoError(t, s.Upsert(ctx, missing))
	got, err = s.Get(ctx, missing.ID)
	require.NoError(t, err)
	assert.Equal(t, "y", got.Title)

	require.NoError(t, s.Delete(ctx, older.ID))
	_, err = s.Get(ctx, older.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, older.ID), store.ErrNotFound)
}
