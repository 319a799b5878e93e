package ics

import (
	"context"
	"errors"
	"sync"
	"time"

	appLog "evsched/internal/log"
	"evsched/internal/model"
	"evsched/internal/store"
)

// SyncResult summarises one subscription sync run.
type SyncResult struct {
	Subscriptions int `json:"subscriptions"`
	Imported      int `json:"imported"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
}

// Syncer imports subscribed feeds into a store. Runs are serialized; a run
// requested while another is in progress waits for it.
type Syncer struct {
	fetcher *Fetcher
	store   store.Store
	subs    []Subscription
	now     func() time.Time

	mu sync.Mutex
}

func NewSyncer(f *Fetcher, st store.Store, subs []Subscription) *Syncer {
	return &Syncer{fetcher: f, store: st, subs: subs, now: time.Now}
}

// Sync fetches and parses every subscription and upserts the resulting
// events. The returned error joins per-subscription failures; the result
// still reflects everything that was imported.
func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := SyncResult{Subscriptions: len(s.subs)}
	if len(s.subs) == 0 {
		return res, nil
	}

	fetched, errs := s.fetcher.FetchAll(ctx, s.subs)
	res.Failed = len(errs)

	now := s.now().UTC()
	for _, fr := range fetched {
		parsed, err := ParseICS(fr.Subscription, fr.Body)
		if err != nil {
			res.Failed++
			errs = append(errs, err)
			continue
		}
		res.Skipped += parsed.Skipped

		for _, ev := range parsed.Events {
			if err := s.upsert(ctx, ev, now); err != nil {
				errs = append(errs, err)
				appLog.Error("ics import upsert failed", err, "id", fr.Subscription.ID, "event_id", ev.ID)
				continue
			}
			res.Imported++
		}
	}

	appLog.Info("subscription sync completed",
		"subscriptions", res.Subscriptions,
		"imported", res.Imported,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
	return res, errors.Join(errs...)
}

func (s *Syncer) upsert(ctx context.Context, ev *model.Event, now time.Time) error {
	existing, err := s.store.Get(ctx, ev.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	stamp(ev, existing, now)
	return s.store.Upsert(ctx, ev)
}
