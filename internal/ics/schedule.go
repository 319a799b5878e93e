package ics

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	appLog "evsched/internal/log"
)

// Runner performs one subscription sync. *Syncer implements it.
type Runner interface {
	Sync(ctx context.Context) (SyncResult, error)
}

// Scheduler runs a Runner once on Start and then on every tick of a cron
// schedule. Stop waits for every run it started, including the first.
type Scheduler struct {
	cron *cron.Cron
	job  func()
	wg   sync.WaitGroup
}

// NewScheduler validates schedule (standard five-field cron syntax) and
// binds runs to ctx.
func NewScheduler(ctx context.Context, schedule string, r Runner) (*Scheduler, error) {
	s := &Scheduler{cron: cron.New()}
	s.job = func() {
		res, err := r.Sync(ctx)
		if err != nil {
			appLog.Error("scheduled sync: one or more subscriptions failed", err, "failed", res.Failed)
		}
		appLog.Info("scheduled sync finished", "imported", res.Imported, "skipped", res.Skipped)
	}
	if _, err := s.cron.AddFunc(schedule, s.job); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.wg.Go(s.job)
}

// Stop stops the schedule and blocks until running jobs return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
}
