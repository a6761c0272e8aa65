// Package jobs runs periodic housekeeping for the portal.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultPurgeSchedule runs the revocation purge hourly.
const DefaultPurgeSchedule = "@every 1h"

// RevocationPurger drops denylist rows for tokens that have expired anyway.
type RevocationPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Scheduler wraps a cron runner with the portal's maintenance jobs.
type Scheduler struct {
	cron    *cron.Cron
	log     *zap.Logger
	timeout time.Duration
}

// NewScheduler registers the purge job on schedule.  timeout bounds each
// run's storage call.
func NewScheduler(purger RevocationPurger, schedule string, timeout time.Duration, log *zap.Logger) (*Scheduler, error) {
	if purger == nil || log == nil {
		panic("nil dependency passed to NewScheduler")
	}
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger))),
		log:     log,
		timeout: timeout,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.purge(purger) }); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) purge(p RevocationPurger) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := p.PurgeExpired(ctx)
	if err != nil {
		s.log.Warn("revocation purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("expired revocations purged", zap.Int64("rows", n))
	}
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler and waits for a running job to finish or ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
