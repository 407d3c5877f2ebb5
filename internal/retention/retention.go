// Package retention periodically deletes completed requests older than the
// configured number of days.
package retention

import (
	"context"
	"sync"
	"time"

	"helpdesk/backend/internal/config"
	"helpdesk/backend/internal/logger"
	"helpdesk/backend/internal/metrics"

	errors "github.com/Laisky/errors/v2"
	"github.com/adhocore/gronx"
)

// Purger deletes completed requests created before a cutoff.
type Purger interface {
	PurgeCompleted(ctx context.Context, before time.Time) (int64, error)
}

type Scheduler struct {
	purger  Purger
	cron    string
	days    int
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
	jobs    sync.WaitGroup
}

// New validates cfg.Cron and returns a scheduler. m may be nil.
func New(p Purger, cfg config.RetentionConfig, m *metrics.Metrics, log *logger.Logger) (*Scheduler, error) {
	if !gronx.New().IsValid(cfg.Cron) {
		return nil, errors.Errorf("invalid retention cron %q", cfg.Cron)
	}
	if cfg.Days <= 0 {
		return nil, errors.Errorf("retention days must be positive, got %d", cfg.Days)
	}
	return &Scheduler{
		purger:  p,
		cron:    cfg.Cron,
		days:    cfg.Days,
		metrics: m,
		log:     log.With("service", "retention"),
		now:     time.Now,
	}, nil
}

// Run purges on every cron tick until ctx is done. Each purge runs in its own
// goroutine; Run returns once the last one has finished.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("retention enabled", "cron", s.cron, "days", s.days)
	defer s.jobs.Wait()
	for {
		next, err := gronx.NextTickAfter(s.cron, s.now(), false)
		if err != nil {
			s.log.Error("failed to compute next retention run", "cron", s.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			s.jobs.Add(1)
			go func() {
				defer s.jobs.Done()
				s.runJob(ctx)
			}()
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// runJob skips the tick when the previous purge is still going.
func (s *Scheduler) runJob(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Error("retention run failed", "error", err)
	}
}

// RunOnce deletes completed requests created more than the configured number of days ago.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -s.days)
	n, err := s.purger.PurgeCompleted(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "purge completed requests")
	}
	if s.metrics != nil {
		s.metrics.Purged.Add(float64(n))
	}
	s.log.Info("retention run finished", "purged", n, "cutoff", cutoff)
	return n, nil
}
