// Package scheduler runs periodic maintenance jobs: reclaiming idle
// rate-limit windows and purging expired submission keys.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/club-apply-backend/internal/ratelimit"
)

// DefaultJobTimeout bounds a single job run.
const DefaultJobTimeout = 30 * time.Second

// Job is a named unit of periodic work. Spec uses the robfig/cron syntax,
// including descriptors such as "@every 1m" and "@hourly".
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler wraps a UTC cron with per-job timeouts, panic recovery and
// structured logging.
type Scheduler struct {
	cron       *cron.Cron
	jobTimeout time.Duration
	activeJobs sync.WaitGroup

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// New returns a stopped Scheduler. A non-positive timeout uses
// DefaultJobTimeout.
func New(jobTimeout time.Duration) *Scheduler {
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		jobTimeout:     jobTimeout,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
}

// Add registers job.
func (s *Scheduler) Add(job Job) error {
	if _, err := s.cron.AddFunc(job.Spec, s.wrap(job)); err != nil {
		return fmt.Errorf("schedule %q: %w", job.Name, err)
	}
	return nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop stops scheduling, cancels running jobs and waits for them until ctx
// is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	<-s.cron.Stop().Done()
	s.shutdownCancel()

	done := make(chan struct{})
	go func() {
		s.activeJobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wrap adds a timeout, panic recovery and logging around job.
func (s *Scheduler) wrap(job Job) func() {
	return func() {
		s.activeJobs.Add(1)
		defer s.activeJobs.Done()

		ctx, cancel := context.WithTimeout(s.shutdownCtx, s.jobTimeout)
		defer cancel()

		start := time.Now()
		lg := log.With().Str("job", job.Name).Logger()

		defer func() {
			if r := recover(); r != nil {
				lg.Error().Interface("panic", r).Msg("job panicked")
			}
		}()

		err := job.Run(ctx)
		ev := lg.Debug()
		if err != nil {
			ev = lg.Error().Err(err)
		}
		ev.Dur("duration", time.Since(start)).Msg("job finished")

		if ctx.Err() == context.DeadlineExceeded {
			lg.Warn().Dur("timeout", s.jobTimeout).Msg("job timed out")
		}
	}
}

// SweepLimiter reclaims identities whose window is empty.
func SweepLimiter(sw ratelimit.Sweeper, spec string) Job {
	return Job{
		Name: "ratelimit-sweep",
		Spec: spec,
		Run: func(ctx context.Context) error {
			if n := sw.Sweep(time.Now()); n > 0 {
				log.Debug().Int("removed", n).Msg("rate-limit windows swept")
			}
			return nil
		},
	}
}

// KeyPurger removes expired submission keys.
type KeyPurger interface {
	PurgeExpiredKeys(ctx context.Context) (int64, error)
}

// PurgeKeys deletes expired submission keys.
func PurgeKeys(p KeyPurger, spec string) Job {
	return Job{
		Name: "submission-key-purge",
		Spec: spec,
		Run: func(ctx context.Context) error {
			n, err := p.PurgeExpiredKeys(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				log.Info().Int64("removed", n).Msg("expired submission keys purged")
			}
			return nil
		},
	}
}
