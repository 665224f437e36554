package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every firing with the nominal firing time.
type TickFunc func(ctx context.Context, at time.Time) error

// DailyJob fires once per day at Hour:Minute in the scheduler's location.
type DailyJob struct {
	Name   string
	Hour   int
	Minute int
	Run    TickFunc
}

// Scheduler drives the fixed daily checks.
type Scheduler struct {
	loc    *time.Location
	logger zerolog.Logger
	jobs   []DailyJob
}

// New constructs a Scheduler firing in loc.
func New(loc *time.Location, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{loc: loc, logger: logger.With().Str("component", "scheduler").Logger()}
}

// AddDaily registers a job. It must be called before Run.
func (s *Scheduler) AddDaily(job DailyJob) error {
	if job.Hour < 0 || job.Hour > 23 || job.Minute < 0 || job.Minute > 59 {
		return fmt.Errorf("job %s: invalid time %02d:%02d", job.Name, job.Hour, job.Minute)
	}
	if job.Run == nil {
		return fmt.Errorf("job %s: nil run func", job.Name)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Jobs returns the registered jobs.
func (s *Scheduler) Jobs() []DailyJob {
	return append([]DailyJob(nil), s.jobs...)
}

// Run blocks until ctx is cancelled. A failing job is logged and fires again
// the next day.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(job DailyJob) {
			defer wg.Done()
			s.runDaily(ctx, job)
		}(job)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) runDaily(ctx context.Context, job DailyJob) {
	logger := s.logger.With().Str("job", job.Name).Logger()
	for {
		next := NextDaily(time.Now(), job.Hour, job.Minute, s.loc)
		logger.Debug().Time("next_run", next).Msg("waiting for next daily run")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		logger.Info().Time("at", next).Msg("executing daily job")
		if err := job.Run(ctx, next); err != nil {
			logger.Error().Err(err).Time("at", next).Msg("daily job failed")
		}
	}
}

// NextDaily returns the first hour:minute in loc strictly after now.
func NextDaily(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}
