package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options tune the recurring job. With AlignToStart the job fires on
// wall-clock multiples of Interval (14:05, 14:10, ...).
type Options struct {
	Interval     time.Duration
	AlignToStart bool
}

// Recurring owns the single high-frequency job. Its running flag is the
// source of truth for whether the job exists; Start and Stop are idempotent.
type Recurring struct {
	mu        sync.Mutex
	opts      Options
	tick      TickFunc
	logger    zerolog.Logger
	base      context.Context
	closeBase context.CancelFunc
	cancel    context.CancelFunc
	running   bool
	gen       uint64
	wg        sync.WaitGroup
}

// NewRecurring builds a stopped recurring job.
func NewRecurring(opts Options, tick TickFunc, logger zerolog.Logger) *Recurring {
	if opts.Interval <= 0 {
		panic("recurring interval must be positive")
	}
	base, closeBase := context.WithCancel(context.Background())
	return &Recurring{
		opts:      opts,
		tick:      tick,
		logger:    logger.With().Str("component", "recurring").Logger(),
		base:      base,
		closeBase: closeBase,
	}
}

// Start schedules the job. It returns false when the job was already running
// or the binding has been closed.
func (r *Recurring) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running || r.base.Err() != nil {
		return false
	}

	ctx, cancel := context.WithCancel(r.base)
	r.cancel = cancel
	r.running = true
	r.gen++
	gen := r.gen

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(ctx)

		r.mu.Lock()
		if r.gen == gen {
			r.running = false
		}
		r.mu.Unlock()
	}()

	r.logger.Info().Dur("interval", r.opts.Interval).Msg("recurring job started")
	return true
}

// Stop unschedules the job. It returns false when nothing was running. Stop
// does not wait for an in-flight tick, so it is safe to call from inside one.
func (r *Recurring) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return false
	}
	r.cancel()
	r.cancel = nil
	r.running = false
	r.logger.Info().Msg("recurring job stopped")
	return true
}

// Running reports whether the job is scheduled.
func (r *Recurring) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Close stops the job for good and waits for its loop to exit.
func (r *Recurring) Close() {
	r.Stop()
	r.closeBase()
	r.wg.Wait()
}

// loop fires tick until ctx is cancelled. The first firing is one interval
// after Start; firings missed while a tick overran are skipped, not queued.
func (r *Recurring) loop(ctx context.Context) {
	next := r.nextRun(time.Now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := r.tick(ctx, next); err != nil {
			r.logger.Error().Err(err).Time("at", next).Msg("recurring tick failed")
		}
		if ctx.Err() != nil {
			return
		}

		next = r.nextRun(time.Now())
		r.logger.Debug().Time("next_run", next).Msg("recurring job rescheduled")
		timer.Reset(time.Until(next))
	}
}

func (r *Recurring) nextRun(now time.Time) time.Time {
	if !r.opts.AlignToStart {
		return now.Add(r.opts.Interval)
	}
	return now.Truncate(r.opts.Interval).Add(r.opts.Interval)
}
