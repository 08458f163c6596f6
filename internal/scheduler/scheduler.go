package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per interval.
type TickFunc func(ctx context.Context) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Scheduler drives a serialized polling loop: a tick runs to completion
// before the next one is scheduled, and cancellation is observed between
// ticks so an in-flight tick is never aborted mid-way.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function at each interval until ctx is
// cancelled. The delay is measured from the end of the previous tick, so
// a slow tick never overlaps the next one. Cancellation interrupts only
// the sleeps: a tick already underway runs to completion on a context
// detached from the loop's, so its outbound calls are never cut off
// mid-flight.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	tickCtx := context.WithoutCancel(ctx)
	for {
		started := time.Now()
		s.logger.Debug().Time("started_at", started).Msg("executing scheduled tick")

		if err := tick(tickCtx); err != nil {
			s.logger.Error().Err(err).Msg("tick execution failed")
		}

		if err := sleep(ctx, s.opts.Interval); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
