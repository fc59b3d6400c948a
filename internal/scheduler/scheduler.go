package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every trigger. The phase label is empty in interval mode.
type TickFunc func(ctx context.Context, at time.Time, phase string) error

// Scheduler drives cycle execution until the context is cancelled.
type Scheduler interface {
	Run(ctx context.Context, tick TickFunc) error
}

// IntervalOptions tune the fixed-interval scheduler.
type IntervalOptions struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Interval fires a cycle immediately at start, then every fixed duration.
type Interval struct {
	opts   IntervalOptions
	logger zerolog.Logger
}

// NewInterval constructs a fixed-interval scheduler.
func NewInterval(opts IntervalOptions, logger zerolog.Logger) *Interval {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Interval{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function on every interval until ctx is cancelled.
func (s *Interval) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	for {
		at := time.Now().UTC()
		s.logger.Info().Time("at", at).Msg("executing scheduled cycle")
		if err := tick(ctx, at, ""); err != nil {
			s.logger.Error().Err(err).Time("at", at).Msg("cycle execution failed")
		}

		timer := time.NewTimer(s.opts.Interval)
		s.logger.Debug().Dur("interval", s.opts.Interval).Msg("waiting for next cycle")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

var _ Scheduler = (*Interval)(nil)
