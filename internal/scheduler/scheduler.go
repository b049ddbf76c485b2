package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc runs one discovery cycle.
type TickFunc func(ctx context.Context) error

// Options tune scheduler behaviour. The interval between ticks varies with
// the hour of day: inside [PeakStartHour, PeakEndHour] the shorter peak
// interval applies.
type Options struct {
	PeakStartHour   int
	PeakEndHour     int
	PeakInterval    time.Duration
	OffPeakInterval time.Duration
	StartupDelay    time.Duration
	Now             func() time.Time // injectable clock, defaults to time.Now
}

// Scheduler drives the cycle loop on a time-of-day-dependent cadence.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.PeakInterval <= 0 || opts.OffPeakInterval <= 0 {
		panic("scheduler intervals must be positive")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// NextDelay returns the wait before the next cycle based on the current hour.
func (s *Scheduler) NextDelay() time.Duration {
	if s.inPeak(s.opts.Now().Hour()) {
		return s.opts.PeakInterval
	}
	return s.opts.OffPeakInterval
}

func (s *Scheduler) inPeak(hour int) bool {
	start, end := s.opts.PeakStartHour, s.opts.PeakEndHour
	if start <= end {
		return hour >= start && hour <= end
	}
	// Peak window crossing midnight.
	return hour >= start || hour <= end
}

// Run blocks, invoking tick then waiting the schedule-selected delay, until
// ctx is cancelled. A failing tick is logged and the loop continues.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := wait(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	for {
		if err := tick(ctx); err != nil {
			s.logger.Error().Err(err).Msg("cycle execution failed")
		}

		delay := s.NextDelay()
		s.logger.Info().Dur("delay", delay).Msg("waiting for next cycle")

		if err := wait(ctx, delay); err != nil {
			return err
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
