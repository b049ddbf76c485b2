package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func clockAt(hour int) func() time.Time {
	return func() time.Time {
		return time.Date(2025, 6, 1, hour, 30, 0, 0, time.UTC)
	}
}

func TestNextDelayPeakHours(t *testing.T) {
	cases := []struct {
		hour int
		want time.Duration
	}{
		{17, 30 * time.Minute},
		{18, 15 * time.Minute},
		{20, 15 * time.Minute},
		{23, 15 * time.Minute},
		{0, 30 * time.Minute},
		{9, 30 * time.Minute},
	}

	for _, tc := range cases {
		s := New(Options{
			PeakStartHour:   18,
			PeakEndHour:     23,
			PeakInterval:    15 * time.Minute,
			OffPeakInterval: 30 * time.Minute,
			Now:             clockAt(tc.hour),
		}, zerolog.Nop())

		if got := s.NextDelay(); got != tc.want {
			t.Errorf("hour %d: expected %s, got %s", tc.hour, tc.want, got)
		}
	}
}

func TestNextDelayPeakWindowCrossingMidnight(t *testing.T) {
	opts := Options{
		PeakStartHour:   22,
		PeakEndHour:     2,
		PeakInterval:    10 * time.Minute,
		OffPeakInterval: time.Hour,
	}

	for hour, want := range map[int]time.Duration{
		23: 10 * time.Minute,
		1:  10 * time.Minute,
		3:  time.Hour,
		12: time.Hour,
	} {
		opts.Now = clockAt(hour)
		s := New(opts, zerolog.Nop())
		if got := s.NextDelay(); got != want {
			t.Errorf("hour %d: expected %s, got %s", hour, want, got)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(Options{
		PeakStartHour:   18,
		PeakEndHour:     23,
		PeakInterval:    time.Hour,
		OffPeakInterval: time.Hour,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())

	ticks := 0
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context) error {
			ticks++
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop on cancellation")
	}
	if ticks != 1 {
		t.Fatalf("expected exactly one tick, got %d", ticks)
	}
}

func TestRunContinuesAfterTickError(t *testing.T) {
	s := New(Options{
		PeakStartHour:   18,
		PeakEndHour:     23,
		PeakInterval:    time.Millisecond,
		OffPeakInterval: time.Millisecond,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())

	ticks := 0
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context) error {
			ticks++
			if ticks == 1 {
				return errors.New("cycle exploded")
			}
			cancel()
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler stalled")
	}
	if ticks < 2 {
		t.Fatalf("a failing tick must not stop the loop, got %d ticks", ticks)
	}
}
