package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Trigger labels attached to each cycle.
const (
	TriggerInterval    = "interval"
	TriggerWindowOpen  = "window-open"
	TriggerWindowClose = "window-close"
	TriggerManual      = "manual"
)

// TickFunc is invoked for every cycle the scheduler starts.
type TickFunc func(ctx context.Context, bucket time.Time, trigger string) error

// Options tune scheduler behaviour.
type Options struct {
	Interval        time.Duration
	WindowOpenHour  int
	WindowCloseHour int
	StartupDelay    time.Duration
	Location        *time.Location
}

// Scheduler drives aligned interval execution gated by the operating window,
// plus two unconditional daily boundary triggers at window open and close.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger

	// running guards against overlapping cycles between the interval loop
	// and the cron boundary entries; a second arrival is dropped, not queued
	running atomic.Bool
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// InWindow reports whether t falls inside the operating window: a weekday
// between the open hour (inclusive) and close hour (exclusive).
func (s *Scheduler) InWindow(t time.Time) bool {
	local := t.In(s.opts.Location)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	hour := local.Hour()
	return hour >= s.opts.WindowOpenHour && hour < s.opts.WindowCloseHour
}

// Run blocks, firing ticks until ctx is cancelled. Interval ticks outside the
// operating window are no-ops; the boundary triggers fire regardless.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	boundaries := cron.New(cron.WithLocation(s.opts.Location))

	openSpec := fmt.Sprintf("0 %d * * MON-FRI", s.opts.WindowOpenHour)
	if _, err := boundaries.AddFunc(openSpec, func() {
		s.fire(ctx, tick, time.Now(), TriggerWindowOpen)
	}); err != nil {
		return fmt.Errorf("register window-open trigger: %w", err)
	}

	closeSpec := fmt.Sprintf("0 %d * * MON-FRI", s.opts.WindowCloseHour)
	if _, err := boundaries.AddFunc(closeSpec, func() {
		s.fire(ctx, tick, time.Now(), TriggerWindowClose)
	}); err != nil {
		return fmt.Errorf("register window-close trigger: %w", err)
	}

	boundaries.Start()
	defer boundaries.Stop()

	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_bucket", next).Msg("waiting for next bucket")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		bucket := next.Truncate(s.opts.Interval)
		if s.InWindow(bucket) {
			s.fire(ctx, tick, bucket, TriggerInterval)
		} else {
			s.logger.Debug().Time("bucket", bucket).Msg("tick outside operating window; skipping")
		}

		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) fire(ctx context.Context, tick TickFunc, bucket time.Time, trigger string) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn().Str("trigger", trigger).Msg("cycle already running; dropping trigger")
		return
	}
	defer s.running.Store(false)

	s.logger.Info().Time("bucket", bucket).Str("trigger", trigger).Msg("executing cycle")
	if err := tick(ctx, bucket, trigger); err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Str("trigger", trigger).Msg("cycle failed")
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}
