// Package scheduler drives presence cycles on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"presenced/internal/config"
	"presenced/internal/service"
)

var (
	// ErrNoRunner is returned by New when no cycle runner is given.
	ErrNoRunner = errors.New("scheduler requires a runner")
	// ErrCycleInFlight is returned by RunOnce while another cycle is running.
	ErrCycleInFlight = errors.New("presence cycle already running")
	// ErrCyclePanicked wraps a panic recovered from a cycle.
	ErrCyclePanicked = errors.New("presence cycle panicked")
)

// State is the scheduler's position in the Idle/Running cycle.
type State int32

const (
	// StateIdle means no cycle is running.
	StateIdle State = iota
	// StateRunning means a cycle is in flight.
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Scheduler runs one cycle immediately and then one per tick. Cycles never
// overlap: ticks that arrive while a cycle is in flight wait in the ticker's
// one-slot buffer and start as soon as the running cycle returns. A cycle
// that overruns several intervals is followed by a single catch-up cycle.
type Scheduler struct {
	runner   Runner
	clock    Clock
	interval time.Duration
	logger   zerolog.Logger

	state    atomic.Int32
	cycles   atomic.Uint64
	failures atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Scheduler. A nil clock uses wall-clock time. A non-positive
// interval fails with config.ErrInvalidInterval.
func New(runner Runner, interval time.Duration, clock Clock, logger zerolog.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, ErrNoRunner
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidInterval, interval)
	}
	if clock == nil {
		clock = realClock{}
	}

	return &Scheduler{
		runner:   runner,
		clock:    clock,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Run blocks until ctx is cancelled or Stop is called. The cycle in flight at
// that moment is allowed to finish before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.wg.Add(1)
	defer s.wg.Done()

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("starting scheduler")

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Uint64("cycles", s.cycles.Load()).Msg("scheduler stopped")
			return ctx.Err()
		case <-s.done:
			s.logger.Info().Uint64("cycles", s.cycles.Load()).Msg("scheduler stopped")
			return nil
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

// Stop ends the loop started by Run and waits for it to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.done)
	})

	stopped := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight cycle: %w", ctx.Err())
	}
}

// RunOnce executes a single cycle outside the ticker loop. It fails with
// ErrCycleInFlight if another cycle is running.
func (s *Scheduler) RunOnce(ctx context.Context) (report *service.CycleReport, err error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, ErrCycleInFlight
	}
	defer s.state.Store(int32(StateIdle))

	s.cycles.Add(1)

	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = fmt.Errorf("%w: %v", ErrCyclePanicked, r)
		}
		if err != nil {
			s.failures.Add(1)
		}
	}()

	// Shutdown must not interrupt a partial publish.
	return s.runner.RunCycle(context.WithoutCancel(ctx))
}

func (s *Scheduler) tick(ctx context.Context) {
	started := s.clock.Now()

	report, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error().
			Err(err).
			Time("cycle_started", started).
			Dur("elapsed", s.clock.Now().Sub(started)).
			Msg("presence cycle failed")
		return
	}

	event := s.logger.Debug().Dur("elapsed", s.clock.Now().Sub(started))
	if report != nil {
		event = event.Str("cycle_id", report.CycleID)
	}
	event.Msg("presence cycle finished")
}

// State reports whether a cycle is currently in flight.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Cycles returns how many cycles have been started.
func (s *Scheduler) Cycles() uint64 {
	return s.cycles.Load()
}

// Failures returns how many cycles ended in an error or panic.
func (s *Scheduler) Failures() uint64 {
	return s.failures.Load()
}
