// Package scheduler drives the composite loop: a single goroutine that runs a
// tick function at a fixed frame interval.
//
// Ticks never overlap, so results are presented in the order frames were
// pulled. A tick that runs long causes the ticks that would have fired in the
// meantime to be dropped rather than queued.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// State is the lifecycle state of a Scheduler.
type State int

const (
	Idle State = iota
	Running
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// DefaultInterval is one frame at 30fps.
const DefaultInterval = time.Second / 30

// TickFunc does the work of one frame. The context is cancelled when the
// scheduler stops.
type TickFunc func(ctx context.Context) error

// Options configure a Scheduler.
type Options struct {
	// Interval between ticks. Defaults to DefaultInterval.
	Interval time.Duration

	// Clock defaults to RealClock.
	Clock Clock

	// OnTick observes every executed tick with its duration and result.
	OnTick func(d time.Duration, err error)

	// Name identifies the scheduler in logs.
	Name string
}

// Stats are cumulative counters.
type Stats struct {
	Ticks    uint64
	Errors   uint64
	Skipped  uint64
	Overruns uint64
}

// Scheduler runs a TickFunc repeatedly while Running.
type Scheduler struct {
	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	tick     TickFunc
	interval time.Duration
	clock    Clock
	onTick   func(time.Duration, error)
	name     string
	limiter  *rate.Limiter

	ticks    atomic.Uint64
	errs     atomic.Uint64
	skipped  atomic.Uint64
	overruns atomic.Uint64
}

// New creates an idle scheduler.
func New(tick TickFunc, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	return &Scheduler{
		tick:     tick,
		interval: opts.Interval,
		clock:    opts.Clock,
		onTick:   opts.OnTick,
		name:     opts.Name,
		// one error log per second, bursts of five
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Interval returns the tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start moves Idle to Running and begins ticking. It is a no-op while
// Running or Paused and fails with ErrStopped once stopped.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Running, Paused:
		return nil
	case Stopped:
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = Running

	ticker := s.clock.NewTicker(s.interval)
	go s.run(ctx, ticker, s.done)

	logrus.WithFields(logrus.Fields{
		"function": "Scheduler.Start",
		"name":     s.name,
		"interval": s.interval,
	}).Info("Composite loop started")
	return nil
}

// Stop cancels any pending tick, waits for a tick in progress to return and
// moves to Stopped. It is a no-op while Idle or once Stopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == Idle || s.state == Stopped {
		s.mu.Unlock()
		return
	}
	s.state = Stopped
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done

	logrus.WithFields(logrus.Fields{
		"function": "Scheduler.Stop",
		"name":     s.name,
		"ticks":    s.ticks.Load(),
		"errors":   s.errs.Load(),
	}).Info("Composite loop stopped")
}

// Pause suspends ticking without tearing anything down.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return ErrNotRunning
	}
	s.state = Paused
	logrus.WithFields(logrus.Fields{
		"function": "Scheduler.Pause",
		"name":     s.name,
	}).Debug("Composite loop paused")
	return nil
}

// Resume continues ticking after Pause.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Paused {
		return ErrNotPaused
	}
	s.state = Running
	logrus.WithFields(logrus.Fields{
		"function": "Scheduler.Resume",
		"name":     s.name,
	}).Debug("Composite loop resumed")
	return nil
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Ticks:    s.ticks.Load(),
		Errors:   s.errs.Load(),
		Skipped:  s.skipped.Load(),
		Overruns: s.overruns.Load(),
	}
}

func (s *Scheduler) run(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}

		// a tick may have been pending when Stop or Pause ran
		if ctx.Err() != nil || s.State() != Running {
			continue
		}
		s.runTick(ctx)
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	start := s.clock.Now()
	err := s.tick(ctx)
	elapsed := s.clock.Now().Sub(start)

	if elapsed > s.interval {
		s.overruns.Add(1)
	}

	switch {
	case err == nil:
		s.ticks.Add(1)
	case errors.Is(err, ErrSkipTick):
		s.skipped.Add(1)
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		// stopping
	default:
		s.ticks.Add(1)
		s.errs.Add(1)
		if s.limiter.Allow() {
			logrus.WithFields(logrus.Fields{
				"function": "Scheduler.runTick",
				"name":     s.name,
				"error":    err.Error(),
				"errors":   s.errs.Load(),
			}).Warn("Composite tick failed")
		}
	}

	if s.onTick != nil {
		s.onTick(elapsed, err)
	}
}
