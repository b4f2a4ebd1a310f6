package dream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/reservo/brain/internal/data"
	"github.com/reservo/brain/internal/logging"
)

// ErrCycleRunning means a dream cycle is already in progress; at most one
// cycle runs at a time.
var ErrCycleRunning = errors.New("dream cycle already running")

// ErrTooSoon means the configured interval has not elapsed since the last
// recorded cycle.
var ErrTooSoon = errors.New("dream interval has not elapsed")

// Scheduler runs dream cycles in the background on a fixed interval. The
// interval is measured from the last recorded cycle, so restarts do not reset
// the clock.
type Scheduler struct {
	synth    *Synthesizer
	store    *data.Store
	interval time.Duration
	log      *logging.Logger

	mu      sync.Mutex
	running bool

	wg   sync.WaitGroup
	stop context.CancelFunc
}

// NewScheduler creates a scheduler over the synthesizer. interval is how
// often cycles run; values at or below zero default to six hours.
func NewScheduler(synth *Synthesizer, store *data.Store, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Scheduler{
		synth:    synth,
		store:    store,
		interval: interval,
		log:      logging.Global().WithComponent("DreamScheduler"),
	}
}

// Start launches the background loop. It returns immediately; cycles run on
// a ticker until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.stop = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		// One due-check at startup covers the case where the process was
		// down past a scheduled cycle.
		s.tick(runCtx)

		for {
			select {
			case <-runCtx.Done():
				s.log.Info("dream scheduler stopped")
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()
}

// Stop halts the loop and waits for any in-flight cycle to finish.
func (s *Scheduler) Stop() {
	if s.stop != nil {
		s.stop()
	}
	s.wg.Wait()
}

// tick runs one cycle if it is due. Errors are logged, not propagated; the
// next tick tries again.
func (s *Scheduler) tick(ctx context.Context) {
	if err := s.RunIfDue(ctx); err != nil {
		switch {
		case errors.Is(err, ErrTooSoon), errors.Is(err, ErrCycleRunning):
			s.log.Debug("dream cycle skipped: %v", err)
		case errors.Is(err, ErrInsufficientData):
			s.log.Info("dream cycle skipped: %v", err)
		case ctx.Err() != nil:
			// shutting down
		default:
			s.log.Error("dream cycle failed: %v", err)
		}
	}
}

// RunIfDue runs a cycle when the interval has elapsed since the last recorded
// one. It returns ErrTooSoon when it has not, and ErrCycleRunning when
// another cycle holds the slot.
func (s *Scheduler) RunIfDue(ctx context.Context) error {
	last, ok, err := s.store.LastDreamTime(ctx)
	if err != nil {
		return err
	}
	if ok && time.Since(last) < s.interval {
		return ErrTooSoon
	}
	return s.RunNow(ctx)
}

// RunNow runs a cycle immediately, ignoring the interval. Only one cycle may
// run at a time.
func (s *Scheduler) RunNow(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrCycleRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	_, err := s.synth.RunCycle(ctx)
	return err
}
