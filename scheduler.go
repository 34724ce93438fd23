package runcore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// BatchFunc dispatches one full batch and returns its reports.
type BatchFunc func(ctx context.Context) ([]RunReport, error)

// Scheduler drives batch dispatches. In run-once mode a single batch runs and
// Start returns its verdict. In continuous mode the batch repeats on the
// configured interval; a failing batch is logged and remembered but never
// stops the loop, since the next interval may well pass again.
type Scheduler struct {
	interval time.Duration
	runOnce  bool
	log      log.Logger
	batch    BatchFunc

	mu      sync.Mutex
	lastErr error

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler around a batch function.
func NewScheduler(interval time.Duration, runOnce bool, logger log.Logger, batch BatchFunc) *Scheduler {
	if logger == nil {
		logger = log.New()
	}
	return &Scheduler{
		interval: interval,
		runOnce:  runOnce,
		log:      logger,
		batch:    batch,
		done:     make(chan struct{}),
	}
}

// runBatch dispatches one batch and folds its reports into a verdict, which
// is remembered as the last run error.
func (s *Scheduler) runBatch(ctx context.Context) error {
	reports, err := s.batch(ctx)
	if err == nil {
		err = BatchVerdict(reports)
	}
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

// LastRunError returns the verdict of the most recent batch.
func (s *Scheduler) LastRunError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Start runs the first batch and, in continuous mode, launches the periodic
// loop. The run-once verdict is Start's return value; in continuous mode
// batch verdicts are never fatal and Start only reports setup problems.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.batch == nil {
		return errors.New("batch function is required")
	}
	s.running.Store(true)

	if s.runOnce {
		s.log.Info("Starting scheduler in run-once mode")
		return s.runBatch(ctx)
	}

	s.log.Info("Starting scheduler in continuous mode", "interval", s.interval)
	if err := s.runBatch(ctx); err != nil {
		s.log.Error("Initial batch did not pass", "err", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if !s.running.Load() {
					return
				}
				s.log.Info("Running periodic batch")
				if err := s.runBatch(ctx); err != nil {
					s.log.Error("Periodic batch did not pass", "err", err)
				}

			case <-s.done:
				s.log.Debug("Done signal received, stopping periodic batch loop")
				return

			case <-ctx.Done():
				s.log.Debug("Context canceled, stopping periodic batch loop")
				s.running.Store(false)
				return
			}
		}
	}()

	return nil
}

// Stop stops the periodic loop. Safe to call more than once.
func (s *Scheduler) Stop() {
	if !s.running.Swap(false) {
		s.log.Debug("Scheduler already stopped, nothing to do")
		return
	}
	close(s.done)
}

// Stopped returns true if the scheduler is stopped.
func (s *Scheduler) Stopped() bool {
	return !s.running.Load()
}

// WaitForShutdown blocks until the periodic loop has terminated.
func (s *Scheduler) WaitForShutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.log.Warn("Timed out waiting for periodic loop to terminate", "err", ctx.Err())
		return ctx.Err()
	}
}
