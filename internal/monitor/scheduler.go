package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CycleRunner is what the scheduler drives; satisfied by HeartbeatScanner.
type CycleRunner interface {
	RunCycle(ctx context.Context, now time.Time) ScanSummary
}

// Scheduler runs scan cycles on a fixed period measured from the end of the
// previous cycle, so cycles never overlap no matter how long one takes. Stop
// is cooperative: the in-flight cycle finishes, then no new cycle starts.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	logger   *zap.Logger

	// injectable clock for deterministic tests
	now   func() time.Time
	after func(d time.Duration) <-chan time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler creates a scheduler. interval must be positive.
func NewScheduler(runner CycleRunner, interval time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("check interval must be positive, got %s", interval)
	}

	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		after:    time.After,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start launches the background scan loop. Calling Start more than once is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true

	s.logger.Info("starting heartbeat monitor", zap.Duration("interval", s.interval))
	go s.loop(ctx)
}

// Stop requests graceful shutdown and blocks until the in-flight cycle (if
// any) has finished. Safe to call multiple times and before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		started := s.started
		s.mu.Unlock()
		if started {
			<-s.doneCh
		}
		return
	}
	s.stopped = true
	started := s.started
	close(s.stopCh)
	s.mu.Unlock()

	if started {
		<-s.doneCh
	}

	s.logger.Info("heartbeat monitor stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		s.runner.RunCycle(ctx, s.now())

		// The wait starts after the cycle completed, so a slow cycle delays
		// the next one instead of piling up.
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-s.after(s.interval):
		}
	}
}
