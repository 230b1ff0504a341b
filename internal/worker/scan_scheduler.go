package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jwalitptl/alert-engine/internal/service/alert"
	"github.com/jwalitptl/alert-engine/pkg/logger"
	"github.com/jwalitptl/alert-engine/pkg/messaging"
)

// ScanRunner is satisfied by *alert.Scanner.
type ScanRunner interface {
	RunScanCycle(ctx context.Context, asOf time.Time) (*alert.ScanResult, error)
}

// ScanScheduler triggers a scan cycle on every tick. Cycles never overlap:
// within the process a tick is skipped while a cycle runs, and across
// replicas only the holder of the distributed lock scans.
type ScanScheduler struct {
	runner   ScanRunner
	lock     messaging.Locker
	interval time.Duration
	log      *logger.Logger
	now      func() time.Time

	running sync.Mutex
	mu      sync.Mutex
	last    *alert.ScanResult
}

// NewScanScheduler builds a scheduler. lock may be nil for a single replica.
func NewScanScheduler(runner ScanRunner, lock messaging.Locker, interval time.Duration, log *logger.Logger) *ScanScheduler {
	return &ScanScheduler{
		runner:   runner,
		lock:     lock,
		interval: interval,
		log:      log.WithComponent("scan-scheduler"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *ScanScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("starting scan scheduler", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.log.Info("shutting down scan scheduler")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce runs a cycle unless one is already in progress here or elsewhere.
// It reports whether a cycle ran.
func (s *ScanScheduler) RunOnce(ctx context.Context) bool {
	if !s.running.TryLock() {
		s.log.Warn("previous scan cycle still running, skipping tick")
		return false
	}
	defer s.running.Unlock()

	if s.lock != nil {
		release, ok, err := s.lock.TryLock(ctx)
		if err != nil {
			s.log.Error(err, "failed to acquire scan lock")
			return false
		}
		if !ok {
			s.log.Debug("scan lock held by another replica")
			return false
		}
		defer func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := release(rctx); err != nil {
				s.log.Error(err, "failed to release scan lock")
			}
		}()
	}

	result, err := s.runner.RunScanCycle(ctx, s.now())
	if err != nil {
		s.log.Error(err, "scan cycle failed")
		return true
	}

	s.mu.Lock()
	s.last = result
	s.mu.Unlock()
	return true
}

// LastResult returns the summary of the most recent completed cycle.
func (s *ScanScheduler) LastResult() *alert.ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
