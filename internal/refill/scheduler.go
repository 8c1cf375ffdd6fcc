// ABOUTME: Background loop that restores daily credits once the refill window has passed
// ABOUTME: Store errors are logged and retried on the next tick; the loop stops on context cancel or Stop

package refill

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is how often a sweep runs when none is configured.
const DefaultInterval = time.Hour

// Ledger is what the scheduler needs from the quota ledger.
type Ledger interface {
	Now() time.Time
	DueForRefill(ctx context.Context, now time.Time) ([]string, error)
	RefillIfDue(ctx context.Context, userID string, now time.Time) (bool, error)
}

// Scheduler periodically refills every due user record.
type Scheduler struct {
	ledger   Ledger
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	done    chan struct{}
	stopped bool
}

// New creates a Scheduler. A non-positive interval means DefaultInterval.
func New(ledger Ledger, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		ledger:   ledger,
		interval: interval,
		logger:   logger.With("component", "refill"),
		done:     make(chan struct{}),
	}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled
// or Stop is called. It always returns nil; sweep failures are not fatal.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("refill scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepAndLog(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweepAndLog(ctx)
		case <-ctx.Done():
			s.logger.Info("refill scheduler stopped", "reason", "context done")
			return nil
		case <-s.done:
			s.logger.Info("refill scheduler stopped", "reason", "stop requested")
			return nil
		}
	}
}

// Stop ends Run. It is safe to call multiple times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stopped {
		close(s.done)
		s.stopped = true
	}
}

// Sweep refills every due user and returns how many were refilled. A failure
// for one user does not stop the sweep; the joined errors are returned.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	now := s.ledger.Now()

	ids, err := s.ledger.DueForRefill(ctx, now)
	if err != nil {
		return 0, err
	}

	var (
		refilled int
		errs     []error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		ok, err := s.ledger.RefillIfDue(ctx, id, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			refilled++
		}
	}

	return refilled, errors.Join(errs...)
}

func (s *Scheduler) sweepAndLog(ctx context.Context) {
	start := time.Now()
	refilled, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Warn("refill sweep failed, retrying next tick", "error", err, "refilled", refilled)
		return
	}

	s.logger.Debug("refill sweep complete",
		"refilled", refilled,
		"duration", time.Since(start),
	)
}
