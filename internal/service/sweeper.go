package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const sweepTimeout = 10 * time.Second

// BucketPruner drops expired rate-limit state.
type BucketPruner interface {
	Prune() int
}

// RunSessionSweeper purges inactive sessions every sweep interval until ctx
// is cancelled. A non-nil pruner is pruned on the same tick.
func (s *Service) RunSessionSweeper(ctx context.Context, pruner BucketPruner) {
	interval := s.config.Sweep.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepSessions(ctx)
			if pruner != nil {
				if n := pruner.Prune(); n > 0 {
					s.logger.Debug("pruned rate-limit buckets", zap.Int("count", n))
				}
			}
		}
	}
}

// PurgeInactive deletes sessions idle for longer than ttl.
func (s *Service) PurgeInactive(ctx context.Context, ttl time.Duration) (int64, error) {
	return s.store.PurgeSessionsOlderThan(ctx, s.now().Add(-ttl))
}

// triggerSweep starts a background sweep unless one is already running.
func (s *Service) triggerSweep() {
	if !s.sweeping.CompareAndSwap(false, true) {
		return
	}
	s.sweeps.Add(1)
	go func() {
		defer s.sweeps.Done()
		defer s.sweeping.Store(false)
		s.sweepSessions(context.Background())
	}()
}

func (s *Service) sweepSessions(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	n, err := s.PurgeInactive(sweepCtx, s.config.Session.TTL)
	if err != nil {
		s.logger.Warn("session sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("purged inactive sessions", zap.Int64("count", n))
	}
}
