package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically deletes expired tokens and long-expired share links.
// Correctness never depends on it; it only bounds storage growth.
type Sweeper struct {
	tokens    TokenBroker
	shares    ShareLinkController
	interval  time.Duration
	retention time.Duration
	log       *zap.Logger
}

// NewSweeper constructs a Sweeper. interval <= 0 defaults to five minutes.
func NewSweeper(tokens TokenBroker, shares ShareLinkController, interval, retention time.Duration, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{tokens: tokens, shares: shares, interval: interval, retention: retention, log: log}
}

// Run sweeps once per interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single pass; failures are logged, not returned.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	if n, err := s.tokens.SweepExpired(ctx); err != nil {
		s.log.Warn("sweep tokens failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("swept expired tokens", zap.Int64("count", n))
	}
	if n, err := s.shares.SweepExpired(ctx, s.retention); err != nil {
		s.log.Warn("sweep share links failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("swept expired share links", zap.Int64("count", n))
	}
}
