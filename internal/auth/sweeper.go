// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/deckhand/deckhand/pkg/errutil"
)

// Sweeper defaults.
const (
	DefaultSweepInterval = time.Hour
	defaultSweepRetries  = 3
	defaultSweepBackoff  = 500 * time.Millisecond
)

// Sweeper periodically removes expired sessions from a store.
type Sweeper struct {
	store    SessionStore
	interval time.Duration
	backoff  func() retry.Backoff
	logger   *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets the time between sweeps.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweepBackoff sets the retry policy of a single sweep.
func WithSweepBackoff(b func() retry.Backoff) SweeperOption {
	return func(s *Sweeper) {
		s.backoff = b
	}
}

// WithSweepLogger sets the sweeper logger.
func WithSweepLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// NewSweeper creates a Sweeper over store.
func NewSweeper(store SessionStore, opts ...SweeperOption) (*Sweeper, error) {
	if store == nil {
		return nil, ErrNilSessionStore
	}
	s := &Sweeper{
		store:    store,
		interval: DefaultSweepInterval,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(defaultSweepRetries, retry.NewExponential(defaultSweepBackoff))
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SweepOnce removes expired sessions, retrying store failures.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	var removed int64
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		n, err := s.store.DeleteExpired(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "session sweep attempt failed", "error", err)
			return retry.RetryableError(err)
		}
		removed = n
		return nil
	})
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").Wrap(err)
	}
	return removed, nil
}

// Run sweeps every interval until ctx is cancelled. A failed sweep is
// logged and the next tick tries again.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				errutil.LogErrorContext(ctx, s.logger, "session sweep failed", err)
				continue
			}
			if n > 0 {
				s.logger.InfoContext(ctx, "expired sessions removed", "count", n)
			}
		}
	}
}
