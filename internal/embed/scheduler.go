package embed

import (
	"context"
	"time"

	qerrors "github.com/mhalder/qdrant-mcp-server-sub001/internal/errors"
)

// SchedulerConfig bounds how aggressively the scheduler hits a remote
// embedding backend.
type SchedulerConfig struct {
	MaxConcurrent   int
	MaxRetries      int
	BaseRetryDelay  time.Duration
	MinCallSpacing  time.Duration
}

// DefaultSchedulerConfig mirrors conservative defaults for a
// pay-per-call remote embedding API.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrent:  4,
		MaxRetries:     5,
		BaseRetryDelay: 500 * time.Millisecond,
		MinCallSpacing: 50 * time.Millisecond,
	}
}

// Scheduler throttles and retries calls against a rate-limited remote
// embedder: a semaphore caps concurrency, a mutex-guarded last-call
// timestamp enforces minimum spacing, and exponential backoff (honoring
// any server-supplied Retry-After) drives the retry loop.
type Scheduler struct {
	provider string
	cfg      SchedulerConfig
	sem      chan struct{}
	lastCall chan time.Time
}

// NewScheduler builds a scheduler for the named provider (used only in
// the exhausted-retries error message).
func NewScheduler(provider string, cfg SchedulerConfig) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = 500 * time.Millisecond
	}
	lastCall := make(chan time.Time, 1)
	lastCall <- time.Time{}
	return &Scheduler{
		provider: provider,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		lastCall: lastCall,
	}
}

// Do runs fn under the concurrency cap and minimum call spacing,
// retrying on a rate-limit signal with exponential backoff until
// MaxRetries is exhausted.
func (s *Scheduler) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		if err := s.waitTurn(ctx); err != nil {
			return err
		}
		err := s.call(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		retryAfter, hasRetryAfter, isRateLimit := IsRateLimitSignal(err)
		if !isRateLimit {
			return err
		}
		delay := s.backoffDelay(attempt)
		if hasRetryAfter && retryAfter > delay {
			delay = retryAfter
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	detail := ""
	if lastErr != nil {
		detail = lastErr.Error()
	}
	return qerrors.RateLimitExhaustedError(s.provider, s.cfg.MaxRetries).
		WithDetail("last_error", detail)
}

func (s *Scheduler) backoffDelay(attempt int) time.Duration {
	d := s.cfg.BaseRetryDelay
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

func (s *Scheduler) waitTurn(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	last := <-s.lastCall
	if wait := s.cfg.MinCallSpacing - time.Since(last); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			s.lastCall <- last
			<-s.sem
			return ctx.Err()
		}
	}
	return nil
}

func (s *Scheduler) call(ctx context.Context, fn func(ctx context.Context) error) error {
	defer func() { <-s.sem }()
	defer func() { s.lastCall <- time.Now() }()
	return fn(ctx)
}
