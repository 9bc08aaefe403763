package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_SucceedsFirstTry(t *testing.T) {
	s := NewScheduler("test", DefaultSchedulerConfig())
	calls := 0
	err := s.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestScheduler_RetriesOnRateLimitSignal(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.BaseRetryDelay = 1 * time.Millisecond
	s := NewScheduler("test", cfg)

	calls := 0
	err := s.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return newRateLimitSignal("")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestScheduler_NonRateLimitErrorStopsImmediately(t *testing.T) {
	s := NewScheduler("test", DefaultSchedulerConfig())
	calls := 0
	permanent := errors.New("boom")
	err := s.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return permanent
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, permanent, err)
}

func TestScheduler_ExhaustsRetriesAndReportsRateLimitExhausted(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.MaxRetries = 2
	cfg.BaseRetryDelay = 1 * time.Millisecond
	s := NewScheduler("acme", cfg)

	calls := 0
	err := s.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return newRateLimitSignal("")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "acme")
}

func TestScheduler_HonorsRetryAfterOverBackoff(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.BaseRetryDelay = 1 * time.Millisecond
	cfg.MaxRetries = 2
	s := NewScheduler("test", cfg)

	start := time.Now()
	calls := 0
	_ = s.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return newRateLimitSignal("1")
		}
		return nil
	})
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestScheduler_ContextCancellationStopsRetries(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.BaseRetryDelay = 50 * time.Millisecond
	cfg.MaxRetries = 10
	s := NewScheduler("test", cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := s.Do(ctx, func(ctx context.Context) error {
		return newRateLimitSignal("")
	})
	require.Error(t, err)
}
