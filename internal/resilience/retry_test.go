package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

var errLocked = errors.New("database is locked")

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls, retries int
	cfg := fastConfig()
	cfg.OnRetry = func(int, error) { retries++ }

	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return errLocked
	})
	assert.ErrorIs(t, err, errLocked)
	assert.Equal(t, 3, calls)
}

func TestDo_NonTransientNoRetry(t *testing.T) {
	var calls int
	want := errors.New("constraint violation")
	err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return want
	})
	assert.ErrorIs(t, err, want)
	assert.Equal(t, 1, calls)
}

func TestDo_CustomShouldRetry(t *testing.T) {
	var calls int
	cfg := fastConfig()
	cfg.ShouldRetry = func(error) bool { return true }
	_ = Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return errors.New("anything")
	})
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelledStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	cfg := fastConfig()
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	cfg.OnRetry = func(int, error) { cancel() }

	err := Do(ctx, cfg, func(context.Context) error {
		calls++
		return errLocked
	})
	assert.ErrorIs(t, err, errLocked)
	assert.Equal(t, 1, calls)
}

func TestDoVal(t *testing.T) {
	var calls int
	got, err := DoVal(context.Background(), fastConfig(), func(context.Context) (int64, error) {
		calls++
		if calls == 1 {
			return 0, errLocked
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestComputeBackoff(t *testing.T) {
	cfg := applyDefaults(RetryConfig{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond})
	assert.Equal(t, 10*time.Millisecond, computeBackoff(0, cfg))
	assert.Equal(t, 20*time.Millisecond, computeBackoff(1, cfg))
	assert.Equal(t, 50*time.Millisecond, computeBackoff(5, cfg))

	cfg.JitterFraction = 0.5
	for range 20 {
		d := computeBackoff(1, cfg)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 30*time.Millisecond)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := applyDefaults(RetryConfig{JitterFraction: -1})
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 5*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.Zero(t, cfg.JitterFraction)
}
