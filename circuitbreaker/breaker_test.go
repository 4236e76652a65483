package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectecosystemapp/lib-resilience/log"
)

var errBackend = errors.New("backend error")

func failingOp(ctx context.Context) (any, error) { return nil, errBackend }

func succeedingOp(ctx context.Context) (any, error) { return "ok", nil }

func newTestBreaker(t *testing.T, cfg Config) *Breaker {
	t.Helper()

	if cfg.Logger == nil {
		cfg.Logger = &log.NopLogger{}
	}

	b, err := New(context.Background(), "test-backend", cfg)
	require.NoError(t, err)

	return b
}

func TestBreaker_InitialState(t *testing.T) {
	b := newTestBreaker(t, Config{})

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, Metrics{}, b.Metrics())
}

func TestBreaker_OpensExactlyAtFailureThreshold(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 3, VolumeThreshold: 100})

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.Execute(ctx, failingOp, nil)
		assert.ErrorIs(t, err, errBackend)
		assert.Equal(t, StateClosed, b.State(), "must stay closed before the threshold")
	}

	_, err := b.Execute(ctx, failingOp, nil)
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_OpenFastFails(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 1, ResetTimeout: time.Minute})

	ctx := context.Background()

	_, err := b.Execute(ctx, failingOp, nil)
	require.ErrorIs(t, err, errBackend)
	require.Equal(t, StateOpen, b.State())

	start := time.Now()
	_, err = b.Execute(ctx, func(ctx context.Context) (any, error) {
		t.Fatal("operation must not run while open")

		return nil, nil
	}, nil)

	assert.ErrorIs(t, err, ErrCircuitOpen)

	var openErr *OpenError

	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "test-backend", openErr.Name)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestBreaker_OpensOnErrorRate(t *testing.T) {
	b := newTestBreaker(t, Config{
		FailureThreshold:         100,
		VolumeThreshold:          10,
		ErrorThresholdPercentage: 50,
	})

	ctx := context.Background()

	// Alternate outcomes so consecutive failures never reach the
	// threshold, leaving only the error rate to trip the breaker.
	for i := 0; i < 5; i++ {
		_, _ = b.Execute(ctx, succeedingOp, nil)
		_, _ = b.Execute(ctx, failingOp, nil)
	}

	assert.Equal(t, StateOpen, b.State())
	assert.InDelta(t, 50.0, b.Metrics().ErrorRate, 0.01)
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 1, ResetTimeout: 30 * time.Millisecond})

	ctx := context.Background()

	_, _ = b.Execute(ctx, failingOp, nil)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(40 * time.Millisecond)

	ran := false
	_, err := b.Execute(ctx, func(ctx context.Context) (any, error) {
		ran = true

		return "probe", nil
	}, nil)

	assert.NoError(t, err)
	assert.True(t, ran)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker(t, Config{
		FailureThreshold: 1,
		SuccessThreshold: 3,
		ResetTimeout:     30 * time.Millisecond,
	})

	ctx := context.Background()

	_, _ = b.Execute(ctx, failingOp, nil)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(40 * time.Millisecond)

	// One probe succeeds, then a failure must immediately reopen
	// regardless of the accumulated successes.
	_, err := b.Execute(ctx, succeedingOp, nil)
	require.NoError(t, err)
	require.Equal(t, StateHalfOpen, b.State())

	_, err = b.Execute(ctx, failingOp, nil)
	require.ErrorIs(t, err, errBackend)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	b := newTestBreaker(t, Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		ResetTimeout:     30 * time.Millisecond,
	})

	ctx := context.Background()

	_, _ = b.Execute(ctx, failingOp, nil)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(40 * time.Millisecond)

	_, err := b.Execute(ctx, succeedingOp, nil)
	require.NoError(t, err)
	require.Equal(t, StateHalfOpen, b.State())

	_, err = b.Execute(ctx, succeedingOp, nil)
	require.NoError(t, err)

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, Metrics{}, b.Metrics(), "counters must be zeroed after closing")
	assert.Zero(t, b.Metrics().ErrorRate)
}

func TestBreaker_HalfOpenAllowsSingleProbe(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 1, ResetTimeout: 30 * time.Millisecond})

	ctx := context.Background()

	_, _ = b.Execute(ctx, failingOp, nil)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(40 * time.Millisecond)

	probeStarted := make(chan struct{})
	release := make(chan struct{})
	probeDone := make(chan error, 1)

	go func() {
		_, err := b.Execute(ctx, func(ctx context.Context) (any, error) {
			close(probeStarted)
			<-release

			return "probe", nil
		}, nil)
		probeDone <- err
	}()

	<-probeStarted
	require.Equal(t, StateHalfOpen, b.State())

	// A second call while the probe is in flight is rejected.
	_, err := b.Execute(ctx, succeedingOp, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	close(release)
	assert.NoError(t, <-probeDone)
}

func TestBreaker_TimeoutCountsAsFailure(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 1, Timeout: 20 * time.Millisecond})

	ctx := context.Background()

	_, err := b.Execute(ctx, func(ctx context.Context) (any, error) {
		select {
		case <-time.After(time.Second):
			return "too late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, nil)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, uint32(1), b.Metrics().Failures)
}

func TestBreaker_FallbackOnRejection(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 1, ResetTimeout: time.Minute})

	ctx := context.Background()

	_, _ = b.Execute(ctx, failingOp, nil)
	require.Equal(t, StateOpen, b.State())

	result, err := b.Execute(ctx, failingOp, func(ctx context.Context) (any, error) {
		return "cached", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "cached", result)
}

func TestBreaker_EndToEndFallbackAfterOpening(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 3, ResetTimeout: time.Minute})

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.Execute(ctx, failingOp, nil)
		require.ErrorIs(t, err, errBackend)
	}

	require.Equal(t, StateOpen, b.State())

	result, err := b.Execute(ctx, failingOp, func(ctx context.Context) (any, error) {
		return "fallback", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "fallback", result)

	metrics := b.Metrics()
	assert.Equal(t, uint32(3), metrics.Failures)
	assert.Equal(t, uint32(0), metrics.Successes)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_FailurePropagatesWhileClosed(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 5})

	ctx := context.Background()

	// A failure that does not open the breaker propagates even when a
	// fallback is supplied.
	_, err := b.Execute(ctx, failingOp, func(ctx context.Context) (any, error) {
		return "fallback", nil
	})

	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 1})

	ctx := context.Background()

	_, _ = b.Execute(ctx, failingOp, nil)
	require.Equal(t, StateOpen, b.State())

	b.Reset(ctx)

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, Metrics{}, b.Metrics())
}

func TestBreaker_Trip(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 5})

	ctx := context.Background()

	require.Equal(t, StateClosed, b.State())

	b.Trip(ctx)

	assert.Equal(t, StateOpen, b.State())

	_, err := b.Execute(ctx, succeedingOp, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreaker_GetStatus(t *testing.T) {
	b := newTestBreaker(t, Config{FailureThreshold: 5})

	ctx := context.Background()

	_, _ = b.Execute(ctx, succeedingOp, nil)
	_, _ = b.Execute(ctx, failingOp, nil)

	status := b.GetStatus()
	assert.Equal(t, "test-backend", status.Name)
	assert.Equal(t, StateClosed, status.State)
	assert.Equal(t, uint32(2), status.Metrics.TotalRequests)
	assert.Equal(t, uint32(1), status.Metrics.Successes)
	assert.Equal(t, uint32(1), status.Metrics.Failures)
	assert.InDelta(t, 50.0, status.Metrics.ErrorRate, 0.01)
}

func TestDo_TypedExecution(t *testing.T) {
	b := newTestBreaker(t, Config{})

	result, err := Do(context.Background(), b, func(ctx context.Context) (int, error) {
		return 42, nil
	}, nil)

	assert.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestBreaker_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), "bad", Config{ErrorThresholdPercentage: 150})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
