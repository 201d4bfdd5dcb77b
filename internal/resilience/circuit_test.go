package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/parceltrack/backend-track/internal/resilience"
)

func newBreaker(minRequests int, ratio float64, openFor time.Duration) *resilience.Breaker {
	return resilience.NewBreaker(resilience.BreakerConfig{
		Carrier:      "test-carrier",
		MinRequests:  minRequests,
		FailureRatio: ratio,
		OpenFor:      openFor,
		Log:          zerolog.Nop(),
	})
}

func TestBreakerTransitions(t *testing.T) {
	breaker := newBreaker(2, 0.5, 50*time.Millisecond)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	require.False(t, breaker.Allow(ctx), "breaker should open after threshold exceeded")
	require.Equal(t, resilience.Open, breaker.CurrentState())

	time.Sleep(60 * time.Millisecond)
	require.True(t, breaker.Allow(ctx), "breaker should move to half-open after cool off")
	require.Equal(t, resilience.HalfOpen, breaker.CurrentState())
	breaker.Report(ctx, true)
	require.True(t, breaker.Allow(ctx), "breaker should close after successful probe")
	require.Equal(t, resilience.Closed, breaker.CurrentState())
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	breaker := newBreaker(1, 0.5, 20*time.Millisecond)
	ctx := context.Background()

	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.CurrentState())

	time.Sleep(30 * time.Millisecond)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, resilience.Open, breaker.CurrentState())
	require.False(t, breaker.Allow(ctx))
}

func TestBreakerStaysClosedBelowMinRequests(t *testing.T) {
	breaker := newBreaker(10, 0.5, time.Second)
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		breaker.Report(ctx, false)
	}
	require.True(t, breaker.Allow(ctx), "ratio does not apply until the minimum sample")
	require.Equal(t, resilience.Closed, breaker.CurrentState())
}
