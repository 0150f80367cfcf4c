package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(min int, ratio float64, openFor time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := NewBreaker(min, ratio, openFor)
	b.now = clock.now
	return b, clock
}

func TestBreakerTransitions(t *testing.T) {
	breaker, clock := newTestBreaker(2, 0.5, time.Minute)
	ctx := context.Background()

	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)

	require.False(t, breaker.Allow(ctx), "breaker should open after threshold exceeded")
	require.Equal(t, Open, breaker.State())

	clock.t = clock.t.Add(time.Minute)
	require.True(t, breaker.Allow(ctx), "breaker should admit a probe after cool off")
	require.Equal(t, HalfOpen, breaker.State())
	require.False(t, breaker.Allow(ctx), "only one probe while half-open")

	breaker.Report(ctx, true)
	require.Equal(t, Closed, breaker.State())
	require.True(t, breaker.Allow(ctx))
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	breaker, clock := newTestBreaker(1, 0.5, time.Second)
	ctx := context.Background()

	breaker.Report(ctx, false)
	require.Equal(t, Open, breaker.State())
	clock.t = clock.t.Add(time.Second)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, false)
	require.Equal(t, Open, breaker.State())
	require.False(t, breaker.Allow(ctx))
}

func TestBreakerStaysClosedBelowRatio(t *testing.T) {
	breaker, _ := newTestBreaker(4, 0.5, time.Second)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		breaker.Report(ctx, i%4 != 0)
	}
	require.Equal(t, Closed, breaker.State())
}

func TestBreakerMetrics(t *testing.T) {
	RegisterMetrics("toko_test", prometheus.NewRegistry())
	breakerState.Reset()
	breakerTransitions.Reset()

	breaker, clock := newTestBreaker(1, 0.5, time.Second)
	breaker.WithTarget("commerce")
	ctx := context.Background()

	breaker.Report(ctx, false)
	require.Equal(t, 1.0, testutil.ToFloat64(breakerState.WithLabelValues("commerce")))

	clock.t = clock.t.Add(time.Second)
	require.True(t, breaker.Allow(ctx))
	require.Equal(t, 2.0, testutil.ToFloat64(breakerState.WithLabelValues("commerce")))

	breaker.Report(ctx, true)
	require.Equal(t, 0.0, testutil.ToFloat64(breakerState.WithLabelValues("commerce")))
	require.Equal(t, 1.0, testutil.ToFloat64(breakerTransitions.WithLabelValues("commerce", "closed", "open")))
	require.Equal(t, 1.0, testutil.ToFloat64(breakerTransitions.WithLabelValues("commerce", "open", "half_open")))
	require.Equal(t, 1.0, testutil.ToFloat64(breakerTransitions.WithLabelValues("commerce", "half_open", "closed")))
}

func TestBreakerOldFailuresAgeOut(t *testing.T) {
	breaker, _ := newTestBreaker(2, 0.75, time.Second)
	ctx := context.Background()

	breaker.Report(ctx, true)
	breaker.Report(ctx, false)
	breaker.Report(ctx, false)
	require.Equal(t, Closed, breaker.State())
	for i := 0; i < 4; i++ {
		breaker.Report(ctx, true)
	}
	breaker.Report(ctx, false)
	breaker.Report(ctx, false)
	require.Equal(t, Closed, breaker.State())
	breaker.Report(ctx, false)
	require.Equal(t, Open, breaker.State())
}

func TestBackoffWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, base, Backoff(base, 1, 0))
	require.Equal(t, base*4, Backoff(base, 3, 0))

	d := Backoff(base, 2, 0.2)
	require.GreaterOrEqual(t, d, base*2-base*2/5)
	require.LessOrEqual(t, d, base*2+base*2/5)
}
