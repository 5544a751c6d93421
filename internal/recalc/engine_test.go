package recalc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	attrA Attr = "a"
	attrB Attr = "b"
	attrC Attr = "c"
)

func TestDoFlushesChainToFixedPoint(t *testing.T) {
	e := New(Config{})
	n := e.NewNode()
	var a, b, c int
	n.On("b", func() {
		if b != a*2 {
			b = a * 2
			n.Changed(attrB)
		}
	}, attrA)
	n.On("c", func() {
		c = b + 1
	}, attrB)

	require.NoError(t, e.Do(func() error {
		a = 5
		n.Changed(attrA)
		return nil
	}))
	require.Equal(t, 10, b)
	require.Equal(t, 11, c)
}

func TestScheduleDeduplicatesQueuedRule(t *testing.T) {
	e := New(Config{})
	n := e.NewNode()
	runs := 0
	n.On("count", func() { runs++ }, attrA, attrB)

	require.NoError(t, e.Do(func() error {
		n.Changed(attrA, attrB, attrA)
		return nil
	}))
	require.Equal(t, 1, runs)

	require.NoError(t, e.Do(func() error {
		n.Changed(attrB)
		return nil
	}))
	require.Equal(t, 2, runs)
}

func TestFlushStopsCycles(t *testing.T) {
	e := New(Config{MaxSteps: 50})
	n := e.NewNode()
	n.On("ping", func() { n.Changed(attrB) }, attrA)
	n.On("pong", func() { n.Changed(attrA) }, attrB)

	err := e.Do(func() error {
		n.Changed(attrA)
		return nil
	})
	require.ErrorIs(t, err, ErrNoFixedPoint)

	// queue is reset, so the engine stays usable
	other := 0
	n.On("other", func() { other++ }, attrC)
	require.NoError(t, e.Do(func() error {
		n.Changed(attrC)
		return nil
	}))
	require.Equal(t, 1, other)
}

func TestDoReturnsMutationError(t *testing.T) {
	e := New(Config{})
	boom := errors.New("boom")
	require.ErrorIs(t, e.Do(func() error { return boom }), boom)
}

func TestSpawnAppliesUnderLockAndFlushes(t *testing.T) {
	e := New(Config{})
	n := e.NewNode()
	release := make(chan struct{})
	var got, derived int
	n.On("derive", func() { derived = got * 10 }, attrB)
	n.On("fetch", func() {
		Spawn(e, "fetch", func(ctx context.Context) (int, error) {
			<-release
			return 7, nil
		}, func(v int, err error) {
			assert.NoError(t, err)
			got = v
			n.Changed(attrB)
		})
	}, attrA)

	require.NoError(t, e.Do(func() error {
		n.Changed(attrA)
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, e.Wait(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, e.Wait(context.Background()))
	e.Read(func() {
		require.Equal(t, 7, got)
		require.Equal(t, 70, derived)
	})
}

func TestCloseDropsLateResults(t *testing.T) {
	e := New(Config{})
	applied := false
	started := make(chan struct{})
	require.NoError(t, e.Do(func() error {
		Spawn(e, "slow", func(ctx context.Context) (int, error) {
			close(started)
			<-ctx.Done()
			return 0, ctx.Err()
		}, func(int, error) { applied = true })
		return nil
	}))
	<-started
	e.Close()
	require.NoError(t, e.Wait(context.Background()))
	require.False(t, applied)
	require.ErrorIs(t, e.Do(func() error { return nil }), ErrClosed)
}

func TestMetricsCountRulesAndInflight(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	e := New(Config{Metrics: m})
	n := e.NewNode()
	n.On("totals", func() {}, attrA)
	require.NoError(t, e.Do(func() error {
		n.Changed(attrA)
		return nil
	}))
	require.Equal(t, float64(1), testutil.ToFloat64(m.rules.WithLabelValues("totals")))

	m.Async("price", OutcomeStale)
	require.Equal(t, float64(1), testutil.ToFloat64(m.async.WithLabelValues("price", OutcomeStale)))
	require.Equal(t, float64(0), testutil.ToFloat64(m.inflight))
}
