package sampler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/elaiviaien/smaug/internal/constants"
	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/metric"
	"github.com/elaiviaien/smaug/internal/storage"
)

func newRegistry(t *testing.T) *storage.Registry {
	t.Helper()
	r, err := storage.NewRegistry(storage.RegistryOptions{
		Backend: constants.BackendMemory,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

// counterProbe reports an increasing value on every call.
type counterProbe struct {
	calls atomic.Int64
	fail  func(n int64) error
	panic func(n int64) bool
}

func (p *counterProbe) Name() string { return "counter" }

func (p *counterProbe) RecordStats(ctx context.Context) (metric.Series, error) {
	n := p.calls.Add(1)
	if p.panic != nil && p.panic(n) {
		panic("probe exploded")
	}
	if p.fail != nil {
		if err := p.fail(n); err != nil {
			return metric.Series{}, err
		}
	}
	return metric.NewSeries(
		metric.New("counter_value", float64(n), n),
		metric.NewText("counter_label", "c", n),
	)
}

func newContinuous(t *testing.T, p Probe, r *storage.Registry) *Continuous {
	t.Helper()
	c := NewContinuous(p, r, Options{Tick: 5 * time.Millisecond, Logger: zap.NewNop()})
	t.Cleanup(func() {
		c.Stop()
		c.WaitTimeout(time.Second)
	})
	return c
}

func TestContinuousRecords(t *testing.T) {
	r := newRegistry(t)
	p := &counterProbe{}
	c := newContinuous(t, p, r)

	assert.Equal(t, constants.SamplerStateCreated, c.State())
	assert.False(t, c.Alive())

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, constants.SamplerStateRunning, c.State())

	require.Eventually(t, func() bool {
		return c.Stats().Ticks >= 5
	}, 2*time.Second, 5*time.Millisecond)

	c.Stop()
	require.NoError(t, c.WaitTimeout(time.Second))
	assert.False(t, c.Alive())
	assert.Equal(t, constants.SamplerStateStopped, c.State())

	assert.Equal(t, []string{"counter_label", "counter_value"}, c.Metrics())

	s, ok := r.Lookup("counter_value")
	require.True(t, ok)
	entries, err := s.Tail(0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].Epoch, entries[i-1].Epoch, "append order follows capture order")
	}

	latest, err := c.Latest("counter_value")
	require.NoError(t, err)
	assert.Equal(t, entries[len(entries)-1].Epoch, latest.Epoch)
}

func TestContinuousStartTwice(t *testing.T) {
	c := newContinuous(t, &counterProbe{}, newRegistry(t))

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, errors.Is(c.Start(context.Background()), errors.ErrSamplerRunning))

	c.Stop()
	assert.True(t, errors.Is(c.Start(context.Background()), errors.ErrSamplerStopped))
}

func TestContinuousStopIdempotent(t *testing.T) {
	c := newContinuous(t, &counterProbe{}, newRegistry(t))

	// Stop before Start is allowed and makes Start fail.
	c.Stop()
	c.Stop()
	assert.NoError(t, c.WaitTimeout(10*time.Millisecond))
	assert.True(t, errors.Is(c.Start(context.Background()), errors.ErrSamplerStopped))
}

func TestContinuousContextCancel(t *testing.T) {
	c := newContinuous(t, &counterProbe{}, newRegistry(t))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	require.Eventually(t, c.Alive, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, c.WaitTimeout(time.Second))
	assert.False(t, c.Alive())
}

func TestContinuousSurvivesProbeFailures(t *testing.T) {
	p := &counterProbe{
		fail: func(n int64) error {
			if n%2 == 0 {
				return errors.NewProbeRead("counter", errors.New("transient"))
			}
			return nil
		},
		panic: func(n int64) bool { return n == 3 },
	}
	c := newContinuous(t, p, newRegistry(t))

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool {
		return c.Stats().Ticks >= 3
	}, 2*time.Second, 5*time.Millisecond)

	stats := c.Stats()
	assert.GreaterOrEqual(t, stats.ProbeFailures, int64(2))
	assert.Equal(t, int64(1), stats.Panics)
	assert.True(t, c.Alive(), "loop must keep running after failures")
}

func TestContinuousSurvivesStoreFailures(t *testing.T) {
	r, err := storage.NewRegistry(storage.RegistryOptions{
		Backend: constants.BackendMemory,
		MaxSize: 32, // smaller than any record the probe reports
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	core, logs := observer.New(zap.WarnLevel)
	c := NewContinuous(&counterProbe{}, r, Options{Tick: 5 * time.Millisecond, Logger: zap.New(core)})
	t.Cleanup(func() {
		c.Stop()
		c.WaitTimeout(time.Second)
	})
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool {
		return c.Stats().StoreFailures >= 4 && c.Stats().Ticks >= 2
	}, 2*time.Second, time.Millisecond)
	assert.True(t, c.Alive())

	failures := logs.FilterMessage("store append failed").All()
	require.NotEmpty(t, failures)
	assert.Equal(t, zap.ErrorLevel, failures[0].Level, "invalid records are not transient")
}

func TestContinuousTransientFailuresWarn(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := &counterProbe{
		fail: func(n int64) error { return errors.NewProbeRead("counter", errors.New("transient")) },
	}
	c := NewContinuous(p, newRegistry(t), Options{Tick: 5 * time.Millisecond, Logger: zap.New(core)})
	t.Cleanup(func() {
		c.Stop()
		c.WaitTimeout(time.Second)
	})
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool {
		return logs.FilterMessage("probe read failed").Len() >= 2
	}, 2*time.Second, time.Millisecond)
	for _, e := range logs.FilterMessage("probe read failed").All() {
		assert.Equal(t, zap.WarnLevel, e.Level)
	}
}

func TestContinuousRegistryClosed(t *testing.T) {
	r := newRegistry(t)
	c := newContinuous(t, &counterProbe{}, r)
	require.NoError(t, c.Start(context.Background()))

	require.Eventually(t, func() bool { return c.Stats().Ticks >= 1 }, time.Second, time.Millisecond)
	require.NoError(t, r.Close())

	calls := func() int64 { return c.probe.(*counterProbe).calls.Load() }
	after := calls()
	require.Eventually(t, func() bool { return calls() >= after+3 }, time.Second, time.Millisecond)

	ticks := c.Stats().Ticks
	time.Sleep(20 * time.Millisecond)
	assert.True(t, c.Alive())
	assert.Zero(t, c.Stats().StoreFailures, "a closed registry is not a write failure")
	assert.LessOrEqual(t, c.Stats().Ticks, ticks+1)
}

func TestContinuousWaitTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	p := ProbeFunc{ProbeName: "stuck", Fn: func(ctx context.Context) (metric.Series, error) {
		<-block
		return metric.Series{}, nil
	}}
	c := NewContinuous(p, newRegistry(t), Options{Logger: zap.NewNop()})
	require.NoError(t, c.Start(context.Background()))

	c.Stop()
	err := c.WaitTimeout(20 * time.Millisecond)
	assert.True(t, errors.Is(err, errors.ErrStopTimeout))
	assert.True(t, c.Alive())
}

func TestContinuousAverage(t *testing.T) {
	r := newRegistry(t)
	c := NewContinuous(&counterProbe{}, r, Options{Logger: zap.NewNop()})

	avg, err := c.Average("cpu_usage")
	require.NoError(t, err)
	assert.Zero(t, avg, "average of a store that does not exist is 0")

	s, err := r.Get("cpu_usage")
	require.NoError(t, err)

	avg, err = c.Average("cpu_usage")
	require.NoError(t, err)
	assert.Zero(t, avg, "average of an empty store is 0")

	for i, v := range []float64{10, 20, 30} {
		require.NoError(t, s.Append(metric.New("cpu_usage", v, int64(i))))
	}

	avg, err = c.Average("cpu_usage")
	require.NoError(t, err)
	assert.Equal(t, 20.0, avg)

	sum, err := c.Summary("cpu_usage")
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.Count)
	assert.Equal(t, 10.0, sum.Min)
	assert.Equal(t, 30.0, sum.Max)
	assert.True(t, sum.HasPercentiles())

	_, err = c.Latest("nothing")
	assert.True(t, errors.IsNotFound(err))
}

func TestBaseline(t *testing.T) {
	p := &counterProbe{}

	b, err := NewBaseline(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "counter", b.Name())

	first, err := b.First().Float("counter_value")
	require.NoError(t, err)
	assert.Equal(t, 1.0, first)

	// First is immutable, Last re-probes on every call.
	last, err := b.Last(context.Background())
	require.NoError(t, err)
	v, _ := last.Float("counter_value")
	assert.Equal(t, 2.0, v)

	last, _ = b.Last(context.Background())
	v, _ = last.Float("counter_value")
	assert.Equal(t, 3.0, v)

	first, _ = b.First().Float("counter_value")
	assert.Equal(t, 1.0, first)

	diff, err := b.Diff(context.Background(), "counter_value")
	require.NoError(t, err)
	assert.Equal(t, 3.0, diff)

	_, err = b.DiffFrom(last, "counter_label")
	assert.True(t, errors.Is(err, errors.ErrNotNumeric))

	_, err = b.DiffFrom(last, "missing")
	assert.True(t, errors.Is(err, errors.ErrMetricNotFound))

	assert.False(t, b.Started().IsZero())
	assert.GreaterOrEqual(t, b.Elapsed(), time.Duration(0))
}

func TestBaselineProbeFailure(t *testing.T) {
	p := &counterProbe{fail: func(int64) error {
		return errors.NewProbeRead("counter", errors.New("no such file"))
	}}

	_, err := NewBaseline(context.Background(), p)
	assert.True(t, errors.Is(err, errors.ErrProbeReadFailed))
}
