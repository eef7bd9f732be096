package monitor

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elaiviaien/smaug/internal/constants"
	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/metric"
	"github.com/elaiviaien/smaug/internal/probe"
	"github.com/elaiviaien/smaug/internal/sampler"
	"github.com/elaiviaien/smaug/internal/storage"
)

// fixedProbe returns the same readings on every call.
func fixedProbe(name string, values map[string]float64) sampler.Probe {
	return sampler.ProbeFunc{
		ProbeName: name,
		Fn: func(context.Context) (metric.Series, error) {
			epoch := metric.Now()
			ms := make([]metric.Metric, 0, len(values))
			for n, v := range values {
				ms = append(ms, metric.New(n, v, epoch))
			}
			return metric.NewSeries(ms...)
		},
	}
}

type fixture struct {
	threads atomic.Int64
	disk    atomic.Int64
	appRead atomic.Int64
	alive   atomic.Bool
}

func (f *fixture) options(t *testing.T) Options {
	t.Helper()
	f.threads.Store(100)
	f.disk.Store(40)
	f.alive.Store(true)

	return Options{
		Registry: storage.RegistryOptions{
			Backend: constants.BackendMemory,
			Logger:  zap.NewNop(),
		},
		Tick:        5 * time.Millisecond,
		StopTimeout: time.Second,
		AppSizeTTL:  time.Hour,
		Logger:      zap.NewNop(),
		CPUProbe:    fixedProbe(constants.ProbeCPU, map[string]float64{constants.MetricCPUUsage: 20}),
		MemoryProbe: fixedProbe(constants.ProbeMemory, map[string]float64{
			constants.MetricMemoryUsage: 50,
			constants.MetricSwapUsage:   10,
		}),
		DiskProbe: sampler.ProbeFunc{
			ProbeName: constants.ProbeDisk,
			Fn: func(context.Context) (metric.Series, error) {
				return metric.NewSeries(metric.New(constants.MetricDiskUsage, float64(f.disk.Load()), metric.Now()))
			},
		},
		ProcessProbe: probe.NewProcess(probe.ProcessOptions{
			PID: 42,
			Threads: func(context.Context) (int64, error) {
				return f.threads.Load(), nil
			},
			Target: func(context.Context, int32) (probe.TargetInfo, error) {
				if !f.alive.Load() {
					return probe.TargetInfo{}, errors.ErrTargetNotExists
				}
				return probe.TargetInfo{Name: "worker", Threads: 3}, nil
			},
		}),
		AppSizeProbe: sampler.ProbeFunc{
			ProbeName: constants.ProbeAppSize,
			Fn: func(context.Context) (metric.Series, error) {
				f.appRead.Add(1)
				return metric.NewSeries(metric.New(constants.MetricAppSize, 2048, metric.Now()))
			},
		},
	}
}

func newGroup(t *testing.T, opts Options) *Group {
	t.Helper()
	g, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close(context.Background()) })
	return g
}

func waitForSample(t *testing.T, c *sampler.Continuous, name string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := c.Latest(name)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSnapshot(t *testing.T) {
	var f fixture
	g := newGroup(t, f.options(t))

	waitForSample(t, g.CPU(), constants.MetricCPUUsage)
	waitForSample(t, g.Memory(), constants.MetricSwapUsage)

	f.disk.Store(45)
	f.threads.Store(110)

	s, err := g.Snapshot(context.Background())
	require.NoError(t, err)

	for _, name := range []string{
		constants.MetricCPUUsage, constants.MetricCPUAverage, constants.MetricCPUP95,
		constants.MetricMemoryUsage, constants.MetricMemoryAverage, constants.MetricMemoryP95,
		constants.MetricSwapUsage, constants.MetricSwapAverage, constants.MetricSwapP95,
		constants.MetricDiskUsage, constants.MetricDiskUsageDiff,
		constants.MetricExecutionTime, constants.MetricTotalThreadUsage,
		constants.MetricTotalThreadUsageDiff, constants.MetricCurrentThreadUsageDiff,
		constants.MetricProcessInfo, constants.MetricProcessThreads,
		constants.MetricAppSize,
	} {
		assert.True(t, s.Has(name), "missing %s", name)
	}

	get := func(name string) float64 {
		v, err := s.Float(name)
		require.NoError(t, err, name)
		return v
	}

	assert.Equal(t, 20.0, get(constants.MetricCPUUsage))
	assert.Equal(t, 20.0, get(constants.MetricCPUAverage))
	assert.Equal(t, 50.0, get(constants.MetricMemoryAverage))
	assert.Equal(t, 10.0, get(constants.MetricSwapAverage))
	// percentiles are sketch estimates
	assert.InDelta(t, 20.0, get(constants.MetricCPUP95), 0.4)
	assert.InDelta(t, 50.0, get(constants.MetricMemoryP95), 1.0)
	assert.InDelta(t, 10.0, get(constants.MetricSwapP95), 0.2)
	assert.Equal(t, 45.0, get(constants.MetricDiskUsage))
	assert.Equal(t, 5.0, get(constants.MetricDiskUsageDiff))
	assert.Equal(t, 110.0, get(constants.MetricTotalThreadUsage))
	assert.Equal(t, 10.0, get(constants.MetricTotalThreadUsageDiff))
	assert.Equal(t, 10.0, get(constants.MetricCurrentThreadUsageDiff))
	assert.Equal(t, 3.0, get(constants.MetricProcessThreads))
	assert.Equal(t, 2048.0, get(constants.MetricAppSize))

	info, err := s.Get(constants.MetricProcessInfo)
	require.NoError(t, err)
	assert.Equal(t, "worker", info.Value.String())
}

func TestSnapshotBeforeFirstTick(t *testing.T) {
	var f fixture
	opts := f.options(t)
	opts.Tick = time.Hour
	opts.CPUProbe = sampler.ProbeFunc{
		ProbeName: constants.ProbeCPU,
		Fn: func(context.Context) (metric.Series, error) {
			return metric.Series{}, os.ErrPermission
		},
	}
	g := newGroup(t, opts)

	s, err := g.Snapshot(context.Background())
	require.NoError(t, err)

	v, err := s.Float(constants.MetricCPUUsage)
	require.NoError(t, err)
	assert.Zero(t, v)
	v, err = s.Float(constants.MetricCPUAverage)
	require.NoError(t, err)
	assert.Zero(t, v)
	v, err = s.Float(constants.MetricCPUP95)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestSnapshotTargetGone(t *testing.T) {
	var f fixture
	g := newGroup(t, f.options(t))

	f.alive.Store(false)

	s, err := g.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Has(constants.MetricTotalThreadUsage))
	assert.False(t, s.Has(constants.MetricProcessInfo))
	assert.False(t, s.Has(constants.MetricProcessThreads))
	assert.False(t, g.ProcessProbe().TargetAlive(context.Background()))
}

func TestSnapshotCachesAppSize(t *testing.T) {
	var f fixture
	g := newGroup(t, f.options(t))

	for i := 0; i < 3; i++ {
		_, err := g.Snapshot(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), f.appRead.Load())
}

func TestSnapshotWithoutAppPath(t *testing.T) {
	var f fixture
	opts := f.options(t)
	opts.AppSizeProbe = nil
	g := newGroup(t, opts)

	s, err := g.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, s.Has(constants.MetricAppSize))
}

func TestSnapshotAfterClose(t *testing.T) {
	var f fixture
	g, err := New(context.Background(), f.options(t))
	require.NoError(t, err)

	require.NoError(t, g.Close(context.Background()))

	_, err = g.Snapshot(context.Background())
	assert.ErrorIs(t, err, errors.ErrMonitorClosed)
}

func TestStopAndCloseAreIdempotent(t *testing.T) {
	var f fixture
	g, err := New(context.Background(), f.options(t))
	require.NoError(t, err)
	assert.True(t, g.Alive())

	g.Stop()
	g.Stop()

	require.NoError(t, g.Close(context.Background()))
	require.NoError(t, g.Close(context.Background()))

	assert.False(t, g.Alive())
	assert.Equal(t, constants.SamplerStateStopped, g.CPU().State())
	assert.Equal(t, constants.SamplerStateStopped, g.Memory().State())
}

func TestCloseRemovesSessionDir(t *testing.T) {
	var f fixture
	opts := f.options(t)
	opts.Registry = storage.RegistryOptions{
		Backend: constants.BackendFile,
		BaseDir: t.TempDir(),
		Logger:  zap.NewNop(),
	}

	g, err := New(context.Background(), opts)
	require.NoError(t, err)
	waitForSample(t, g.CPU(), constants.MetricCPUUsage)

	dir := g.Registry().Dir()
	_, err = os.Stat(dir)
	require.NoError(t, err)

	require.NoError(t, g.Close(context.Background()))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestNewReleasesOnBaselineFailure(t *testing.T) {
	var f fixture
	opts := f.options(t)
	base := t.TempDir()
	opts.Registry = storage.RegistryOptions{
		Backend: constants.BackendFile,
		BaseDir: base,
		Logger:  zap.NewNop(),
	}
	opts.DiskProbe = sampler.ProbeFunc{
		ProbeName: constants.ProbeDisk,
		Fn: func(context.Context) (metric.Series, error) {
			return metric.Series{}, errors.NewProbeRead(constants.ProbeDisk, os.ErrPermission)
		},
	}

	_, err := New(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrProbeReadFailed))

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries, "session dir must be removed")
}

func TestRun(t *testing.T) {
	t.Run("returns fn error and releases", func(t *testing.T) {
		var f fixture
		var got *Group
		boom := errors.New("boom")

		err := Run(context.Background(), f.options(t), func(g *Group) error {
			got = g
			return boom
		})
		assert.ErrorIs(t, err, boom)
		require.NotNil(t, got)
		assert.False(t, got.Alive())

		_, err = got.Snapshot(context.Background())
		assert.ErrorIs(t, err, errors.ErrMonitorClosed)
	})

	t.Run("releases on panic", func(t *testing.T) {
		var f fixture
		var got *Group

		assert.PanicsWithValue(t, "fn exploded", func() {
			Run(context.Background(), f.options(t), func(g *Group) error {
				got = g
				panic("fn exploded")
			})
		})
		require.NotNil(t, got)
		assert.False(t, got.Alive())
	})

	t.Run("success", func(t *testing.T) {
		var f fixture
		err := Run(context.Background(), f.options(t), func(g *Group) error {
			waitForSample(t, g.CPU(), constants.MetricCPUUsage)
			_, err := g.Snapshot(context.Background())
			return err
		})
		assert.NoError(t, err)
	})
}

func TestString(t *testing.T) {
	var f fixture
	g := newGroup(t, f.options(t))
	assert.Contains(t, g.String(), g.Registry().ID())
}
