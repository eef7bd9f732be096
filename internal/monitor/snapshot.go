package monitor

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/elaiviaien/smaug/internal/constants"
	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/metric"
	"github.com/elaiviaien/smaug/internal/sampler"
)

// Snapshot assembles the current view for display:
//
//	cpu_usage, cpu_average, cpu_p95          latest stored sample, mean, p95
//	memory_usage, memory_average, memory_p95 latest stored sample, mean, p95
//	swap_usage, swap_average, swap_p95       latest stored sample, mean, p95
//	disk_usage, disk_usage_diff              fresh reading, change since start
//	execution_time                           seconds since start
//	total_thread_usage                       fresh host thread count
//	total_thread_usage_diff                  that reading minus the baseline
//	current_thread_usage_diff                a second host thread count minus
//	                                         the baseline
//	process_info, process_threads            while a watched process lives
//	app_size                                 when an application path is set
//
// Values sampled continuously read 0 until their first tick lands.
func (g *Group) Snapshot(ctx context.Context) (metric.Series, error) {
	if g.closed.Load() {
		return metric.Series{}, errors.ErrMonitorClosed
	}

	var (
		cpu, mem, disk, proc, app []metric.Metric
		epoch                     = time.Now().Unix()
	)

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() (err error) {
		cpu, err = g.continuousPart(g.cpu, epoch,
			constants.MetricCPUUsage, constants.MetricCPUAverage, constants.MetricCPUP95)
		if err != nil {
			return err
		}
		mem, err = g.continuousPart(g.memory, epoch,
			constants.MetricMemoryUsage, constants.MetricMemoryAverage, constants.MetricMemoryP95,
			constants.MetricSwapUsage, constants.MetricSwapAverage, constants.MetricSwapP95)
		return err
	})

	eg.Go(func() (err error) {
		disk, err = g.diskPart(ctx, epoch)
		return err
	})

	eg.Go(func() (err error) {
		proc, err = g.processPart(ctx, epoch)
		return err
	})

	if g.appSize != nil {
		eg.Go(func() (err error) {
			app, err = g.appSizePart(ctx, epoch)
			return err
		})
	}

	if err := eg.Wait(); err != nil {
		return metric.Series{}, err
	}

	var all []metric.Metric
	for _, part := range [][]metric.Metric{cpu, mem, disk, proc, app} {
		all = append(all, part...)
	}
	return metric.NewSeries(all...)
}

// continuousPart reads (latest, average, p95) triples from a continuous
// sampler. Average and p95 come from one pass over the store.
func (g *Group) continuousPart(c *sampler.Continuous, epoch int64, triples ...string) ([]metric.Metric, error) {
	var out []metric.Metric
	for i := 0; i+2 < len(triples); i += 3 {
		name, avgName, p95Name := triples[i], triples[i+1], triples[i+2]

		var latest float64
		m, err := c.Latest(name)
		switch {
		case errors.IsNotFound(err):
			// no sample yet
		case err != nil:
			return nil, err
		default:
			latest, _ = m.Value.Float()
		}

		sum, err := c.Summary(name)
		if err != nil {
			return nil, err
		}
		var p95 float64
		if sum.HasPercentiles() {
			p95 = metric.Round(*sum.P95, 3)
		}

		out = append(out,
			metric.New(name, latest, epoch),
			metric.New(avgName, metric.Round(sum.Avg, 3), epoch),
			metric.New(p95Name, p95, epoch))
	}
	return out, nil
}

func (g *Group) diskPart(ctx context.Context, epoch int64) ([]metric.Metric, error) {
	last, err := g.disk.Last(ctx)
	if err != nil {
		return nil, err
	}
	usage, err := last.Float(constants.MetricDiskUsage)
	if err != nil {
		return nil, err
	}
	diff, err := g.disk.DiffFrom(last, constants.MetricDiskUsage)
	if err != nil {
		return nil, err
	}

	return []metric.Metric{
		metric.New(constants.MetricDiskUsage, usage, epoch),
		metric.New(constants.MetricDiskUsageDiff, diff, epoch),
	}, nil
}

func (g *Group) processPart(ctx context.Context, epoch int64) ([]metric.Metric, error) {
	last, err := g.process.Last(ctx)
	if err != nil {
		return nil, err
	}

	execTime, err := last.Float(constants.MetricExecutionTime)
	if err != nil {
		return nil, err
	}
	total, err := last.Float(constants.MetricTotalThreadUsage)
	if err != nil {
		return nil, err
	}
	totalDiff, err := g.process.DiffFrom(last, constants.MetricTotalThreadUsage)
	if err != nil {
		return nil, err
	}

	// ThreadCount scans the process table again, doubling the cost of
	// this part on hosts with many processes.
	current, err := g.proc.ThreadCount(ctx)
	if err != nil {
		return nil, err
	}
	first, err := g.process.First().Float(constants.MetricTotalThreadUsage)
	if err != nil {
		return nil, err
	}

	out := []metric.Metric{
		metric.New(constants.MetricExecutionTime, execTime, epoch),
		metric.New(constants.MetricTotalThreadUsage, total, epoch),
		metric.New(constants.MetricTotalThreadUsageDiff, totalDiff, epoch),
		metric.New(constants.MetricCurrentThreadUsageDiff, metric.Round(float64(current)-first, 3), epoch),
	}

	if info, err := last.Get(constants.MetricProcessInfo); err == nil {
		out = append(out, metric.NewText(constants.MetricProcessInfo, info.Value.String(), epoch))
	}
	if threads, err := last.Float(constants.MetricProcessThreads); err == nil {
		out = append(out, metric.New(constants.MetricProcessThreads, threads, epoch))
	}
	return out, nil
}

// appSizePart measures the application at most once per cache TTL.
func (g *Group) appSizePart(ctx context.Context, epoch int64) ([]metric.Metric, error) {
	key := g.appSize.Name()

	if item := g.appCache.Get(key); item != nil {
		return []metric.Metric{metric.New(constants.MetricAppSize, item.Value(), epoch)}, nil
	}

	s, err := g.appSize.RecordStats(ctx)
	if err != nil {
		g.log.Debug("app size unavailable", zap.Error(err))
		return nil, err
	}
	size, err := s.Float(constants.MetricAppSize)
	if err != nil {
		return nil, err
	}

	g.appCache.Set(key, size, ttlcache.DefaultTTL)
	return []metric.Metric{metric.New(constants.MetricAppSize, size, epoch)}, nil
}
