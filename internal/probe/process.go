package probe

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/elaiviaien/smaug/internal/constants"
	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/metric"
)

// ThreadCountFunc returns the number of threads running on the host.
type ThreadCountFunc func(ctx context.Context) (int64, error)

// TargetInfo describes the watched process.
type TargetInfo struct {
	Name    string
	Threads int32
}

// TargetFunc looks up the watched process. It returns
// errors.ErrTargetNotExists once the process is gone.
type TargetFunc func(ctx context.Context, pid int32) (TargetInfo, error)

// ProcessOptions configures a Process probe.
type ProcessOptions struct {
	// PID of the watched process. Zero watches the host only.
	PID int32

	Threads ThreadCountFunc
	Target  TargetFunc
	Now     func() time.Time
}

// Process reports thread usage and how long monitoring has been running.
type Process struct {
	pid     int32
	threads ThreadCountFunc
	target  TargetFunc
	now     func() time.Time
	started time.Time
}

// NewProcess creates a Process probe. Execution time counts from here.
func NewProcess(opts ProcessOptions) *Process {
	if opts.Threads == nil {
		opts.Threads = hostThreadCount
	}
	if opts.Target == nil {
		opts.Target = lookupTarget
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Process{
		pid:     opts.PID,
		threads: opts.Threads,
		target:  opts.Target,
		now:     opts.Now,
		started: opts.Now(),
	}
}

// hostThreadCount sums the thread counts of every process on the host.
// Processes that exit during the scan are skipped.
func hostThreadCount(ctx context.Context) (int64, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, p := range procs {
		n, err := p.NumThreadsWithContext(ctx)
		if err != nil {
			continue
		}
		total += int64(n)
	}
	return total, nil
}

func lookupTarget(ctx context.Context, pid int32) (TargetInfo, error) {
	exists, err := process.PidExistsWithContext(ctx, pid)
	if err != nil {
		return TargetInfo{}, err
	}
	if !exists {
		return TargetInfo{}, errors.ErrTargetNotExists
	}

	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return TargetInfo{}, errors.Wrap(errors.ErrTargetNotExists, err.Error())
	}

	name, err := p.NameWithContext(ctx)
	if err != nil {
		return TargetInfo{}, err
	}
	threads, err := p.NumThreadsWithContext(ctx)
	if err != nil {
		return TargetInfo{}, err
	}
	return TargetInfo{Name: name, Threads: threads}, nil
}

// Name returns the probe name.
func (p *Process) Name() string { return constants.ProbeProcess }

// PID returns the watched process id, or 0.
func (p *Process) PID() int32 { return p.pid }

// RecordStats reports total_thread_usage and execution_time, plus
// process_info and process_threads while the watched process is alive.
func (p *Process) RecordStats(ctx context.Context) (metric.Series, error) {
	total, err := p.threads(ctx)
	if err != nil {
		return metric.Series{}, errors.NewProbeRead(p.Name(), err)
	}

	now := p.now()
	epoch := now.Unix()
	metrics := []metric.Metric{
		metric.New(constants.MetricTotalThreadUsage, float64(total), epoch),
		metric.New(constants.MetricExecutionTime, float64(int64(now.Sub(p.started).Seconds())), epoch),
	}

	if p.pid > 0 {
		info, err := p.target(ctx, p.pid)
		switch {
		case errors.Is(err, errors.ErrTargetNotExists):
			// target exited; host metrics only
		case err != nil:
			return metric.Series{}, errors.NewProbeRead(p.Name(), err)
		default:
			metrics = append(metrics,
				metric.NewText(constants.MetricProcessInfo, info.Name, epoch),
				metric.New(constants.MetricProcessThreads, float64(info.Threads), epoch),
			)
		}
	}

	return metric.NewSeries(metrics...)
}

// ThreadCount queries the host thread count directly.
func (p *Process) ThreadCount(ctx context.Context) (int64, error) {
	n, err := p.threads(ctx)
	if err != nil {
		return 0, errors.NewProbeRead(p.Name(), err)
	}
	return n, nil
}

// TargetAlive reports whether the watched process still exists. It is
// false when no process is watched.
func (p *Process) TargetAlive(ctx context.Context) bool {
	if p.pid <= 0 {
		return false
	}
	_, err := p.target(ctx, p.pid)
	return !errors.Is(err, errors.ErrTargetNotExists)
}

// ExecutionTime returns whole seconds since the probe was created.
func (p *Process) ExecutionTime() int64 {
	return int64(p.now().Sub(p.started).Seconds())
}
