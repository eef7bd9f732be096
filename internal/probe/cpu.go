// Package probe reads host and process resource usage through gopsutil.
//
// Every probe takes its data source as a function so the arithmetic can be
// checked against fixed counters. A failed read is returned as
// *errors.ProbeReadError.
package probe

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/elaiviaien/smaug/config"
	"github.com/elaiviaien/smaug/internal/constants"
	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/metric"
)

// CPUTimesFunc returns the aggregate CPU time counters of the host.
type CPUTimesFunc func(ctx context.Context) (cpu.TimesStat, error)

// CPUOptions configures a CPU probe.
type CPUOptions struct {
	// Window is the gap between the two counter reads.
	// Default: 100ms
	Window time.Duration

	Times CPUTimesFunc
	Now   func() time.Time
}

// CPU reports host-wide CPU utilisation over a short window.
type CPU struct {
	window time.Duration
	times  CPUTimesFunc
	now    func() time.Time
}

// NewCPU creates a CPU probe.
func NewCPU(opts CPUOptions) *CPU {
	if opts.Window <= 0 {
		opts.Window = config.DefaultCPUWindow
	}
	if opts.Times == nil {
		opts.Times = hostCPUTimes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &CPU{window: opts.Window, times: opts.Times, now: opts.Now}
}

func hostCPUTimes(ctx context.Context) (cpu.TimesStat, error) {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return cpu.TimesStat{}, err
	}
	if len(times) == 0 {
		return cpu.TimesStat{}, errors.New("no cpu counters")
	}
	return times[0], nil
}

// Name returns the probe name.
func (p *CPU) Name() string { return constants.ProbeCPU }

// RecordStats reads the counters twice, one window apart, and reports
// cpu_usage in percent.
func (p *CPU) RecordStats(ctx context.Context) (metric.Series, error) {
	before, err := p.times(ctx)
	if err != nil {
		return metric.Series{}, errors.NewProbeRead(p.Name(), err)
	}

	timer := time.NewTimer(p.window)
	select {
	case <-ctx.Done():
		timer.Stop()
		return metric.Series{}, ctx.Err()
	case <-timer.C:
	}

	after, err := p.times(ctx)
	if err != nil {
		return metric.Series{}, errors.NewProbeRead(p.Name(), err)
	}

	return metric.NewSeries(
		metric.New(constants.MetricCPUUsage, CPUUsage(before, after), p.now().Unix()),
	)
}

// CPUUsage returns the busy share of the time elapsed between two counter
// readings, in percent rounded to three decimals. Busy time is every
// counter except idle. It is 0 when no time elapsed.
func CPUUsage(before, after cpu.TimesStat) float64 {
	total := cpuTotal(after) - cpuTotal(before)
	idle := after.Idle - before.Idle
	if total <= 0 {
		return 0
	}
	return metric.Round((total-idle)/total*100, 3)
}

func cpuTotal(t cpu.TimesStat) float64 {
	return t.User + t.Nice + t.System + t.Idle + t.Iowait +
		t.Irq + t.Softirq + t.Steal + t.Guest + t.GuestNice
}
