package probe

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/elaiviaien/smaug/config"
	"github.com/elaiviaien/smaug/internal/constants"
	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/metric"
)

// DiskUsageFunc returns usage counters of the filesystem holding path.
type DiskUsageFunc func(ctx context.Context, path string) (*disk.UsageStat, error)

// DiskOptions configures a Disk probe.
type DiskOptions struct {
	// Path selects the filesystem. Default: "/"
	Path string

	Usage DiskUsageFunc
	Now   func() time.Time
}

// Disk reports filesystem utilisation.
type Disk struct {
	path  string
	usage DiskUsageFunc
	now   func() time.Time
}

// NewDisk creates a Disk probe.
func NewDisk(opts DiskOptions) *Disk {
	if opts.Path == "" {
		opts.Path = config.DefaultDiskPath
	}
	if opts.Usage == nil {
		opts.Usage = disk.UsageWithContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Disk{path: opts.Path, usage: opts.Usage, now: opts.Now}
}

// Name returns the probe name.
func (p *Disk) Name() string { return constants.ProbeDisk }

// Path returns the probed filesystem path.
func (p *Disk) Path() string { return p.path }

// RecordStats reports disk_usage in percent.
func (p *Disk) RecordStats(ctx context.Context) (metric.Series, error) {
	u, err := p.usage(ctx, p.path)
	if err != nil {
		return metric.Series{}, errors.NewProbeRead(p.Name(), err)
	}

	return metric.NewSeries(
		metric.New(constants.MetricDiskUsage, DiskUsage(u), p.now().Unix()),
	)
}

// DiskUsage returns used blocks over total blocks in percent, rounded to
// three decimals. It is 0 for an empty filesystem.
func DiskUsage(u *disk.UsageStat) float64 {
	if u == nil || u.Total == 0 {
		return 0
	}
	return metric.Round(float64(u.Used)/float64(u.Total)*100, 3)
}
