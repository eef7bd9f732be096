package probe

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/elaiviaien/smaug/internal/constants"
	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/metric"
)

// AppSize reports the on-disk size of the monitored application.
type AppSize struct {
	path string
	now  func() time.Time
}

// NewAppSize creates an AppSize probe for a file or directory.
func NewAppSize(path string) *AppSize {
	return &AppSize{path: path, now: time.Now}
}

// Name returns the probe name.
func (p *AppSize) Name() string { return constants.ProbeAppSize }

// Path returns the measured path.
func (p *AppSize) Path() string { return p.path }

// RecordStats reports app_size in bytes.
func (p *AppSize) RecordStats(ctx context.Context) (metric.Series, error) {
	size, err := PathSize(ctx, p.path)
	if err != nil {
		return metric.Series{}, errors.NewProbeRead(p.Name(), err)
	}
	return metric.NewSeries(
		metric.New(constants.MetricAppSize, float64(size), p.now().Unix()),
	)
}

// PathSize returns the total size of the regular files under path.
// Entries that vanish or cannot be read during the walk are skipped.
func PathSize(ctx context.Context, path string) (int64, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}

	var size int64
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == path {
				return err
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		size += info.Size()
		return nil
	})
	return size, err
}
