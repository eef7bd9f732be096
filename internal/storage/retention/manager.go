// Package retention removes session directories that outlived the
// process which created them, for example after a crash or SIGKILL.
package retention

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Manager sweeps expired session directories under a base directory.
type Manager struct {
	baseDir string
	prefix  string
	maxAge  time.Duration
	now     func() time.Time
}

// CleanupResult holds the result of a cleanup operation.
type CleanupResult struct {
	DirsDeleted int
	BytesFreed  int64
	DirsSkipped int
	Deleted     []string
	Errors      []error
}

// New creates a retention manager for directories named prefix* in baseDir
// whose modification time is older than maxAge.
func New(baseDir, prefix string, maxAge time.Duration) *Manager {
	return &Manager{
		baseDir: baseDir,
		prefix:  prefix,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// RunCleanup deletes expired directories. Paths in keep are never deleted.
func (m *Manager) RunCleanup(keep ...string) CleanupResult {
	var result CleanupResult

	dirs, err := m.listDirs()
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, fmt.Errorf("list dirs: %w", err))
		}
		return result
	}

	cutoff := m.now().Add(-m.maxAge)
	for _, d := range dirs {
		if d.modTime.After(cutoff) || contains(keep, d.path) {
			result.DirsSkipped++
			continue
		}

		size := dirSize(d.path)
		if err := os.RemoveAll(d.path); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("delete %s: %w", d.path, err))
			continue
		}

		result.DirsDeleted++
		result.BytesFreed += size
		result.Deleted = append(result.Deleted, d.path)
	}

	return result
}

// dirInfo holds information about a session directory.
type dirInfo struct {
	path    string
	modTime time.Time
}

// listDirs lists session directories, oldest first.
func (m *Manager) listDirs() ([]dirInfo, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return nil, err
	}

	var dirs []dirInfo
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), m.prefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		dirs = append(dirs, dirInfo{
			path:    filepath.Join(m.baseDir, entry.Name()),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(dirs, func(i, j int) bool {
		return dirs[i].modTime.Before(dirs[j].modTime)
	})

	return dirs, nil
}

func dirSize(path string) int64 {
	var size int64
	filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
