package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/metric"
)

// Log is an append-only file of metric records for one store.
// Appends are durable before they return; rewrites replace the file
// atomically so a reader never sees a partial log.
//
// File format:
//   - Header: 8 bytes magic + 4 bytes version
//   - Records: [4 bytes length][4 bytes crc32][payload]
type Log struct {
	mu sync.Mutex

	path   string
	file   *os.File
	writer *bufio.Writer
	size   int64
	count  int
	closed bool

	opts Options
	log  *zap.Logger

	// Statistics
	stats Stats
}

// Options configures a log.
type Options struct {
	// SyncMode controls how appends reach the disk.
	// "fsync" - flush and fsync after each append
	// "flush" - flush to the OS after each append
	SyncMode string

	// BufferSize is the size of the write buffer.
	// Default: 4KB
	BufferSize int

	// Logger receives failures that do not fail the call.
	Logger *zap.Logger
}

const (
	SyncModeFsync = "fsync"
	SyncModeFlush = "flush"
)

// DefaultOptions returns default log options.
func DefaultOptions() Options {
	return Options{
		SyncMode:   SyncModeFsync,
		BufferSize: 4 * 1024,
	}
}

// Stats holds log statistics.
type Stats struct {
	RecordsWritten int64
	BytesWritten   int64
	Rewrites       int64
	SyncsPerformed int64
	TruncatedBytes int64
	Errors         int64
}

const (
	logMagic         = 0x534D4147574C0001 // "SMAGWL" + version 1
	logVersion       = 1
	headerSize       = 12 // 8 bytes magic + 4 bytes version
	recordHeaderSize = 8  // 4 bytes length + 4 bytes crc
)

// Open opens the log at path, creating it when missing. An existing file
// is scanned and any damaged tail is cut off so new records follow the
// last intact one.
func Open(path string, opts Options) (*Log, error) {
	if opts.SyncMode == "" {
		opts.SyncMode = DefaultOptions().SyncMode
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	l := &Log{
		path: path,
		opts: opts,
		log:  opts.Logger,
	}

	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err) || (err == nil && info.Size() == 0):
		if err := l.create(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("stat log: %w", err)
	default:
		if err := l.recover(info.Size()); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// create writes a fresh header and opens the file for appending.
func (l *Log) create() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create log %s: %w", l.path, err)
	}

	if _, err := f.Write(fileHeader()); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync header: %w", err)
	}

	l.attach(f, headerSize, 0)
	return nil
}

// recover scans an existing file and truncates it after the last intact record.
func (l *Log) recover(fileSize int64) error {
	r, err := NewReader(l.path)
	if err != nil {
		return fmt.Errorf("recover log %s: %w", l.path, err)
	}
	entries, _ := r.ReadAll()
	valid := r.ValidSize()
	r.Close()

	f, err := os.OpenFile(l.path, os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log %s: %w", l.path, err)
	}

	if valid < fileSize {
		if err := f.Truncate(valid); err != nil {
			f.Close()
			return fmt.Errorf("truncate damaged tail: %w", err)
		}
		l.stats.TruncatedBytes += fileSize - valid
	}
	if _, err := f.Seek(valid, 0); err != nil {
		f.Close()
		return fmt.Errorf("seek log end: %w", err)
	}

	l.attach(f, valid, len(entries))
	return nil
}

func (l *Log) attach(f *os.File, size int64, count int) {
	l.file = f
	l.writer = bufio.NewWriterSize(f, l.opts.BufferSize)
	l.size = size
	l.count = count
}

func fileHeader() []byte {
	var header [headerSize]byte
	binary.LittleEndian.PutUint64(header[0:8], logMagic)
	binary.LittleEndian.PutUint32(header[8:12], logVersion)
	return header[:]
}

// Append writes m to the end of the log and syncs it. A failed append
// leaves the log as it was before the call, so later appends may succeed.
func (l *Log) Append(m metric.Metric) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errors.ErrStoreClosed
	}

	payload, err := encodeMetric(m)
	if err != nil {
		l.stats.Errors++
		return fmt.Errorf("encode metric: %w", err)
	}

	if err := l.writeRecord(l.writer, payload); err != nil {
		l.stats.Errors++
		return l.rollback(fmt.Errorf("write record: %w", err))
	}

	if err := l.syncUnlocked(); err != nil {
		l.stats.Errors++
		return l.rollback(fmt.Errorf("sync: %w", err))
	}

	recordSize := int64(recordHeaderSize + len(payload))
	l.size += recordSize
	l.count++
	l.stats.RecordsWritten++
	l.stats.BytesWritten += recordSize

	return nil
}

// rollback drops buffered bytes and cuts the file back to the last
// complete record, then returns cause.
func (l *Log) rollback(cause error) error {
	l.writer.Reset(l.file)

	if err := l.file.Truncate(l.size); err != nil {
		l.log.Error("truncate after failed append", zap.Int64("size", l.size), zap.Error(err))
	} else if _, err := l.file.Seek(l.size, io.SeekStart); err != nil {
		l.log.Error("seek after failed append", zap.Int64("size", l.size), zap.Error(err))
	}
	return cause
}

// writeRecord writes a single framed record.
func (l *Log) writeRecord(w *bufio.Writer, payload []byte) error {
	crc := crc32.ChecksumIEEE(payload)

	var header [recordHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], crc)

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return nil
}

func (l *Log) syncUnlocked() error {
	if err := l.writer.Flush(); err != nil {
		return err
	}

	if l.opts.SyncMode == SyncModeFsync {
		if err := l.file.Sync(); err != nil {
			return err
		}
	}

	l.stats.SyncsPerformed++
	return nil
}

// ReadAll returns every intact record in insertion order.
func (l *Log) ReadAll() ([]metric.Metric, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, errors.ErrStoreClosed
	}
	return ReadFile(l.path)
}

// Rewrite replaces the log contents with entries. The new file is built
// beside the old one, synced, then renamed over it.
func (l *Log) Rewrite(entries []metric.Metric) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errors.ErrStoreClosed
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".*.tmp")
	if err != nil {
		l.stats.Errors++
		return fmt.Errorf("create temp log: %w", err)
	}
	tmpPath := tmp.Name()

	size, err := l.writeAll(tmp, entries)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		l.stats.Errors++
		return fmt.Errorf("write temp log: %w", err)
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		l.stats.Errors++
		return fmt.Errorf("replace log: %w", err)
	}
	syncDir(dir)

	if err := l.writer.Flush(); err != nil {
		l.log.Warn("flush replaced log", zap.Error(err))
	}
	if err := l.file.Close(); err != nil {
		l.log.Warn("close replaced log", zap.Error(err))
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l.closed = true
		l.stats.Errors++
		return fmt.Errorf("reopen log: %w", err)
	}

	l.attach(f, size, len(entries))
	l.stats.Rewrites++
	return nil
}

func (l *Log) writeAll(f *os.File, entries []metric.Metric) (int64, error) {
	w := bufio.NewWriterSize(f, l.opts.BufferSize)
	if _, err := w.Write(fileHeader()); err != nil {
		return 0, err
	}

	size := int64(headerSize)
	for _, m := range entries {
		payload, err := encodeMetric(m)
		if err != nil {
			return 0, err
		}
		if err := l.writeRecord(w, payload); err != nil {
			return 0, err
		}
		size += int64(recordHeaderSize + len(payload))
	}

	return size, w.Flush()
}

// syncDir makes a rename durable. Failures are ignored: some filesystems
// do not support syncing directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

// Size returns the file size in bytes, header included.
func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Len returns the number of records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Stats returns log statistics.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Close flushes and closes the log file, keeping it on disk.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeUnlocked()
}

func (l *Log) closeUnlocked() error {
	if l.closed {
		return nil
	}
	l.closed = true

	if err := l.writer.Flush(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

// Remove closes the log and deletes its file.
func (l *Log) Remove() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	closeErr := l.closeUnlocked()
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return closeErr
}
