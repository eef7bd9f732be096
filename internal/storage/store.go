package storage

import (
	"sync"
	"sync/atomic"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"

	"github.com/elaiviaien/smaug/config"
	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/logging"
	"github.com/elaiviaien/smaug/internal/metric"
	"github.com/elaiviaien/smaug/internal/storage/wal"
	"github.com/elaiviaien/smaug/internal/validation"
)

// Backend is the medium a Store keeps its entries on.
// Rewrite must replace the contents atomically.
type Backend interface {
	Append(m metric.Metric) error
	ReadAll() ([]metric.Metric, error)
	Rewrite(entries []metric.Metric) error
	Remove() error
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// MaxSize bounds the encoded size of all entries.
	// Default: 1000KB
	MaxSize datasize.ByteSize

	// EvictRatio is the fraction of MaxSize kept after a FIFO eviction.
	// Default: 0.75
	EvictRatio float64

	Logger *zap.Logger
}

func (o StoreOptions) withDefaults() StoreOptions {
	if o.MaxSize == 0 {
		o.MaxSize = datasize.ByteSize(config.DefaultStoreMaxSize)
	}
	if o.EvictRatio <= 0 || o.EvictRatio > 1 {
		o.EvictRatio = config.DefaultEvictRatio
	}
	if o.Logger == nil {
		o.Logger = logging.Component("store")
	}
	return o
}

// Store is the append-only history of one metric name, bounded by size.
// All operations hold the store mutex, so readers never see a partial
// append or rewrite.
type Store struct {
	mu sync.Mutex

	name       string
	backend    Backend
	maxSize    int64
	evictRatio float64
	size       int64
	count      int
	closed     bool

	log *zap.Logger

	// Statistics
	appends     atomic.Int64
	evictions   atomic.Int64
	deletions   atomic.Int64
	writeErrors atomic.Int64
}

// StoreStats holds store statistics.
type StoreStats struct {
	Name        string
	Entries     int
	Size        datasize.ByteSize
	MaxSize     datasize.ByteSize
	Appends     int64
	Evictions   int64
	Deletions   int64
	WriteErrors int64
}

// NewStore creates a store for name over backend. Entries already on the
// backend are counted toward the size bound.
func NewStore(name string, backend Backend, opts StoreOptions) (*Store, error) {
	if err := validation.ValidateMetricName(name); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	s := &Store{
		name:       name,
		backend:    backend,
		maxSize:    int64(opts.MaxSize.Bytes()),
		evictRatio: opts.EvictRatio,
		log:        opts.Logger.With(zap.String("metric", name)),
	}

	existing, err := backend.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "load store %s", name)
	}
	for _, m := range existing {
		s.size += wal.RecordSize(m)
	}
	s.count = len(existing)

	return s, nil
}

// Name returns the metric name this store holds.
func (s *Store) Name() string {
	return s.name
}

// Append adds m at the end of the log. When the log would exceed its size
// bound, the oldest entries are evicted first.
func (s *Store) Append(m metric.Metric) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Name != s.name {
		return errors.Wrapf(errors.ErrInvalidMetric, "metric %s appended to store %s", m.Name, s.name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ErrStoreClosed
	}

	rec := wal.RecordSize(m)
	if rec > s.maxSize {
		return errors.Wrapf(errors.ErrInvalidMetric, "record of %d bytes exceeds store limit %d", rec, s.maxSize)
	}

	if s.size+rec > s.maxSize {
		if err := s.evictUnlocked(rec); err != nil {
			s.writeErrors.Add(1)
			return errors.NewStorageWrite(s.name, "evict", err)
		}
	}

	if err := s.backend.Append(m); err != nil {
		s.writeErrors.Add(1)
		return errors.NewStorageWrite(s.name, "append", err)
	}

	s.size += rec
	s.count++
	s.appends.Add(1)
	return nil
}

// evictUnlocked drops the oldest entries until the log plus an incoming
// record fits within evictRatio of the size bound.
func (s *Store) evictUnlocked(incoming int64) error {
	entries, err := s.backend.ReadAll()
	if err != nil {
		return err
	}

	target := int64(float64(s.maxSize)*s.evictRatio) - incoming
	size := s.size
	drop := 0
	for drop < len(entries) && size > target {
		size -= wal.RecordSize(entries[drop])
		drop++
	}

	if err := s.backend.Rewrite(entries[drop:]); err != nil {
		return err
	}

	s.size = size
	s.count = len(entries) - drop
	s.evictions.Add(int64(drop))
	s.log.Debug("evicted oldest entries",
		zap.Int("dropped", drop),
		zap.Int("kept", s.count),
		zap.Stringer("size", datasize.ByteSize(s.size)))
	return nil
}

// Get returns the first entry whose epoch equals epoch.
func (s *Store) Get(epoch int64) (metric.Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readUnlocked()
	if err != nil {
		return metric.Metric{}, err
	}

	for _, m := range entries {
		if m.Epoch == epoch {
			return m, nil
		}
	}
	return metric.Metric{}, errors.Wrapf(errors.ErrMetricNotFound, "metric %s at epoch %d", s.name, epoch)
}

// Tail returns the last n entries in insertion order. n <= 0, or n larger
// than the log, returns the whole log.
func (s *Store) Tail(n int) ([]metric.Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readUnlocked()
	if err != nil {
		return nil, err
	}

	if n > 0 && n < len(entries) {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Latest returns the newest entry.
func (s *Store) Latest() (metric.Metric, error) {
	entries, err := s.Tail(1)
	if err != nil {
		return metric.Metric{}, err
	}
	if len(entries) == 0 {
		return metric.Metric{}, errors.NewMetricNotFound(s.name)
	}
	return entries[0], nil
}

// DeleteByEpoch removes every entry with the given epoch and returns how
// many were removed. The log is rewritten atomically.
func (s *Store) DeleteByEpoch(epoch int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readUnlocked()
	if err != nil {
		return 0, err
	}

	kept := make([]metric.Metric, 0, len(entries))
	var size int64
	for _, m := range entries {
		if m.Epoch == epoch {
			continue
		}
		kept = append(kept, m)
		size += wal.RecordSize(m)
	}

	removed := len(entries) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	if err := s.backend.Rewrite(kept); err != nil {
		s.writeErrors.Add(1)
		return 0, errors.NewStorageWrite(s.name, "delete", err)
	}

	s.size = size
	s.count = len(kept)
	s.deletions.Add(int64(removed))
	return removed, nil
}

func (s *Store) readUnlocked() ([]metric.Metric, error) {
	if s.closed {
		return nil, errors.ErrStoreClosed
	}
	entries, err := s.backend.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "read store %s", s.name)
	}
	return entries, nil
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Size returns the encoded size of all entries.
func (s *Store) Size() datasize.ByteSize {
	s.mu.Lock()
	defer s.mu.Unlock()
	return datasize.ByteSize(s.size)
}

// MaxSize returns the size bound.
func (s *Store) MaxSize() datasize.ByteSize {
	return datasize.ByteSize(s.maxSize)
}

// Stats returns store statistics.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StoreStats{
		Name:        s.name,
		Entries:     s.count,
		Size:        datasize.ByteSize(s.size),
		MaxSize:     datasize.ByteSize(s.maxSize),
		Appends:     s.appends.Load(),
		Evictions:   s.evictions.Load(),
		Deletions:   s.deletions.Load(),
		WriteErrors: s.writeErrors.Load(),
	}
}

// Close releases the backend and reclaims its storage. Safe to call twice.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.size = 0
	s.count = 0
	return s.backend.Remove()
}
