package storage

import (
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elaiviaien/smaug/config"
	"github.com/elaiviaien/smaug/internal/constants"
	"github.com/elaiviaien/smaug/internal/errors"
	"github.com/elaiviaien/smaug/internal/logging"
	"github.com/elaiviaien/smaug/internal/metric"
	"github.com/elaiviaien/smaug/internal/storage/buffer"
	"github.com/elaiviaien/smaug/internal/storage/retention"
	"github.com/elaiviaien/smaug/internal/storage/wal"
	"github.com/elaiviaien/smaug/internal/validation"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Backend is constants.BackendFile or constants.BackendMemory.
	// Default: file
	Backend string

	// BaseDir holds the session directory. Default: os.TempDir()
	BaseDir string

	MaxSize    datasize.ByteSize
	EvictRatio float64

	// RetentionAge is the age after which other sessions' directories are
	// swept on startup. Zero disables the sweep.
	RetentionAge time.Duration

	// SyncMode is passed to file logs. Default: fsync
	SyncMode string

	Logger *zap.Logger
}

// DefaultRegistryOptions returns the default registry options.
func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{
		Backend:      config.DefaultBackend,
		MaxSize:      datasize.ByteSize(config.DefaultStoreMaxSize),
		EvictRatio:   config.DefaultEvictRatio,
		RetentionAge: config.DefaultRetentionAge,
		SyncMode:     wal.SyncModeFsync,
	}
}

// Registry maps metric names to stores, creating each store on first use.
// It owns a session directory that is removed on Close.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*Store
	closed bool

	id   string
	dir  string
	opts RegistryOptions
	log  *zap.Logger
}

// NewRegistry creates a registry and, for the file backend, its session
// directory.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Backend == "" {
		opts.Backend = config.DefaultBackend
	}
	if !constants.IsValidBackend(opts.Backend) {
		return nil, errors.NewInvalidValue("storage.backend", opts.Backend, "unknown backend")
	}
	if opts.BaseDir == "" {
		opts.BaseDir = os.TempDir()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Component("registry")
	}

	r := &Registry{
		stores: make(map[string]*Store),
		id:     uuid.NewString(),
		opts:   opts,
	}
	r.log = opts.Logger.With(zap.String("session", r.id))

	if opts.Backend == constants.BackendFile {
		r.dir = filepath.Join(opts.BaseDir, constants.SessionDirPrefix+r.id)
		if err := os.MkdirAll(r.dir, 0o700); err != nil {
			return nil, errors.NewStorageWrite("registry", "create session dir", err)
		}

		if opts.RetentionAge > 0 {
			r.sweep()
		}
	}

	r.log.Info("registry created",
		zap.String("backend", opts.Backend),
		zap.String("dir", r.dir),
		zap.Stringer("max_size", r.storeOptions().MaxSize))
	return r, nil
}

// sweep removes session directories left behind by earlier runs.
func (r *Registry) sweep() {
	result := retention.New(r.opts.BaseDir, constants.SessionDirPrefix, r.opts.RetentionAge).RunCleanup(r.dir)
	for _, err := range result.Errors {
		r.log.Warn("sweep stale session failed", zap.Error(err))
	}
	if result.DirsDeleted > 0 {
		r.log.Info("swept stale sessions",
			zap.Int("dirs", result.DirsDeleted),
			zap.Stringer("freed", datasize.ByteSize(result.BytesFreed)))
	}
}

func (r *Registry) storeOptions() StoreOptions {
	return StoreOptions{
		MaxSize:    r.opts.MaxSize,
		EvictRatio: r.opts.EvictRatio,
		Logger:     r.opts.Logger,
	}.withDefaults()
}

// Get returns the store for name, creating it on first access. Concurrent
// callers asking for the same new name receive the same store.
func (r *Registry) Get(name string) (*Store, error) {
	r.mu.RLock()
	s, ok := r.stores[name]
	closed := r.closed
	r.mu.RUnlock()

	if closed {
		return nil, errors.ErrRegistryClosed
	}
	if ok {
		return s, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.ErrRegistryClosed
	}
	// Double-check after acquiring write lock
	if s, ok := r.stores[name]; ok {
		return s, nil
	}

	s, err := r.newStore(name)
	if err != nil {
		return nil, err
	}
	r.stores[name] = s

	r.log.Debug("store created", zap.String("metric", name))
	return s, nil
}

func (r *Registry) newStore(name string) (*Store, error) {
	if err := validation.ValidateStoreName(name); err != nil {
		return nil, err
	}
	opts := r.storeOptions()

	var backend Backend
	switch r.opts.Backend {
	case constants.BackendMemory:
		// An empty text value is the smallest record a store can hold.
		minRecord := wal.RecordSize(metric.NewText(name, "", 0))
		backend = buffer.New(int(int64(opts.MaxSize.Bytes())/minRecord) + 1)
	default:
		l, err := wal.Open(r.pathFor(name), wal.Options{
			SyncMode: r.opts.SyncMode,
			Logger:   r.log.With(zap.String("metric", name)),
		})
		if err != nil {
			return nil, errors.NewStorageWrite(name, "open", err)
		}
		backend = l
	}

	s, err := NewStore(name, backend, opts)
	if err != nil {
		backend.Remove()
		return nil, err
	}
	return s, nil
}

// pathFor maps a metric name to its log file inside the session directory.
func (r *Registry) pathFor(name string) string {
	return filepath.Join(r.dir, url.PathEscape(name)+".log")
}

// Lookup returns the store for name without creating it.
func (r *Registry) Lookup(name string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stores[name]
	return s, ok
}

// Names returns the names of all stores, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of stores.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}

// ID returns the session id.
func (r *Registry) ID() string {
	return r.id
}

// Dir returns the session directory, or "" for the memory backend.
func (r *Registry) Dir() string {
	return r.dir
}

// Stats returns statistics for every store, sorted by name.
func (r *Registry) Stats() []StoreStats {
	r.mu.RLock()
	stores := make([]*Store, 0, len(r.stores))
	for _, s := range r.stores {
		stores = append(stores, s)
	}
	r.mu.RUnlock()

	stats := make([]StoreStats, len(stores))
	for i, s := range stores {
		stats[i] = s.Stats()
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Name < stats[j].Name
	})
	return stats
}

// Close closes every store and removes the session directory.
// Safe to call twice.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	stores := r.stores
	r.stores = make(map[string]*Store)
	r.mu.Unlock()

	var errs []error
	for name, s := range stores {
		if err := s.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "close store %s", name))
		}
	}

	if r.dir != "" {
		if err := os.RemoveAll(r.dir); err != nil {
			errs = append(errs, errors.Wrap(err, "remove session dir"))
		}
	}

	r.log.Info("registry closed", zap.Int("stores", len(stores)))
	return errors.Join(errs...)
}
