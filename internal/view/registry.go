package view

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matsen/jsonviews/internal/apperr"
	"github.com/matsen/jsonviews/internal/schema"
	"github.com/matsen/jsonviews/internal/storage"
	"go.uber.org/zap"
)

// Opener opens the store for a project working directory.
type Opener func(ctx context.Context, workingDir string) (*storage.Manager, error)

// Registry manages views across projects and caches one store handle per
// project working directory. A Registry is safe for concurrent use; callers
// own its lifetime and must call Close.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*storage.Manager

	log       *zap.Logger
	now       func() time.Time
	newID     func() string
	open      Opener
	storeOpts []storage.Option
	scanOpts  schema.Options
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used by the registry and the stores it opens.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.log = l
	}
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithIDGenerator overrides view id generation (for testing).
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) {
		r.newID = gen
	}
}

// WithOpener overrides how project stores are opened.
func WithOpener(open Opener) Option {
	return func(r *Registry) {
		r.open = open
	}
}

// WithStoreOptions adds options passed to storage.Open by the default opener.
func WithStoreOptions(opts ...storage.Option) Option {
	return func(r *Registry) {
		r.storeOpts = append(r.storeOpts, opts...)
	}
}

// WithScanOptions sets the defaults used by ScanSourceFolders and Materialize.
// Per-call progress observers are set on the call, not here.
func WithScanOptions(opts schema.Options) Option {
	return func(r *Registry) {
		r.scanOpts = opts
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		handles: make(map[string]*storage.Manager),
		log:     zap.NewNop(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.open == nil {
		storeOpts := append([]storage.Option{storage.WithLogger(r.log)}, r.storeOpts...)
		r.open = func(ctx context.Context, dir string) (*storage.Manager, error) {
			return storage.Open(ctx, dir, storeOpts...)
		}
	}
	if r.scanOpts.Logger == nil {
		r.scanOpts.Logger = r.log
	}
	return r
}

// projectKey normalizes a working directory into a cache key.
func projectKey(projectDir string) (string, error) {
	if projectDir == "" {
		return "", apperr.Validation("view.handle", "project directory is required")
	}
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return "", apperr.Validation("view.handle", "resolving project directory %q: %v", projectDir, err)
	}
	return filepath.Clean(abs), nil
}

// Handle returns the store for projectDir, opening it on first use. A cached
// handle that no longer reports connected is closed and replaced. The
// connectivity check runs without the registry lock, so a busy store does not
// stall callers working on other projects.
func (r *Registry) Handle(ctx context.Context, projectDir string) (*storage.Manager, error) {
	key, err := projectKey(projectDir)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	cached, ok := r.handles[key]
	r.mu.Unlock()

	if ok && cached.IsConnected() {
		return cached, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[key]; ok {
		if h != cached {
			// Another caller replaced it while we were checking.
			return h, nil
		}
		r.log.Info("replacing disconnected project store", zap.String("project", key))
		r.closeHandle(key, h)
		delete(r.handles, key)
	}

	h, err := r.open(ctx, key)
	if err != nil {
		return nil, err
	}
	r.handles[key] = h
	return h, nil
}

// CloseProjectDatabase releases the cached handle for projectDir, if any.
// Errors are logged, never returned.
func (r *Registry) CloseProjectDatabase(projectDir string) {
	key, err := projectKey(projectDir)
	if err != nil {
		r.log.Warn("closing project store", zap.Error(err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[key]; ok {
		r.closeHandle(key, h)
		delete(r.handles, key)
	}
}

// Close releases every cached handle. Errors are logged, never returned, so
// shutdown always completes.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.handles))
	for k := range r.handles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		r.closeHandle(k, r.handles[k])
		delete(r.handles, k)
	}
}

// OpenProjects returns the working directories with cached handles.
func (r *Registry) OpenProjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.handles))
	for k := range r.handles {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) closeHandle(key string, h *storage.Manager) {
	if err := h.Close(); err != nil {
		r.log.Warn("closing project store failed", zap.String("project", key), zap.Error(err))
	}
}

// touch returns a modification time strictly after prev.
func (r *Registry) touch(prev time.Time) time.Time {
	now := r.now().UTC()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	return now
}
