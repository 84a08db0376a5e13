// Package watch turns filesystem activity into debounced change batches, one
// stream per synchronizer.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/weave/internal/logging"
	"github.com/aretw0/weave/pkg/domain"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const (
	DefaultDebounce  = 2000 * time.Millisecond
	DefaultQueueSize = 256
)

// ErrUnknownSynchronizer is returned by Submit for an id that was never registered.
var ErrUnknownSynchronizer = errors.New("unknown synchronizer")

// skipDirs are never watched.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".weave":       true,
}

// Handler receives the coalesced changes of one (synchronizer, path) key.
type Handler interface {
	Handle(ctx context.Context, batch domain.ChangeBatch) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, batch domain.ChangeBatch) error

func (f HandlerFunc) Handle(ctx context.Context, batch domain.ChangeBatch) error {
	return f(ctx, batch)
}

type key struct {
	sync string
	path string
}

type pending struct {
	events []domain.ChangeEvent
	gen    uint64
	timer  *time.Timer
}

type fireMsg struct {
	key key
	gen uint64
}

type registration struct {
	sync    domain.Synchronizer
	handler Handler
}

// Manager owns the single fsnotify watcher and every synchronizer registration.
// Events flow through a bounded channel into one loop that keeps a debounce
// timer per key; when a timer expires the full batch is handed to the handler.
type Manager struct {
	debounce  time.Duration
	queueSize int
	logger    *slog.Logger
	useFS     bool

	syncs map[string]registration
	order []string

	events chan domain.ChangeEvent
	fire   chan fireMsg

	// owned by the loop goroutine
	pending map[key]*pending

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	watched map[string]bool
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// Option configures the Manager.
type Option func(*Manager)

func WithDebounce(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.debounce = d
		}
	}
}

// WithQueueSize bounds the event channel.
func WithQueueSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.queueSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithoutFilesystem disables fsnotify; events only arrive through Submit.
func WithoutFilesystem() Option {
	return func(m *Manager) {
		m.useFS = false
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		debounce:  DefaultDebounce,
		queueSize: DefaultQueueSize,
		logger:    logging.NewNop(),
		useFS:     true,
		syncs:     make(map[string]registration),
		pending:   make(map[key]*pending),
		watched:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.events = make(chan domain.ChangeEvent, m.queueSize)
	m.fire = make(chan fireMsg)
	return m
}

// Register binds a handler to a synchronizer. It must be called before Start.
func (m *Manager) Register(s domain.Synchronizer, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return errors.New("cannot register synchronizer on a running manager")
	}
	if _, exists := m.syncs[s.ID]; exists {
		return fmt.Errorf("%w: synchronizer %q registered twice", domain.ErrConfig, s.ID)
	}
	for _, glob := range s.WatchPaths {
		if !doublestar.ValidatePattern(filepath.ToSlash(glob)) {
			return fmt.Errorf("%w: synchronizer %q has invalid glob %q", domain.ErrConfig, s.ID, glob)
		}
	}
	m.syncs[s.ID] = registration{sync: s, handler: h}
	m.order = append(m.order, s.ID)
	return nil
}

// Synchronizers returns the registered synchronizers in registration order.
func (m *Manager) Synchronizers() []domain.Synchronizer {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Synchronizer, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.syncs[id].sync)
	}
	return out
}

// Start begins watching. Handlers run with ctx-derived contexts until Stop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("watch manager already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	if m.useFS {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			cancel()
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		m.watcher = w
		for _, id := range m.order {
			for _, glob := range m.syncs[id].sync.WatchPaths {
				base, _ := doublestar.SplitPattern(filepath.ToSlash(glob))
				m.addRecursive(filepath.FromSlash(base))
			}
		}
		m.wg.Add(1)
		go m.readFS(ctx, w)
	}

	m.running = true
	m.wg.Add(1)
	go m.loop(ctx)
	m.logger.Info("watching synchronizers", "count", len(m.order), "debounce", m.debounce)
	return nil
}

// Stop closes the watcher, drops pending timers and waits for running handlers.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.cancel()
	var err error
	if m.watcher != nil {
		err = m.watcher.Close()
		m.watcher = nil
	}
	m.mu.Unlock()

	m.wg.Wait()
	return err
}

// Submit feeds an event as if it had been observed on disk. When
// SynchronizerID is empty the event is routed to every synchronizer whose
// globs match the path. Submit blocks while the queue is full.
func (m *Manager) Submit(ctx context.Context, ev domain.ChangeEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ev.Path = filepath.ToSlash(ev.Path)

	if ev.SynchronizerID != "" {
		m.mu.Lock()
		_, ok := m.syncs[ev.SynchronizerID]
		m.mu.Unlock()
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSynchronizer, ev.SynchronizerID)
		}
		return m.push(ctx, ev)
	}

	for _, id := range m.match(ev.Path) {
		routed := ev
		routed.SynchronizerID = id
		if err := m.push(ctx, routed); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) push(ctx context.Context, ev domain.ChangeEvent) error {
	select {
	case m.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// match returns the synchronizers whose globs match path.
func (m *Manager) match(path string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, id := range m.order {
		for _, glob := range m.syncs[id].sync.WatchPaths {
			if ok, _ := doublestar.Match(filepath.ToSlash(glob), path); ok {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			for k, p := range m.pending {
				p.timer.Stop()
				delete(m.pending, k)
			}
			return
		case ev := <-m.events:
			m.enqueue(ev)
		case f := <-m.fire:
			m.flush(ctx, f)
		}
	}
}

// enqueue appends ev to its key's batch and restarts the key's timer.
func (m *Manager) enqueue(ev domain.ChangeEvent) {
	k := key{sync: ev.SynchronizerID, path: ev.Path}
	p, ok := m.pending[k]
	if !ok {
		p = &pending{}
		m.pending[k] = p
	}
	p.events = append(p.events, ev)
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
	}

	gen := p.gen
	done := m.done
	p.timer = time.AfterFunc(m.debounce, func() {
		select {
		case m.fire <- fireMsg{key: k, gen: gen}:
		case <-done:
		}
	})
}

func (m *Manager) flush(ctx context.Context, f fireMsg) {
	p, ok := m.pending[f.key]
	if !ok || p.gen != f.gen {
		return
	}
	delete(m.pending, f.key)

	m.mu.Lock()
	reg, ok := m.syncs[f.key.sync]
	m.mu.Unlock()
	if !ok {
		return
	}

	batch := domain.ChangeBatch{
		SynchronizerID: f.key.sync,
		Path:           f.key.path,
		Events:         p.events,
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.logger.Debug("dispatching change batch", "synchronizer", batch.SynchronizerID, "path", batch.Path, "events", len(batch.Events))
		if err := reg.handler.Handle(ctx, batch); err != nil {
			m.logger.Error("synchronizer handler failed", "synchronizer", batch.SynchronizerID, "path", batch.Path, "error", err)
		}
	}()
}

func (m *Manager) readFS(ctx context.Context, w *fsnotify.Watcher) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			m.handleFS(ctx, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			m.logger.Warn("watcher error", "error", err)
		}
	}
}

func (m *Manager) handleFS(ctx context.Context, ev fsnotify.Event) {
	var kind domain.ChangeKind
	switch {
	case ev.Has(fsnotify.Create):
		kind = domain.ChangeAdd
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			m.mu.Lock()
			m.addRecursive(ev.Name)
			m.mu.Unlock()
			return
		}
	case ev.Has(fsnotify.Write):
		kind = domain.ChangeModify
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		kind = domain.ChangeDelete
	default:
		return
	}

	err := m.Submit(ctx, domain.ChangeEvent{
		Kind:      kind,
		Path:      ev.Name,
		Timestamp: time.Now(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("dropping file event", "path", ev.Name, "error", err)
	}
}

// addRecursive watches dir and its subdirectories. Callers hold m.mu.
func (m *Manager) addRecursive(dir string) {
	if m.watcher == nil {
		return
	}
	if _, err := os.Stat(dir); err != nil {
		m.logger.Warn("watch root missing", "dir", dir)
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != dir && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		if m.watched[path] {
			return nil
		}
		if err := m.watcher.Add(path); err != nil {
			m.logger.Warn("failed to watch directory", "dir", path, "error", err)
			return nil
		}
		m.watched[path] = true
		return nil
	})
}
