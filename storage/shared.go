package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	_ Store    = (*Tab)(nil)
	_ Notifier = (*Tab)(nil)
)

// Shared is the durable area visible to every tab of an origin.
type Shared struct {
	backend Backend
	now     func() time.Time

	mu   sync.RWMutex
	tabs map[string]*Tab
}

// SharedOption customizes Shared.
type SharedOption func(*Shared)

// WithBackend sets the persistence backend. Defaults to MemoryBackend.
func WithBackend(b Backend) SharedOption {
	return func(s *Shared) {
		if b != nil {
			s.backend = b
		}
	}
}

// WithClock injects the clock used to stamp events.
func WithClock(clock func() time.Time) SharedOption {
	return func(s *Shared) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewShared creates a shared durable area.
func NewShared(opts ...SharedOption) *Shared {
	s := &Shared{
		backend: NewMemoryBackend(),
		now:     time.Now,
		tabs:    map[string]*Tab{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Tab opens a new tab view with a random origin id.
func (s *Shared) Tab() *Tab {
	return s.TabWithOrigin(uuid.NewString())
}

// TabWithOrigin opens a tab view using the given origin id. Opening the same
// origin twice returns the existing view.
func (s *Shared) TabWithOrigin(origin string) *Tab {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tabs[origin]; ok {
		return t
	}

	t := &Tab{
		shared:      s,
		origin:      origin,
		subscribers: map[int]func(Event){},
	}
	s.tabs[origin] = t
	return t
}

// Close detaches a tab; it stops receiving events.
func (s *Shared) Close(t *Tab) {
	if t == nil {
		return
	}
	s.mu.Lock()
	delete(s.tabs, t.origin)
	s.mu.Unlock()
}

// HasOrigin reports whether a tab with the given origin is open in this
// process.
func (s *Shared) HasOrigin(origin string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tabs[origin]
	return ok
}

// Publish delivers an event produced outside this process (for example by a
// backend watcher) to every tab except the one that made the change.
func (s *Shared) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = s.now()
	}

	s.mu.RLock()
	targets := make([]*Tab, 0, len(s.tabs))
	for origin, t := range s.tabs {
		if origin == ev.Origin {
			continue
		}
		targets = append(targets, t)
	}
	s.mu.RUnlock()

	for _, t := range targets {
		t.deliver(ev)
	}
}

// Tab is a single tab's view over the shared area.
type Tab struct {
	shared *Shared
	origin string

	mu          sync.Mutex
	nextID      int
	subscribers map[int]func(Event)
}

// Origin returns the tab identifier stamped on events this tab produces.
func (t *Tab) Origin() string {
	return t.origin
}

func (t *Tab) Get(ctx context.Context, key string) (string, bool, error) {
	return t.shared.backend.Load(ctx, key)
}

func (t *Tab) Set(ctx context.Context, key, value string) error {
	old, _, err := t.shared.backend.Load(ctx, key)
	if err != nil {
		return err
	}

	if err := t.shared.backend.Save(ctx, key, value, t.origin); err != nil {
		return err
	}

	if old == value {
		return nil
	}

	t.shared.Publish(Event{
		Key:      key,
		OldValue: old,
		NewValue: value,
		Origin:   t.origin,
	})
	return nil
}

func (t *Tab) Remove(ctx context.Context, key string) error {
	old, ok, err := t.shared.backend.Load(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := t.shared.backend.Delete(ctx, key, t.origin); err != nil {
		return err
	}

	t.shared.Publish(Event{
		Key:      key,
		OldValue: old,
		Removed:  true,
		Origin:   t.origin,
	})
	return nil
}

func (t *Tab) Keys(ctx context.Context) ([]string, error) {
	return t.shared.backend.List(ctx)
}

// Subscribe registers fn for changes made by other tabs.
func (t *Tab) Subscribe(fn func(Event)) func() {
	if fn == nil {
		return func() {}
	}

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subscribers[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subscribers, id)
			t.mu.Unlock()
		})
	}
}

func (t *Tab) deliver(ev Event) {
	t.mu.Lock()
	fns := make([]func(Event), 0, len(t.subscribers))
	for _, fn := range t.subscribers {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
