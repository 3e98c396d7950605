package auth

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-cinema-auth/storage"
)

// CrossTabSync watches the durable area for token changes made by other
// tabs and invalidates the controller, so the next EnsureInitialized
// reloads the session from storage.
type CrossTabSync struct {
	controller *Controller
	notifier   storage.Notifier
	logger     Logger
	now        func() time.Time

	mu          sync.Mutex
	unsubscribe func()
	onChange    []func(storage.Event)
}

// NewCrossTabSync returns a sync bound to controller. Call Start to
// subscribe.
func NewCrossTabSync(controller *Controller, notifier storage.Notifier) *CrossTabSync {
	return &CrossTabSync{
		controller: controller,
		notifier:   notifier,
		logger:     controller.logger,
		now:        controller.now,
	}
}

func (s *CrossTabSync) WithLogger(logger Logger) *CrossTabSync {
	s.logger = normalizeLogger(logger)
	return s
}

// OnChange registers fn to run after a token change invalidated the
// controller, e.g. to re-run EnsureInitialized eagerly.
func (s *CrossTabSync) OnChange(fn func(storage.Event)) *CrossTabSync {
	if fn != nil {
		s.mu.Lock()
		s.onChange = append(s.onChange, fn)
		s.mu.Unlock()
	}
	return s
}

// Start subscribes to storage events. Calling it twice is a no-op.
func (s *CrossTabSync) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribe != nil || s.notifier == nil {
		return
	}
	s.unsubscribe = s.notifier.Subscribe(s.handle)
}

// Stop cancels the subscription.
func (s *CrossTabSync) Stop() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *CrossTabSync) handle(ev storage.Event) {
	if !s.controller.tokens.IsTokenKey(ev.Key) {
		return
	}

	s.logger.Debug("token changed in another tab", "key", ev.Key, "origin", ev.Origin, "removed", ev.Removed)
	s.controller.Invalidate()

	if err := normalizeActivitySink(s.controller.activitySink).Record(context.Background(), ActivityEvent{
		EventType: ActivityEventCrossTabChange,
		Metadata: map[string]any{
			"key":     ev.Key,
			"origin":  ev.Origin,
			"removed": ev.Removed,
		},
		OccurredAt: s.now(),
	}); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}

	s.mu.Lock()
	fns := append([]func(storage.Event){}, s.onChange...)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Watch starts a CrossTabSync on notifier that is stopped by Close.
func (c *Controller) Watch(notifier storage.Notifier) *CrossTabSync {
	s := NewCrossTabSync(c, notifier)
	s.Start()
	c.onClose(s.Stop)
	return s
}
