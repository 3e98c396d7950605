// Package storage models the two browser storage areas the session runtime
// relies on: a durable area shared by every tab of the same origin, and a
// tab-scoped area private to a single tab.
//
// Writes to the shared area are broadcast to every other tab as an Event,
// matching the semantics of browser storage events: the tab that performed
// the write is never notified of its own change.
package storage

import (
	"context"
	"time"
)

// Store is a string key/value area.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// Event describes a mutation made by another tab.
// Removed is true when the key was deleted.
type Event struct {
	Key      string
	OldValue string
	NewValue string
	Removed  bool
	Origin   string
	At       time.Time
}

// Notifier delivers storage events. The returned function cancels the
// subscription and is safe to call more than once.
type Notifier interface {
	Subscribe(fn func(Event)) func()
}

// Backend persists the shared area. Implementations must be safe for
// concurrent use.
type Backend interface {
	Load(ctx context.Context, key string) (string, bool, error)
	Save(ctx context.Context, key, value, origin string) error
	Delete(ctx context.Context, key, origin string) error
	List(ctx context.Context) ([]string, error)
}
