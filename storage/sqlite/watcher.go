package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-cinema-auth/storage"
)

// Publisher receives events observed in the database.
// storage.Shared satisfies it.
type Publisher interface {
	Publish(ev storage.Event)
	HasOrigin(origin string) bool
}

// Logger mirrors the auth package logger without importing it.
type Logger interface {
	Error(format string, args ...any)
}

type defLogger struct{}

func (defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] STORAGE "+format+"\n", args...)
}

// Watcher polls the storage table and republishes rows written by origins
// that do not live in this process.
type Watcher struct {
	store     *Store
	publisher Publisher
	interval  time.Duration
	logger    Logger

	since  int64
	values map[string]string
}

// NewWatcher creates a watcher. It starts from the current table state so
// only changes made after construction are reported.
func NewWatcher(ctx context.Context, store *Store, publisher Publisher, interval time.Duration) (*Watcher, error) {
	if interval <= 0 {
		interval = time.Second
	}

	w := &Watcher{
		store:     store,
		publisher: publisher,
		interval:  interval,
		logger:    defLogger{},
		values:    map[string]string{},
	}

	entries, err := store.Changes(ctx, 0)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		w.remember(e)
	}

	return w, nil
}

// WithLogger sets the logger used for poll failures.
func (w *Watcher) WithLogger(logger Logger) *Watcher {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Poll(ctx); err != nil {
				w.logger.Error("storage watcher poll failed: %v", err)
			}
		}
	}
}

// Poll checks once for new rows and returns the number of events published.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	entries, err := w.store.Changes(ctx, w.since)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, e := range entries {
		old := w.values[e.Key]
		w.remember(e)

		if w.publisher.HasOrigin(e.Origin) {
			continue
		}

		w.publisher.Publish(storage.Event{
			Key:      e.Key,
			OldValue: old,
			NewValue: e.Value,
			Removed:  e.Deleted,
			Origin:   e.Origin,
			At:       e.UpdatedAt,
		})
		published++
	}

	return published, nil
}

func (w *Watcher) remember(e *Entry) {
	if e.Version > w.since {
		w.since = e.Version
	}
	if e.Deleted {
		delete(w.values, e.Key)
		return
	}
	w.values[e.Key] = e.Value
}
