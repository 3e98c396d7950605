package auth

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/goliatone/go-cinema-auth/storage"
	goerrors "github.com/goliatone/go-errors"
)

// EntityKind names what a pending booking record is looked up by.
type EntityKind string

const (
	KindShowtime EntityKind = "showtime"
	KindBooking  EntityKind = "booking"
)

// BookingKey addresses a pending booking record.
type BookingKey struct {
	Kind EntityKind
	ID   int
}

// ShowtimeKey addresses the record by showtime id.
func ShowtimeKey(id int) BookingKey { return BookingKey{Kind: KindShowtime, ID: id} }

// BookingIDKey addresses the record by booking id.
func BookingIDKey(id int) BookingKey { return BookingKey{Kind: KindBooking, ID: id} }

// owns reports whether record is the one k addresses. Both kinds render to
// the same storage key, so a showtime and a booking sharing an id collide.
func (k BookingKey) owns(record *PendingBookingRecord) bool {
	if record == nil {
		return false
	}
	switch k.Kind {
	case KindShowtime:
		return record.ShowtimeID == k.ID
	case KindBooking:
		return record.BookingID == k.ID
	default:
		return false
	}
}

// BookingStore is the typed view over tab-scoped checkout state. Both key
// kinds render to the same "<prefix><id>" layout the booking pages read; the
// kind is checked against the stored record on every read and write.
type BookingStore struct {
	store   storage.Store
	prefix  string
	flagKey string
	markers []string
}

// NewBookingStore returns a store over the tab-scoped area.
func NewBookingStore(store storage.Store, cfg Config) *BookingStore {
	return &BookingStore{
		store:   store,
		prefix:  cfg.GetBookingSessionPrefix(),
		flagKey: cfg.GetPendingFlagKey(),
		markers: cfg.GetSweepMarkers(),
	}
}

// StorageKey renders the storage key for k.
func (b *BookingStore) StorageKey(k BookingKey) string {
	return b.prefix + strconv.Itoa(k.ID)
}

// Get loads the record stored under k. A record stored by another entity
// under the same key is reported as missing.
func (b *BookingStore) Get(ctx context.Context, k BookingKey) (*PendingBookingRecord, bool, error) {
	raw, ok, err := b.store.Get(ctx, b.StorageKey(k))
	if err != nil || !ok {
		return nil, false, err
	}

	record := &PendingBookingRecord{}
	if err := json.Unmarshal([]byte(raw), record); err != nil {
		return nil, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode pending booking record").
			WithMetadata(map[string]any{"key": b.StorageKey(k)})
	}

	if !k.owns(record) {
		return nil, false, nil
	}
	return record, true, nil
}

// Put stores record under k unless a record with a newer version is already
// there. It reports whether the write happened.
func (b *BookingStore) Put(ctx context.Context, k BookingKey, record *PendingBookingRecord) (bool, error) {
	if record == nil {
		return false, nil
	}

	if !k.owns(record) {
		return false, goerrors.New("pending booking record does not match key", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{
				"kind":        k.Kind,
				"id":          k.ID,
				"booking_id":  record.BookingID,
				"showtime_id": record.ShowtimeID,
			})
	}

	existing, ok, err := b.Get(ctx, k)
	if err != nil {
		return false, err
	}
	if ok && existing.Version > record.Version {
		return false, nil
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode pending booking record")
	}

	if err := b.store.Set(ctx, b.StorageKey(k), string(raw)); err != nil {
		return false, err
	}
	return true, nil
}

// PutRecord stores record under both its showtime and booking keys.
func (b *BookingStore) PutRecord(ctx context.Context, record *PendingBookingRecord) error {
	if record == nil {
		return nil
	}
	if _, err := b.Put(ctx, ShowtimeKey(record.ShowtimeID), record); err != nil {
		return err
	}
	_, err := b.Put(ctx, BookingIDKey(record.BookingID), record)
	return err
}

// Remove deletes the record stored under k.
func (b *BookingStore) Remove(ctx context.Context, k BookingKey) error {
	return b.store.Remove(ctx, b.StorageKey(k))
}

// SetFlag persists the pending booking marker.
func (b *BookingStore) SetFlag(ctx context.Context, flag PendingBookingFlag) error {
	raw, err := json.Marshal(flag)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode pending booking flag")
	}
	return b.store.Set(ctx, b.flagKey, string(raw))
}

// Flag returns the marker without consuming it.
func (b *BookingStore) Flag(ctx context.Context) (*PendingBookingFlag, bool, error) {
	raw, ok, err := b.store.Get(ctx, b.flagKey)
	if err != nil || !ok {
		return nil, false, err
	}

	flag := &PendingBookingFlag{}
	if err := json.Unmarshal([]byte(raw), flag); err != nil {
		return nil, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode pending booking flag")
	}
	return flag, true, nil
}

// TakeFlag returns the marker and removes it; the booking page reads it once.
func (b *BookingStore) TakeFlag(ctx context.Context) (*PendingBookingFlag, bool, error) {
	flag, ok, err := b.Flag(ctx)
	if err != nil || !ok {
		return flag, ok, err
	}
	if err := b.store.Remove(ctx, b.flagKey); err != nil {
		return nil, false, err
	}
	return flag, true, nil
}

// Sweep removes every key containing one of the sweep markers, except the
// pending booking flag. It returns the removed keys.
func (b *BookingStore) Sweep(ctx context.Context) ([]string, error) {
	keys, err := b.store.Keys(ctx)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, key := range keys {
		if key == b.flagKey || !b.swept(key) {
			continue
		}
		if err := b.store.Remove(ctx, key); err != nil {
			return removed, err
		}
		removed = append(removed, key)
	}
	return removed, nil
}

func (b *BookingStore) swept(key string) bool {
	for _, marker := range b.markers {
		if marker != "" && strings.Contains(key, marker) {
			return true
		}
	}
	return false
}
