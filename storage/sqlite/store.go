// Package sqlite persists the shared storage area in a SQLite database so
// that several processes (tabs of a desktop shell, kiosks sharing a profile
// directory) observe the same tokens. Deletes are kept as tombstones so a
// Watcher can report them to other processes.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-cinema-auth/storage"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var _ storage.Backend = (*Store)(nil)

// Entry is a row of the shared storage table.
type Entry struct {
	bun.BaseModel `bun:"table:auth_storage,alias:ast"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Key           string    `bun:"storage_key,notnull,unique" json:"key"`
	Value         string    `bun:"value" json:"value"`
	Origin        string    `bun:"origin" json:"origin,omitempty"`
	Deleted       bool      `bun:"deleted,notnull" json:"deleted,omitempty"`
	// Version is assigned by the database on every write, one above the
	// table maximum, so it follows commit order across processes.
	Version       int64     `bun:"version,notnull" json:"version"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// Store is a storage.Backend backed by bun.
type Store struct {
	db      *bun.DB
	entries repository.Repository[*Entry]
	now     func() time.Time
}

// Option customizes Store.
type Option func(*Store)

// WithClock injects the clock used for row timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// Open connects to a SQLite database through the bun sqlite shim.
func Open(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// New returns a Store over db. Call Migrate before first use.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:      db,
		entries: newEntriesRepository(db),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func newEntriesRepository(db *bun.DB) repository.Repository[*Entry] {
	return repository.NewRepository[*Entry](db, repository.ModelHandlers[*Entry]{
		NewRecord: func() *Entry { return &Entry{} },
		GetID: func(e *Entry) uuid.UUID {
			if e == nil {
				return uuid.Nil
			}
			return e.ID
		},
		SetID: func(e *Entry, id uuid.UUID) {
			if e != nil {
				e.ID = id
			}
		},
		GetIdentifier: func() string {
			return "storage_key"
		},
	})
}

// Migrate creates the storage table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*Entry)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (s *Store) Load(ctx context.Context, key string) (string, bool, error) {
	entry, err := s.entries.GetByIdentifierTx(ctx, s.db, key)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}

	if entry.Deleted {
		return "", false, nil
	}
	return entry.Value, true, nil
}

func (s *Store) Save(ctx context.Context, key, value, origin string) error {
	return s.upsert(ctx, key, value, origin, false)
}

func (s *Store) Delete(ctx context.Context, key, origin string) error {
	return s.upsert(ctx, key, "", origin, true)
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.NewSelect().
		Model((*Entry)(nil)).
		Column("storage_key").
		Where("deleted = ?", false).
		Order("storage_key ASC").
		Scan(ctx, &keys)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Changes returns entries written after the given version, oldest first.
func (s *Store) Changes(ctx context.Context, since int64) ([]*Entry, error) {
	var entries []*Entry
	err := s.db.NewSelect().
		Model(&entries).
		Where("version > ?", since).
		Order("version ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) upsert(ctx context.Context, key, value, origin string, deleted bool) error {
	id, err := hashid.NewUUID(key)
	if err != nil {
		return err
	}

	entry := &Entry{
		ID:        id,
		Key:       key,
		Value:     value,
		Origin:    origin,
		Deleted:   deleted,
		UpdatedAt: s.now(),
	}

	// the version is computed inside the write, which SQLite serializes
	_, err = s.db.NewInsert().
		Model(entry).
		Value("version", "(SELECT COALESCE(MAX(version), 0) + 1 FROM auth_storage)").
		On("CONFLICT (storage_key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("origin = EXCLUDED.origin").
		Set("deleted = EXCLUDED.deleted").
		Set("version = EXCLUDED.version").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	return err
}
