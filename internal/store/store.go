// Package store is the SQLite-backed durable state shared by every hook
// process. It owns the skill_span and life_event tables and is the only
// coordination point between independently invoked processes: mutations run
// under BEGIN EXCLUSIVE, reads run in a snapshot transaction, and the database
// is kept in WAL mode so readers never queue behind a writer.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// DefaultLockTimeout bounds how long a transaction waits for the write lock.
const DefaultLockTimeout = 5 * time.Second

// Store wraps the shared database handle.
type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
	now         func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithLockTimeout overrides the busy timeout used while waiting for locks.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithClock replaces the wall clock, used by tests that need ordered timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// DefaultPath returns ~/.skillspan/skillspan.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".skillspan", "skillspan.db")
}

// Open opens (creating if needed) the database at path, switches it to WAL
// and applies pending migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create db directory: %w", err)
	}

	s := newStore(nil, opts...)
	db, err := sql.Open("sqlite", s.dsn(path))
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// One connection per process: the hook runs a single operation and the
	// per-connection pragmas in the DSN then always apply.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	s.db = db

	if err := s.configurePragmas(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened handle without touching its schema.
func New(db *sql.DB, opts ...Option) *Store {
	return newStore(db, opts...)
}

func newStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:          db,
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", s.lockTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + path + "?" + q.Encode()
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Now returns the store clock in UTC.
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

func (s *Store) configurePragmas(ctx context.Context) error {
	var mode string
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL;").Scan(&mode); err != nil {
		return fmt.Errorf("store: set journal_mode: %w", err)
	}
	return nil
}

// Exclusive runs fn inside a BEGIN EXCLUSIVE transaction held on a single
// connection for the whole decide-and-write sequence. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (s *Store) Exclusive(ctx context.Context, fn func(*Tx) error) error {
	return s.run(ctx, "BEGIN EXCLUSIVE", fn)
}

// Read runs fn inside a deferred transaction. Under WAL the first read pins a
// snapshot, so fn sees either the state before or after any concurrent
// exclusive transaction, never an intermediate one.
func (s *Store) Read(ctx context.Context, fn func(*Tx) error) error {
	return s.run(ctx, "BEGIN DEFERRED", fn)
}

func (s *Store) run(ctx context.Context, begin string, fn func(*Tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("store: acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, begin); err != nil {
		return fmt.Errorf("store: %s: %w", begin, err)
	}

	tx := &Tx{ctx: ctx, conn: conn, now: s.Now}
	defer func() {
		if p := recover(); p != nil {
			rollback(conn)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		rollback(conn)
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		rollback(conn)
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// rollback aborts the open transaction. If that fails the connection is
// discarded rather than returned to the pool mid-transaction.
func rollback(conn *sql.Conn) {
	if _, err := conn.ExecContext(context.Background(), "ROLLBACK"); err != nil {
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
}
