// Package cache is a small sqlite-backed TTL store for public backend
// responses. It never holds settlement state.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
)

const (
	busyTimeoutMillis = 5000
	lockTimeout       = 5 * time.Second
	lockRetryDelay    = 50 * time.Millisecond
)

type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

type Result struct {
	Hit      bool
	Value    []byte
	Age      time.Duration
	Stale    bool
	TooStale bool
}

// Open opens a file-backed cache. Writes take lockPath so several keeper
// processes can share one file.
func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", fileDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	lock := flock.New(lockPath)
	if err := acquire(lock); err != nil {
		_ = db.Close()
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()
	return initStore(db, lock, "PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;")
}

// fileDSN sets a busy timeout on every pooled connection so readers and
// other processes wait for a writer instead of failing with SQLITE_BUSY.
func fileDSN(path string) string {
	return path + "?_pragma=busy_timeout(" + strconv.Itoa(busyTimeoutMillis) + ")"
}

func acquire(lock *flock.Flock) error {
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	return nil
}

// OpenMemory opens a process-local cache that disappears on Close.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	// every pooled connection would otherwise see its own empty database
	db.SetMaxOpenConns(1)
	return initStore(db, nil)
}

func initStore(db *sql.DB, lock *flock.Flock, pragmas ...string) (*Store, error) {
	queries := append(pragmas,
		"CREATE TABLE IF NOT EXISTS cache_entries (key TEXT PRIMARY KEY, value BLOB NOT NULL, created_at INTEGER NOT NULL, ttl_seconds INTEGER NOT NULL);",
	)
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}
	store := &Store{db: db, lock: lock, now: time.Now}
	_ = store.Prune()
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Prune deletes entries whose TTL has fully expired.
func (s *Store) Prune() error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec("DELETE FROM cache_entries WHERE created_at + ttl_seconds < ?", s.now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	return nil
}

func (s *Store) Get(key string, maxStale time.Duration) (Result, error) {
	var value []byte
	var createdUnix, ttlSeconds int64
	err := s.db.QueryRow("SELECT value, created_at, ttl_seconds FROM cache_entries WHERE key = ?", key).Scan(&value, &createdUnix, &ttlSeconds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("cache read: %w", err)
	}

	age := s.now().Sub(time.Unix(createdUnix, 0))
	if age < 0 {
		age = 0
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	stale := age > ttl
	return Result{
		Hit:      true,
		Value:    value,
		Age:      age,
		Stale:    stale,
		TooStale: stale && maxStale >= 0 && age > ttl+maxStale,
	}, nil
}

func (s *Store) Set(key string, value []byte, ttl time.Duration) error {
	if s.lock != nil {
		if err := acquire(s.lock); err != nil {
			return err
		}
		defer func() { _ = s.lock.Unlock() }()
	}

	ttlSeconds := int64(ttl.Seconds())
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO cache_entries (key, value, created_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			created_at=excluded.created_at,
			ttl_seconds=excluded.ttl_seconds
	`, key, value, s.now().UTC().Unix(), ttlSeconds)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// GetOrLoad serves a fresh entry, or calls load and stores its result. When
// load fails with a transient error, an entry stale by at most maxStale is
// served instead. A nil Store always loads.
func (s *Store) GetOrLoad(ctx context.Context, key string, ttl, maxStale time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	if s == nil {
		return load(ctx)
	}
	cached, err := s.Get(key, maxStale)
	if err == nil && cached.Hit && !cached.Stale {
		return cached.Value, nil
	}

	value, loadErr := load(ctx)
	if loadErr == nil {
		_ = s.Set(key, value, ttl)
		return value, nil
	}
	if cached.Hit && !cached.TooStale && clierr.IsTransient(loadErr) {
		return cached.Value, nil
	}
	if cached.Hit && cached.TooStale && clierr.IsTransient(loadErr) {
		return nil, clierr.Wrap(clierr.CodeStale, "cached data too stale and backend unavailable", loadErr)
	}
	return nil, loadErr
}
