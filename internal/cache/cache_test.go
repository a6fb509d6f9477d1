package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/defi-keeper/internal/errors"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func memoryStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	store, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	clock := &testClock{t: time.Unix(1_700_000_000, 0)}
	store.now = clock.now
	return store, clock
}

func TestCacheSetGetFreshAndStale(t *testing.T) {
	store, clock := memoryStore(t)

	if err := store.Set("k1", []byte(`{"v":1}`), time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	res, err := store.Get("k1", 5*time.Second)
	if err != nil {
		t.Fatalf("Get fresh failed: %v", err)
	}
	if !res.Hit || res.Stale {
		t.Fatalf("expected fresh hit, got %+v", res)
	}

	clock.t = clock.t.Add(2 * time.Second)
	res, err = store.Get("k1", 5*time.Second)
	if err != nil {
		t.Fatalf("Get stale failed: %v", err)
	}
	if !res.Hit || !res.Stale || res.TooStale {
		t.Fatalf("expected stale entry within max stale, got %+v", res)
	}

	clock.t = clock.t.Add(time.Minute)
	res, _ = store.Get("k1", 5*time.Second)
	if !res.TooStale {
		t.Fatalf("expected too stale, got %+v", res)
	}
}

func TestGetOrLoadServesStaleOnTransientFailure(t *testing.T) {
	store, clock := memoryStore(t)
	ctx := context.Background()
	calls := 0
	ok := func(context.Context) ([]byte, error) {
		calls++
		return []byte("fresh"), nil
	}
	down := func(context.Context) ([]byte, error) {
		calls++
		return nil, clierr.New(clierr.CodeUnavailable, "down")
	}

	if v, err := store.GetOrLoad(ctx, "y", time.Minute, time.Hour, ok); err != nil || string(v) != "fresh" {
		t.Fatalf("unexpected first load %q %v", v, err)
	}
	if _, err := store.GetOrLoad(ctx, "y", time.Minute, time.Hour, down); err != nil || calls != 1 {
		t.Fatalf("expected cached hit without load, calls=%d err=%v", calls, err)
	}

	clock.t = clock.t.Add(10 * time.Minute)
	v, err := store.GetOrLoad(ctx, "y", time.Minute, time.Hour, down)
	if err != nil || string(v) != "fresh" {
		t.Fatalf("expected stale fallback, got %q %v", v, err)
	}

	clock.t = clock.t.Add(2 * time.Hour)
	_, err = store.GetOrLoad(ctx, "y", time.Minute, time.Hour, down)
	if clierr.CodeOf(err) != clierr.CodeStale {
		t.Fatalf("expected stale error, got %v", err)
	}

	_, err = store.GetOrLoad(ctx, "z", time.Minute, time.Hour, func(context.Context) ([]byte, error) {
		return nil, errors.New("boom")
	})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected load error passthrough, got %v", err)
	}
}

func TestNilStoreAlwaysLoads(t *testing.T) {
	var store *Store
	v, err := store.GetOrLoad(context.Background(), "k", time.Minute, 0, func(context.Context) ([]byte, error) {
		return []byte("x"), nil
	})
	if err != nil || string(v) != "x" {
		t.Fatalf("unexpected %q %v", v, err)
	}
}

func TestCacheConcurrentOpenAndSet(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "cache.db")
	lockPath := filepath.Join(tmp, "cache.lock")

	const workers = 8
	const iterations = 20

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			store, err := Open(dbPath, lockPath)
			if err != nil {
				errCh <- fmt.Errorf("worker %d open: %w", workerID, err)
				return
			}
			defer store.Close()

			for i := 0; i < iterations; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", workerID, i)
				if err := store.Set(key, []byte(`{"ok":true}`), time.Minute); err != nil {
					errCh <- fmt.Errorf("worker %d set iter %d: %w", workerID, i, err)
					return
				}
				res, err := store.Get(key, time.Minute)
				if err != nil {
					errCh <- fmt.Errorf("worker %d get iter %d: %w", workerID, i, err)
					return
				}
				if !res.Hit {
					errCh <- fmt.Errorf("worker %d get iter %d: expected hit", workerID, i)
					return
				}
			}
		}(worker)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
}

func TestOpenSharesFileAcrossStores(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "yields.db")
	lockPath := filepath.Join(tmp, "yields.lock")

	first, err := Open(dbPath, lockPath)
	if err != nil {
		t.Fatalf("open first store: %v", err)
	}
	defer first.Close()
	second, err := Open(dbPath, lockPath)
	if err != nil {
		t.Fatalf("open second store while first is open: %v", err)
	}
	defer second.Close()

	if err := first.Set("enso:yields:aave-v3:8453", []byte(`[]`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	res, err := second.Get("enso:yields:aave-v3:8453", time.Minute)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !res.Hit || string(res.Value) != `[]` {
		t.Fatalf("expected the second store to see the write, got %+v", res)
	}
}
