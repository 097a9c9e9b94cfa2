package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/motifd/internal/shared"
)

type exemptSet map[string]bool

func (e exemptSet) Exempt(owner string) bool { return e[owner] }

type failingStore struct{}

func (failingStore) Incr(ctx context.Context, day, key string) (int64, error) {
	return 0, errors.New("store down")
}

func TestLedgerCheckAndConsume(t *testing.T) {
	ctx := context.Background()

	t.Run("limit enforced at exactly DAILY_LIMIT calls", func(t *testing.T) {
		ledger := NewLedger(10, exemptSet{}, NewMemoryStore())

		for i := 0; i < 10; i++ {
			allowed, err := ledger.CheckAndConsume(ctx, "alice")
			if err != nil {
				t.Fatalf("call %d: unexpected error %v", i+1, err)
			}
			if !allowed {
				t.Fatalf("call %d should be allowed", i+1)
			}
		}

		allowed, err := ledger.CheckAndConsume(ctx, "alice")
		if err != nil {
			t.Fatalf("11th call: unexpected error %v", err)
		}
		if allowed {
			t.Error("11th call should be denied")
		}
	})

	t.Run("owners are accounted independently", func(t *testing.T) {
		ledger := NewLedger(1, exemptSet{}, NewMemoryStore())

		if allowed, _ := ledger.CheckAndConsume(ctx, "alice"); !allowed {
			t.Error("alice's first call should be allowed")
		}
		if allowed, _ := ledger.CheckAndConsume(ctx, "bob"); !allowed {
			t.Error("bob's first call should be allowed")
		}
		if allowed, _ := ledger.CheckAndConsume(ctx, "alice"); allowed {
			t.Error("alice's second call should be denied")
		}
	})

	t.Run("exempt owners never accumulate or block", func(t *testing.T) {
		store := NewMemoryStore()
		ledger := NewLedger(1, exemptSet{"pro": true}, store)

		for i := 0; i < 50; i++ {
			allowed, err := ledger.CheckAndConsume(ctx, "pro")
			if err != nil || !allowed {
				t.Fatalf("exempt owner denied on call %d: %v", i+1, err)
			}
		}

		if n, _ := store.Incr(ctx, shared.DayKey(time.Now()), "pro"); n != 1 {
			t.Errorf("exempt owner accumulated usage: count %d", n)
		}
	})

	t.Run("zero limit disables accounting", func(t *testing.T) {
		ledger := NewLedger(0, exemptSet{}, NewMemoryStore())
		for i := 0; i < 100; i++ {
			if allowed, _ := ledger.CheckAndConsume(ctx, "alice"); !allowed {
				t.Fatal("unlimited ledger should always allow")
			}
		}
	})

	t.Run("fails closed when store is unreachable", func(t *testing.T) {
		ledger := NewLedger(10, exemptSet{}, failingStore{})

		allowed, err := ledger.CheckAndConsume(ctx, "alice")
		if allowed {
			t.Error("unreachable store must never allow")
		}
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("day rollover resets the count", func(t *testing.T) {
		ledger := NewLedger(1, exemptSet{}, NewMemoryStore())

		day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		ledger.now = func() time.Time { return day }

		if allowed, _ := ledger.CheckAndConsume(ctx, "alice"); !allowed {
			t.Fatal("first call should be allowed")
		}
		if allowed, _ := ledger.CheckAndConsume(ctx, "alice"); allowed {
			t.Fatal("second call same day should be denied")
		}

		ledger.now = func() time.Time { return day.Add(24 * time.Hour) }
		if allowed, _ := ledger.CheckAndConsume(ctx, "alice"); !allowed {
			t.Error("next day should start a fresh count")
		}
	})
}

// No lost updates: with one unit of quota remaining, concurrent calls for the
// same owner must produce exactly limit successes.
func TestLedgerConcurrentConsumption(t *testing.T) {
	ctx := context.Background()
	const limit = 10
	const callers = 100

	stores := map[string]CounterStore{
		"memory": NewMemoryStore(),
		"sqlite": newTestSQLiteStore(t),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ledger := NewLedger(limit, exemptSet{}, store)

			var wg sync.WaitGroup
			var mu sync.Mutex
			succeeded := 0

			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					allowed, err := ledger.CheckAndConsume(ctx, "alice")
					if err != nil {
						t.Errorf("unexpected error: %v", err)
						return
					}
					if allowed {
						mu.Lock()
						succeeded++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			if succeeded != limit {
				t.Errorf("expected exactly %d allowed calls, got %d", limit, succeeded)
			}
		})
	}
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	// A single connection keeps the in-memory database shared across goroutines.
	shared.ConfigureDatabase(db, 1, 1)
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return NewSQLiteStore(db)
}

func TestSQLiteStoreIncr(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)

	for want := int64(1); want <= 3; want++ {
		got, err := store.Incr(ctx, "2026-03-01", "alice")
		if err != nil {
			t.Fatalf("Incr() error = %v", err)
		}
		if got != want {
			t.Errorf("Incr() = %d, want %d", got, want)
		}
	}

	// Separate day and key start fresh.
	if got, _ := store.Incr(ctx, "2026-03-02", "alice"); got != 1 {
		t.Errorf("new day count = %d, want 1", got)
	}
	if got, _ := store.Incr(ctx, "2026-03-01", "bob"); got != 1 {
		t.Errorf("new key count = %d, want 1", got)
	}
}

func TestRedisStoreIncr(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { store.Close() })

	for want := int64(1); want <= 3; want++ {
		got, err := store.Incr(ctx, "2026-03-01", "alice")
		if err != nil {
			t.Fatalf("Incr() error = %v", err)
		}
		if got != want {
			t.Errorf("Incr() = %d, want %d", got, want)
		}
	}

	if ttl := mr.TTL("usage:2026-03-01:alice"); ttl <= 0 {
		t.Errorf("expected a positive TTL on the usage key, got %v", ttl)
	}

	t.Run("fails closed when redis is down", func(t *testing.T) {
		mr.Close()
		ledger := NewLedger(10, exemptSet{}, store)
		allowed, err := ledger.CheckAndConsume(ctx, "alice")
		if allowed {
			t.Error("unreachable redis must never allow")
		}
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}
