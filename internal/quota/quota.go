// package quota tracks per-owner daily usage against a free-tier limit.
//
// The ledger delegates counting to a pluggable [CounterStore] so the backing
// storage can move from a process-local map to an embedded database or a
// shared Redis instance without changing the admission interface. Counting is
// a single atomic increment-and-check; two concurrent calls for the same
// owner never both succeed when one unit of quota remains.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/motifd/internal/shared"
)

// CounterStore increments and returns the usage count for a (day, key) pair.
// Implementations must make the increment atomic.
type CounterStore interface {
	Incr(ctx context.Context, day, key string) (int64, error)
}

// ExemptionSet answers whether an owner bypasses quota accounting.
type ExemptionSet interface {
	Exempt(owner string) bool
}

// Ledger enforces the daily free-tier limit.
type Ledger struct {
	limit  int
	exempt ExemptionSet
	store  CounterStore
	now    func() time.Time
}

// NewLedger creates a Ledger. A limit of zero or less disables accounting.
func NewLedger(limit int, exempt ExemptionSet, store CounterStore) *Ledger {
	return &Ledger{limit: limit, exempt: exempt, store: store, now: time.Now}
}

// CheckAndConsume atomically consumes one unit of today's quota for owner.
// Returns false when the owner has exhausted the daily limit. Exempt owners
// are always allowed and never accumulate usage. A store failure fails
// closed with [shared.ErrServiceUnavailable].
func (l *Ledger) CheckAndConsume(ctx context.Context, owner string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	if l.exempt != nil && l.exempt.Exempt(owner) {
		return true, nil
	}

	count, err := l.store.Incr(ctx, shared.DayKey(l.now()), owner)
	if err != nil {
		return false, fmt.Errorf("%w: quota store unreachable: %v", shared.ErrServiceUnavailable, err)
	}

	return count <= int64(l.limit), nil
}

// MemoryStore is a process-local, non-durable CounterStore.
// Suitable for single-instance development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]int64)}
}

// Incr implements [CounterStore].
func (s *MemoryStore) Incr(ctx context.Context, day, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := day + "|" + key
	s.counts[k]++
	return s.counts[k], nil
}
