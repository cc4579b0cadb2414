package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraBank-Engine/bank"
)

// recordingSink keeps every result it receives.
type recordingSink struct {
	mu      sync.Mutex
	results []Result
	closed  bool
}

func (s *recordingSink) Write(r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

func (s *recordingSink) byID() map[int]Result {
	out := make(map[int]Result)
	for _, r := range s.Results() {
		out[r.RequestID] = r
	}
	return out
}

// newBank returns a store seeded with balances for accounts 1..len(balances).
func newBank(t testing.TB, balances ...int64) (*bank.MemoryStore, *LockTable) {
	t.Helper()
	store := bank.NewMemoryStore(0)
	require.NoError(t, store.Init(len(balances)))
	for i, b := range balances {
		store.Write(i+1, b)
	}
	return store, NewLockTable(len(balances))
}

func waitPool(t *testing.T, pool *WorkerPool, timeout time.Duration) {
	t.Helper()
	require.NoError(t, pool.ShutdownWithTimeout(timeout), "workers did not drain in %v: %+v", timeout, pool.GetStats())
}

func sum(values []int64) int64 {
	var total int64
	for _, v := range values {
		total += v
	}
	return total
}
