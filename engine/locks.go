package engine

import (
	"slices"
	"sync"

	"github.com/pkg/errors"
)

// Common errors for lock table operations
var (
	ErrInvalidAccount = errors.New("invalid account id")
	ErrEmptyLockSet   = errors.New("empty lock set")
)

// LockTable holds one mutex per account. Holding lock i is the only way to
// read or write account i.
//
// Multi-account callers go through LockSet, which acquires in ascending id
// order. Two lock sets therefore never wait on each other in opposite
// orders.
type LockTable struct {
	locks []sync.Mutex
}

// NewLockTable creates locks for accounts 1..n.
func NewLockTable(n int) *LockTable {
	if n < 0 {
		n = 0
	}
	return &LockTable{locks: make([]sync.Mutex, n)}
}

// Len returns the number of accounts covered.
func (t *LockTable) Len() int {
	return len(t.locks)
}

// Valid reports whether id names an account in the table.
func (t *LockTable) Valid(id int) bool {
	return id >= 1 && id <= len(t.locks)
}

// LockGuard releases a set of account locks acquired by LockSet.
type LockGuard struct {
	table *LockTable
	ids   []int // ascending, distinct
}

// IDs returns the locked account ids in acquisition order.
func (g *LockGuard) IDs() []int {
	return g.ids
}

// Unlock releases every lock in reverse acquisition order. It must be
// called exactly once.
func (g *LockGuard) Unlock() {
	for i := len(g.ids) - 1; i >= 0; i-- {
		g.table.locks[g.ids[i]-1].Unlock()
	}
}

// LockSet deduplicates and sorts ids, then locks them in ascending order.
// Nothing is locked when an id is out of range.
func (t *LockTable) LockSet(ids []int) (*LockGuard, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyLockSet
	}

	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	for _, id := range sorted {
		if !t.Valid(id) {
			return nil, errors.Wrapf(ErrInvalidAccount, "account %d not in 1..%d", id, len(t.locks))
		}
	}

	for _, id := range sorted {
		t.locks[id-1].Lock()
	}
	return &LockGuard{table: t, ids: sorted}, nil
}

// Lock acquires a single account lock.
func (t *LockTable) Lock(id int) (*LockGuard, error) {
	return t.LockSet([]int{id})
}
