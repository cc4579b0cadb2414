// Package bank provides the account table backing the transaction engine.
//
// A Store is not synchronized. Callers serialize access to an account by
// holding that account's lock in the engine's lock table.
package bank

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
)

// MaxAccounts is the largest account table a Store will initialize.
const MaxAccounts = 10000

// Common errors for store operations
var (
	ErrInvalidAccountCount = errors.New("invalid account count")
	ErrStoreInitialized    = errors.New("store already initialized")
	ErrNegativeBalance     = errors.New("initial balance must not be negative")
)

// Store is a fixed-size table of balances indexed by 1-based account id.
type Store interface {
	// Init allocates n accounts.
	Init(n int) error
	// Read returns the balance of account id.
	Read(id int) int64
	// Write stores a new balance for account id.
	Write(id int, balance int64)
	// Len returns the number of accounts.
	Len() int
	// Teardown releases the table. It is safe to call more than once.
	Teardown()
}

// MemoryStore keeps balances in a slice.
type MemoryStore struct {
	balances       []int64
	initialBalance int64
	ready          atomic.Bool
}

// NewMemoryStore creates an uninitialized store whose accounts will open
// with the given balance.
func NewMemoryStore(initialBalance int64) *MemoryStore {
	return &MemoryStore{initialBalance: initialBalance}
}

// Init allocates n accounts, each holding the initial balance.
func (s *MemoryStore) Init(n int) error {
	if s.ready.Load() {
		return ErrStoreInitialized
	}
	if n < 1 || n > MaxAccounts {
		return errors.Wrapf(ErrInvalidAccountCount, "got %d, want 1..%d", n, MaxAccounts)
	}
	if s.initialBalance < 0 {
		return ErrNegativeBalance
	}

	s.balances = make([]int64, n)
	for i := range s.balances {
		s.balances[i] = s.initialBalance
	}
	s.ready.Store(true)
	return nil
}

// Read returns the balance of account id. It panics on an id outside the
// table or when the store is not initialized.
func (s *MemoryStore) Read(id int) int64 {
	return s.balances[s.index(id)]
}

// Write sets the balance of account id.
func (s *MemoryStore) Write(id int, balance int64) {
	s.balances[s.index(id)] = balance
}

// Len returns the number of accounts, or zero before Init.
func (s *MemoryStore) Len() int {
	if !s.ready.Load() {
		return 0
	}
	return len(s.balances)
}

// Snapshot copies every balance, index i holding account i+1.
// Only call it while no worker is running.
func (s *MemoryStore) Snapshot() []int64 {
	if !s.ready.Load() {
		return nil
	}
	out := make([]int64, len(s.balances))
	copy(out, s.balances)
	return out
}

// Teardown drops the table.
func (s *MemoryStore) Teardown() {
	if !s.ready.CompareAndSwap(true, false) {
		return
	}
	s.balances = nil
}

func (s *MemoryStore) index(id int) int {
	if !s.ready.Load() {
		panic("bank: store is not initialized")
	}
	if id < 1 || id > len(s.balances) {
		panic(fmt.Sprintf("bank: account %d out of range 1..%d", id, len(s.balances)))
	}
	return id - 1
}
