package engine

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/VanDung-dev/HieraBank-Engine/bank"
)

// Common errors for request processing
var (
	ErrEmptyTransfer      = errors.New("transfer has no entries")
	ErrUnsupportedRequest = errors.New("unsupported request kind")
)

// Processor applies checks and transfers against a store, serializing each
// account through the lock table.
type Processor struct {
	store bank.Store
	locks *LockTable
}

// NewProcessor creates a processor over store. locks must cover every
// account in store.
func NewProcessor(store bank.Store, locks *LockTable) *Processor {
	return &Processor{store: store, locks: locks}
}

// Check reads one balance under its account lock.
func (p *Processor) Check(account int) (Outcome, error) {
	guard, err := p.locks.Lock(account)
	if err != nil {
		return Outcome{}, err
	}
	balance := p.store.Read(account)
	guard.Unlock()

	return Outcome{Status: OutcomeBalance, Balance: balance}, nil
}

// Transfer applies every entry or none of them.
//
// All touched accounts are locked and read once. Entries are then replayed
// in submission order against running balances; a repeated account sees the
// effect of its earlier entries. The first entry that drives its account
// below zero, or past the int64 range, aborts the transfer and names that
// account. Nothing is written unless every entry passes.
func (p *Processor) Transfer(entries []Entry) (Outcome, error) {
	if len(entries) == 0 {
		return Outcome{}, ErrEmptyTransfer
	}

	ids := make([]int, len(entries))
	for i, e := range entries {
		ids[i] = e.Account
	}

	guard, err := p.locks.LockSet(ids)
	if err != nil {
		return Outcome{}, err
	}
	defer guard.Unlock()

	running := make(map[int]int64, len(guard.IDs()))
	for _, id := range guard.IDs() {
		running[id] = p.store.Read(id)
	}

	for _, e := range entries {
		current := running[e.Account]
		if addOverflows(current, e.Delta) {
			return Outcome{Status: OutcomeAborted, Account: e.Account}, nil
		}
		next := current + e.Delta
		if next < 0 {
			return Outcome{Status: OutcomeAborted, Account: e.Account}, nil
		}
		running[e.Account] = next
	}

	for _, id := range guard.IDs() {
		p.store.Write(id, running[id])
	}
	return Outcome{Status: OutcomeCommitted}, nil
}

// Process runs req and stamps its completion time.
func (p *Processor) Process(req *Request) (Result, error) {
	var (
		outcome Outcome
		err     error
	)
	switch req.Kind {
	case KindCheck:
		outcome, err = p.Check(req.Account)
	case KindTransfer:
		outcome, err = p.Transfer(req.Entries)
	default:
		err = errors.Wrapf(ErrUnsupportedRequest, "%s", req.Kind)
	}
	if err != nil {
		return Result{}, errors.Wrapf(err, "request %d", req.ID)
	}

	return Result{
		RequestID:   req.ID,
		Kind:        req.Kind,
		Outcome:     outcome,
		SubmittedAt: req.SubmittedAt,
		CompletedAt: time.Now(),
	}, nil
}

func addOverflows(a, b int64) bool {
	if b > 0 {
		return a > math.MaxInt64-b
	}
	return a < math.MinInt64-b
}
