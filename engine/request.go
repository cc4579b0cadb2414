package engine

import (
	"fmt"
	"time"

	"github.com/VanDung-dev/HieraBank-Engine/command"
)

// RequestKind identifies what a request asks the engine to do.
type RequestKind int

const (
	KindCheck RequestKind = iota
	KindTransfer
	KindShutdown
)

func (k RequestKind) String() string {
	switch k {
	case KindCheck:
		return "check"
	case KindTransfer:
		return "transfer"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Entry is one (account, delta) pair of a transfer.
type Entry = command.Entry

// Request is a unit of work handed from the producer to a worker.
// It must not be modified once enqueued.
type Request struct {
	ID          int
	Kind        RequestKind
	Account     int     // KindCheck
	Entries     []Entry // KindTransfer, submission order
	SubmittedAt time.Time
}

// NewCheck builds a balance check request.
func NewCheck(id, account int) *Request {
	return &Request{ID: id, Kind: KindCheck, Account: account, SubmittedAt: time.Now()}
}

// NewTransfer builds a transfer request.
func NewTransfer(id int, entries ...Entry) *Request {
	return &Request{ID: id, Kind: KindTransfer, Entries: entries, SubmittedAt: time.Now()}
}

// Accounts lists every account id the request touches, in submission order.
func (r *Request) Accounts() []int {
	switch r.Kind {
	case KindCheck:
		return []int{r.Account}
	case KindTransfer:
		ids := make([]int, len(r.Entries))
		for i, e := range r.Entries {
			ids[i] = e.Account
		}
		return ids
	default:
		return nil
	}
}

// OutcomeStatus is the kind of result a request produced.
type OutcomeStatus int

const (
	OutcomeBalance OutcomeStatus = iota
	OutcomeCommitted
	OutcomeAborted
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeBalance:
		return "balance"
	case OutcomeCommitted:
		return "committed"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Outcome is the answer to a request.
type Outcome struct {
	Status  OutcomeStatus
	Balance int64 // OutcomeBalance
	Account int   // OutcomeAborted: first account that would go negative
}

// Result is emitted exactly once per processed request.
type Result struct {
	RequestID   int
	Kind        RequestKind
	Outcome     Outcome
	SubmittedAt time.Time
	CompletedAt time.Time
}

// Latency is the time between submission and completion.
func (r Result) Latency() time.Duration {
	return r.CompletedAt.Sub(r.SubmittedAt)
}

// String renders the result line without the trailing newline:
//
//	<id> BAL <balance> TIME <S> <U>
//	<id> OK TIME <S> <U>
//	<id> ISF <account> TIME <S> <U>
func (r Result) String() string {
	start, end := FormatTimestamp(r.SubmittedAt), FormatTimestamp(r.CompletedAt)
	switch r.Outcome.Status {
	case OutcomeBalance:
		return fmt.Sprintf("%d BAL %d TIME %s %s", r.RequestID, r.Outcome.Balance, start, end)
	case OutcomeCommitted:
		return fmt.Sprintf("%d OK TIME %s %s", r.RequestID, start, end)
	default:
		return fmt.Sprintf("%d ISF %d TIME %s %s", r.RequestID, r.Outcome.Account, start, end)
	}
}

// FormatTimestamp renders t as seconds.microseconds.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}
