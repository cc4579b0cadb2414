package engine

import (
	"sync"

	"github.com/gammazero/deque"
	"github.com/pkg/errors"
)

// Common errors for queue operations
var (
	ErrQueueShutdown = errors.New("request queue is shut down")
	ErrNilRequest    = errors.New("nil request")
)

// RequestQueue is an unbounded FIFO of pending requests with a blocking
// dequeue and a one-shot shutdown signal.
type RequestQueue struct {
	items    deque.Deque[*Request]
	shutdown bool
	mu       sync.Mutex
	cond     *sync.Cond
}

// NewRequestQueue creates an empty queue.
func NewRequestQueue() *RequestQueue {
	q := &RequestQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends req and wakes one waiting consumer.
// A KindShutdown request is not queued; it signals shutdown instead.
// After shutdown every request is refused with ErrQueueShutdown.
func (q *RequestQueue) Enqueue(req *Request) error {
	if req == nil {
		return ErrNilRequest
	}
	if req.Kind == KindShutdown {
		q.SignalShutdown()
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shutdown {
		return ErrQueueShutdown
	}
	q.items.PushBack(req)
	q.cond.Signal()
	return nil
}

// Dequeue blocks until a request is available or the queue is shut down.
// It returns false only when the queue is empty and shutdown was signaled,
// so requests queued before shutdown are still drained.
func (q *RequestQueue) Dequeue() (*Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Len() == 0 && !q.shutdown {
		q.cond.Wait()
	}
	if q.items.Len() == 0 {
		return nil, false
	}
	return q.items.PopFront(), true
}

// SignalShutdown sets the shutdown flag and wakes every waiting consumer.
// The flag is never cleared.
func (q *RequestQueue) SignalShutdown() {
	q.mu.Lock()
	q.shutdown = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Wake re-broadcasts to all waiting consumers. Exiting workers call it so a
// peer that raced past the flag check is not left blocked.
func (q *RequestQueue) Wake() {
	q.cond.Broadcast()
}

// IsShutdown reports whether shutdown has been signaled.
func (q *RequestQueue) IsShutdown() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shutdown
}

// Len returns the number of pending requests.
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
