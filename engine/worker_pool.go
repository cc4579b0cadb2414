package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// WorkerState is the position of a worker in its dequeue/process/report loop.
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerProcessing
	WorkerReporting
	WorkerTerminated
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerProcessing:
		return "processing"
	case WorkerReporting:
		return "reporting"
	case WorkerTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Recorder receives processing metrics. api.Metrics implements it.
type Recorder interface {
	RecordResult(kind, outcome string, latency time.Duration)
	RecordFailure(kind string)
	UpdateQueue(pending int)
	UpdateWorkers(active int)
	RecordRejected(reason string)
}

type nopRecorder struct{}

func (nopRecorder) RecordResult(string, string, time.Duration) {}
func (nopRecorder) RecordFailure(string) {}
func (nopRecorder) UpdateQueue(int) {}
func (nopRecorder) UpdateWorkers(int) {}
func (nopRecorder) RecordRejected(string) {}

// PoolStats contains worker pool statistics.
type PoolStats struct {
	Name       string `json:"name"`
	Workers    int    `json:"workers"`
	Active     int64  `json:"active"`
	Completed  int64  `json:"completed"`
	Aborted    int64  `json:"aborted"`
	Failed     int64  `json:"failed"`
	SinkErrors int64  `json:"sink_errors"`
	Pending    int    `json:"pending"`
}

// PoolOption configures a WorkerPool.
type PoolOption func(*WorkerPool)

// WithLogger sets the pool logger.
func WithLogger(l *zap.Logger) PoolOption {
	return func(p *WorkerPool) {
		if l != nil {
			p.log = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) PoolOption {
	return func(p *WorkerPool) {
		if r != nil {
			p.metrics = r
		}
	}
}

// WorkerPool runs a fixed number of workers that drain a RequestQueue,
// process each request and report the result to a Sink.
type WorkerPool struct {
	name      string
	workers   int
	queue     *RequestQueue
	processor *Processor
	sink      Sink
	log       *zap.Logger
	metrics   Recorder

	states []atomic.Int32
	group  errgroup.Group
	done   chan struct{}

	// Atomic counters for thread-safe statistics
	active     int64
	completed  int64
	aborted    int64
	failed     int64
	sinkErrors int64

	running bool
	mu      sync.RWMutex
}

// NewWorkerPool starts workers goroutines consuming queue.
func NewWorkerPool(name string, workers int, queue *RequestQueue, processor *Processor, sink Sink, opts ...PoolOption) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}

	pool := &WorkerPool{
		name:      name,
		workers:   workers,
		queue:     queue,
		processor: processor,
		sink:      sink,
		log:       zap.NewNop(),
		metrics:   nopRecorder{},
		states:    make([]atomic.Int32, workers),
		done:      make(chan struct{}),
		running:   true,
	}
	for _, opt := range opts {
		opt(pool)
	}
	pool.log = pool.log.With(zap.String("pool", name))

	for i := 0; i < workers; i++ {
		id := i
		pool.group.Go(func() error {
			pool.worker(id)
			return nil
		})
	}
	go func() {
		_ = pool.group.Wait()
		pool.mu.Lock()
		pool.running = false
		pool.mu.Unlock()
		close(pool.done)
	}()

	return pool
}

// worker loops until the queue is drained and shut down.
func (p *WorkerPool) worker(id int) {
	log := p.log.With(zap.Int("worker", id))
	log.Debug("Worker started.")

	for {
		p.setState(id, WorkerIdle)
		req, ok := p.queue.Dequeue()
		if !ok {
			// Peers blocked in Dequeue must observe the shutdown too.
			p.queue.Wake()
			p.setState(id, WorkerTerminated)
			log.Debug("Worker terminated.")
			return
		}
		p.metrics.UpdateQueue(p.queue.Len())
		p.handle(id, log, req)
	}
}

// handle processes one request and reports its result.
func (p *WorkerPool) handle(id int, log *zap.Logger, req *Request) {
	p.metrics.UpdateWorkers(int(atomic.AddInt64(&p.active, 1)))
	defer func() {
		p.metrics.UpdateWorkers(int(atomic.AddInt64(&p.active, -1)))
	}()

	// A panic is contained to its request.
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&p.failed, 1)
			p.metrics.RecordFailure(req.Kind.String())
			log.Error("Panic while processing request.",
				zap.Int("request_id", req.ID),
				zap.String("panic", panicToString(r)),
			)
		}
	}()

	p.setState(id, WorkerProcessing)
	result, err := p.processor.Process(req)
	if err != nil {
		atomic.AddInt64(&p.failed, 1)
		p.metrics.RecordFailure(req.Kind.String())
		log.Error("Failed to process request.", zap.Int("request_id", req.ID), zap.Error(err))
		return
	}

	p.setState(id, WorkerReporting)
	if err := p.sink.Write(result); err != nil {
		atomic.AddInt64(&p.sinkErrors, 1)
		log.Error("Failed to report result.", zap.Int("request_id", req.ID), zap.Error(err))
	}

	if result.Outcome.Status == OutcomeAborted {
		atomic.AddInt64(&p.aborted, 1)
	} else {
		atomic.AddInt64(&p.completed, 1)
	}
	p.metrics.RecordResult(req.Kind.String(), result.Outcome.Status.String(), result.Latency())
}

func (p *WorkerPool) setState(id int, s WorkerState) {
	p.states[id].Store(int32(s))
}

// panicToString converts a recovered panic value to a string.
func panicToString(r interface{}) string {
	switch v := r.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// States returns the current state of every worker.
func (p *WorkerPool) States() []WorkerState {
	out := make([]WorkerState, len(p.states))
	for i := range p.states {
		out[i] = WorkerState(p.states[i].Load())
	}
	return out
}

// GetStats returns current worker pool statistics.
func (p *WorkerPool) GetStats() PoolStats {
	return PoolStats{
		Name:       p.name,
		Workers:    p.workers,
		Active:     atomic.LoadInt64(&p.active),
		Completed:  atomic.LoadInt64(&p.completed),
		Aborted:    atomic.LoadInt64(&p.aborted),
		Failed:     atomic.LoadInt64(&p.failed),
		SinkErrors: atomic.LoadInt64(&p.sinkErrors),
		Pending:    p.queue.Len(),
	}
}

// Wait blocks until every worker has terminated. Workers terminate only
// after the queue is shut down and drained.
func (p *WorkerPool) Wait() {
	<-p.done
}

// Shutdown signals the queue and waits for the workers to drain it.
func (p *WorkerPool) Shutdown() {
	p.queue.SignalShutdown()
	p.Wait()
}

// ShutdownWithTimeout shuts down with a timeout.
func (p *WorkerPool) ShutdownWithTimeout(timeout time.Duration) error {
	p.queue.SignalShutdown()

	select {
	case <-p.done:
		return nil
	case <-time.After(timeout):
		return errors.New("shutdown timeout")
	}
}

// IsRunning returns true while any worker is still alive.
func (p *WorkerPool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}
