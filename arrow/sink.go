package arrow

import (
	"io"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/VanDung-dev/HieraBank-Engine/engine"
)

// ResultSink batches results into Arrow record batches and writes them as
// one IPC stream. It implements engine.Sink.
type ResultSink struct {
	converter *Converter
	writer    *ipc.Writer
	closer    io.Closer
	batchSize int
	batch     []engine.Result
	batches   int
	closed    bool
	mu        sync.Mutex
}

// NewResultSink streams to w, flushing every batchSize results. If w is an
// io.Closer it is closed by Close.
func NewResultSink(w io.Writer, batchSize int) *ResultSink {
	if batchSize <= 0 {
		batchSize = 1
	}
	s := &ResultSink{
		converter: NewConverter(),
		writer:    ipc.NewWriter(w, ipc.WithSchema(ResultSchema())),
		batchSize: batchSize,
		batch:     make([]engine.Result, 0, batchSize),
	}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Write adds r to the current batch and flushes it once full.
func (s *ResultSink) Write(r engine.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return engine.ErrSinkClosed
	}

	s.batch = append(s.batch, r)
	if len(s.batch) >= s.batchSize {
		return s.flush()
	}
	return nil
}

// Flush writes the pending batch, if any.
func (s *ResultSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return engine.ErrSinkClosed
	}
	return s.flush()
}

// flush writes the current batch and resets it (called with lock held).
func (s *ResultSink) flush() error {
	if len(s.batch) == 0 {
		return nil
	}

	record, err := s.converter.ResultsToRecord(s.batch)
	if err != nil {
		return err
	}
	defer record.Release()

	s.batch = s.batch[:0]
	if err := s.writer.Write(record); err != nil {
		return errors.Wrap(err, "failed to write record batch")
	}
	s.batches++
	return nil
}

// Batches returns how many record batches have been written.
func (s *ResultSink) Batches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

// Close flushes the last batch and ends the stream.
func (s *ResultSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.flush()
	err = multierr.Append(err, errors.Wrap(s.writer.Close(), "failed to close writer"))
	if s.closer != nil {
		err = multierr.Append(err, s.closer.Close())
	}
	return err
}

// ReadResults reads every result from a stream written by ResultSink.
func ReadResults(r io.Reader) ([]engine.Result, error) {
	records, err := ReadRecords(r)
	if err != nil {
		return nil, err
	}
	defer releaseAll(records)

	var out []engine.Result
	c := NewConverter()
	for _, record := range records {
		results, err := c.RecordToResults(record)
		if err != nil {
			return nil, err
		}
		out = append(out, results...)
	}
	return out, nil
}
