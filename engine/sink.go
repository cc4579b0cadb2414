package engine

import (
	"bufio"
	"io"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// ErrSinkClosed is returned when writing to a closed sink.
var ErrSinkClosed = errors.New("result sink is closed")

// Sink receives results from every worker. Implementations must be safe
// for concurrent use; lines are atomic but not ordered by request id.
type Sink interface {
	Write(Result) error
	Close() error
}

// TextSink writes one line per result to an io.Writer under a single lock.
type TextSink struct {
	out    *bufio.Writer
	closer io.Closer
	closed bool
	mu     sync.Mutex
}

// NewTextSink wraps w. If w is an io.Closer it is closed by Close.
func NewTextSink(w io.Writer) *TextSink {
	s := &TextSink{out: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Write appends the result line.
func (s *TextSink) Write(r Result) error {
	line := r.String() + "\n"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	if _, err := s.out.WriteString(line); err != nil {
		return errors.Wrap(err, "write result")
	}
	return nil
}

// LineWriter returns a writer that shares the sink's buffer and lock, for
// console lines that must not split a result line. Every Write must hold
// whole lines.
func (s *TextSink) LineWriter() io.Writer {
	return lineWriter{s}
}

type lineWriter struct {
	s *TextSink
}

func (w lineWriter) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	if w.s.closed {
		return 0, ErrSinkClosed
	}
	return w.s.out.Write(p)
}

// Flush pushes buffered lines to the underlying writer.
func (s *TextSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Wrap(s.out.Flush(), "flush results")
}

// Close flushes and closes the destination.
func (s *TextSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := errors.Wrap(s.out.Flush(), "flush results")
	if s.closer != nil {
		err = multierr.Append(err, errors.Wrap(s.closer.Close(), "close results"))
	}
	return err
}

// MultiSink fans each result out to several sinks.
type MultiSink []Sink

// Write delivers r to every sink, even if an earlier one fails.
func (m MultiSink) Write(r Result) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Write(r))
	}
	return err
}

// Close closes every sink.
func (m MultiSink) Close() error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Close())
	}
	return err
}
