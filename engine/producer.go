package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraBank-Engine/command"
)

// MaxLineBytes bounds one input line. Longer lines are rejected whole.
const MaxLineBytes = 64 * 1024

// Common errors for producer operations
var (
	ErrProducerStopped = errors.New("producer stopped")
	ErrLineTooLong     = errors.New("input line too long")
)

// Producer turns commands into requests. It is the queue's only writer:
// ids are assigned in submission order starting at 1.
type Producer struct {
	queue    *RequestQueue
	accounts int
	ack      io.Writer
	log      *zap.Logger
	metrics  Recorder

	nextID   int
	accepted atomic.Int64
	rejected atomic.Int64
	stopped  bool
}

// NewProducer creates a producer for a table of accounts accounts. When ack
// is non-nil every accepted request is acknowledged with "< ID <n>".
func NewProducer(queue *RequestQueue, accounts int, ack io.Writer, log *zap.Logger, metrics Recorder) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Producer{
		queue:    queue,
		accounts: accounts,
		ack:      ack,
		log:      log,
		metrics:  metrics,
		nextID:   1,
	}
}

// Submit validates c and enqueues it. END signals shutdown and returns id 0.
func (p *Producer) Submit(c command.Command) (int, error) {
	if p.stopped {
		return 0, ErrProducerStopped
	}

	var req *Request
	switch c.Kind {
	case command.End:
		p.stopped = true
		return 0, p.queue.Enqueue(&Request{Kind: KindShutdown, SubmittedAt: time.Now()})
	case command.Check:
		if err := p.validAccount(c.Account); err != nil {
			return 0, err
		}
		req = NewCheck(p.nextID, c.Account)
	case command.Transfer:
		if len(c.Entries) == 0 {
			return 0, ErrEmptyTransfer
		}
		for _, e := range c.Entries {
			if err := p.validAccount(e.Account); err != nil {
				return 0, err
			}
		}
		req = NewTransfer(p.nextID, c.Entries...)
	default:
		return 0, errors.Wrapf(ErrUnsupportedRequest, "%s", c.Kind)
	}

	if err := p.queue.Enqueue(req); err != nil {
		return 0, err
	}
	p.nextID++
	p.accepted.Add(1)

	if p.ack != nil {
		if _, err := fmt.Fprintf(p.ack, "< ID %d\n", req.ID); err != nil {
			p.log.Warn("Failed to acknowledge request.", zap.Int("request_id", req.ID), zap.Error(err))
		}
	}
	return req.ID, nil
}

func (p *Producer) validAccount(id int) error {
	if id < 1 || id > p.accounts {
		return errors.Wrapf(ErrInvalidAccount, "account %d not in 1..%d", id, p.accounts)
	}
	return nil
}

// Run reads commands from r until END, end of input or ctx is done. The
// queue is always shut down on return. Malformed or oversized lines are
// logged and dropped.
func (p *Producer) Run(ctx context.Context, r io.Reader) error {
	defer p.queue.SignalShutdown()

	reader := bufio.NewReader(r)
	for lineNo := 1; ; lineNo++ {
		line, err := readLine(reader)
		if err == io.EOF {
			return nil
		}
		if err != nil && !errors.Is(err, ErrLineTooLong) {
			return errors.Wrap(err, "read commands")
		}
		if err := ctx.Err(); err != nil {
			p.log.Warn("Input interrupted.", zap.Error(err))
			return nil
		}

		var c command.Command
		if err == nil {
			c, err = command.Parse(line)
			if errors.Is(err, command.ErrEmptyLine) {
				continue
			}
		}
		if err == nil {
			_, err = p.Submit(c)
		}
		if err != nil {
			p.rejected.Add(1)
			p.metrics.RecordRejected(rejectReason(err))
			p.log.Warn("Rejected command.",
				zap.Int("line", lineNo),
				zap.String("input", truncate(line, 80)),
				zap.Error(err),
			)
			continue
		}
		if p.stopped {
			return nil
		}
	}
}

// readLine returns the next line without its terminator. A line longer
// than MaxLineBytes is consumed and reported as ErrLineTooLong.
func readLine(r *bufio.Reader) (string, error) {
	var (
		line    []byte
		started bool
		tooLong bool
	)
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if started && err == io.EOF {
				break
			}
			return "", err
		}
		started = true
		if !tooLong {
			if len(line)+len(chunk) > MaxLineBytes {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if !isPrefix {
			break
		}
	}
	if tooLong {
		return "", ErrLineTooLong
	}
	return string(line), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Accepted returns how many requests were enqueued. It is safe to call
// while Run is reading.
func (p *Producer) Accepted() int {
	return int(p.accepted.Load())
}

// Rejected returns how many input lines were dropped.
func (p *Producer) Rejected() int {
	return int(p.rejected.Load())
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, command.ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, command.ErrMalformedCommand), errors.Is(err, command.ErrTooManyTokens),
		errors.Is(err, ErrLineTooLong):
		return "malformed"
	case errors.Is(err, ErrInvalidAccount):
		return "invalid_account"
	case errors.Is(err, ErrQueueShutdown):
		return "shutdown"
	default:
		return "other"
	}
}
