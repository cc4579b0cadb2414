package network

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraBank-Engine/engine"
)

// Topic is the first frame of every published result.
const Topic = "result"

// Common errors for network operations
var (
	ErrPublisherNotRunning = errors.New("publisher is not running")
	ErrPublisherRunning    = errors.New("publisher already running")
	ErrBadMessage          = errors.New("malformed result message")
)

// Message is the JSON body of a published result.
type Message struct {
	RequestID   int    `json:"request_id"`
	Kind        string `json:"kind"`
	Outcome     string `json:"outcome"`
	Balance     *int64 `json:"balance,omitempty"`
	Account     *int   `json:"violating_account,omitempty"`
	Line        string `json:"line"`
	SubmittedAt int64  `json:"submitted_at_us"`
	CompletedAt int64  `json:"completed_at_us"`
}

// NewMessage builds the wire form of r.
func NewMessage(r engine.Result) Message {
	msg := Message{
		RequestID:   r.RequestID,
		Kind:        r.Kind.String(),
		Outcome:     r.Outcome.Status.String(),
		Line:        r.String(),
		SubmittedAt: r.SubmittedAt.UnixMicro(),
		CompletedAt: r.CompletedAt.UnixMicro(),
	}
	switch r.Outcome.Status {
	case engine.OutcomeBalance:
		b := r.Outcome.Balance
		msg.Balance = &b
	case engine.OutcomeAborted:
		a := r.Outcome.Account
		msg.Account = &a
	}
	return msg
}

// Publisher fans results out on a ZeroMQ PUB socket.
type Publisher struct {
	endpoint string
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	pub    zmq4.Socket

	sent    int64
	running bool
	mu      sync.Mutex
}

// NewPublisher creates a publisher that will bind endpoint, for example
// "tcp://127.0.0.1:5600". A nil log is replaced by a no-op logger.
func NewPublisher(endpoint string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		endpoint: endpoint,
		log:      log.With(zap.String("endpoint", endpoint)),
	}
}

// Start binds the PUB socket.
func (p *Publisher) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrPublisherRunning
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.pub = zmq4.NewPub(p.ctx)
	if err := p.pub.Listen(p.endpoint); err != nil {
		p.cancel()
		_ = p.pub.Close()
		return errors.Wrapf(err, "failed to bind %s", p.endpoint)
	}

	p.running = true
	p.log.Info("Result publisher started.")
	return nil
}

// Addr returns the bound address, or nil before Start.
func (p *Publisher) Addr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}
	return p.pub.Addr()
}

// Write publishes r. Results published while no subscriber is connected
// are dropped by the socket.
func (p *Publisher) Write(r engine.Result) error {
	data, err := json.Marshal(NewMessage(r))
	if err != nil {
		return errors.Wrap(err, "failed to marshal result")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return ErrPublisherNotRunning
	}
	if err := p.pub.Send(zmq4.NewMsgFrom([]byte(Topic), data)); err != nil {
		return errors.Wrap(err, "failed to publish result")
	}
	p.sent++
	return nil
}

// Sent returns how many results were handed to the socket.
func (p *Publisher) Sent() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

// Stop closes the socket. It is safe to call more than once.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	p.running = false

	err := p.pub.Close()
	p.cancel()
	p.log.Info("Result publisher stopped.", zap.Int64("sent", p.sent))
	return errors.Wrap(err, "failed to close socket")
}

// Close implements engine.Sink.
func (p *Publisher) Close() error {
	return p.Stop()
}

// Subscriber reads results from a Publisher.
type Subscriber struct {
	cancel context.CancelFunc
	sub    zmq4.Socket
}

// Subscribe connects to a publisher at endpoint. Dial retries in the
// background if the publisher is not up yet.
func Subscribe(ctx context.Context, endpoint string) (*Subscriber, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := zmq4.NewSub(ctx, zmq4.WithDialerRetry(100*time.Millisecond))

	if err := sub.Dial(endpoint); err != nil {
		cancel()
		_ = sub.Close()
		return nil, errors.Wrapf(err, "failed to connect to %s", endpoint)
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, Topic); err != nil {
		cancel()
		_ = sub.Close()
		return nil, errors.Wrap(err, "failed to subscribe")
	}
	return &Subscriber{cancel: cancel, sub: sub}, nil
}

// Next blocks until the next result message arrives or the subscriber's
// context ends.
func (s *Subscriber) Next() (Message, error) {
	var msg Message

	raw, err := s.sub.Recv()
	if err != nil {
		return msg, errors.Wrap(err, "failed to receive")
	}
	if len(raw.Frames) != 2 || string(raw.Frames[0]) != Topic {
		return msg, ErrBadMessage
	}
	if err := json.Unmarshal(raw.Frames[1], &msg); err != nil {
		return msg, errors.Wrap(ErrBadMessage, err.Error())
	}
	return msg, nil
}

// Close disconnects the subscriber.
func (s *Subscriber) Close() error {
	err := s.sub.Close()
	s.cancel()
	return err
}
