package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"cosmossdk.io/log"
	"github.com/nats-io/nats.go"

	"github.com/openalpha/sharepool/indexer"
)

const (
	DefaultSubjectPrefix = "sharepool.events"
	DefaultQueueGroup    = "sharepool-indexer"
)

// Config holds NATS connection settings
type Config struct {
	URL            string
	Name           string
	SubjectPrefix  string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// DefaultConfig returns settings for a local NATS server
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		Name:           "sharepool",
		SubjectPrefix:  DefaultSubjectPrefix,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  60,
		ConnectTimeout: 5 * time.Second,
	}
}

// Connect dials NATS
func Connect(cfg Config, logger log.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Error("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// NewMessage encodes ev for the bus. The message id header carries the
// sequence so JetStream deduplicates redeliveries.
func NewMessage(prefix string, ev indexer.Event) (*nats.Msg, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %d: %w", ev.Seq, err)
	}
	msg := nats.NewMsg(ev.Subject(prefix))
	msg.Data = payload
	msg.Header.Set(nats.MsgIdHdr, strconv.FormatUint(ev.Seq, 10))
	return msg, nil
}

// DecodeMessage decodes a bus message into an event
func DecodeMessage(msg *nats.Msg) (indexer.Event, error) {
	var ev indexer.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return indexer.Event{}, fmt.Errorf("failed to decode %s: %w", msg.Subject, err)
	}
	if id := msg.Header.Get(nats.MsgIdHdr); id != "" && id != strconv.FormatUint(ev.Seq, 10) {
		return indexer.Event{}, fmt.Errorf("message id %s does not match seq %d", id, ev.Seq)
	}
	return ev, nil
}

// Publisher sends ledger events to NATS
type Publisher struct {
	conn   *nats.Conn
	prefix string
}

// NewPublisher creates a publisher on conn
func NewPublisher(conn *nats.Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{conn: conn, prefix: prefix}
}

// Consume publishes ev; it satisfies the ledger service sink signature
func (p *Publisher) Consume(_ context.Context, ev indexer.Event) error {
	if p.conn == nil {
		return fmt.Errorf("not connected")
	}
	msg, err := NewMessage(p.prefix, ev)
	if err != nil {
		return err
	}
	return p.conn.PublishMsg(msg)
}

// Close flushes pending messages and closes the connection
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Flush()
	p.conn.Close()
	return err
}

// Handler processes one decoded event
type Handler func(ctx context.Context, ev indexer.Event) error

// Subscriber delivers bus events to a handler in a queue group
type Subscriber struct {
	conn   *nats.Conn
	prefix string
	queue  string
	logger log.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewSubscriber creates a subscriber; empty prefix or queue use the defaults
func NewSubscriber(conn *nats.Conn, prefix, queue string, logger log.Logger) *Subscriber {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if queue == "" {
		queue = DefaultQueueGroup
	}
	return &Subscriber{
		conn:   conn,
		prefix: prefix,
		queue:  queue,
		logger: logger.With("module", "eventbus"),
	}
}

// Subject returns the wildcard subject covering every event type
func (s *Subscriber) Subject() string {
	return s.prefix + ".>"
}

// Start subscribes and invokes h for every message until ctx is done
func (s *Subscriber) Start(ctx context.Context, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return fmt.Errorf("already subscribed to %s", s.Subject())
	}

	sub, err := s.conn.QueueSubscribe(s.Subject(), s.queue, func(msg *nats.Msg) {
		s.handle(ctx, msg, h)
	})
	if err != nil {
		return fmt.Errorf("failed to queue subscribe: %w", err)
	}
	s.sub = sub

	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			s.logger.Error("unsubscribe failed", "error", err)
		}
	}()
	return nil
}

func (s *Subscriber) handle(ctx context.Context, msg *nats.Msg, h Handler) {
	ev, err := DecodeMessage(msg)
	if err != nil {
		s.logger.Error("dropping undecodable message", "subject", msg.Subject, "error", err)
		return
	}
	if err := h(ctx, ev); err != nil {
		s.logger.Error("event handler failed", "seq", ev.Seq, "type", ev.Type, "error", err)
	}
}

// Stop drains the subscription
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	err := s.sub.Drain()
	s.sub = nil
	return err
}
