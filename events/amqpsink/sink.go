// Package amqpsink publishes authguard audit events to RabbitMQ.
//
// A Sink is an authguard.AuditSink: plug it in with Builder.WithAuditSink and
// events are published off the request path by the audit dispatcher. Publish
// failures are logged and counted, never surfaced to callers.
package amqpsink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/MrEthical07/authguard"
)

// DefaultQueue is declared by Dial and used as the routing key on the
// default exchange.
const DefaultQueue = "authguard.security"

// Publisher is the subset of *amqp.Channel the sink needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Config struct {
	Exchange   string
	RoutingKey string
	// Timeout bounds a single publish. Zero means 5s.
	Timeout time.Duration
}

type Sink struct {
	pub    Publisher
	cfg    Config
	log    *zap.Logger
	failed atomic.Uint64
}

func New(pub Publisher, cfg Config, logger *zap.Logger) (*Sink, error) {
	if pub == nil {
		return nil, errors.New("amqpsink: nil publisher")
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = DefaultQueue
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{pub: pub, cfg: cfg, log: logger.Named("amqpsink")}, nil
}

// Emit publishes event as persistent JSON.
func (s *Sink) Emit(ctx context.Context, event authguard.AuditEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		s.fail(event, err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         event.Type,
		Timestamp:    event.Timestamp,
		Body:         body,
	}
	if err := s.pub.PublishWithContext(ctx, s.cfg.Exchange, s.cfg.RoutingKey, false, false, msg); err != nil {
		s.fail(event, err)
	}
}

func (s *Sink) fail(event authguard.AuditEvent, err error) {
	s.failed.Add(1)
	s.log.Warn("audit event publish failed", zap.String("event_type", event.Type), zap.Error(err))
}

// Failed counts events that could not be published.
func (s *Sink) Failed() uint64 {
	return s.failed.Load()
}

// Conn owns the broker connection behind a Dial'd Sink.
type Conn struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func (c *Conn) Close() error {
	return errors.Join(c.ch.Close(), c.conn.Close())
}

// Dial connects to url, declares queue as durable and returns a Sink
// publishing to it on the default exchange.
func Dial(url, queue string, logger *zap.Logger) (*Sink, *Conn, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	sink, err := New(ch, Config{RoutingKey: queue}, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, err
	}
	return sink, &Conn{conn: conn, ch: ch}, nil
}
