// Package amqp implements broker.Broker on RabbitMQ through
// github.com/streadway/amqp. Queues are declared durable on first use and
// messages are published to the default exchange with the queue name as
// routing key. Message properties travel as AMQP headers.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/broker"
	"github.com/xraph/ferry/id"
)

var _ broker.Broker = (*Broker)(nil)

// maxPriority is declared on every queue so per-message priority works.
const maxPriority = 10

// Option configures the Broker.
type Option func(*Broker)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// WithConsumerTag sets the consumer tag. A generated csm_ ID is used when
// empty.
func WithConsumerTag(tag string) Option {
	return func(b *Broker) {
		if tag != "" {
			b.tag = tag
		}
	}
}

// Broker is a RabbitMQ broker.
type Broker struct {
	conn   *amqp.Connection
	logger *slog.Logger
	tag    string

	mu         sync.Mutex
	ch         *amqp.Channel
	declared   map[string]bool
	deliveries map[string]<-chan amqp.Delivery
	closed     bool
}

// Dial connects to url and opens a channel.
func Dial(url string, opts ...Option) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("ferry/amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ferry/amqp: open channel: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ferry/amqp: qos: %w", err)
	}

	b := &Broker{
		conn:       conn,
		ch:         ch,
		logger:     slog.Default(),
		tag:        id.NewConsumerID().String(),
		declared:   make(map[string]bool),
		deliveries: make(map[string]<-chan amqp.Delivery),
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// Publish sends msg to queue through the default exchange.
func (b *Broker) Publish(_ context.Context, queue string, msg *broker.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ferry.ErrBrokerClosed
	}
	if err := b.declare(queue); err != nil {
		return err
	}

	if msg.ID == "" {
		msg.ID = id.NewMessageID().String()
	}
	pub := amqp.Publishing{
		MessageId:    msg.ID,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      toHeaders(msg.Properties),
		Body:         msg.Body,
	}
	if msg.Priority != nil {
		pub.Priority = clampPriority(*msg.Priority)
	}
	if err := b.ch.Publish("", queue, false, false, pub); err != nil {
		return fmt.Errorf("ferry/amqp: publish: %w", err)
	}
	return nil
}

// Receive waits up to timeout for a delivery from queue.
func (b *Broker) Receive(ctx context.Context, queue string, timeout time.Duration) (*broker.Message, error) {
	deliveries, err := b.consume(queue)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d, ok := <-deliveries:
		if !ok {
			return nil, ferry.ErrBrokerClosed
		}
		msg := broker.NewMessage(d.Body)
		msg.ID = d.MessageId
		msg.Queue = queue
		msg.Properties = fromHeaders(d.Headers)
		if d.Priority > 0 {
			p := int(d.Priority)
			msg.Priority = &p
		}
		msg.Delivery = d
		return msg, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ack acknowledges the delivery.
func (b *Broker) Ack(_ context.Context, msg *broker.Message) error {
	d, ok := msg.Delivery.(amqp.Delivery)
	if !ok {
		return fmt.Errorf("ferry/amqp: ack: message %q was not received from amqp", msg.ID)
	}
	if err := d.Ack(false); err != nil {
		return fmt.Errorf("ferry/amqp: ack: %w", err)
	}
	return nil
}

// Reject rejects the delivery, optionally asking RabbitMQ to redeliver it.
func (b *Broker) Reject(_ context.Context, msg *broker.Message, requeue bool) error {
	d, ok := msg.Delivery.(amqp.Delivery)
	if !ok {
		return fmt.Errorf("ferry/amqp: reject: message %q was not received from amqp", msg.ID)
	}
	if err := d.Reject(requeue); err != nil {
		return fmt.Errorf("ferry/amqp: reject: %w", err)
	}
	return nil
}

// Close closes the channel and the connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.ch.Close(); err != nil {
		b.logger.Warn("ferry/amqp: close channel", slog.String("error", err.Error()))
	}
	return b.conn.Close()
}

func (b *Broker) consume(queue string) (<-chan amqp.Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ferry.ErrBrokerClosed
	}
	if d, ok := b.deliveries[queue]; ok {
		return d, nil
	}
	if err := b.declare(queue); err != nil {
		return nil, err
	}
	d, err := b.ch.Consume(queue, b.tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("ferry/amqp: consume: %w", err)
	}
	b.deliveries[queue] = d
	return d, nil
}

// declare declares queue once. Caller holds mu.
func (b *Broker) declare(queue string) error {
	if b.declared[queue] {
		return nil
	}
	_, err := b.ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-max-priority": int32(maxPriority),
	})
	if err != nil {
		return fmt.Errorf("ferry/amqp: declare %q: %w", queue, err)
	}
	b.declared[queue] = true
	return nil
}

func toHeaders(props map[string]string) amqp.Table {
	t := make(amqp.Table, len(props))
	for k, v := range props {
		t[k] = v
	}
	return t
}

func fromHeaders(t amqp.Table) map[string]string {
	props := make(map[string]string, len(t))
	for k, v := range t {
		switch x := v.(type) {
		case string:
			props[k] = x
		case int32:
			props[k] = strconv.Itoa(int(x))
		case int64:
			props[k] = strconv.FormatInt(x, 10)
		default:
			props[k] = fmt.Sprint(x)
		}
	}
	return props
}

func clampPriority(p int) uint8 {
	switch {
	case p < 0:
		return 0
	case p > maxPriority:
		return maxPriority
	default:
		return uint8(p)
	}
}
