// Package broker defines the narrow message broker contract the worker and
// the producer depend on, and the message type that travels through it.
//
// Connection handling, framing and network retries belong to the adapter
// libraries. Adapters live in subpackages: broker/memory for tests and
// single-process use, broker/redis on Redis streams with consumer groups,
// and broker/amqp on RabbitMQ.
package broker

import (
	"context"
	"strconv"
	"time"
)

// Broker publishes and receives messages on named queues.
type Broker interface {
	// Publish stores msg on queue.
	Publish(ctx context.Context, queue string, msg *Message) error

	// Receive blocks for at most timeout waiting for a message on queue.
	// It returns a nil message and a nil error when the timeout elapses.
	Receive(ctx context.Context, queue string, timeout time.Duration) (*Message, error)

	// Ack acknowledges a received message.
	Ack(ctx context.Context, msg *Message) error

	// Reject finalizes a received message. When requeue is true the broker
	// delivers it again.
	Reject(ctx context.Context, msg *Message, requeue bool) error

	// Close releases the broker's resources.
	Close() error
}

// Message is a broker message: an opaque body plus string properties.
type Message struct {
	// ID is assigned by the broker on publish or receive.
	ID string

	Body       []byte
	Properties map[string]string

	// Queue is the queue the message was received from.
	Queue string

	// Priority is honoured by adapters that support it.
	Priority *int

	// Delivery is the adapter's handle for Ack and Reject.
	Delivery any
}

// NewMessage returns a message with body and no properties.
func NewMessage(body []byte) *Message {
	return &Message{Body: body, Properties: map[string]string{}}
}

// Property returns the value of property key, or def when it is unset.
func (m *Message) Property(key, def string) string {
	if v, ok := m.Properties[key]; ok {
		return v
	}
	return def
}

// SetProperty sets property key.
func (m *Message) SetProperty(key, value string) {
	if m.Properties == nil {
		m.Properties = map[string]string{}
	}
	m.Properties[key] = value
}

// IntProperty returns property key parsed as an integer, or def when the
// property is unset or not a number.
func (m *Message) IntProperty(key string, def int) int {
	v, ok := m.Properties[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Clone returns a copy of m for republishing. The copy carries the body,
// properties and priority but no broker identity.
func (m *Message) Clone() *Message {
	c := &Message{
		Body:       append([]byte(nil), m.Body...),
		Properties: make(map[string]string, len(m.Properties)),
	}
	for k, v := range m.Properties {
		c.Properties[k] = v
	}
	if m.Priority != nil {
		p := *m.Priority
		c.Priority = &p
	}
	return c
}
