// Package redis implements broker.Broker on Redis streams. Each queue is a
// stream; consumers read through a shared consumer group so several
// worker processes can consume one queue without seeing the same entry.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	b := redisbroker.New(client, redisbroker.WithConsumer("worker-1"))
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/ferry/broker"
)

var _ broker.Broker = (*Broker)(nil)

const (
	keyPrefix    = "ferry:"
	defaultGroup = "ferry"

	fieldBody     = "body"
	fieldProps    = "props"
	fieldPriority = "priority"
)

// streamKey returns the stream key for a queue: ferry:stream:{queue}
func streamKey(queue string) string { return keyPrefix + "stream:" + queue }

// Option configures the Broker.
type Option func(*Broker)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// WithGroup sets the consumer group name.
func WithGroup(group string) Option {
	return func(b *Broker) { b.group = group }
}

// WithConsumer sets the consumer name inside the group. A random name is
// used when empty.
func WithConsumer(name string) Option {
	return func(b *Broker) {
		if name != "" {
			b.consumer = name
		}
	}
}

// WithOwnedClient makes Close close the Redis client.
func WithOwnedClient() Option {
	return func(b *Broker) { b.owned = true }
}

type delivery struct {
	stream string
	id     string
}

// Broker is a Redis streams broker.
type Broker struct {
	client   goredis.UniversalClient
	logger   *slog.Logger
	group    string
	consumer string
	owned    bool

	mu     sync.Mutex
	groups map[string]bool
}

// New creates a broker on client. The caller owns the client unless
// WithOwnedClient is given.
func New(client goredis.UniversalClient, opts ...Option) *Broker {
	b := &Broker{
		client:   client,
		logger:   slog.Default(),
		group:    defaultGroup,
		consumer: "ferry-" + uuid.NewString(),
		groups:   make(map[string]bool),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Open parses a redis:// URL and returns a broker owning its client.
func Open(url string, opts ...Option) (*Broker, error) {
	o, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ferry/redis: parse url: %w", err)
	}
	return New(goredis.NewClient(o), append([]Option{WithOwnedClient()}, opts...)...), nil
}

// Client returns the underlying Redis client.
func (b *Broker) Client() goredis.UniversalClient { return b.client }

// Consumer returns the consumer name used in the group.
func (b *Broker) Consumer() string { return b.consumer }

// Publish appends msg to the queue's stream.
func (b *Broker) Publish(ctx context.Context, queue string, msg *broker.Message) error {
	values, err := toValues(msg)
	if err != nil {
		return err
	}
	id, err := b.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey(queue),
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("ferry/redis: publish: %w", err)
	}
	msg.ID = id
	return nil
}

// Receive reads one new entry for this consumer from the queue's stream.
func (b *Broker) Receive(ctx context.Context, queue string, timeout time.Duration) (*broker.Message, error) {
	stream := streamKey(queue)
	if err := b.ensureGroup(ctx, stream); err != nil {
		return nil, err
	}

	block := timeout
	if block <= 0 {
		block = -1
	}
	res, err := b.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    b.group,
		Consumer: b.consumer,
		Streams:  []string{stream, ">"},
		Block:    block,
		Count:    1,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("ferry/redis: receive: %w", err)
	}

	for _, s := range res {
		for _, entry := range s.Messages {
			msg, convErr := fromValues(entry.Values)
			if convErr != nil {
				// Unreadable entries are dropped so they do not block the group.
				b.logger.Warn("ferry/redis: dropping unreadable entry",
					slog.String("stream", stream),
					slog.String("entry_id", entry.ID),
					slog.String("error", convErr.Error()),
				)
				_ = b.settle(ctx, delivery{stream: stream, id: entry.ID})
				continue
			}
			msg.ID = entry.ID
			msg.Queue = queue
			msg.Delivery = delivery{stream: stream, id: entry.ID}
			return msg, nil
		}
	}
	return nil, nil
}

// Ack acknowledges and deletes the entry.
func (b *Broker) Ack(ctx context.Context, msg *broker.Message) error {
	d, ok := msg.Delivery.(delivery)
	if !ok {
		return fmt.Errorf("ferry/redis: ack: message %q was not received from redis", msg.ID)
	}
	if err := b.settle(ctx, d); err != nil {
		return fmt.Errorf("ferry/redis: ack: %w", err)
	}
	return nil
}

// Reject acknowledges the entry. With requeue a copy is appended to the
// stream in the same transaction.
func (b *Broker) Reject(ctx context.Context, msg *broker.Message, requeue bool) error {
	d, ok := msg.Delivery.(delivery)
	if !ok {
		return fmt.Errorf("ferry/redis: reject: message %q was not received from redis", msg.ID)
	}
	if !requeue {
		if err := b.settle(ctx, d); err != nil {
			return fmt.Errorf("ferry/redis: reject: %w", err)
		}
		return nil
	}

	values, err := toValues(msg)
	if err != nil {
		return err
	}
	pipe := b.client.TxPipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{Stream: d.stream, Values: values})
	pipe.XAck(ctx, d.stream, b.group, d.id)
	pipe.XDel(ctx, d.stream, d.id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ferry/redis: requeue: %w", err)
	}
	return nil
}

// Close closes the client when the broker owns it.
func (b *Broker) Close() error {
	if b.owned {
		return b.client.Close()
	}
	return nil
}

func (b *Broker) settle(ctx context.Context, d delivery) error {
	pipe := b.client.TxPipeline()
	pipe.XAck(ctx, d.stream, b.group, d.id)
	pipe.XDel(ctx, d.stream, d.id)
	_, err := pipe.Exec(ctx)
	return err
}

func (b *Broker) ensureGroup(ctx context.Context, stream string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.groups[stream] {
		return nil
	}
	err := b.client.XGroupCreateMkStream(ctx, stream, b.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("ferry/redis: create group: %w", err)
	}
	b.groups[stream] = true
	return nil
}

func toValues(msg *broker.Message) (map[string]any, error) {
	props, err := json.Marshal(msg.Properties)
	if err != nil {
		return nil, fmt.Errorf("ferry/redis: encode properties: %w", err)
	}
	values := map[string]any{
		fieldBody:  string(msg.Body),
		fieldProps: string(props),
	}
	if msg.Priority != nil {
		values[fieldPriority] = strconv.Itoa(*msg.Priority)
	}
	return values, nil
}

func fromValues(values map[string]any) (*broker.Message, error) {
	body, ok := values[fieldBody].(string)
	if !ok {
		return nil, errors.New("missing body field")
	}
	msg := broker.NewMessage([]byte(body))
	if raw, ok := values[fieldProps].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &msg.Properties); err != nil {
			return nil, fmt.Errorf("decode properties: %w", err)
		}
		if msg.Properties == nil {
			msg.Properties = map[string]string{}
		}
	}
	if raw, ok := values[fieldPriority].(string); ok {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("decode priority: %w", err)
		}
		msg.Priority = &p
	}
	return msg, nil
}
