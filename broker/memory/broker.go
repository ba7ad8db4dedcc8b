// Package memory provides an in-process broker.Broker. Messages live in
// per-queue slices ordered by priority. Intended for unit tests,
// development and single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/broker"
)

var _ broker.Broker = (*Broker)(nil)

type item struct {
	msg *broker.Message
	seq uint64
}

// Broker is an in-memory broker. Safe for concurrent use.
type Broker struct {
	mu       sync.Mutex
	queues   map[string][]item
	inflight map[string]item
	seq      uint64
	wake     chan struct{}
	closed   bool
}

// New returns an empty in-memory broker.
func New() *Broker {
	return &Broker{
		queues:   make(map[string][]item),
		inflight: make(map[string]item),
		wake:     make(chan struct{}),
	}
}

// Publish appends a copy of msg to queue.
func (b *Broker) Publish(_ context.Context, queue string, msg *broker.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ferry.ErrBrokerClosed
	}

	b.seq++
	cp := msg.Clone()
	cp.ID = strconv.FormatUint(b.seq, 10)
	cp.Queue = queue
	msg.ID = cp.ID
	b.push(queue, item{msg: cp, seq: b.seq})
	return nil
}

// push inserts it keeping priority DESC, publish order ASC. Caller holds mu.
func (b *Broker) push(queue string, it item) {
	q := append(b.queues[queue], it)
	sort.SliceStable(q, func(i, k int) bool {
		pi, pk := priority(q[i].msg), priority(q[k].msg)
		if pi != pk {
			return pi > pk
		}
		return q[i].seq < q[k].seq
	})
	b.queues[queue] = q

	close(b.wake)
	b.wake = make(chan struct{})
}

// Receive pops the head of queue, waiting up to timeout for one to arrive.
func (b *Broker) Receive(ctx context.Context, queue string, timeout time.Duration) (*broker.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, ferry.ErrBrokerClosed
		}
		if q := b.queues[queue]; len(q) > 0 {
			it := q[0]
			b.queues[queue] = q[1:]
			b.inflight[it.msg.ID] = it
			b.mu.Unlock()

			out := it.msg.Clone()
			out.ID = it.msg.ID
			out.Queue = queue
			out.Delivery = it.msg.ID
			return out, nil
		}
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-wake:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Ack removes msg from the in-flight set.
func (b *Broker) Ack(_ context.Context, msg *broker.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.settle(msg)
	return err
}

// Reject removes msg from the in-flight set and, when requeue is true,
// puts it back at its original position.
func (b *Broker) Reject(_ context.Context, msg *broker.Message, requeue bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	it, err := b.settle(msg)
	if err != nil {
		return err
	}
	if requeue {
		b.push(it.msg.Queue, it)
	}
	return nil
}

func (b *Broker) settle(msg *broker.Message) (item, error) {
	key, _ := msg.Delivery.(string)
	it, ok := b.inflight[key]
	if !ok {
		return item{}, fmt.Errorf("ferry/memory: message %q is not in flight", msg.ID)
	}
	delete(b.inflight, key)
	return it, nil
}

// Close marks the broker closed. Blocked receivers return ErrBrokerClosed.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.wake)
		b.wake = make(chan struct{})
	}
	return nil
}

// Len returns the number of messages waiting on queue.
func (b *Broker) Len(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queue])
}

// InFlight returns the number of received but unsettled messages.
func (b *Broker) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inflight)
}

// Messages returns copies of the messages waiting on queue, head first.
func (b *Broker) Messages(queue string) []*broker.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*broker.Message, 0, len(b.queues[queue]))
	for _, it := range b.queues[queue] {
		c := it.msg.Clone()
		c.ID = it.msg.ID
		c.Queue = queue
		out = append(out, c)
	}
	return out
}

func priority(m *broker.Message) int {
	if m.Priority == nil {
		return 0
	}
	return *m.Priority
}
