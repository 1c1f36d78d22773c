package messaging

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"
)

// memoryBuffer is the per-subscription queue depth.
const memoryBuffer = 256

// Memory is an in-process broker. Each distinct group name on a topic gets a
// copy of every message; consumers sharing a group compete for them. A nacked
// message is put back on its group queue.
type Memory struct {
	mu     sync.Mutex
	closed bool
	seq    uint64
	topics map[string]map[string]chan *memoryEnvelope
	done   chan struct{}
}

type memoryEnvelope struct {
	id  string
	msg OutgoingMessage
	ts  time.Time
}

// NewMemory constructs an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{
		topics: map[string]map[string]chan *memoryEnvelope{},
		done:   make(chan struct{}),
	}
}

// Close stops all consumers. Pending messages are discarded.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

// Publish copies msg onto every group queue registered for destination.
// Messages published before any consumer registered are dropped.
func (m *Memory) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return PublishResult{}, io.ErrClosedPipe
	}
	m.seq++
	env := &memoryEnvelope{id: strconv.FormatUint(m.seq, 10), msg: msg, ts: time.Now()}
	queues := make([]chan *memoryEnvelope, 0, len(m.topics[destination]))
	for _, q := range m.topics[destination] {
		queues = append(queues, q)
	}
	m.mu.Unlock()

	for _, q := range queues {
		select {
		case q <- env:
		case <-ctx.Done():
			return PublishResult{}, ctx.Err()
		case <-m.done:
			return PublishResult{}, io.ErrClosedPipe
		}
	}

	return PublishResult{MessageID: env.id, Topic: destination, Timestamp: env.ts}, nil
}

// Consume registers on source under the option group name and dispatches
// until ctx is done or the broker is closed.
func (m *Memory) Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return ErrHandlerRequired
	}

	co := newConsumeOptions(opts...)
	q, err := m.queue(source, co.groupName())
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for range concurrencyOrDefault(co.concurrency, 1) {
		wg.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-m.done:
					return
				case env := <-q:
					_ = dispatch(ctx, DriverMemory, m.newMessage(source, q, env), handler, co.autoAck)
				}
			}
		})
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

func (m *Memory) queue(topic, group string) (chan *memoryEnvelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, io.ErrClosedPipe
	}
	groups, ok := m.topics[topic]
	if !ok {
		groups = map[string]chan *memoryEnvelope{}
		m.topics[topic] = groups
	}
	q, ok := groups[group]
	if !ok {
		q = make(chan *memoryEnvelope, memoryBuffer)
		groups[group] = q
	}
	return q, nil
}

func (m *Memory) newMessage(topic string, q chan *memoryEnvelope, env *memoryEnvelope) *message {
	return &message{
		body:    env.msg.Body,
		key:     env.msg.Key,
		headers: env.msg.Headers,
		id:      env.id,
		topic:   topic,
		ts:      env.ts,
		ack:     func(context.Context) error { return nil },
		nack: func(context.Context) error {
			go func() {
				select {
				case q <- env:
				case <-m.done:
				}
			}()
			return nil
		},
	}
}
