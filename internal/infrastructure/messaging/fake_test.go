package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ---------------------------------------------------------------------------
// In-memory broker fakes
// ---------------------------------------------------------------------------

type declaredQueue struct {
	name string
	args amqp.Table
}

type binding struct {
	queue, key, exchange string
}

type fakeChannel struct {
	mu          sync.Mutex
	exchanges   map[string]string
	queues      []declaredQueue
	bindings    []binding
	prefetch    int
	published   []amqp.Publishing
	publishKeys []string
	publishErr  error
	consumers   map[string]chan amqp.Delivery
	closeNotify []chan *amqp.Error
	closed      bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{exchanges: make(map[string]string), consumers: make(map[string]chan amqp.Delivery)}
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, _, _, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !durable {
		return errors.New("exchange must be durable")
	}
	c.exchanges[name] = kind
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !durable {
		return amqp.Queue{}, errors.New("queue must be durable")
	}
	c.queues = append(c.queues, declaredQueue{name: name, args: args})
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = append(c.bindings, binding{queue: name, key: key, exchange: exchange})
	return nil
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, msg)
	c.publishKeys = append(c.publishKeys, key)
	return nil
}

func (c *fakeChannel) Consume(queue, _ string, autoAck, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if autoAck {
		return nil, errors.New("consumer must use manual acks")
	}
	ch := make(chan amqp.Delivery, 16)
	c.consumers[queue] = ch
	return ch, nil
}

func (c *fakeChannel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeNotify = append(c.closeNotify, receiver)
	return receiver
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, ch := range c.consumers {
		close(ch)
	}
	for _, n := range c.closeNotify {
		close(n)
	}
	return nil
}

func (c *fakeChannel) deliver(t *testing.T, queue string, d amqp.Delivery) {
	t.Helper()
	c.mu.Lock()
	ch, ok := c.consumers[queue]
	c.mu.Unlock()
	if !ok {
		t.Fatalf("no consumer on queue %s", queue)
	}
	ch <- d
}

func (c *fakeChannel) publishedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

type fakeConnection struct {
	mu          sync.Mutex
	ch          *fakeChannel
	closeNotify []chan *amqp.Error
	closed      bool
}

func (c *fakeConnection) Channel() (Channel, error) {
	return c.ch, nil
}

func (c *fakeConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeNotify = append(c.closeNotify, receiver)
	return receiver
}

func (c *fakeConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, n := range c.closeNotify {
		close(n)
	}
	c.mu.Unlock()
	return c.ch.Close()
}

// drop simulates the broker going away.
func (c *fakeConnection) drop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, n := range c.closeNotify {
		n <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "CONNECTION_FORCED - broker shutdown"}
		close(n)
	}
	c.mu.Unlock()
	_ = c.ch.Close()
}

type fakeDialer struct {
	mu    sync.Mutex
	fail  func(attempt int) bool
	dials int
	conns []*fakeConnection
}

func (d *fakeDialer) Dial(string) (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail != nil && d.fail(d.dials) {
		return nil, errors.New("dial tcp: connection refused")
	}
	conn := &fakeConnection{ch: newFakeChannel()}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) setFail(fn func(attempt int) bool) {
	d.mu.Lock()
	d.fail = fn
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() *fakeConnection {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

type ackRecord struct {
	tag     uint64
	kind    string // ack, nack, reject
	requeue bool
}

type fakeAcker struct {
	mu      sync.Mutex
	records []ackRecord
	settled chan ackRecord
}

func newFakeAcker() *fakeAcker {
	return &fakeAcker{settled: make(chan ackRecord, 64)}
}

func (a *fakeAcker) record(r ackRecord) error {
	a.mu.Lock()
	a.records = append(a.records, r)
	a.mu.Unlock()
	a.settled <- r
	return nil
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	return a.record(ackRecord{tag: tag, kind: "ack"})
}

func (a *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	return a.record(ackRecord{tag: tag, kind: "nack", requeue: requeue})
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	return a.record(ackRecord{tag: tag, kind: "reject", requeue: requeue})
}

func (a *fakeAcker) next(t *testing.T) ackRecord {
	t.Helper()
	select {
	case r := <-a.settled:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for delivery to be settled")
		return ackRecord{}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return m.State() == want })
}
