package transport

import (
	"context"
	"fmt"
	"sync"
)

// Memory is a process-local Transport used for development and testing.
// Delivery is synchronous: Publish invokes the handler inline for every
// subscribed topic, which keeps tests deterministic.
type Memory struct {
	mu      sync.Mutex
	handler MessageHandler
	subs    map[string]Options
	closed  bool

	// Call records, readable by tests.
	subscribeCalls   []string
	unsubscribeCalls []string
	publishOpts      map[string]Options
}

// NewMemory creates a new in-memory transport.
func NewMemory() *Memory {
	return &Memory{
		subs:        make(map[string]Options),
		publishOpts: make(map[string]Options),
	}
}

// SetHandler installs the inbound message handler.
func (m *Memory) SetHandler(h MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// Subscribe records the physical subscription for a topic.
func (m *Memory) Subscribe(ctx context.Context, topic string, opts Options) (*SubscribeAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("transport closed")
	}
	if _, exists := m.subs[topic]; exists {
		return nil, fmt.Errorf("duplicate physical subscribe for topic %s", topic)
	}
	m.subs[topic] = opts
	m.subscribeCalls = append(m.subscribeCalls, topic)
	return &SubscribeAck{Topic: topic, Granted: opts}, nil
}

// Unsubscribe removes the physical subscription for a topic.
func (m *Memory) Unsubscribe(ctx context.Context, topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.subs[topic]; !exists {
		return fmt.Errorf("not subscribed to topic %s", topic)
	}
	delete(m.subs, topic)
	m.unsubscribeCalls = append(m.unsubscribeCalls, topic)
	return nil
}

// Publish delivers a payload to the handler if the topic is subscribed.
func (m *Memory) Publish(ctx context.Context, topic string, payload []byte, opts Options) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("transport closed")
	}
	m.publishOpts[topic] = opts
	_, subscribed := m.subs[topic]
	h := m.handler
	m.mu.Unlock()

	if subscribed && h != nil {
		h(topic, append([]byte(nil), payload...))
	}
	return nil
}

// Close marks the transport closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = make(map[string]Options)
	return nil
}

// Subscribed reports whether a physical subscription currently exists.
func (m *Memory) Subscribed(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[topic]
	return ok
}

// SubscribeCalls returns every physical subscribe issued, in order.
func (m *Memory) SubscribeCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscribeCalls...)
}

// UnsubscribeCalls returns every physical unsubscribe issued, in order.
func (m *Memory) UnsubscribeCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.unsubscribeCalls...)
}

// LastPublishOptions returns the options passed to the latest publish for a topic.
func (m *Memory) LastPublishOptions(topic string) Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publishOpts[topic]
}
