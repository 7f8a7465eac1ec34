// Package mux multiplexes any number of logical, trigger-based subscriptions
// onto a topic transport that supports only one physical subscription per
// topic. It guarantees exactly one physical subscribe per topic while
// subscribers exist and exactly one physical unsubscribe when the last one
// leaves, and fans every inbound message out to all interested subscribers.
package mux

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	muxerrors "github.com/DeBrosOfficial/triggermux/pkg/errors"
	"github.com/DeBrosOfficial/triggermux/pkg/logging"
	"github.com/DeBrosOfficial/triggermux/pkg/transport"
)

// Mux is the subscription multiplexer. All state is owned by the Mux and
// guarded by one mutex; transport acks are awaited outside of it.
type Mux struct {
	cfg       config
	transport transport.Transport

	mu       sync.Mutex
	closed   bool
	nextID   SubscriptionID
	subs     map[SubscriptionID]*subscription
	topics   map[string]*topicState
	draining map[string]chan struct{}

	// drains counts in-flight background physical unsubscribes; Close waits
	// for them.
	drains sync.WaitGroup
}

// New creates a Mux on top of a transport and installs itself as the
// transport's inbound message handler.
func New(tr transport.Transport, opts ...Option) *Mux {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Mux{
		cfg:       cfg,
		transport: tr,
		subs:      make(map[SubscriptionID]*subscription),
		topics:    make(map[string]*topicState),
		draining:  make(map[string]chan struct{}),
	}
	tr.SetHandler(m.dispatch)
	return m
}

// Subscribe registers handler for a trigger. The caller-supplied options are
// passed to the trigger transform to derive the physical topic. The call
// blocks until the physical subscribe is acknowledged when this subscriber is
// the first one for its topic; joining an already-subscribed topic returns
// immediately. The returned id is unique for the lifetime of the process.
func (m *Mux) Subscribe(ctx context.Context, trigger string, handler Handler, options map[string]interface{}) (SubscriptionID, error) {
	if handler == nil {
		return 0, muxerrors.NewValidationError("handler", "handler must not be nil", nil)
	}
	topic := m.cfg.transform(trigger, options)
	return m.subscribeTopic(ctx, topic, handler)
}

// Unsubscribe removes a logical subscription. It fails immediately with an
// UnknownSubscriptionError when the id was never issued or is already gone.
// The physical unsubscribe triggered by a last subscriber leaving happens in
// the background; the caller does not wait for the transport ack.
func (m *Mux) Unsubscribe(id SubscriptionID) error {
	return m.unsubscribeID(id)
}

// Publish encodes message and sends it to the topic derived from trigger.
// Exactly one transport publish is issued; transport failures surface as a
// TransportPublishError.
func (m *Mux) Publish(ctx context.Context, trigger string, message interface{}, options map[string]interface{}) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return muxerrors.ErrClosed
	}
	m.mu.Unlock()

	topic := m.cfg.transform(trigger, options)

	opts, err := m.cfg.publishOptions(ctx, topic)
	if err != nil {
		return err
	}

	payload, err := m.cfg.codec.Encode(message)
	if err != nil {
		return err
	}

	if err := m.transport.Publish(ctx, topic, payload, opts); err != nil {
		return muxerrors.NewTransportPublishError(topic, err)
	}

	m.cfg.logger.ComponentDebug(logging.ComponentMux, "published",
		zap.String("topic", topic), zap.Int("payload_len", len(payload)))
	return nil
}

// TopicStats describes one active topic.
type TopicStats struct {
	Topic       string `json:"topic"`
	Subscribers int    `json:"subscribers"`
}

// Stats returns the active topics and their logical subscriber counts,
// sorted by topic name. Topics with an in-flight first subscribe are
// excluded until their ack arrives.
func (m *Mux) Stats() []TopicStats {
	m.mu.Lock()
	stats := make([]TopicStats, 0, len(m.topics))
	for topic, ts := range m.topics {
		if !ts.active {
			continue
		}
		stats = append(stats, TopicStats{Topic: topic, Subscribers: len(ts.subscribers)})
	}
	m.mu.Unlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].Topic < stats[j].Topic })
	return stats
}

// Close removes every subscription and physically unsubscribes every active
// topic. In-flight first subscribes settle against the closed mux and tear
// their physical subscription down when their ack arrives. Close does not
// close the transport; its owner does.
func (m *Mux) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return muxerrors.ErrClosed
	}
	m.closed = true

	var activeTopics []string
	for topic, ts := range m.topics {
		if ts.active {
			activeTopics = append(activeTopics, topic)
		}
	}
	m.subs = make(map[SubscriptionID]*subscription)
	m.topics = make(map[string]*topicState)
	m.mu.Unlock()

	for _, topic := range activeTopics {
		m.mu.Lock()
		m.drainTopicLocked(topic)
	}
	// Background unsubscribes from earlier 1->0 transitions may still be in
	// flight; Close returns only once every topic is physically released.
	m.drains.Wait()

	m.cfg.logger.ComponentInfo(logging.ComponentMux, "mux closed",
		zap.Int("topics_released", len(activeTopics)))
	return nil
}
