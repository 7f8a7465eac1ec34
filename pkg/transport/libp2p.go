package transport

import (
	"context"
	"fmt"
	"sync"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/triggermux/pkg/logging"
)

// LibP2P is a Transport backed by gossipsub. Each physical topic maps to one
// joined pubsub.Topic and at most one pubsub.Subscription with a reader
// goroutine feeding the inbound handler. Gossipsub has no negotiable
// subscribe parameters, so the requested options are echoed back in the ack.
type LibP2P struct {
	ps      *pubsub.PubSub
	logger  *logging.ColoredLogger
	handler MessageHandler

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
	subs   map[string]*libp2pSubscription
}

// libp2pSubscription holds one physical subscription and its reader lifecycle.
type libp2pSubscription struct {
	sub    *pubsub.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLibP2P creates a gossipsub-backed transport.
func NewLibP2P(ps *pubsub.PubSub, logger *logging.ColoredLogger) *LibP2P {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &LibP2P{
		ps:     ps,
		logger: logger,
		topics: make(map[string]*pubsub.Topic),
		subs:   make(map[string]*libp2pSubscription),
	}
}

// SetHandler installs the inbound message handler.
func (t *LibP2P) SetHandler(h MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// getOrCreateTopic returns the joined topic, joining it on first use.
// Caller must hold t.mu.
func (t *LibP2P) getOrCreateTopic(topic string) (*pubsub.Topic, error) {
	if joined, exists := t.topics[topic]; exists {
		return joined, nil
	}

	joined, err := t.ps.Join(topic)
	if err != nil {
		return nil, fmt.Errorf("failed to join topic: %w", err)
	}
	t.topics[topic] = joined
	return joined, nil
}

// Subscribe opens the single physical subscription for a topic and starts the
// reader goroutine.
func (t *LibP2P) Subscribe(ctx context.Context, topic string, opts Options) (*SubscribeAck, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ps == nil {
		return nil, fmt.Errorf("pubsub not initialized")
	}
	if _, exists := t.subs[topic]; exists {
		return nil, fmt.Errorf("already subscribed to topic %s", topic)
	}

	joined, err := t.getOrCreateTopic(topic)
	if err != nil {
		return nil, err
	}

	sub, err := joined.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to topic: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	ls := &libp2pSubscription{sub: sub, cancel: cancel, done: make(chan struct{})}
	t.subs[topic] = ls

	handler := t.handler
	go t.readLoop(readCtx, topic, ls, handler)

	t.logger.ComponentDebug(logging.ComponentTransport, "physical subscribe",
		zap.String("topic", topic))

	return &SubscribeAck{Topic: topic, Granted: opts}, nil
}

// readLoop pumps messages from the subscription into the handler until the
// subscription is cancelled.
func (t *LibP2P) readLoop(ctx context.Context, topic string, ls *libp2pSubscription, handler MessageHandler) {
	defer close(ls.done)
	defer ls.sub.Cancel()

	for {
		msg, err := ls.sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if handler != nil {
			handler(topic, msg.Data)
		}
	}
}

// Unsubscribe cancels the reader and releases the physical subscription. The
// joined topic stays around so publishes to it remain possible.
func (t *LibP2P) Unsubscribe(ctx context.Context, topic string) error {
	t.mu.Lock()
	ls, exists := t.subs[topic]
	if !exists {
		t.mu.Unlock()
		return fmt.Errorf("not subscribed to topic %s", topic)
	}
	delete(t.subs, topic)
	t.mu.Unlock()

	ls.cancel()
	<-ls.done

	t.logger.ComponentDebug(logging.ComponentTransport, "physical unsubscribe",
		zap.String("topic", topic))
	return nil
}

// Publish sends a payload to a topic. Gossipsub has no per-publish knobs, so
// opts is ignored.
func (t *LibP2P) Publish(ctx context.Context, topic string, payload []byte, opts Options) error {
	if t.ps == nil {
		return fmt.Errorf("pubsub not initialized")
	}

	t.mu.Lock()
	joined, err := t.getOrCreateTopic(topic)
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to get topic for publishing: %w", err)
	}

	if err := joined.Publish(ctx, payload); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close cancels every subscription and closes every joined topic.
func (t *LibP2P) Close() error {
	t.mu.Lock()
	subs := t.subs
	topics := t.topics
	t.subs = make(map[string]*libp2pSubscription)
	t.topics = make(map[string]*pubsub.Topic)
	t.mu.Unlock()

	for _, ls := range subs {
		ls.cancel()
		<-ls.done
	}
	for _, joined := range topics {
		_ = joined.Close()
	}
	return nil
}
