package mux

import (
	"context"
	"sort"

	"go.uber.org/zap"

	muxerrors "github.com/DeBrosOfficial/triggermux/pkg/errors"
	"github.com/DeBrosOfficial/triggermux/pkg/logging"
	"github.com/DeBrosOfficial/triggermux/pkg/transport"
)

// topicState tracks one physical topic currently in use. It exists iff at
// least one logical subscription references the topic. ready is closed once
// the physical subscribe settles; err is set before that close when it
// failed; active reports a live physical subscription.
//
// The pending/active split is what keeps invariant parity under races:
// joiners of a brand-new topic wait on ready instead of issuing a second
// physical subscribe, and an ack that arrives after every subscriber already
// left is answered with an immediate physical unsubscribe instead of
// re-adding state.
type topicState struct {
	topic       string
	subscribers map[SubscriptionID]*subscription
	ready       chan struct{}
	err         error
	active      bool
}

// subscribeTopic installs a logical subscription for an already-resolved
// topic. Exactly one physical subscribe is issued per 0->1 transition; all
// concurrent first-subscribers of the same topic share its outcome.
func (m *Mux) subscribeTopic(ctx context.Context, topic string, handler Handler) (SubscriptionID, error) {
	m.mu.Lock()
	for {
		if m.closed {
			m.mu.Unlock()
			return 0, muxerrors.ErrClosed
		}
		// A physical unsubscribe for this topic may still be in flight. The
		// transport must see it complete before any new physical subscribe,
		// so a would-be first subscriber waits for the drain.
		drained, draining := m.draining[topic]
		if !draining {
			break
		}
		m.mu.Unlock()
		select {
		case <-drained:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
		m.mu.Lock()
	}

	// The id is consumed even if the physical subscribe fails later.
	m.nextID++
	id := m.nextID
	sub := &subscription{id: id, topic: topic, handler: handler}

	if ts, exists := m.topics[topic]; exists {
		ts.subscribers[id] = sub
		m.subs[id] = sub
		ready := ts.ready
		m.mu.Unlock()
		return m.awaitTopic(ctx, ts, ready, id)
	}

	ts := &topicState{
		topic:       topic,
		subscribers: map[SubscriptionID]*subscription{id: sub},
		ready:       make(chan struct{}),
	}
	m.topics[topic] = ts
	m.subs[id] = sub
	m.mu.Unlock()

	// The transport ack is awaited outside the critical section; bookkeeping
	// is finalized under the lock once it arrives.
	opts, err := m.cfg.subscribeOptions(ctx, topic)
	var ack *transport.SubscribeAck
	if err == nil {
		ack, err = m.transport.Subscribe(ctx, topic, opts)
		if err != nil {
			err = muxerrors.NewTransportSubscribeError(topic, err)
		}
	}

	m.mu.Lock()
	if err != nil {
		// Roll back: the topic must never be left registered without a
		// physical subscription behind it.
		for sid := range ts.subscribers {
			delete(m.subs, sid)
		}
		delete(m.topics, topic)
		ts.err = err
		close(ts.ready)
		m.mu.Unlock()
		m.cfg.logger.ComponentWarn(logging.ComponentMux, "physical subscribe failed",
			zap.String("topic", topic), zap.Error(err))
		return 0, err
	}

	if m.closed || len(ts.subscribers) == 0 {
		// The mux was closed, or every subscriber left, while the ack was in
		// flight. The physical subscription is unwanted; tear it down.
		if m.closed {
			ts.err = muxerrors.ErrClosed
		}
		delete(m.topics, topic)
		close(ts.ready)
		stillWanted := ts.err == nil
		m.drainTopicLocked(topic)
		if !stillWanted {
			return 0, ts.err
		}
		return id, nil
	}

	ts.active = true
	close(ts.ready)
	m.mu.Unlock()

	m.cfg.logger.ComponentDebug(logging.ComponentMux, "topic subscribed",
		zap.String("topic", topic), zap.Uint64("subscription_id", uint64(id)))

	if m.cfg.onSubscribeAck != nil {
		m.cfg.onSubscribeAck(id, ack)
	}
	return id, nil
}

// awaitTopic blocks a joiner until the topic's in-flight physical subscribe
// settles. For an already-active topic the ready channel is closed and this
// returns immediately.
func (m *Mux) awaitTopic(ctx context.Context, ts *topicState, ready <-chan struct{}, id SubscriptionID) (SubscriptionID, error) {
	select {
	case <-ready:
	case <-ctx.Done():
		m.mu.Lock()
		if _, stillThere := m.subs[id]; stillThere {
			delete(m.subs, id)
			delete(ts.subscribers, id)
			// The topic may have gone active, and every sibling may have
			// left, while this joiner was parked. Its withdrawal is then
			// the 1->0 transition and must release the topic; nobody else
			// will. A pending topic is left for its in-flight subscribe.
			if cur, exists := m.topics[ts.topic]; exists && cur == ts && ts.active && len(ts.subscribers) == 0 {
				delete(m.topics, ts.topic)
				m.releaseTopicLocked(ts.topic)
				return 0, ctx.Err()
			}
		}
		m.mu.Unlock()
		return 0, ctx.Err()
	}
	if ts.err != nil {
		return 0, ts.err
	}
	return id, nil
}

// unsubscribeID removes a logical subscription and returns as soon as the
// bookkeeping is done. The physical unsubscribe for a 1->0 transition runs in
// the background without the caller waiting for its ack; the registry has
// already let go of the topic, so transport failures are only logged.
func (m *Mux) unsubscribeID(id SubscriptionID) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return muxerrors.ErrClosed
	}

	sub, ok := m.subs[id]
	if !ok {
		m.mu.Unlock()
		return muxerrors.NewUnknownSubscriptionError(uint64(id))
	}
	delete(m.subs, id)

	if ts, exists := m.topics[sub.topic]; exists {
		delete(ts.subscribers, id)
		if len(ts.subscribers) == 0 && ts.active {
			// Last subscriber out. A pending topic is instead left for its
			// in-flight subscribe to clean up once the ack arrives.
			delete(m.topics, sub.topic)
			m.releaseTopicLocked(sub.topic)
			return nil
		}
	}
	m.mu.Unlock()
	return nil
}

// releaseTopicLocked issues the physical unsubscribe for a topic the registry
// no longer tracks, without making the caller wait for the transport ack. It
// must be entered holding m.mu (which it releases): the draining marker has
// to be installed in the same critical section as the decision that emptied
// the topic, or a racing first-subscriber could reach the transport before
// the unsubscribe does.
func (m *Mux) releaseTopicLocked(topic string) {
	drained := make(chan struct{})
	m.draining[topic] = drained
	m.drains.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.drains.Done()
		m.drainTopic(topic, drained)
	}()
}

// drainTopicLocked is the synchronous variant, for callers that are off any
// caller-visible fast path (an ack that arrived too late, Close).
func (m *Mux) drainTopicLocked(topic string) {
	drained := make(chan struct{})
	m.draining[topic] = drained
	m.mu.Unlock()
	m.drainTopic(topic, drained)
}

func (m *Mux) drainTopic(topic string, drained chan struct{}) {
	if err := m.transport.Unsubscribe(context.Background(), topic); err != nil {
		unsubErr := muxerrors.NewTransportUnsubscribeError(topic, err)
		m.cfg.logger.ComponentWarn(logging.ComponentMux, "physical unsubscribe failed",
			zap.String("topic", topic), zap.Error(unsubErr))
	} else {
		m.cfg.logger.ComponentDebug(logging.ComponentMux, "topic unsubscribed",
			zap.String("topic", topic))
	}

	m.mu.Lock()
	delete(m.draining, topic)
	m.mu.Unlock()
	close(drained)
}

// dispatch fans an inbound message out to every subscriber of its topic. The
// payload is decoded once; the subscriber set is snapshotted before any
// handler runs, so a handler unsubscribing itself or a sibling does not
// affect delivery within the same fan-out.
func (m *Mux) dispatch(topic string, payload []byte) {
	message, err := m.cfg.codec.Decode(payload)
	if err != nil {
		m.cfg.logger.ComponentWarn(logging.ComponentMux, "dropping undecodable message",
			zap.String("topic", topic), zap.Error(err))
		return
	}

	m.mu.Lock()
	ts, exists := m.topics[topic]
	if !exists || !ts.active {
		// No current logical subscribers (e.g. a message racing an
		// unsubscribe). Drop silently.
		m.mu.Unlock()
		return
	}
	snapshot := make([]*subscription, 0, len(ts.subscribers))
	for _, sub := range ts.subscribers {
		snapshot = append(snapshot, sub)
	}
	m.mu.Unlock()

	// Stable fan-out order: ascending id, i.e. subscription order.
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].id < snapshot[j].id })

	for _, sub := range snapshot {
		m.invoke(sub, topic, message)
	}
}

// invoke runs one handler, isolating its panics and logging its errors so
// the remaining subscribers of the fan-out still get the message.
func (m *Mux) invoke(sub *subscription, topic string, message interface{}) {
	defer func() {
		if r := recover(); r != nil {
			m.cfg.logger.ComponentError(logging.ComponentMux, "subscriber panicked",
				zap.String("topic", topic),
				zap.Uint64("subscription_id", uint64(sub.id)),
				zap.Any("panic", r))
		}
	}()
	if err := sub.handler(topic, message); err != nil {
		m.cfg.logger.ComponentWarn(logging.ComponentMux, "subscriber returned error",
			zap.String("topic", topic),
			zap.Uint64("subscription_id", uint64(sub.id)),
			zap.Error(err))
	}
}
