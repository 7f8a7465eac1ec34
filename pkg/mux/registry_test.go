package mux

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	muxerrors "github.com/DeBrosOfficial/triggermux/pkg/errors"
	"github.com/DeBrosOfficial/triggermux/pkg/transport"
)

// failingTransport rejects physical subscribes until fixed.
type failingTransport struct {
	*transport.Memory
	mu   sync.Mutex
	fail bool
}

func (f *failingTransport) Subscribe(ctx context.Context, topic string, opts transport.Options) (*transport.SubscribeAck, error) {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, errors.New("broker unavailable")
	}
	return f.Memory.Subscribe(ctx, topic, opts)
}

func (f *failingTransport) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

// blockingTransport parks physical subscribes until released, so tests can
// observe the registry's pending topic state.
type blockingTransport struct {
	*transport.Memory
	started chan string
	release chan struct{}
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{
		Memory:  transport.NewMemory(),
		started: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (b *blockingTransport) Subscribe(ctx context.Context, topic string, opts transport.Options) (*transport.SubscribeAck, error) {
	b.started <- topic
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.Memory.Subscribe(ctx, topic, opts)
}

func TestSubscribeFailureRollsBack(t *testing.T) {
	tr := &failingTransport{Memory: transport.NewMemory(), fail: true}
	m := New(tr)
	ctx := context.Background()
	handler := func(topic string, msg interface{}) error { return nil }

	_, err := m.Subscribe(ctx, "posts", handler, nil)
	if err == nil {
		t.Fatal("expected subscribe to fail")
	}
	if !muxerrors.IsTransportSubscribe(err) {
		t.Errorf("expected TransportSubscribeError, got %T: %v", err, err)
	}

	// The topic state must be fully discarded, so a later subscribe starts a
	// fresh physical subscription.
	tr.setFail(false)
	id, err := m.Subscribe(ctx, "posts", handler, nil)
	if err != nil {
		t.Fatalf("subscribe after recovery failed: %v", err)
	}
	// The failed attempt consumed an id.
	if id != 2 {
		t.Errorf("expected the failed attempt to consume id 1, got id %d", id)
	}
	if calls := tr.SubscribeCalls(); len(calls) != 1 {
		t.Errorf("expected one successful physical subscribe, got %v", calls)
	}
}

func TestSubscribeOptionsResolverFailureRollsBack(t *testing.T) {
	tr := transport.NewMemory()
	resolverErr := errors.New("no options for you")
	m := New(tr, WithSubscribeOptions(func(ctx context.Context, topic string) (transport.Options, error) {
		return nil, resolverErr
	}))

	_, err := m.Subscribe(context.Background(), "posts", func(topic string, msg interface{}) error { return nil }, nil)
	if !errors.Is(err, resolverErr) {
		t.Fatalf("expected resolver error, got %v", err)
	}
	if len(tr.SubscribeCalls()) != 0 {
		t.Error("expected no physical subscribe after resolver failure")
	}
	if len(m.Stats()) != 0 {
		t.Error("expected no topic state after resolver failure")
	}
}

func TestConcurrentFirstSubscribersShareOnePhysicalSubscribe(t *testing.T) {
	tr := newBlockingTransport()
	m := New(tr)
	ctx := context.Background()
	handler := func(topic string, msg interface{}) error { return nil }

	const n = 8
	ids := make(chan SubscriptionID, n)
	errs := make(chan error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := m.Subscribe(ctx, "posts", handler, nil)
			ids <- id
			errs <- err
		}()
	}

	// Exactly one goroutine reaches the transport.
	<-tr.started
	select {
	case topic := <-tr.started:
		t.Fatalf("unexpected second physical subscribe for %s", topic)
	case <-time.After(50 * time.Millisecond):
	}

	close(tr.release)
	wg.Wait()

	seen := make(map[SubscriptionID]bool)
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		id := <-ids
		if seen[id] {
			t.Fatalf("id %d returned twice", id)
		}
		seen[id] = true
	}

	if calls := tr.SubscribeCalls(); len(calls) != 1 {
		t.Errorf("expected one physical subscribe, got %v", calls)
	}
	stats := m.Stats()
	if len(stats) != 1 || stats[0].Subscribers != n {
		t.Errorf("expected %d subscribers on one topic, got %v", n, stats)
	}
}

func TestJoinerFailsWithFirstSubscriber(t *testing.T) {
	tr := newBlockingTransport()
	tr.Memory.Close() // released subscribes will fail against the closed memory transport
	m := New(tr)
	ctx := context.Background()
	handler := func(topic string, msg interface{}) error { return nil }

	first := make(chan error, 1)
	go func() {
		_, err := m.Subscribe(ctx, "posts", handler, nil)
		first <- err
	}()
	<-tr.started

	joiner := make(chan error, 1)
	go func() {
		_, err := m.Subscribe(ctx, "posts", handler, nil)
		joiner <- err
	}()

	// Give the joiner time to attach to the pending topic, then fail the ack.
	time.Sleep(20 * time.Millisecond)
	close(tr.release)

	if err := <-first; !muxerrors.IsTransportSubscribe(err) {
		t.Errorf("expected TransportSubscribeError for first subscriber, got %v", err)
	}
	if err := <-joiner; !muxerrors.IsTransportSubscribe(err) {
		t.Errorf("expected TransportSubscribeError for joiner, got %v", err)
	}
	if len(m.Stats()) != 0 {
		t.Error("expected no topic state to survive the failed subscribe")
	}
}

func TestJoinerContextCancelledWhilePending(t *testing.T) {
	tr := newBlockingTransport()
	m := New(tr)
	handler := func(topic string, msg interface{}) error { return nil }

	first := make(chan error, 1)
	go func() {
		_, err := m.Subscribe(context.Background(), "posts", handler, nil)
		first <- err
	}()
	<-tr.started

	joinCtx, cancel := context.WithCancel(context.Background())
	joiner := make(chan error, 1)
	go func() {
		_, err := m.Subscribe(joinCtx, "posts", handler, nil)
		joiner <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-joiner; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled for joiner, got %v", err)
	}

	close(tr.release)
	if err := <-first; err != nil {
		t.Fatalf("first subscriber failed: %v", err)
	}

	// Only the first subscriber remains.
	stats := m.Stats()
	if len(stats) != 1 || stats[0].Subscribers != 1 {
		t.Errorf("expected one remaining subscriber, got %v", stats)
	}
}

// slowUnsubscribeTransport parks physical unsubscribes until released.
type slowUnsubscribeTransport struct {
	*transport.Memory
	entered chan string
	release chan struct{}
}

func (s *slowUnsubscribeTransport) Unsubscribe(ctx context.Context, topic string) error {
	s.entered <- topic
	<-s.release
	return s.Memory.Unsubscribe(ctx, topic)
}

func TestUnsubscribeDoesNotWaitForTransportAck(t *testing.T) {
	tr := &slowUnsubscribeTransport{
		Memory:  transport.NewMemory(),
		entered: make(chan string, 1),
		release: make(chan struct{}),
	}
	m := New(tr)
	ctx := context.Background()
	handler := func(topic string, msg interface{}) error { return nil }

	id, err := m.Subscribe(ctx, "posts", handler, nil)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	returned := make(chan error, 1)
	go func() { returned <- m.Unsubscribe(id) }()

	// The transport is reached, but the caller must get its result back
	// without waiting for the unsubscribe ack.
	if topic := <-tr.entered; topic != "posts" {
		t.Fatalf("expected physical unsubscribe for posts, got %s", topic)
	}
	select {
	case err := <-returned:
		if err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Unsubscribe blocked on the transport unsubscribe ack")
	}

	// The topic is already gone from the registry while the ack is pending.
	if len(m.Stats()) != 0 {
		t.Error("expected no active topics while the drain is in flight")
	}

	close(tr.release)
	m.drains.Wait()
	if tr.Subscribed("posts") {
		t.Error("expected the physical subscription to be released")
	}
	if calls := tr.UnsubscribeCalls(); len(calls) != 1 {
		t.Errorf("expected one physical unsubscribe, got %v", calls)
	}
}

func TestCancelledJoinerLastOutReleasesTopic(t *testing.T) {
	m, tr := newTestMux(t)
	ctx := context.Background()
	handler := func(topic string, msg interface{}) error { return nil }

	first, err := m.Subscribe(ctx, "posts", handler, nil)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Register a joiner by hand, exactly as subscribeTopic does, so the
	// interleaving can be driven deterministically: the topic goes active,
	// the sibling leaves, and only then does the joiner's cancellation fire.
	m.mu.Lock()
	ts := m.topics["posts"]
	m.nextID++
	id := m.nextID
	sub := &subscription{id: id, topic: "posts", handler: handler}
	ts.subscribers[id] = sub
	m.subs[id] = sub
	m.mu.Unlock()

	// The sibling's unsubscribe is not the 1->0 transition; the parked
	// joiner still holds the topic.
	if err := m.Unsubscribe(first); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	if !tr.Subscribed("posts") {
		t.Fatal("expected the parked joiner to keep the topic alive")
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := m.awaitTopic(cancelled, ts, make(chan struct{}), id); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The joiner's withdrawal was the last one out; the topic must be
	// released physically, not leaked with zero subscribers.
	m.drains.Wait()
	if len(m.Stats()) != 0 {
		t.Errorf("expected no active topics, got %v", m.Stats())
	}
	if tr.Subscribed("posts") {
		t.Error("expected the physical subscription to be released")
	}
	if calls := tr.UnsubscribeCalls(); len(calls) != 1 {
		t.Errorf("expected one physical unsubscribe, got %v", calls)
	}

	// The topic starts over cleanly.
	if _, err := m.Subscribe(ctx, "posts", handler, nil); err != nil {
		t.Fatalf("resubscribe failed: %v", err)
	}
	if calls := tr.SubscribeCalls(); len(calls) != 2 {
		t.Errorf("expected a fresh physical subscribe, got %v", calls)
	}
}

func TestCloseWhileSubscribePending(t *testing.T) {
	tr := newBlockingTransport()
	m := New(tr)
	handler := func(topic string, msg interface{}) error { return nil }

	first := make(chan error, 1)
	go func() {
		_, err := m.Subscribe(context.Background(), "posts", handler, nil)
		first <- err
	}()
	<-tr.started

	if err := m.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	close(tr.release)

	if err := <-first; !muxerrors.IsClosed(err) {
		t.Fatalf("expected ErrClosed for the pending subscribe, got %v", err)
	}

	// The ack arrived for a mux that no longer wants it; the physical
	// subscription must have been torn down again.
	if tr.Subscribed("posts") {
		t.Error("expected physical subscription to be released")
	}
	if calls := tr.UnsubscribeCalls(); len(calls) != 1 {
		t.Errorf("expected one physical unsubscribe, got %v", calls)
	}
}

func TestConcurrentChurnReleasesEverything(t *testing.T) {
	m, tr := newTestMux(t)
	ctx := context.Background()
	handler := func(topic string, msg interface{}) error { return nil }

	const workers = 8
	const rounds = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				trigger := fmt.Sprintf("topic-%d", (w+r)%3)
				id, err := m.Subscribe(ctx, trigger, handler, nil)
				if err != nil {
					t.Errorf("subscribe failed: %v", err)
					return
				}
				if err := m.Publish(ctx, trigger, r, nil); err != nil {
					t.Errorf("publish failed: %v", err)
					return
				}
				if err := m.Unsubscribe(id); err != nil {
					t.Errorf("unsubscribe failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	m.drains.Wait()

	// Every 0->1 transition must be paired with a 1->0 transition once the
	// churn settles, leaving zero physical subscriptions.
	if got := m.Stats(); len(got) != 0 {
		t.Errorf("expected no active topics, got %v", got)
	}
	subs := len(tr.SubscribeCalls())
	unsubs := len(tr.UnsubscribeCalls())
	if subs != unsubs {
		t.Errorf("expected matched subscribe/unsubscribe counts, got %d vs %d", subs, unsubs)
	}
	if subs == 0 {
		t.Error("expected at least one physical subscribe during the churn")
	}
}
