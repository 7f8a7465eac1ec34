package transport

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
)

func createTestTransport(t *testing.T) (*LibP2P, host.Host, func()) {
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	if err != nil {
		cancel()
		t.Fatalf("failed to create libp2p host: %v", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		t.Fatalf("failed to create gossipsub: %v", err)
	}

	tr := NewLibP2P(ps, nil)

	cleanup := func() {
		tr.Close()
		h.Close()
		cancel()
	}
	return tr, h, cleanup
}

func TestLibP2PSubscribeLifecycle(t *testing.T) {
	tr, _, cleanup := createTestTransport(t)
	defer cleanup()

	ctx := context.Background()
	tr.SetHandler(func(topic string, payload []byte) {})

	ack, err := tr.Subscribe(ctx, "lifecycle", Options{"qos": 1})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if ack.Topic != "lifecycle" || ack.Granted["qos"] != 1 {
		t.Errorf("unexpected ack: %+v", ack)
	}

	if _, err := tr.Subscribe(ctx, "lifecycle", nil); err == nil {
		t.Error("expected second physical subscribe for same topic to fail")
	}

	if err := tr.Unsubscribe(ctx, "lifecycle"); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	if err := tr.Unsubscribe(ctx, "lifecycle"); err == nil {
		t.Error("expected unsubscribe without subscription to fail")
	}

	// Resubscribing after teardown must work again.
	if _, err := tr.Subscribe(ctx, "lifecycle", nil); err != nil {
		t.Fatalf("resubscribe failed: %v", err)
	}
}

func TestLibP2PPubSub(t *testing.T) {
	// For delivery between two transports their hosts must be connected.
	ctx := context.Background()

	tr1, h1, cleanup1 := createTestTransport(t)
	defer cleanup1()
	tr2, h2, cleanup2 := createTestTransport(t)
	defer cleanup2()

	h1.Peerstore().AddAddrs(h2.ID(), h2.Addrs(), time.Hour)
	if err := h1.Connect(ctx, peer.AddrInfo{ID: h2.ID(), Addrs: h2.Addrs()}); err != nil {
		t.Fatalf("failed to connect hosts: %v", err)
	}

	payload := []byte("hello world")
	received := make(chan []byte, 1)

	tr2.SetHandler(func(topic string, data []byte) {
		select {
		case received <- data:
		default:
		}
	})
	if _, err := tr2.Subscribe(ctx, "chat", nil); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Wait for the mesh to form; retry publishing until delivery.
	timeout := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			t.Fatal("timed out waiting for message")
		case <-ticker.C:
			_ = tr1.Publish(ctx, "chat", payload, nil)
		case data := <-received:
			if string(data) != string(payload) {
				t.Errorf("expected %s, got %s", payload, data)
			}
			return
		}
	}
}
