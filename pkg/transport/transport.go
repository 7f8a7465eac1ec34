package transport

import "context"

// MessageHandler is called for every message the transport delivers on a
// subscribed topic. The payload is the raw wire bytes; decoding happens above
// this layer.
type MessageHandler func(topic string, payload []byte)

// Options carries transport-specific knobs for subscribe and publish calls
// (e.g. a qos level). Transports that have no such knobs ignore it.
type Options map[string]interface{}

// SubscribeAck reports the outcome of a successful physical subscribe,
// including whatever parameters the transport actually granted.
type SubscribeAck struct {
	Topic   string
	Granted Options
}

// Transport is the physical topic-based messaging boundary. One physical
// subscription exists per topic; the layer above multiplexes any number of
// logical subscribers onto it and calls Subscribe/Unsubscribe exactly once
// per topic lifecycle.
type Transport interface {
	// Subscribe opens the single physical subscription for a topic.
	Subscribe(ctx context.Context, topic string, opts Options) (*SubscribeAck, error)

	// Unsubscribe tears down the physical subscription for a topic.
	Unsubscribe(ctx context.Context, topic string) error

	// Publish sends a payload to a topic.
	Publish(ctx context.Context, topic string, payload []byte, opts Options) error

	// SetHandler installs the inbound message handler. Must be called once
	// before the first Subscribe.
	SetHandler(h MessageHandler)

	// Close tears down every physical subscription and releases resources.
	Close() error
}
