package mux

import (
	"context"

	"github.com/DeBrosOfficial/triggermux/pkg/logging"
	"github.com/DeBrosOfficial/triggermux/pkg/transport"
)

// OptionsResolver produces transport options for a topic. It may do work per
// topic (per-topic QoS or similar transport knobs); errors abort the
// operation that needed the options.
type OptionsResolver func(ctx context.Context, topic string) (transport.Options, error)

// SubscribeAckHook is called after every successful physical subscribe with
// the id of the subscription that caused it and the transport's ack. It is
// informational only and must not mutate registry state.
type SubscribeAckHook func(id SubscriptionID, ack *transport.SubscribeAck)

// config collects the mux's construction-time settings. Every field has a
// working default so New(transport) alone is usable.
type config struct {
	transform        TriggerTransform
	codec            Codec
	subscribeOptions OptionsResolver
	publishOptions   OptionsResolver
	onSubscribeAck   SubscribeAckHook
	logger           *logging.ColoredLogger
}

// Option configures a Mux at construction time.
type Option func(*config)

// WithTriggerTransform overrides the trigger-to-topic mapping. The default is
// identity.
func WithTriggerTransform(fn TriggerTransform) Option {
	return func(c *config) {
		if fn != nil {
			c.transform = fn
		}
	}
}

// WithCodec sets the message codec. The default is JSONCodec.
func WithCodec(codec Codec) Option {
	return func(c *config) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithEncoding selects the codec by its wire-encoding name ("json" or
// "base64"). Unknown names keep the current codec; use CodecForEncoding to
// validate a name first, or WithCodec for custom codecs.
func WithEncoding(name string) Option {
	return func(c *config) {
		if codec, err := CodecForEncoding(name); err == nil {
			c.codec = codec
		}
	}
}

// WithSubscribeOptions sets the resolver consulted before each physical
// subscribe. The default returns nil options.
func WithSubscribeOptions(fn OptionsResolver) Option {
	return func(c *config) {
		if fn != nil {
			c.subscribeOptions = fn
		}
	}
}

// WithPublishOptions sets the resolver consulted before each publish. The
// default returns nil options.
func WithPublishOptions(fn OptionsResolver) Option {
	return func(c *config) {
		if fn != nil {
			c.publishOptions = fn
		}
	}
}

// WithSubscribeAckHook installs an observer for physical subscribe acks.
func WithSubscribeAckHook(fn SubscribeAckHook) Option {
	return func(c *config) {
		c.onSubscribeAck = fn
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *logging.ColoredLogger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func defaultConfig() config {
	return config{
		transform:        identityTransform,
		codec:            JSONCodec{},
		subscribeOptions: func(ctx context.Context, topic string) (transport.Options, error) { return nil, nil },
		publishOptions:   func(ctx context.Context, topic string) (transport.Options, error) { return nil, nil },
		logger:           logging.NewNopLogger(),
	}
}
