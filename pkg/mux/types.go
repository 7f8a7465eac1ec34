package mux

// SubscriptionID identifies one logical subscription. Ids are allocated from a
// monotonic counter and never recycled for the lifetime of the process, so a
// stale id can always be told apart from a live one.
type SubscriptionID uint64

// Handler is a logical subscriber's callback. It receives the physical topic
// the message arrived on and the decoded message. Handlers should return an
// error only for failures worth logging; an erroring or panicking handler
// never affects delivery to the other subscribers of the same topic.
type Handler func(topic string, message interface{}) error

// subscription is one logical subscriber's registration. Owned exclusively by
// the registry.
type subscription struct {
	id      SubscriptionID
	topic   string
	handler Handler
}
