// Package messaging defines broker-neutral interfaces for publishing and
// consuming messages, so services are not coupled to a specific broker.
package messaging

import (
	"context"
	"time"
)

// Message is a message received from or sent to a broker.
type Message struct {
	// Subject is the topic the message was published to.
	Subject string

	// Data is the raw payload.
	Data []byte

	// Metadata carries optional headers.
	Metadata map[string]string

	// Timestamp is when the message was received.
	Timestamp time.Time
}

// MessageHandler processes a received message.
// A returned error is reported by the broker implementation; it does not stop the subscription.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription is an active subscription to a subject.
type Subscription interface {
	// Unsubscribe stops message delivery.
	Unsubscribe() error

	// Subject returns the subject this subscription listens to.
	Subject() string

	// IsValid reports whether the subscription is still active.
	IsValid() bool
}

// Publisher publishes messages to subjects.
type Publisher interface {
	// Publish sends data to subject. Delivery is fire-and-forget.
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishMsg sends a Message including its metadata as headers.
	PublishMsg(ctx context.Context, msg *Message) error
}

// Subscriber subscribes to subjects.
type Subscriber interface {
	// Subscribe delivers every message on subject to handler (fan-out).
	Subscribe(subject string, handler MessageHandler) (Subscription, error)

	// QueueSubscribe load-balances messages on subject across members of queue.
	QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error)
}

// Client combines Publisher and Subscriber with connection lifecycle.
type Client interface {
	Publisher
	Subscriber

	// Drain closes the connection after in-flight messages are handled.
	Drain() error

	// Close releases resources and unsubscribes everything.
	Close() error

	// IsConnected reports whether the broker connection is up.
	IsConnected() bool
}
