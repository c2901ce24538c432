package mqtt

import (
	"context"
)

// MessageHandler processes one received message. Handlers run on their own
// goroutine.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is a reconnecting MQTT v5 client.
type Client interface {
	// Start begins connecting in the background and returns immediately.
	// Use AwaitConnection to wait for the first connection.
	Start(ctx context.Context) error

	// Disconnect cleanly closes the connection.
	Disconnect(ctx context.Context)

	// Publish sends a message to topic.
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe registers handler for a topic filter. Subscriptions are
	// restored after a reconnect.
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error

	// Unsubscribe removes the handler and sends an UNSUBSCRIBE packet.
	Unsubscribe(ctx context.Context, topic string) error

	// AwaitConnection blocks until the client is connected or ctx is done.
	AwaitConnection(ctx context.Context) error

	// IsConnected reports whether the connection is currently up.
	IsConnected() bool
}
