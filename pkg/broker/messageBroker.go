package broker

import (
	"context"
	"errors"

	"github.com/zoff-tech/amqp-producer/schema"
)

var (
	// ErrConnection wraps every failure to reach the broker. It is fatal for the caller.
	ErrConnection = errors.New("broker connection failed")
	// ErrExchangeConflict reports that the exchange already exists with different attributes.
	// Publishing can continue against the existing exchange.
	ErrExchangeConflict = errors.New("exchange already exists with different attributes")
	// ErrNotConnected is returned when an operation needs an open channel and there is none.
	ErrNotConnected = errors.New("broker is not connected")
)

// MessageBroker defines the operations to publish a message to an exchange.
type MessageBroker interface {
	// Connect opens the connection and channel used by the other operations.
	Connect(ctx context.Context) error
	// DeclareExchange declares a durable exchange of the given kind.
	DeclareExchange(ctx context.Context, name string, kind schema.ExchangeType) error
	// Publish sends the request's message to its exchange and routing key.
	Publish(ctx context.Context, req *schema.PublishRequest) error
	// Close releases the channel and connection. Safe to call when not connected.
	Close() error
}
