package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/amqp-producer/pkg/config"
	"github.com/zoff-tech/amqp-producer/pkg/telemetry"
	"github.com/zoff-tech/amqp-producer/schema"
)

type RabbitMQBrokerCreator func(settings *config.BrokerSettings, logger log.Interface) MessageBroker

// NewRabbitMqBroker returns an unconnected broker for the given settings.
var NewRabbitMqBroker RabbitMQBrokerCreator = func(settings *config.BrokerSettings, logger log.Interface) MessageBroker {
	return &rabbitMqBroker{
		settings: settings,
		logger:   logger,
		tracer:   otel.Tracer(telemetry.TracerName),
	}
}

// rabbitMqBroker owns a single connection and channel.
type rabbitMqBroker struct {
	connection amqpConnection
	channel    amqpChannel
	settings   *config.BrokerSettings
	logger     log.Interface
	tracer     trace.Tracer
}

func (r *rabbitMqBroker) Connect(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "Connect",
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("rabbitmq"),
			semconv.NetPeerNameKey.String(r.settings.Hostname),
			semconv.NetPeerPortKey.Int(r.settings.Port),
		),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if r.connection != nil && !r.connection.IsClosed() {
		return nil
	}

	logger := r.logger.WithFields(log.Fields{
		"host":  r.settings.Hostname,
		"port":  r.settings.Port,
		"vhost": r.settings.VirtualHost,
	})
	logger.Debug("connecting to RabbitMQ")

	uri := brokerURI(r.settings)
	conn, err := dial(uri.String(), dialConfig(r.settings))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: failed to open channel: %w", ErrConnection, err)
	}

	r.connection = conn
	r.channel = ch
	logger.Info("connected to RabbitMQ")
	return nil
}

func (r *rabbitMqBroker) DeclareExchange(ctx context.Context, name string, kind schema.ExchangeType) error {
	_, span := r.tracer.Start(ctx, "DeclareExchange",
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("rabbitmq"),
			semconv.MessagingDestinationKindKey.String(string(kind)),
			semconv.MessagingDestinationKey.String(name),
		),
	)
	defer span.End()

	if r.channel == nil {
		return ErrNotConnected
	}

	// Redeclaring with the same attributes is a no-op. Different attributes make
	// the broker reply 406 PRECONDITION_FAILED and close the channel.
	err := r.channel.ExchangeDeclare(
		name,
		string(kind),
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err == nil {
		r.logger.WithFields(log.Fields{"exchange": name, "type": kind}).Info("exchange declared")
		return nil
	}
	span.RecordError(err)

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && amqpErr.Code == amqp.PreconditionFailed {
		// Publishing continues on a fresh channel.
		if rerr := r.reopenChannel(); rerr != nil {
			span.SetStatus(codes.Error, rerr.Error())
			return fmt.Errorf("failed to reopen channel after exchange conflict: %w", rerr)
		}
		return fmt.Errorf("%w: %w", ErrExchangeConflict, err)
	}

	span.SetStatus(codes.Error, err.Error())
	return fmt.Errorf("failed to declare exchange: %w", err)
}

func (r *rabbitMqBroker) Publish(ctx context.Context, req *schema.PublishRequest) error {
	ctx, span := r.tracer.Start(ctx, "Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("rabbitmq"),
			semconv.MessagingDestinationKindKey.String(string(req.ExchangeType)),
			semconv.MessagingDestinationKey.String(req.Exchange),
			semconv.MessagingRabbitmqRoutingKeyKey.String(req.RoutingKey),
		),
	)
	defer span.End()

	if r.channel == nil {
		return ErrNotConnected
	}

	body, contentType, err := req.Encode()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// Inject the trace context into the message headers
	traceHeaders := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, traceHeaders)
	headers := make(amqp.Table, len(traceHeaders))
	for k, v := range traceHeaders {
		headers[k] = v
	}

	messageID := uuid.NewString()
	r.logger.WithFields(log.Fields{
		"exchange":    req.Exchange,
		"routing_key": req.RoutingKey,
		"message_id":  messageID,
		"message":     req.Message,
	}).Info("publishing message")

	err = r.channel.Publish(
		req.Exchange, req.RoutingKey, false, false,
		amqp.Publishing{
			Headers:      headers,
			ContentType:  contentType,
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now(),
			AppId:        r.settings.ConnectionName,
			Body:         body,
		},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(
		semconv.MessagingMessageIDKey.String(messageID),
		attribute.Int("messaging.message_payload_size_bytes", len(body)),
	)

	return nil
}

// Close closes the channel and then the connection. Each is released even if the other fails.
func (r *rabbitMqBroker) Close() error {
	var errs []error
	if r.channel != nil {
		if err := r.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("channel close: %w", err))
		}
		r.channel = nil
	}
	if r.connection != nil {
		if !r.connection.IsClosed() {
			if err := r.connection.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
				errs = append(errs, fmt.Errorf("connection close: %w", err))
			}
		}
		r.connection = nil
		r.logger.Debug("RabbitMQ connection closed")
	}
	return errors.Join(errs...)
}

func (r *rabbitMqBroker) reopenChannel() error {
	if r.connection == nil || r.connection.IsClosed() {
		return ErrNotConnected
	}
	ch, err := r.connection.Channel()
	if err != nil {
		return err
	}
	r.channel = ch
	return nil
}
