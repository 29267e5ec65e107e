package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/apex/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/amqp-producer/pkg/broker"
	"github.com/zoff-tech/amqp-producer/pkg/input"
	"github.com/zoff-tech/amqp-producer/pkg/telemetry"
	"github.com/zoff-tech/amqp-producer/schema"
)

const continuePrompt = "Publish another message? (y/n)"

// RequestResolver completes publish requests and answers the continue question.
type RequestResolver interface {
	Resolve(partial schema.PublishRequest, routingKeySet bool) (schema.PublishRequest, error)
	Confirm(question string) (bool, error)
}

// PublishProcessor runs the connect, declare, publish and dispose sequence.
type PublishProcessor struct {
	broker   broker.MessageBroker
	resolver RequestResolver
	logger   log.Interface
	tracer   trace.Tracer
}

// NewPublishProcessor creates a new instance of PublishProcessor.
func NewPublishProcessor(b broker.MessageBroker, resolver RequestResolver, logger log.Interface) *PublishProcessor {
	return &PublishProcessor{
		broker:   b,
		resolver: resolver,
		logger:   logger,
		tracer:   otel.Tracer(telemetry.TracerName),
	}
}

// Run resolves and publishes partial. With loop set it keeps asking whether to
// publish another message, prompting for a fresh request each time.
// Connection failures always end the run.
func (p *PublishProcessor) Run(ctx context.Context, partial schema.PublishRequest, routingKeySet, loop bool) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := p.resolver.Resolve(partial, routingKeySet)
		if err != nil {
			if loop && errors.Is(err, input.ErrInputClosed) {
				p.logger.Info("input closed, stopping")
				return nil
			}
			p.logger.WithError(err).Error("failed to resolve publish request")
			return fmt.Errorf("failed to resolve publish request: %w", err)
		}

		if err := p.Publish(ctx, &req); err != nil {
			if !loop || errors.Is(err, broker.ErrConnection) {
				return err
			}
		}

		if !loop {
			return nil
		}

		again, err := p.resolver.Confirm(continuePrompt)
		if err != nil && !errors.Is(err, input.ErrInputClosed) {
			p.logger.WithError(err).Error("failed to read answer")
			return err
		}
		if !again {
			return nil
		}
		partial = schema.PublishRequest{Encoding: partial.Encoding}
		routingKeySet = false
	}
}

// Publish runs one broker session for req. The broker is closed on every path.
func (p *PublishProcessor) Publish(ctx context.Context, req *schema.PublishRequest) (err error) {
	ctx, span := p.tracer.Start(ctx, "PublishRequest", trace.WithAttributes(
		attribute.String("exchange.name", req.Exchange),
		attribute.String("exchange.type", string(req.ExchangeType)),
		attribute.String("routing_key", req.RoutingKey),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger := p.logger.WithFields(log.Fields{
		"exchange":    req.Exchange,
		"type":        req.ExchangeType,
		"routing_key": req.RoutingKey,
	})

	if err := req.Validate(); err != nil {
		logger.WithError(err).Error("invalid publish request")
		return fmt.Errorf("invalid publish request: %w", err)
	}

	if err := p.broker.Connect(ctx); err != nil {
		logger.WithError(err).Error("Failed to initialize RabbitMQ connection.")
		return err
	}
	defer func() {
		if cerr := p.broker.Close(); cerr != nil {
			logger.WithError(cerr).Warn("failed to close RabbitMQ connection")
		}
	}()

	if err := p.broker.DeclareExchange(ctx, req.Exchange, req.ExchangeType); err != nil {
		if !errors.Is(err, broker.ErrExchangeConflict) {
			logger.WithError(err).Error("Failed to declare exchange.")
			return err
		}
		logger.WithError(err).Warn("exchange already exists with different attributes, publishing to the existing exchange")
	}

	if err := p.broker.Publish(ctx, req); err != nil {
		logger.WithError(err).Error("Failed to publish message.")
		return err
	}

	logger.Info("message published")
	return nil
}
