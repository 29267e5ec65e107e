package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ExchangeType is the AMQP exchange kind a request declares.
type ExchangeType string

const (
	ExchangeDirect  ExchangeType = "direct"
	ExchangeFanout  ExchangeType = "fanout"
	ExchangeTopic   ExchangeType = "topic"
	ExchangeHeaders ExchangeType = "headers"
)

// ExchangeTypes lists the supported exchange kinds in display order.
var ExchangeTypes = []ExchangeType{ExchangeDirect, ExchangeFanout, ExchangeTopic, ExchangeHeaders}

// Describe returns a one-line explanation of how the exchange kind routes messages.
func (t ExchangeType) Describe() string {
	switch t {
	case ExchangeDirect:
		return "Routes messages to queues where the routing key matches the binding key exactly."
	case ExchangeFanout:
		return "Broadcasts messages to all queues bound to the exchange, ignoring the routing key."
	case ExchangeTopic:
		return "Routes messages based on pattern matching between the routing key and binding key."
	case ExchangeHeaders:
		return "Routes messages based on matching headers rather than routing key."
	default:
		return ""
	}
}

// ParseExchangeType matches s case-insensitively against the supported kinds.
func ParseExchangeType(s string) (ExchangeType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, t := range ExchangeTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Encoding controls how the message text is turned into the AMQP body.
type Encoding string

const (
	// EncodingJSON sends the message as a JSON string literal.
	EncodingJSON Encoding = "json"
	// EncodingText sends the raw UTF-8 bytes of the message.
	EncodingText Encoding = "text"
)

// PublishRequest is a single message to publish to an exchange.
type PublishRequest struct {
	Exchange     string       `json:"exchange" validate:"required"`
	ExchangeType ExchangeType `json:"exchange_type" validate:"required,oneof=direct fanout topic headers"`
	RoutingKey   string       `json:"routing_key"`
	Message      string       `json:"message"`
	Encoding     Encoding     `json:"encoding" validate:"omitempty,oneof=json text"`
}

// NewPublishRequest creates a PublishRequest, normalizing the exchange name and type.
func NewPublishRequest(exchange, exchangeType, routingKey, message string) *PublishRequest {
	kind, ok := ParseExchangeType(exchangeType)
	if !ok {
		kind = ExchangeType(exchangeType)
	}
	return &PublishRequest{
		Exchange:     strings.TrimSpace(exchange),
		ExchangeType: kind,
		RoutingKey:   routingKey,
		Message:      message,
		Encoding:     EncodingJSON,
	}
}

// Validate checks the request before it is handed to a broker.
func (r *PublishRequest) Validate() error {
	return validator.New().Struct(r)
}

// Encode returns the message body and its content type.
func (r *PublishRequest) Encode() ([]byte, string, error) {
	switch r.Encoding {
	case EncodingText:
		return []byte(r.Message), "text/plain", nil
	case EncodingJSON, "":
		body, err := json.Marshal(r.Message)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode message: %w", err)
		}
		return body, "application/json", nil
	default:
		return nil, "", fmt.Errorf("unsupported encoding: %s", r.Encoding)
	}
}
