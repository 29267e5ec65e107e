// Package input resolves publish requests from pre-supplied values and
// interactive prompts.
package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/apex/log"

	"github.com/zoff-tech/amqp-producer/schema"
)

// ErrInputClosed is returned when the input source ends before an answer is read.
var ErrInputClosed = errors.New("input closed")

// Resolver prompts on out and reads answers line by line from in.
type Resolver struct {
	scanner *bufio.Scanner
	out     io.Writer
	logger  log.Interface
}

// NewResolver creates a Resolver reading from in and writing prompts to out.
func NewResolver(in io.Reader, out io.Writer, logger log.Interface) *Resolver {
	return &Resolver{
		scanner: bufio.NewScanner(in),
		out:     out,
		logger:  logger,
	}
}

// Resolve returns a complete request. Valid fields of partial are kept and the
// rest are prompted for. An exchange type outside the supported set is never
// returned.
func (r *Resolver) Resolve(partial schema.PublishRequest, routingKeySet bool) (schema.PublishRequest, error) {
	req := partial
	req.Exchange = strings.TrimSpace(req.Exchange)

	var err error
	if req.Exchange == "" {
		if req.Exchange, err = r.ExchangeName(); err != nil {
			return schema.PublishRequest{}, err
		}
	}

	if req.ExchangeType != "" {
		if kind, ok := schema.ParseExchangeType(string(req.ExchangeType)); ok {
			req.ExchangeType = kind
		} else {
			r.warnInvalidType(string(req.ExchangeType))
			req.ExchangeType = ""
		}
	}
	if req.ExchangeType == "" {
		if req.ExchangeType, err = r.ExchangeType(); err != nil {
			return schema.PublishRequest{}, err
		}
	}

	if !routingKeySet {
		if req.RoutingKey, err = r.Prompt("Please enter the routing key:"); err != nil {
			return schema.PublishRequest{}, err
		}
	}

	if req.Message == "" {
		if req.Message, err = r.Prompt("Please enter the message to publish:"); err != nil {
			return schema.PublishRequest{}, err
		}
	}

	if req.Encoding == "" {
		req.Encoding = schema.EncodingJSON
	}
	return req, nil
}

// ExchangeName prompts until a non-blank exchange name is entered.
func (r *Resolver) ExchangeName() (string, error) {
	for {
		name, err := r.Prompt("Please enter the exchange name:")
		if err != nil {
			return "", err
		}
		if name = strings.TrimSpace(name); name != "" {
			return name, nil
		}
		r.logger.Warn("Exchange name cannot be empty.")
	}
}

// ExchangeType prompts until one of direct, fanout, topic or headers is entered.
func (r *Resolver) ExchangeType() (schema.ExchangeType, error) {
	for {
		answer, err := r.Prompt("Please enter the exchange type (direct, fanout, topic, headers):")
		if err != nil {
			return "", err
		}
		if kind, ok := schema.ParseExchangeType(answer); ok {
			return kind, nil
		}
		r.warnInvalidType(answer)
	}
}

// Confirm asks a yes/no question. Only y or yes count as yes.
func (r *Resolver) Confirm(question string) (bool, error) {
	answer, err := r.Prompt(question)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Prompt writes prompt on its own line and returns the next input line.
func (r *Resolver) Prompt(prompt string) (string, error) {
	if _, err := fmt.Fprintln(r.out, prompt); err != nil {
		return "", err
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return "", ErrInputClosed
	}
	return strings.TrimRight(r.scanner.Text(), "\r"), nil
}

func (r *Resolver) warnInvalidType(value string) {
	r.logger.WithField("type", value).Warn("Invalid exchange type. Please use one of: direct, fanout, topic, headers.")
}
