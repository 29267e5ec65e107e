// Package logging builds the apex/log logger used by the producer.
package logging

import (
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"

	"github.com/zoff-tech/amqp-producer/pkg/config"
)

// New returns a logger writing to w in the configured format and installs it
// as the package-level apex/log logger.
func New(cfg config.LogSettings, w io.Writer) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var handler log.Handler
	switch cfg.Format {
	case "cli", "":
		handler = cli.New(w)
	case "text":
		handler = text.New(w)
	case "json":
		handler = json.New(w)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	logger := &log.Logger{Handler: handler, Level: level}
	log.Log = logger
	return logger, nil
}
