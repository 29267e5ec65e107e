package broker

import (
	"github.com/streadway/amqp"

	"github.com/zoff-tech/amqp-producer/pkg/config"
)

// amqpChannel is the subset of *amqp.Channel used by the broker.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// amqpConnection is the subset of *amqp.Connection used by the broker.
type amqpConnection interface {
	Channel() (amqpChannel, error)
	Close() error
	IsClosed() bool
}

type connectionAdapter struct {
	*amqp.Connection
}

func (c *connectionAdapter) Channel() (amqpChannel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// dial opens an AMQP connection. Tests replace it to avoid a real broker.
var dial = func(uri string, cfg amqp.Config) (amqpConnection, error) {
	conn, err := amqp.DialConfig(uri, cfg)
	if err != nil {
		return nil, err
	}
	return &connectionAdapter{Connection: conn}, nil
}

func brokerURI(settings *config.BrokerSettings) amqp.URI {
	scheme := "amqp"
	if settings.UseTLS {
		scheme = "amqps"
	}
	return amqp.URI{
		Scheme:   scheme,
		Host:     settings.Hostname,
		Port:     settings.Port,
		Username: settings.Username,
		Password: settings.Password,
		Vhost:    settings.VirtualHost,
	}
}

func dialConfig(settings *config.BrokerSettings) amqp.Config {
	props := amqp.Table{}
	if settings.ConnectionName != "" {
		props["connection_name"] = settings.ConnectionName
	}
	return amqp.Config{
		Vhost:      settings.VirtualHost,
		Heartbeat:  settings.Heartbeat,
		Locale:     "en_US",
		Dial:       amqp.DefaultDial(settings.ConnectTimeout),
		Properties: props,
	}
}
