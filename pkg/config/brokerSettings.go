package config

import "time"

// BrokerSettings holds configuration for connecting to the RabbitMQ broker.
type BrokerSettings struct {
	Hostname       string        `mapstructure:"hostname" validate:"required"`
	Port           int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	VirtualHost    string        `mapstructure:"virtual_host" validate:"required"`
	UseTLS         bool          `mapstructure:"use_tls"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`
	Heartbeat      time.Duration `mapstructure:"heartbeat" validate:"gte=0"`
	ConnectionName string        `mapstructure:"connection_name"`
}

// PublishSettings controls how messages are written to the broker.
type PublishSettings struct {
	Encoding string `mapstructure:"encoding" validate:"required,oneof=json text"`
}
