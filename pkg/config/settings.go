package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	configName = "producer"
	envPrefix  = "PRODUCER"
)

type Settings struct {
	RabbitMQ      BrokerSettings  `mapstructure:"rabbitmq"`
	Publish       PublishSettings `mapstructure:"publish"`
	Log           LogSettings     `mapstructure:"log"`
	Observability Observability   `mapstructure:"observability"` // Observability settings
}

func (c *Settings) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// LoadFromFile reads producer.yaml (and producer.<ENVIRONMENT>.yaml) from filePath,
// applies a .env file if present and overlays PRODUCER_* environment variables.
func LoadFromFile(filePath string) (*Settings, error) {
	if err := godotenv.Load(filepath.Join(filePath, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	env := getEnvWithDefaultLookup("ENVIRONMENT", "development")

	cfg := &Settings{}
	setDefaults()
	viper.SetConfigType("yaml") // Set the config type to YAML
	viper.SetConfigName(configName)
	viper.AddConfigPath(filePath) // path to config
	viper.AddConfigPath(".")      // current directory

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.WithError(err).Debug("no config file found, relying on defaults and env")
	}

	if err := mergeConfig(filePath, configName+"."+env); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to merge %s config: %w", env, err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Settings) LoadFromEnv() error {
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // env vars like PRODUCER_RABBITMQ_HOSTNAME

	// Bind environment variables explicitly to ensure they map correctly
	for _, key := range []string{
		"rabbitmq.hostname",
		"rabbitmq.port",
		"rabbitmq.username",
		"rabbitmq.password",
		"rabbitmq.virtual_host",
		"rabbitmq.use_tls",
		"rabbitmq.connect_timeout",
		"rabbitmq.heartbeat",
		"rabbitmq.connection_name",
		"publish.encoding",
		"log.level",
		"log.format",
		"observability.service_name",
		"observability.tracing_url",
	} {
		if err := viper.BindEnv(key); err != nil {
			return err
		}
	}

	return viper.Unmarshal(c)
}

func setDefaults() {
	viper.SetDefault("rabbitmq.hostname", "localhost")
	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.username", "guest")
	viper.SetDefault("rabbitmq.password", "guest")
	viper.SetDefault("rabbitmq.virtual_host", "/")
	viper.SetDefault("rabbitmq.use_tls", false)
	viper.SetDefault("rabbitmq.connect_timeout", 10*time.Second)
	viper.SetDefault("rabbitmq.heartbeat", 10*time.Second)
	viper.SetDefault("rabbitmq.connection_name", "amqp-producer")
	viper.SetDefault("publish.encoding", "json")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "cli")
	viper.SetDefault("observability.service_name", "amqp-producer")
	viper.SetDefault("observability.tracing_url", "")
}

func mergeConfig(path string, name string) error {
	viper.SetConfigName(name)
	viper.AddConfigPath(path)
	err := viper.MergeInConfig()
	if err != nil {
		return err
	}
	return nil
}

func getEnvWithDefaultLookup(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}
