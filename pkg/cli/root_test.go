package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/zoff-tech/amqp-producer/pkg/broker"
	"github.com/zoff-tech/amqp-producer/pkg/config"
	"github.com/zoff-tech/amqp-producer/schema"
)

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) Connect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *mockBroker) DeclareExchange(ctx context.Context, name string, kind schema.ExchangeType) error {
	return m.Called(ctx, name, kind).Error(0)
}
func (m *mockBroker) Publish(ctx context.Context, req *schema.PublishRequest) error {
	return m.Called(ctx, req).Error(0)
}
func (m *mockBroker) Close() error {
	return m.Called().Error(0)
}

func testConfig() *config.Settings {
	return &config.Settings{
		RabbitMQ: config.BrokerSettings{
			Hostname:       "localhost",
			Port:           5672,
			Username:       "guest",
			Password:       "guest",
			VirtualHost:    "/",
			ConnectTimeout: time.Second,
		},
		Publish:       config.PublishSettings{Encoding: "json"},
		Log:           config.LogSettings{Level: "info", Format: "text"},
		Observability: config.Observability{ServiceName: "test-service"},
	}
}

type testApp struct {
	*App
	out    *bytes.Buffer
	errOut *bytes.Buffer
	broker *mockBroker
}

func newTestApp(t *testing.T, stdin string) *testApp {
	t.Helper()
	original := log.Log
	t.Cleanup(func() { log.Log = original })

	b := new(mockBroker)
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	return &testApp{
		App: &App{
			In:  strings.NewReader(stdin),
			Out: out,
			Err: errOut,
			LoadConfig: func(path string) (*config.Settings, error) {
				return testConfig(), nil
			},
			NewBroker: func(settings *config.BrokerSettings, logger log.Interface) broker.MessageBroker {
				return b
			},
		},
		out:    out,
		errOut: errOut,
		broker: b,
	}
}

func TestExecute_SlashHelp(t *testing.T) {
	app := newTestApp(t, "")
	app.LoadConfig = func(string) (*config.Settings, error) {
		t.Fatal("config must not be loaded for /h")
		return nil, nil
	}

	code := app.Execute(context.Background(), []string{"/h"})

	assert.Equal(t, ExitOK, code)
	out := app.out.String()
	assert.Contains(t, out, "RabbitMQ Publisher Help:")
	assert.Contains(t, out, "-e, --exchange")
	assert.Contains(t, out, "-t, --type")
	assert.Contains(t, out, "-r, --routingkey")
	assert.Contains(t, out, "-m, --message")
	assert.Contains(t, out, "/h")
	for _, kind := range schema.ExchangeTypes {
		assert.Contains(t, out, kind.Describe())
	}
	app.broker.AssertNotCalled(t, "Connect", mock.Anything)
}

func TestExecute_HelpFlag(t *testing.T) {
	app := newTestApp(t, "")

	code := app.Execute(context.Background(), []string{"--help"})

	assert.Equal(t, ExitOK, code)
	assert.Contains(t, app.out.String(), "Exchange Types:")
	app.broker.AssertNotCalled(t, "Connect", mock.Anything)
}

func TestExecute_FlagsPublishOnce(t *testing.T) {
	app := newTestApp(t, "")
	b := app.broker
	b.On("Connect", mock.Anything).Return(nil).Once()
	b.On("DeclareExchange", mock.Anything, "orders", schema.ExchangeDirect).Return(nil).Once()
	b.On("Publish", mock.Anything, mock.MatchedBy(func(req *schema.PublishRequest) bool {
		body, contentType, err := req.Encode()
		return err == nil &&
			req.Exchange == "orders" &&
			req.RoutingKey == "new-order" &&
			string(body) == `"hello"` &&
			contentType == "application/json"
	})).Return(nil).Once()
	b.On("Close").Return(nil).Once()

	code := app.Execute(context.Background(), []string{"-e", "orders", "-t", "direct", "-r", "new-order", "-m", "hello"})

	assert.Equal(t, ExitOK, code)
	assert.Empty(t, app.out.String(), "no prompts expected")
	b.AssertExpectations(t)
}

func TestExecute_MessageMayBeSlashH(t *testing.T) {
	app := newTestApp(t, "")
	b := app.broker
	b.On("Connect", mock.Anything).Return(nil).Once()
	b.On("DeclareExchange", mock.Anything, "orders", schema.ExchangeDirect).Return(nil).Once()
	b.On("Publish", mock.Anything, mock.MatchedBy(func(req *schema.PublishRequest) bool {
		body, _, err := req.Encode()
		return err == nil && string(body) == `"/h"`
	})).Return(nil).Once()
	b.On("Close").Return(nil).Once()

	code := app.Execute(context.Background(), []string{"-e", "orders", "-t", "direct", "-r", "rk", "-m", "/h"})

	assert.Equal(t, ExitOK, code)
	assert.NotContains(t, app.out.String(), "RabbitMQ Publisher Help:")
	b.AssertExpectations(t)
}

func TestExecute_NormalizesFlagValues(t *testing.T) {
	app := newTestApp(t, "")
	b := app.broker
	b.On("Connect", mock.Anything).Return(nil).Once()
	b.On("DeclareExchange", mock.Anything, "orders", schema.ExchangeTopic).Return(nil).Once()
	b.On("Publish", mock.Anything, mock.MatchedBy(func(req *schema.PublishRequest) bool {
		return req.Exchange == "orders" && req.ExchangeType == schema.ExchangeTopic && req.Encoding == schema.EncodingJSON
	})).Return(nil).Once()
	b.On("Close").Return(nil).Once()

	code := app.Execute(context.Background(), []string{"-e", " orders ", "-t", "TOPIC", "-r", "order.*", "-m", "hi"})

	assert.Equal(t, ExitOK, code)
	assert.Empty(t, app.out.String())
	b.AssertExpectations(t)
}

func TestExecute_SlashHelpAfterFlags(t *testing.T) {
	app := newTestApp(t, "")

	code := app.Execute(context.Background(), []string{"-e", "orders", "/h"})

	assert.Equal(t, ExitOK, code)
	assert.Contains(t, app.out.String(), "RabbitMQ Publisher Help:")
	app.broker.AssertNotCalled(t, "Connect", mock.Anything)
}

func TestExecute_UnknownArgument(t *testing.T) {
	app := newTestApp(t, "")

	code := app.Execute(context.Background(), []string{"publish"})

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, app.errOut.String(), `unknown argument "publish"`)
	app.broker.AssertNotCalled(t, "Connect", mock.Anything)
}

func TestExecute_ConnectionRefused(t *testing.T) {
	app := newTestApp(t, "")
	app.broker.On("Connect", mock.Anything).
		Return(fmt.Errorf("%w: dial tcp 127.0.0.1:5672: connect: connection refused", broker.ErrConnection))

	code := app.Execute(context.Background(), []string{"--exchange", "orders", "--type", "direct", "--routingkey", "new-order", "--message", "hello"})

	assert.Equal(t, ExitConnectionFailure, code)
	assert.Contains(t, app.errOut.String(), "Failed to initialize RabbitMQ connection.")
	app.broker.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestExecute_ExchangeConflictExitsZero(t *testing.T) {
	app := newTestApp(t, "")
	b := app.broker
	b.On("Connect", mock.Anything).Return(nil)
	b.On("DeclareExchange", mock.Anything, "orders", schema.ExchangeFanout).
		Return(fmt.Errorf("%w: inequivalent arg 'type'", broker.ErrExchangeConflict))
	b.On("Publish", mock.Anything, mock.Anything).Return(nil)
	b.On("Close").Return(nil)

	code := app.Execute(context.Background(), []string{"-e", "orders", "-t", "fanout", "-r", "", "-m", "hello"})

	assert.Equal(t, ExitOK, code)
	b.AssertExpectations(t)
}

func TestExecute_PublishFailure(t *testing.T) {
	app := newTestApp(t, "")
	b := app.broker
	b.On("Connect", mock.Anything).Return(nil)
	b.On("DeclareExchange", mock.Anything, "orders", schema.ExchangeDirect).Return(nil)
	b.On("Publish", mock.Anything, mock.Anything).Return(errors.New("failed to publish message: channel closed"))
	b.On("Close").Return(nil)

	code := app.Execute(context.Background(), []string{"-e", "orders", "-t", "direct", "-r", "new-order", "-m", "hello"})

	assert.Equal(t, ExitFailure, code)
	assert.NotContains(t, app.errOut.String(), "Error: ", "processor errors are only logged once")
	b.AssertExpectations(t)
}

func TestExecute_MessagePromptedWhenMissing(t *testing.T) {
	app := newTestApp(t, "typed message\n")
	b := app.broker
	b.On("Connect", mock.Anything).Return(nil)
	b.On("DeclareExchange", mock.Anything, "orders", schema.ExchangeDirect).Return(nil)
	b.On("Publish", mock.Anything, mock.MatchedBy(func(req *schema.PublishRequest) bool {
		return req.Message == "typed message"
	})).Return(nil)
	b.On("Close").Return(nil)

	code := app.Execute(context.Background(), []string{"-e", "orders", "-t", "direct", "-r", "new-order"})

	assert.Equal(t, ExitOK, code)
	assert.Equal(t, "Please enter the message to publish:\n", app.out.String())
	b.AssertExpectations(t)
}

func TestExecute_MissingFlagsSwitchToInteractive(t *testing.T) {
	app := newTestApp(t, "bogus\ntopic\norder.created\nhello\nn\n")
	b := app.broker
	b.On("Connect", mock.Anything).Return(nil).Once()
	b.On("DeclareExchange", mock.Anything, "orders", schema.ExchangeTopic).Return(nil).Once()
	b.On("Publish", mock.Anything, mock.MatchedBy(func(req *schema.PublishRequest) bool {
		return req.RoutingKey == "order.created" && req.Message == "hello"
	})).Return(nil).Once()
	b.On("Close").Return(nil).Once()

	code := app.Execute(context.Background(), []string{"-e", "orders"})

	assert.Equal(t, ExitOK, code)
	out := app.out.String()
	assert.NotContains(t, out, "Please enter the exchange name:")
	assert.Equal(t, 2, strings.Count(out, "Please enter the exchange type"))
	assert.Contains(t, out, "Publish another message? (y/n)")
	b.AssertExpectations(t)
}

func TestExecute_ConfigError(t *testing.T) {
	app := newTestApp(t, "")
	app.LoadConfig = func(string) (*config.Settings, error) {
		return nil, errors.New("invalid configuration: port out of range")
	}

	code := app.Execute(context.Background(), []string{"-e", "orders", "-t", "direct", "-r", "rk", "-m", "hi"})

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, app.errOut.String(), "Error: invalid configuration: port out of range")
	app.broker.AssertNotCalled(t, "Connect", mock.Anything)
}

func TestExecute_ConfigPathFlag(t *testing.T) {
	app := newTestApp(t, "")
	var gotPath string
	app.LoadConfig = func(path string) (*config.Settings, error) {
		gotPath = path
		return nil, errors.New("stop")
	}

	app.Execute(context.Background(), []string{"--config", "/etc/amqp-producer"})

	assert.Equal(t, "/etc/amqp-producer", gotPath)
}

func TestExecute_UnknownFlag(t *testing.T) {
	app := newTestApp(t, "")

	code := app.Execute(context.Background(), []string{"--bogus"})

	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, app.errOut.String(), "unknown flag: --bogus")
}
