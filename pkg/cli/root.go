package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/zoff-tech/amqp-producer/pkg/broker"
	"github.com/zoff-tech/amqp-producer/pkg/config"
	"github.com/zoff-tech/amqp-producer/pkg/input"
	"github.com/zoff-tech/amqp-producer/pkg/logging"
	"github.com/zoff-tech/amqp-producer/pkg/processor"
	"github.com/zoff-tech/amqp-producer/pkg/telemetry"
	"github.com/zoff-tech/amqp-producer/schema"
)

// helpArg is the positional argument that prints help instead of publishing.
const helpArg = "/h"

// Process exit codes.
const (
	ExitOK                = 0
	ExitConnectionFailure = 1
	ExitFailure           = 2
)

// App holds the collaborators of a producer run so tests can replace them.
type App struct {
	In         io.Reader
	Out        io.Writer
	Err        io.Writer
	LoadConfig func(path string) (*config.Settings, error)
	NewBroker  broker.RabbitMQBrokerCreator
}

// DefaultApp wires the terminal, the config files and a real RabbitMQ broker.
func DefaultApp() *App {
	return &App{
		In:         os.Stdin,
		Out:        os.Stdout,
		Err:        os.Stderr,
		LoadConfig: config.LoadFromFile,
		NewBroker:  broker.NewRabbitMqBroker,
	}
}

type options struct {
	exchange     string
	exchangeType string
	routingKey   string
	message      string
	interactive  bool
	configPath   string
}

// reportedError is an error that has already been logged by the processor.
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error { return e.error }

// Execute runs the producer with args and returns the process exit code.
func (a *App) Execute(ctx context.Context, args []string) int {
	if args == nil {
		args = []string{}
	}

	cmd := a.NewRootCommand()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var reported reportedError
	if !errors.As(err, &reported) {
		fmt.Fprintf(a.Err, "Error: %v\n", err)
	}
	if errors.Is(err, broker.ErrConnection) {
		return ExitConnectionFailure
	}
	return ExitFailure
}

// NewRootCommand builds the cobra command for a single producer run.
func (a *App) NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "amqp-producer",
		Short:         "Publish a message to a RabbitMQ exchange",
		Long:          "Declares a durable exchange and publishes one message to it with a routing key.\nMissing exchange, type or routing key flags are prompted for interactively.",
		Args:          helpArgOnly,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				a.printHelp(cmd)
				return nil
			}
			return a.run(cmd, opts)
		},
	}
	cmd.SetIn(a.In)
	cmd.SetOut(a.Out)
	cmd.SetErr(a.Err)
	cmd.SetHelpFunc(func(c *cobra.Command, _ []string) { a.printHelp(c) })

	bindFlags(cmd.Flags(), opts)
	return cmd
}

// helpArgOnly accepts no positional arguments other than /h. Flag values such
// as "-m /h" never reach it.
func helpArgOnly(_ *cobra.Command, args []string) error {
	for _, arg := range args {
		if arg != helpArg {
			return fmt.Errorf("unknown argument %q", arg)
		}
	}
	return nil
}

func bindFlags(fs *pflag.FlagSet, opts *options) {
	fs.StringVarP(&opts.exchange, "exchange", "e", "", "Specify the exchange name. (required)")
	fs.StringVarP(&opts.exchangeType, "type", "t", "", "Specify the exchange type (direct, fanout, topic, headers). (required)")
	fs.StringVarP(&opts.routingKey, "routingkey", "r", "", "Specify the routing key. (required)")
	fs.StringVarP(&opts.message, "message", "m", "", "Specify the message to be published.")
	fs.BoolVarP(&opts.interactive, "interactive", "i", false, "Keep prompting for further messages after publishing.")
	fs.StringVarP(&opts.configPath, "config", "c", ".", "Directory containing producer.yaml.")
}

func (a *App) run(cmd *cobra.Command, opts *options) error {
	ctx := cmd.Context()

	cfg, err := a.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log, a.Err)
	if err != nil {
		return err
	}

	if cfg.Observability.TracingURL != "" {
		shutdown, err := telemetry.Init(ctx, cfg.Observability)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	fs := cmd.Flags()
	routingKeySet := fs.Changed("routingkey")
	complete := fs.Changed("exchange") && fs.Changed("type") && routingKeySet
	if !complete {
		logger.Debug("exchange, type or routing key not supplied, prompting interactively")
	}

	partial := *schema.NewPublishRequest(opts.exchange, opts.exchangeType, opts.routingKey, opts.message)
	partial.Encoding = schema.Encoding(cfg.Publish.Encoding)

	resolver := input.NewResolver(a.In, a.Out, logger)
	b := a.NewBroker(&cfg.RabbitMQ, logger)
	p := processor.NewPublishProcessor(b, resolver, logger)

	if err := p.Run(ctx, partial, routingKeySet, opts.interactive || !complete); err != nil {
		return reportedError{err}
	}
	return nil
}

func (a *App) printHelp(cmd *cobra.Command) {
	fmt.Fprintln(a.Out, "RabbitMQ Publisher Help:")
	fmt.Fprint(a.Out, cmd.UsageString())
	fmt.Fprintf(a.Out, "  %-22sShow this help\n", helpArg)
	fmt.Fprintln(a.Out)
	fmt.Fprintln(a.Out, "Exchange Types:")
	for _, kind := range schema.ExchangeTypes {
		fmt.Fprintf(a.Out, " - %-8s: %s\n", kind, kind.Describe())
	}
}
