package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/theory-cloud/tabletheory"
	"github.com/theory-cloud/tabletheory/pkg/session"
	"github.com/urfave/cli/v2"

	stacktheory "github.com/theory-cloud/stacktheory"
	"github.com/theory-cloud/stacktheory/pkg/config"
	"github.com/theory-cloud/stacktheory/pkg/deploy"
	"github.com/theory-cloud/stacktheory/pkg/logger"
	"github.com/theory-cloud/stacktheory/pkg/notify"
	"github.com/theory-cloud/stacktheory/pkg/observability"
	obszap "github.com/theory-cloud/stacktheory/pkg/observability/zap"
	"github.com/theory-cloud/stacktheory/pkg/state"
	"github.com/theory-cloud/stacktheory/pkg/topology"
)

var version = "dev"

const (
	exitOK           = 0
	exitDeployFailed = 1
	exitUsage        = 2
)

func main() {
	os.Exit(run(context.Background(), os.Args, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := newApp(stdout, stderr)
	err := app.RunContext(ctx, args)
	_ = logger.Logger().Flush(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "stacktheory: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	if errors.Is(err, deploy.ErrDeploymentFailed) {
		return exitDeployFailed
	}
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return exitUsage
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:            "stacktheory",
		Usage:           "plan and provision infrastructure topologies",
		Version:         version,
		Writer:          stdout,
		ErrWriter:       stderr,
		HideHelpCommand: true,
		ExitErrHandler:  func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file", EnvVars: []string{"STACKTHEORY_CONFIG"}},
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "log level (debug, info, warn, error)", EnvVars: []string{"STACKTHEORY_LOG_LEVEL"}},
			&cli.StringFlag{Name: "log-format", Value: "console", Usage: "log format (console, json)", EnvVars: []string{"STACKTHEORY_LOG_FORMAT"}},
			&cli.StringFlag{Name: "app", Usage: "application name"},
			&cli.StringFlag{Name: "stage", Usage: "deployment stage"},
			&cli.StringFlag{Name: "tenant", Usage: "tenant name"},
			&cli.StringFlag{Name: "region", Usage: "AWS region"},
			&cli.StringSliceFlag{Name: "set", Usage: "configuration override as key=value (repeatable)"},
			&cli.StringFlag{Name: "state", Value: "file", Usage: "state backend (file, dynamodb, memory)", EnvVars: []string{"STACKTHEORY_STATE_BACKEND"}},
			&cli.StringFlag{Name: "state-dir", Value: ".stacktheory/state", Usage: "directory of the file state backend", EnvVars: []string{"STACKTHEORY_STATE_DIR"}},
			&cli.StringFlag{Name: "dynamodb-endpoint", Usage: "DynamoDB endpoint override for the dynamodb backend", EnvVars: []string{"STACKTHEORY_DYNAMODB_ENDPOINT"}},
		},
		Before: func(c *cli.Context) error {
			log, err := newLogger(c)
			if err != nil {
				return cli.Exit(err.Error(), exitUsage)
			}
			logger.SetLogger(log)
			return nil
		},
		Commands: []*cli.Command{
			planCommand(),
			graphCommand(),
			applyCommand(),
			synthCommand(),
			stateCommand(),
			topologiesCommand(),
		},
	}
}

// newLogger writes to stderr so command output on stdout stays parseable.
func newLogger(c *cli.Context) (observability.StructuredLogger, error) {
	return obszap.NewZapLogger(observability.LoggerConfig{
		Level:  c.String("log-level"),
		Format: c.String("log-format"),
	},
		obszap.WithOutput(c.App.ErrWriter),
		obszap.WithEnvironmentErrorNotifications(c.Context, obszap.DefaultEnvironmentErrorNotifications()),
	)
}

// loadConfig layers environment, the config file and flags, in that order.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.FromEnv()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadFile(path, cfg); err != nil {
			return cfg, cli.Exit(err.Error(), exitUsage)
		}
	}
	for flag, key := range map[string]string{
		"app":    config.KeyAppName,
		"stage":  config.KeyStage,
		"tenant": config.KeyTenant,
		"region": config.KeyRegion,
	} {
		if value := c.String(flag); value != "" {
			_ = cfg.Set(key, value)
		}
	}
	for _, pair := range c.StringSlice("set") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return cfg, cli.Exit(fmt.Sprintf("invalid --set %q: expected key=value", pair), exitUsage)
		}
		if err := cfg.Set(key, value); err != nil {
			return cfg, cli.Exit(err.Error(), exitUsage)
		}
	}
	return cfg, nil
}

func loadTopology(c *cli.Context, cfg config.Config) ([]*stacktheory.Node, error) {
	source := c.Args().First()
	if source == "" {
		return nil, cli.Exit(fmt.Sprintf("a topology is required: a file or one of %s", strings.Join(topology.Builtins(), ", ")), exitUsage)
	}
	return topology.Load(source, cfg)
}

func openStore(c *cli.Context, cfg config.Config) (state.Store, error) {
	switch strings.ToLower(c.String("state")) {
	case "file", "":
		return state.NewFileStore(c.String("state-dir")), nil
	case "memory":
		return state.NewMemoryStore(), nil
	case "dynamodb", "dynamo":
		if cfg.StateTable != "" {
			_ = os.Setenv("STACKTHEORY_STATE_TABLE", cfg.StateTable)
		}
		sc := session.Config{Region: cfg.Region, Endpoint: c.String("dynamodb-endpoint")}
		if sc.Endpoint != "" {
			sc.AWSConfigOptions = []func(*awsconfig.LoadOptions) error{
				awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("local", "local", "")),
			}
		}
		db, err := tabletheory.NewBasic(sc)
		if err != nil {
			return nil, fmt.Errorf("init state table: %w", err)
		}
		return state.NewDynamoStore(db), nil
	default:
		return nil, cli.Exit(fmt.Sprintf("unknown state backend %q", c.String("state")), exitUsage)
	}
}

// openPublisher fans deployment events out to the configured topic and queue.
func openPublisher(ctx context.Context, cfg config.Config) (notify.Publisher, error) {
	if cfg.EventTopicARN == "" && cfg.EventQueueURL == "" {
		return notify.NopPublisher{}, nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	var publishers []notify.Publisher
	if cfg.EventTopicARN != "" {
		publishers = append(publishers, notify.NewSNSPublisher(sns.NewFromConfig(awsCfg), cfg.EventTopicARN))
	}
	if cfg.EventQueueURL != "" {
		publishers = append(publishers, notify.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.EventQueueURL))
	}
	return notify.Multi(publishers...), nil
}
