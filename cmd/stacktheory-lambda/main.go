package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/theory-cloud/tabletheory"
	"github.com/theory-cloud/tabletheory/pkg/session"

	"github.com/theory-cloud/stacktheory/pkg/api"
	"github.com/theory-cloud/stacktheory/pkg/config"
	"github.com/theory-cloud/stacktheory/pkg/logger"
	"github.com/theory-cloud/stacktheory/pkg/observability"
	obszap "github.com/theory-cloud/stacktheory/pkg/observability/zap"
	"github.com/theory-cloud/stacktheory/pkg/state"
)

func buildServer(ctx context.Context, cfg config.Config) (*api.Server, error) {
	structured, err := obszap.NewZapLogger(observability.LoggerConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}, obszap.WithEnvironmentErrorNotifications(ctx, obszap.DefaultEnvironmentErrorNotifications()))
	if err != nil {
		return nil, err
	}
	logger.SetLogger(structured)

	opts := []api.Option{api.WithLogger(structured)}
	if strings.TrimSpace(os.Getenv("STACKTHEORY_STATE_TABLE")) != "" {
		db, err := tabletheory.NewBasic(session.Config{Region: cfg.Region})
		if err != nil {
			return nil, err
		}
		opts = append(opts, api.WithStore(state.NewDynamoStore(db)))
	}
	return api.NewServer(cfg, opts...), nil
}

func main() {
	ctx := context.Background()
	server, err := buildServer(ctx, config.FromEnv())
	if err != nil {
		log.Fatalf("init stacktheory: %v", err)
	}
	lambda.Start(func(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		resp := server.ServeAPIGatewayProxy(ctx, event)
		_ = logger.Logger().Flush(ctx)
		return resp, nil
	})
}
