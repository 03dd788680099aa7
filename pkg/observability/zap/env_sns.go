package zap

import (
	"context"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// EnvironmentErrorNotificationsOptions lists, in priority order, the
// variables holding the alert topic and an optional subject override.
type EnvironmentErrorNotificationsOptions struct {
	TopicARNEnvVars []string
	SubjectEnvVars  []string
}

// DefaultEnvironmentErrorNotifications reads STACKTHEORY_ERROR_TOPIC_ARN, the
// variable the config layer maps to error_topic_arn, then SNS_ERROR_TOPIC_ARN.
func DefaultEnvironmentErrorNotifications() EnvironmentErrorNotificationsOptions {
	return EnvironmentErrorNotificationsOptions{
		TopicARNEnvVars: []string{"STACKTHEORY_ERROR_TOPIC_ARN", "SNS_ERROR_TOPIC_ARN"},
		SubjectEnvVars:  []string{"STACKTHEORY_ERROR_SUBJECT"},
	}
}

// WithEnvironmentErrorNotifications alerts on error entries through SNS when
// a topic is set in the environment, and does nothing otherwise. Failing to
// load AWS configuration fails logger construction.
func WithEnvironmentErrorNotifications(ctx context.Context, env EnvironmentErrorNotificationsOptions) Option {
	return func(opts *loggerOptions) {
		topicARN := lookupEnv(env.TopicARNEnvVars)
		if topicARN == "" {
			return
		}
		if ctx == nil {
			ctx = context.Background()
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			opts.initErr = err
			return
		}
		opts.notifier = NewSNSNotifier(sns.NewFromConfig(awsCfg), topicARN, SNSNotifierOptions{
			Subject: lookupEnv(env.SubjectEnvVars),
		})
	}
}

func lookupEnv(names []string) string {
	for _, name := range names {
		if value := strings.TrimSpace(os.Getenv(strings.TrimSpace(name))); value != "" {
			return value
		}
	}
	return ""
}
