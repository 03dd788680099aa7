package zap

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/theory-cloud/stacktheory/pkg/observability"
	"github.com/theory-cloud/stacktheory/pkg/sanitization"
)

// SNS limits for a single publish.
const (
	maxSubjectLen = 100
	maxMessageLen = 256 * 1024
)

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSNotifierOptions struct {
	// Subject overrides the default "stacktheory error: <stack>/<node>".
	Subject string
}

// SNSNotifier publishes error entries as JSON alerts. Deployment scope is
// also sent as message attributes so subscriptions can filter on a stack.
type SNSNotifier struct {
	client   snsAPI
	topicARN string
	subject  string
}

var _ observability.ErrorNotifier = (*SNSNotifier)(nil)

func NewSNSNotifier(client snsAPI, topicARN string, opts SNSNotifierOptions) *SNSNotifier {
	return &SNSNotifier{
		client:   client,
		topicARN: strings.TrimSpace(topicARN),
		subject:  strings.TrimSpace(opts.Subject),
	}
}

type alert struct {
	Level        string         `json:"level"`
	Message      string         `json:"message"`
	Timestamp    string         `json:"timestamp"`
	DeploymentID string         `json:"deployment_id,omitempty"`
	Stack        string         `json:"stack,omitempty"`
	NodeID       string         `json:"node_id,omitempty"`
	Fields       map[string]any `json:"fields,omitempty"`
	Region       string         `json:"region,omitempty"`
	Function     string         `json:"function,omitempty"`
}

func (n *SNSNotifier) Notify(ctx context.Context, entry observability.LogEntry) error {
	if n == nil || n.client == nil {
		return errors.New("observability/zap: sns notifier has no client")
	}
	if n.topicARN == "" {
		return errors.New("observability/zap: sns topic arn is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	body, err := json.Marshal(alert{
		Level:        entry.Level,
		Message:      entry.Message,
		Timestamp:    entry.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		DeploymentID: entry.DeploymentID,
		Stack:        entry.Stack,
		NodeID:       entry.NodeID,
		Fields:       entry.Fields,
		Region:       os.Getenv("AWS_REGION"),
		Function:     os.Getenv("AWS_LAMBDA_FUNCTION_NAME"),
	})
	if err != nil {
		return err
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(n.topicARN),
		Subject:           aws.String(truncate(n.subjectFor(entry), maxSubjectLen)),
		Message:           aws.String(truncate(string(body), maxMessageLen)),
		MessageAttributes: scopeAttributes(entry),
	})
	return err
}

func (n *SNSNotifier) subjectFor(entry observability.LogEntry) string {
	subject := n.subject
	if subject == "" {
		subject = "stacktheory error"
		switch {
		case entry.Stack != "" && entry.NodeID != "":
			subject += ": " + entry.Stack + "/" + entry.NodeID
		case entry.Stack != "":
			subject += ": " + entry.Stack
		}
	}
	return sanitization.SanitizeLogString(subject)
}

func scopeAttributes(entry observability.LogEntry) map[string]snstypes.MessageAttributeValue {
	attrs := map[string]snstypes.MessageAttributeValue{}
	for name, value := range map[string]string{
		"deployment_id": entry.DeploymentID,
		"stack":         entry.Stack,
		"node_id":       entry.NodeID,
	} {
		if value != "" {
			attrs[name] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(value)}
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
