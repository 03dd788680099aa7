package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type snsAPI interface {
	Publish(
		ctx context.Context,
		params *sns.PublishInput,
		optFns ...func(*sns.Options),
	) (*sns.PublishOutput, error)
}

// SNSPublisher publishes events as JSON messages to a topic.
type SNSPublisher struct {
	client   snsAPI
	topicARN string
}

var _ Publisher = (*SNSPublisher)(nil)

func NewSNSPublisher(client snsAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: strings.TrimSpace(topicARN)}
}

func (p *SNSPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.client == nil || p.topicARN == "" {
		return errMissingTarget
	}
	body, err := encode(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(subject(event)),
		Message:  aws.String(body),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"status": {DataType: aws.String("String"), StringValue: aws.String(event.Status)},
			"stack":  {DataType: aws.String("String"), StringValue: aws.String(nonEmpty(event.Stack))},
		},
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.topicARN, err)
	}
	return nil
}

// subject stays within the SNS limit of 100 characters.
func subject(event Event) string {
	s := "stacktheory " + event.Status
	if event.Stack != "" {
		s += ": " + event.Stack
	}
	if event.NodeID != "" {
		s += "/" + event.NodeID
	}
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

func nonEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
