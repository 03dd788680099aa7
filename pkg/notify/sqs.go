package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type sqsAPI interface {
	SendMessage(
		ctx context.Context,
		params *sqs.SendMessageInput,
		optFns ...func(*sqs.Options),
	) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends events as JSON messages to a queue.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
}

var _ Publisher = (*SQSPublisher)(nil)

func NewSQSPublisher(client sqsAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{client: client, queueURL: strings.TrimSpace(queueURL)}
}

func (p *SQSPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.client == nil || p.queueURL == "" {
		return errMissingTarget
	}
	body, err := encode(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(body),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"status":        {DataType: aws.String("String"), StringValue: aws.String(event.Status)},
			"deployment_id": {DataType: aws.String("String"), StringValue: aws.String(nonEmpty(event.DeploymentID))},
		},
	})
	if err != nil {
		return fmt.Errorf("send to %s: %w", p.queueURL, err)
	}
	return nil
}
