package testkit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type SNSPublishCall struct {
	TopicARN   string
	Subject    string
	Message    string
	Attributes map[string]string
}

// FakeSNSClient records publishes made by notifiers and publishers.
type FakeSNSClient struct {
	mu sync.Mutex

	Calls []SNSPublishCall

	PublishErr error
	nextID     int
}

func NewFakeSNSClient() *FakeSNSClient {
	return &FakeSNSClient{nextID: 1}
}

func (f *FakeSNSClient) Publish(
	_ context.Context,
	params *sns.PublishInput,
	_ ...func(*sns.Options),
) (*sns.PublishOutput, error) {
	if f == nil {
		return nil, errors.New("testkit: sns client is nil")
	}
	if params == nil {
		return nil, errors.New("testkit: publish input is nil")
	}

	topicARN := strings.TrimSpace(aws.ToString(params.TopicArn))
	if topicARN == "" {
		return nil, errors.New("testkit: topic arn is empty")
	}

	attrs := map[string]string{}
	for k, v := range params.MessageAttributes {
		attrs[k] = aws.ToString(v.StringValue)
	}

	f.mu.Lock()
	f.Calls = append(f.Calls, SNSPublishCall{
		TopicARN:   topicARN,
		Subject:    aws.ToString(params.Subject),
		Message:    aws.ToString(params.Message),
		Attributes: attrs,
	})
	err := f.PublishErr
	id := f.nextID
	f.nextID++
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}

	return &sns.PublishOutput{
		MessageId: aws.String("msg-" + strconv.Itoa(id)),
	}, nil
}

// Messages returns the bodies of every recorded publish.
func (f *FakeSNSClient) Messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		out = append(out, c.Message)
	}
	return out
}
