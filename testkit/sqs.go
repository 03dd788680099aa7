package testkit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type SQSSendCall struct {
	QueueURL   string
	Body       string
	Attributes map[string]string
}

// FakeSQSClient records messages sent by queue publishers.
type FakeSQSClient struct {
	mu sync.Mutex

	Calls []SQSSendCall

	SendErr error
	nextID  int
}

func NewFakeSQSClient() *FakeSQSClient {
	return &FakeSQSClient{nextID: 1}
}

func (f *FakeSQSClient) SendMessage(
	_ context.Context,
	params *sqs.SendMessageInput,
	_ ...func(*sqs.Options),
) (*sqs.SendMessageOutput, error) {
	if f == nil {
		return nil, errors.New("testkit: sqs client is nil")
	}
	if params == nil {
		return nil, errors.New("testkit: send input is nil")
	}

	queueURL := strings.TrimSpace(aws.ToString(params.QueueUrl))
	if queueURL == "" {
		return nil, errors.New("testkit: queue url is empty")
	}

	attrs := map[string]string{}
	for k, v := range params.MessageAttributes {
		attrs[k] = aws.ToString(v.StringValue)
	}

	f.mu.Lock()
	f.Calls = append(f.Calls, SQSSendCall{
		QueueURL:   queueURL,
		Body:       aws.ToString(params.MessageBody),
		Attributes: attrs,
	})
	err := f.SendErr
	id := f.nextID
	f.nextID++
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("sqs-" + strconv.Itoa(id))}, nil
}

// Bodies returns the bodies of every recorded message.
func (f *FakeSQSClient) Bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		out = append(out, c.Body)
	}
	return out
}
