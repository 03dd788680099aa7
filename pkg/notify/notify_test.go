package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/stacktheory/pkg/notify"
	"github.com/theory-cloud/stacktheory/testkit"
)

func sampleEvent() notify.Event {
	return notify.Event{
		DeploymentID: "dep-1",
		Stack:        "site-dev",
		Status:       notify.StatusFailed,
		NodeID:       "certificate",
		Operation:    "create",
		Message:      "validation timed out",
		Timestamp:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSNSPublisher(t *testing.T) {
	client := testkit.NewFakeSNSClient()
	p := notify.NewSNSPublisher(client, " arn:aws:sns:us-east-1:123:deploys ")
	require.NoError(t, p.Publish(context.Background(), sampleEvent()))

	require.Len(t, client.Calls, 1)
	call := client.Calls[0]
	require.Equal(t, "arn:aws:sns:us-east-1:123:deploys", call.TopicARN)
	require.Equal(t, "stacktheory failed: site-dev/certificate", call.Subject)
	require.Equal(t, "failed", call.Attributes["status"])
	require.Equal(t, "site-dev", call.Attributes["stack"])

	var decoded notify.Event
	require.NoError(t, json.Unmarshal([]byte(call.Message), &decoded))
	require.Equal(t, sampleEvent(), decoded)

	long := sampleEvent()
	long.NodeID = strings.Repeat("n", 200)
	require.NoError(t, p.Publish(context.Background(), long))
	require.Len(t, client.Calls[1].Subject, 100)

	client.PublishErr = errors.New("throttled")
	require.ErrorContains(t, p.Publish(context.Background(), sampleEvent()), "throttled")

	require.Error(t, notify.NewSNSPublisher(client, "").Publish(context.Background(), sampleEvent()))
	require.Error(t, notify.NewSNSPublisher(nil, "arn").Publish(context.Background(), sampleEvent()))
}

func TestSQSPublisher(t *testing.T) {
	client := testkit.NewFakeSQSClient()
	p := notify.NewSQSPublisher(client, "https://sqs.us-east-1.amazonaws.com/123/deploys")

	ev := sampleEvent()
	ev.DeploymentID = ""
	require.NoError(t, p.Publish(context.Background(), ev))
	require.Len(t, client.Calls, 1)
	require.Equal(t, "-", client.Calls[0].Attributes["deployment_id"])
	require.Contains(t, client.Calls[0].Body, `"status":"failed"`)

	client.SendErr = errors.New("queue gone")
	require.ErrorContains(t, p.Publish(context.Background(), ev), "queue gone")
	require.Error(t, notify.NewSQSPublisher(client, " ").Publish(context.Background(), ev))
}

func TestMulti(t *testing.T) {
	_, ok := notify.Multi().(notify.NopPublisher)
	require.True(t, ok)
	require.NoError(t, notify.NopPublisher{}.Publish(context.Background(), sampleEvent()))

	var got []string
	record := func(name string) notify.Publisher {
		return notify.PublisherFunc(func(context.Context, notify.Event) error {
			got = append(got, name)
			return nil
		})
	}
	single := record("only")
	require.NotNil(t, notify.Multi(nil, single))

	failing := notify.PublisherFunc(func(context.Context, notify.Event) error { return errors.New("down") })
	err := notify.Multi(record("a"), failing, nil, record("b"), failing).Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	require.Equal(t, []string{"a", "b"}, got)
	require.Contains(t, err.Error(), "2 errors occurred")

	var nilFunc notify.PublisherFunc
	require.NoError(t, nilFunc.Publish(context.Background(), sampleEvent()))
	require.NoError(t, notify.MultiPublisher{nil}.Publish(context.Background(), sampleEvent()))
}
