//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "freightdesk/pkg/platform/audit"
	"freightdesk/pkg/testutil/containers"
)

func TestSinkAppendIsConsumable(t *testing.T) {
	rp := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	topic := "warehouse-audit-" + time.Now().Format("150405.000")
	sink, err := New([]string{rp.Broker}, topic)
	require.NoError(t, err)
	defer sink.Close()
	require.NoError(t, sink.EnsureTopic(ctx, 1, 1))
	require.NoError(t, sink.EnsureTopic(ctx, 1, 1), "second call tolerates an existing topic")

	event := audit.Event{
		Category:    audit.CategoryCustody,
		Timestamp:   time.Now().UTC(),
		Action:      string(audit.EventContainerReceived),
		ContainerID: "c-42",
	}
	require.NoError(t, sink.Append(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, "c-42", string(records[0].Key))

	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, event.Action, got.Action)
}
