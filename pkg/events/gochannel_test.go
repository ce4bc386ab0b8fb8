package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoChannelBusDeliversEnvelope(t *testing.T) {
	bus := NewGoChannelBus(nil)
	defer bus.Close()

	received := make(chan Event, 1)
	require.NoError(t, bus.Subscribe("events.>", "test", func(_ context.Context, e Event) error {
		received <- e
		return nil
	}))

	occurred := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, bus.Publish(context.Background(), BaseEvent{
		Type:       TypeNotificationRequested,
		Data:       map[string]interface{}{"title": "Leave approved"},
		OccurredAt: occurred,
	}))

	select {
	case e := <-received:
		assert.Equal(t, TypeNotificationRequested, e.EventType())
		assert.Equal(t, "Leave approved", e.Payload()["title"])
		assert.True(t, occurred.Equal(e.Timestamp()))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestTopicOf(t *testing.T) {
	assert.Equal(t, "events", topicOf("events.>"))
	assert.Equal(t, "events", topicOf("events.NOTIFICATION_REQUESTED"))
	assert.Equal(t, "plain", topicOf("plain"))
}
