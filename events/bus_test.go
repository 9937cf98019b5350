package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coastlinevibe/tide"
	"github.com/coastlinevibe/tide/events"
)

type testPayload struct {
	Value string `json:"value"`
}

func TestBus_publish_subscribe(t *testing.T) {
	bus := events.NewBus(events.BusConfig{OutputChannelBuffer: 16}, tide.NewStdLogger(true, true))
	topic := "test_topic_" + tide.NewUUID()

	received, err := bus.Subscribe(context.Background(), topic)
	require.NoError(t, err)

	sent, err := events.NewEvent(testPayload{Value: "wave"})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(topic, sent))

	select {
	case event := <-received:
		assert.Equal(t, sent.ID, event.ID)

		var payload testPayload
		require.NoError(t, event.UnmarshalPayload(&payload))
		assert.Equal(t, "wave", payload.Value)
	case <-time.After(time.Second):
		t.Fatal("event not received")
	}

	assert.NoError(t, bus.Close())
}

func TestBus_multiple_subscribers(t *testing.T) {
	bus := events.NewBus(events.BusConfig{OutputChannelBuffer: 16}, nil)
	topic := "test_topic_" + tide.NewUUID()

	first, err := bus.Subscribe(context.Background(), topic)
	require.NoError(t, err)
	second, err := bus.Subscribe(context.Background(), topic)
	require.NoError(t, err)

	sent, err := events.NewEvent(testPayload{Value: "love"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(topic, sent))

	for _, ch := range []<-chan events.Event{first, second} {
		select {
		case event := <-ch:
			assert.Equal(t, sent.ID, event.ID)
		case <-time.After(time.Second):
			t.Fatal("event not received by all subscribers")
		}
	}

	assert.NoError(t, bus.Close())
}

func TestBus_no_subscribers_discards(t *testing.T) {
	bus := events.NewBus(events.BusConfig{}, nil)

	event, err := events.NewEvent(testPayload{Value: "dropped"})
	require.NoError(t, err)

	assert.NoError(t, bus.Publish("empty_topic", event))
	assert.NoError(t, bus.Close())
}

func TestBus_subscriber_channel_closed_on_ctx_cancel(t *testing.T) {
	bus := events.NewBus(events.BusConfig{OutputChannelBuffer: 1}, nil)
	defer func() {
		assert.NoError(t, bus.Close())
	}()

	ctx, cancel := context.WithCancel(context.Background())

	received, err := bus.Subscribe(ctx, "some_topic")
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-received:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed after ctx cancel")
	}
}

func TestBus_publish_after_close(t *testing.T) {
	bus := events.NewBus(events.BusConfig{}, nil)
	require.NoError(t, bus.Close())

	event, err := events.NewEvent(testPayload{})
	require.NoError(t, err)

	assert.Error(t, bus.Publish("some_topic", event))

	// Close is idempotent
	assert.NoError(t, bus.Close())
}

func TestBus_publish_does_not_block_on_slow_subscriber(t *testing.T) {
	logger := tide.NewCaptureLogger()
	bus := events.NewBus(events.BusConfig{OutputChannelBuffer: 1}, logger)
	topic := "test_topic_" + tide.NewUUID()

	// subscribed but never reading
	received, err := bus.Subscribe(context.Background(), topic)
	require.NoError(t, err)

	published := make(chan struct{})
	go func() {
		defer close(published)

		for i := 0; i < 3; i++ {
			event, err := events.NewEvent(testPayload{Value: "wave"})
			assert.NoError(t, err)
			assert.NoError(t, bus.Publish(topic, event))
		}
	}()

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a subscriber with a full buffer")
	}

	// the buffered event is still delivered, the overflow was dropped
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("buffered event not received")
	}
	select {
	case <-received:
		t.Fatal("dropped event unexpectedly delivered")
	default:
	}

	dropped := false
	for _, msg := range logger.Captured()[tide.ErrorLogLevel] {
		if msg.Msg == "Subscriber output channel full, event dropped" {
			dropped = true
		}
	}
	assert.True(t, dropped, "drop must be logged")

	assert.NoError(t, bus.Close())
}

func TestBus_subscribers_get_copies(t *testing.T) {
	bus := events.NewBus(events.BusConfig{OutputChannelBuffer: 1}, nil)
	topic := "test_topic_" + tide.NewUUID()

	received, err := bus.Subscribe(context.Background(), topic)
	require.NoError(t, err)

	sent, err := events.NewEvent(testPayload{Value: "original"})
	require.NoError(t, err)
	sent.Metadata.Set("source", "store")

	require.NoError(t, bus.Publish(topic, sent))

	// mutating the published event must not affect the delivered copy
	sent.Metadata.Set("source", "mutated")

	select {
	case event := <-received:
		assert.Equal(t, "store", event.Metadata.Get("source"))
	case <-time.After(time.Second):
		t.Fatal("event not received")
	}

	assert.NoError(t, bus.Close())
}
