package events_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coastlinevibe/tide"
	"github.com/coastlinevibe/tide/events"
)

func TestRouter_dispatches_to_handler(t *testing.T) {
	bus := events.NewBus(events.BusConfig{OutputChannelBuffer: 16}, nil)

	router, err := events.NewRouter(events.RouterConfig{CloseTimeout: time.Second}, bus, tide.NewStdLogger(true, true))
	require.NoError(t, err)

	receivedCh := make(chan events.Event, 1)
	err = router.AddHandler("test_handler", "reactions", func(event events.Event) error {
		receivedCh <- event
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	routerStopped := make(chan struct{})
	go func() {
		assert.NoError(t, router.Run(ctx))
		close(routerStopped)
	}()
	<-router.Running()

	sent, err := events.NewEvent(testPayload{Value: "wave"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish("reactions", sent))

	select {
	case event := <-receivedCh:
		assert.Equal(t, sent.ID, event.ID)
	case <-time.After(time.Second):
		t.Fatal("handler did not receive event")
	}

	cancel()

	select {
	case <-routerStopped:
	case <-time.After(time.Second * 5):
		t.Fatal("router did not stop")
	}

	assert.NoError(t, bus.Close())
}

func TestRouter_duplicate_handler(t *testing.T) {
	bus := events.NewBus(events.BusConfig{}, nil)
	defer func() {
		assert.NoError(t, bus.Close())
	}()

	router, err := events.NewRouter(events.RouterConfig{}, bus, nil)
	require.NoError(t, err)

	noop := func(events.Event) error { return nil }

	require.NoError(t, router.AddHandler("handler", "topic", noop))
	assert.Error(t, router.AddHandler("handler", "topic", noop))
}

func TestRouter_middleware_order(t *testing.T) {
	bus := events.NewBus(events.BusConfig{OutputChannelBuffer: 16}, nil)

	router, err := events.NewRouter(events.RouterConfig{CloseTimeout: time.Second}, bus, nil)
	require.NoError(t, err)

	var orderLock sync.Mutex
	var order []string

	appendingMiddleware := func(name string) events.HandlerMiddleware {
		return func(h events.HandlerFunc) events.HandlerFunc {
			return func(event events.Event) error {
				orderLock.Lock()
				order = append(order, name)
				orderLock.Unlock()
				return h(event)
			}
		}
	}

	router.AddMiddleware(appendingMiddleware("first"), appendingMiddleware("second"))

	handled := make(chan struct{}, 1)
	require.NoError(t, router.AddHandler("handler", "topic", func(events.Event) error {
		handled <- struct{}{}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = router.Run(ctx)
	}()
	<-router.Running()

	event, err := events.NewEvent(testPayload{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish("topic", event))

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("handler did not run")
	}

	orderLock.Lock()
	assert.Equal(t, []string{"first", "second"}, order)
	orderLock.Unlock()

	assert.NoError(t, bus.Close())
}
