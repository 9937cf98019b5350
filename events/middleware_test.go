package events_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coastlinevibe/tide/events"
)

func TestRecoverer(t *testing.T) {
	panicking := events.Recoverer(func(events.Event) error {
		panic("handler blew up")
	})

	event, err := events.NewEvent(testPayload{})
	require.NoError(t, err)

	err = panicking(event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler blew up")
}

func TestRecoverer_no_panic(t *testing.T) {
	passthrough := events.Recoverer(func(events.Event) error {
		return nil
	})

	event, err := events.NewEvent(testPayload{})
	require.NoError(t, err)

	assert.NoError(t, passthrough(event))
}

func TestRetry_retries_until_success(t *testing.T) {
	failuresLeft := 2
	attempts := 0

	h := events.Retry{
		MaxRetries: 5,
	}.Middleware(func(events.Event) error {
		attempts++
		if failuresLeft > 0 {
			failuresLeft--
			return errors.New("transient")
		}
		return nil
	})

	event, err := events.NewEvent(testPayload{})
	require.NoError(t, err)

	assert.NoError(t, h(event))
	assert.Equal(t, 3, attempts)
}

func TestRetry_gives_up(t *testing.T) {
	attempts := 0

	h := events.Retry{
		MaxRetries: 2,
	}.Middleware(func(events.Event) error {
		attempts++
		return errors.New("permanent")
	})

	event, err := events.NewEvent(testPayload{})
	require.NoError(t, err)

	err = h(event)
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_on_retry_hook(t *testing.T) {
	var hookCalls []int

	h := events.Retry{
		MaxRetries: 2,
		OnRetryHook: func(retryNum int, _ time.Duration) {
			hookCalls = append(hookCalls, retryNum)
		},
	}.Middleware(func(events.Event) error {
		return errors.New("permanent")
	})

	event, err := events.NewEvent(testPayload{})
	require.NoError(t, err)

	require.Error(t, h(event))
	assert.Equal(t, []int{1, 2}, hookCalls)
}
