package events

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/coastlinevibe/tide"
)

// RecoveredPanicError holds the value and stacktrace of a panic recovered
// by the Recoverer middleware.
type RecoveredPanicError struct {
	V          interface{}
	Stacktrace string
}

func (p RecoveredPanicError) Error() string {
	return fmt.Sprintf("panic occurred: %#v, stacktrace: \n%s", p.V, p.Stacktrace)
}

// Recoverer converts handler panics into errors.
func Recoverer(h HandlerFunc) HandlerFunc {
	return func(event Event) (err error) {
		defer func() {
			if r := recover(); r != nil {
				panicErr := errors.WithStack(RecoveredPanicError{V: r, Stacktrace: string(debug.Stack())})
				err = multierror.Append(err, panicErr)
			}
		}()

		return h(event)
	}
}

// Retry provides a middleware that retries the handler if an error is returned.
// The retry behaviour is configurable, with exponential backoff and maximum elapsed time.
type Retry struct {
	// MaxRetries is the maximum number of times a retry will be attempted.
	MaxRetries int

	// InitialInterval is the first interval between retries.
	// Subsequent intervals will be scaled by Multiplier.
	InitialInterval time.Duration
	// MaxInterval sets the limit for the exponential backoff of retries.
	MaxInterval time.Duration
	// Multiplier is the factor by which the waiting interval will be multiplied between retries.
	Multiplier float64
	// MaxElapsedTime sets the time limit of how long retries will be attempted. Disabled if 0.
	MaxElapsedTime time.Duration
	// RandomizationFactor randomizes the spread of the backoff times.
	RandomizationFactor float64

	// OnRetryHook is an optional function executed on each retry attempt.
	OnRetryHook func(retryNum int, delay time.Duration)

	Logger tide.LoggerAdapter
}

// Middleware returns the Retry middleware.
func (r Retry) Middleware(h HandlerFunc) HandlerFunc {
	return func(event Event) error {
		err := h(event)
		if err == nil {
			return nil
		}

		expBackoff := backoff.NewExponentialBackOff()
		expBackoff.InitialInterval = r.InitialInterval
		expBackoff.MaxInterval = r.MaxInterval
		expBackoff.Multiplier = r.Multiplier
		expBackoff.MaxElapsedTime = r.MaxElapsedTime
		expBackoff.RandomizationFactor = r.RandomizationFactor

		var deadline <-chan time.Time
		if r.MaxElapsedTime > 0 {
			timer := time.NewTimer(r.MaxElapsedTime)
			defer timer.Stop()
			deadline = timer.C
		}

		retryNum := 1
		expBackoff.Reset()
	retryLoop:
		for {
			waitTime := expBackoff.NextBackOff()

			select {
			case <-deadline:
				return err
			case <-time.After(waitTime):
				// go on
			}

			err = h(event)
			if err == nil {
				return nil
			}

			if r.Logger != nil {
				r.Logger.Error("Error occurred, retrying", err, tide.LogFields{
					"event_id":    event.ID,
					"retry_no":    retryNum,
					"max_retries": r.MaxRetries,
					"wait_time":   waitTime,
				})
			}
			if r.OnRetryHook != nil {
				r.OnRetryHook(retryNum, waitTime)
			}

			retryNum++
			if retryNum > r.MaxRetries {
				break retryLoop
			}
		}

		return err
	}
}
