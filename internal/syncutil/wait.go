package syncutil

import (
	"sync"
	"time"
)

// WaitTimeout adds a timeout to sync.WaitGroup.Wait().
// It returns true when the timeout was reached before the group finished.
func WaitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{}, 1)
	go func() {
		wg.Wait()
		done <- struct{}{}
	}()

	select {
	case <-done:
		return false
	case <-time.After(timeout):
		return true
	}
}
