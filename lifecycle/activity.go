package lifecycle

import (
	"sync"
	"time"

	"github.com/coastlinevibe/tide"
	"github.com/coastlinevibe/tide/reaction"
)

// DefaultInactivityWindow is how long the session may stay idle before the
// store is purged.
const DefaultInactivityWindow = 20 * time.Minute

type ActivityConfig struct {
	// Window of allowed inactivity. Defaults to DefaultInactivityWindow.
	Window time.Duration

	Logger tide.LoggerAdapter
}

func (c *ActivityConfig) setDefaults() {
	if c.Window == 0 {
		c.Window = DefaultInactivityWindow
	}
	if c.Logger == nil {
		c.Logger = tide.NopLogger{}
	}
}

// Activity purges the store when no user activity is reported for the
// configured window.
//
// Any qualifying client signal (pointer, key, touch, scroll) is forwarded
// here as a Touch. The monitor keeps running after an idle purge; the next
// window starts immediately.
type Activity struct {
	config ActivityConfig
	store  Store

	lock   sync.Mutex
	timer  *time.Timer
	closed bool
}

// NewActivity creates and starts the inactivity monitor.
func NewActivity(config ActivityConfig, store Store) *Activity {
	config.setDefaults()

	a := &Activity{
		config: config,
		store:  store,
	}
	a.timer = time.AfterFunc(config.Window, a.idle)

	return a
}

// Touch resets the inactivity window.
func (a *Activity) Touch() {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.closed {
		return
	}

	a.timer.Reset(a.config.Window)
}

// idle holds the lock through the purge, so Close returning guarantees no
// purge is running or will run.
func (a *Activity) idle() {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.closed {
		return
	}
	a.timer.Reset(a.config.Window)

	a.config.Logger.Info("Inactivity window elapsed, clearing store", tide.LogFields{
		"window": a.config.Window,
	})

	a.store.Clear(reaction.ClearReasonInactivity)
}

// Close stops the timer. No purge fires after Close returns.
func (a *Activity) Close() error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	a.timer.Stop()

	return nil
}
