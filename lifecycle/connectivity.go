// Package lifecycle enforces the ephemerality policy of the reaction store
// through three independent mechanisms: per-record TTL (the sweep), a
// whole-session inactivity window, and connectivity loss. Each one alone
// would mostly suffice; together they cover each other's failure to fire.
package lifecycle

import (
	"sync"
	"time"

	"github.com/coastlinevibe/tide"
	"github.com/coastlinevibe/tide/events"
	"github.com/coastlinevibe/tide/reaction"
)

// TopicConnectivity carries Changed events.
const TopicConnectivity = "connectivity"

// Changed is published on every connectivity transition.
type Changed struct {
	Online bool `json:"online"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Store is the part of the reaction store the monitors drive.
// Satisfied by *reaction.Store.
type Store interface {
	SetOnline(online bool)
	Clear(reason string) int
	Sweep() int
}

// Connectivity tracks the online/offline state reported by the client
// platform and forwards transitions to the store.
//
// The store purges itself on the offline transition; Connectivity only
// relays the signal and publishes the change.
type Connectivity struct {
	store     Store
	publisher events.Publisher
	logger    tide.LoggerAdapter

	lock   sync.Mutex
	online bool
}

// NewConnectivity creates a Connectivity monitor in the online state.
// The publisher is optional.
func NewConnectivity(store Store, publisher events.Publisher, logger tide.LoggerAdapter) *Connectivity {
	if logger == nil {
		logger = tide.NopLogger{}
	}

	return &Connectivity{
		store:     store,
		publisher: publisher,
		logger:    logger,
		online:    true,
	}
}

// Set transitions the monitor. Setting the current state is a no-op.
func (c *Connectivity) Set(online bool) {
	c.lock.Lock()
	if c.online == online {
		c.lock.Unlock()
		return
	}
	c.online = online
	c.lock.Unlock()

	c.logger.Info("Connectivity changed", tide.LogFields{
		"online": online,
	})

	c.store.SetOnline(online)
	c.publishChanged(online)
}

// Online reports the current state.
func (c *Connectivity) Online() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.online
}

func (c *Connectivity) publishChanged(online bool) {
	if c.publisher == nil {
		return
	}

	event, err := events.NewEvent(Changed{Online: online, OccurredAt: time.Now().UTC()})
	if err != nil {
		c.logger.Error("Cannot create connectivity event", err, nil)
		return
	}
	event.Metadata.Set(reaction.MetadataEventType, "connectivity_changed")

	if err := c.publisher.Publish(TopicConnectivity, event); err != nil {
		c.logger.Error("Cannot publish connectivity event", err, nil)
	}
}
