package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coastlinevibe/tide/events"
	"github.com/coastlinevibe/tide/reaction"
)

// StoreCollector counts reaction store events consumed from the bus.
//
// Register its Handler on both reaction.TopicReactions and
// reaction.TopicStore; it switches on the event type metadata.
type StoreCollector struct {
	addedTotal   prometheus.Counter
	removedTotal *prometheus.CounterVec
	expiredTotal prometheus.Counter
	clearedTotal *prometheus.CounterVec
}

// NewStoreCollector builds the collector and registers its metrics.
func (b PrometheusMetricsBuilder) NewStoreCollector() (*StoreCollector, error) {
	if b.Registry == nil {
		b.Registry = prometheus.NewRegistry()
	}

	c := &StoreCollector{
		addedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: b.Namespace,
			Subsystem: b.Subsystem,
			Name:      "reactions_added_total",
			Help:      "The total number of reactions added to the store",
		}),
		removedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: b.Namespace,
			Subsystem: b.Subsystem,
			Name:      "reactions_removed_total",
			Help:      "The total number of reactions removed, by trigger",
		}, []string{"toggled"}),
		expiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: b.Namespace,
			Subsystem: b.Subsystem,
			Name:      "reactions_expired_total",
			Help:      "The total number of reactions removed by the expiry sweep",
		}),
		clearedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: b.Namespace,
			Subsystem: b.Subsystem,
			Name:      "reactions_cleared_total",
			Help:      "The total number of reactions removed by whole-store clears, by reason",
		}, []string{"reason"}),
	}

	for _, collector := range []prometheus.Collector{
		c.addedTotal, c.removedTotal, c.expiredTotal, c.clearedTotal,
	} {
		if err := b.Registry.Register(collector); err != nil {
			return nil, errors.Wrap(err, "could not register store collector metric")
		}
	}

	return c, nil
}

// Handler returns the router handler updating the counters.
func (c *StoreCollector) Handler() events.HandlerFunc {
	return func(event events.Event) error {
		switch event.Metadata.Get(reaction.MetadataEventType) {
		case reaction.EventTypeAdded:
			c.addedTotal.Inc()

		case reaction.EventTypeRemoved:
			var removed reaction.Removed
			if err := event.UnmarshalPayload(&removed); err != nil {
				return err
			}
			if removed.Toggled {
				c.removedTotal.WithLabelValues("true").Inc()
			} else {
				c.removedTotal.WithLabelValues("false").Inc()
			}

		case reaction.EventTypeExpired:
			var expired reaction.Expired
			if err := event.UnmarshalPayload(&expired); err != nil {
				return err
			}
			c.expiredTotal.Add(float64(expired.Count))

		case reaction.EventTypeCleared:
			var cleared reaction.Cleared
			if err := event.UnmarshalPayload(&cleared); err != nil {
				return err
			}
			c.clearedTotal.WithLabelValues(cleared.Reason).Add(float64(cleared.Count))
		}

		return nil
	}
}
