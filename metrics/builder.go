// Package metrics exposes Prometheus metrics for the reaction service.
package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coastlinevibe/tide/events"
)

// NewPrometheusMetricsBuilder creates a builder registering metrics on the
// provided registry.
func NewPrometheusMetricsBuilder(registry *prometheus.Registry, namespace string, subsystem string) PrometheusMetricsBuilder {
	return PrometheusMetricsBuilder{
		Namespace: namespace,
		Subsystem: subsystem,
		Registry:  registry,
	}
}

// PrometheusMetricsBuilder provides methods to decorate publishers and
// handlers, and to build the store events collector.
type PrometheusMetricsBuilder struct {
	// Registry may be filled with a pre-existing Prometheus registry, or left empty for the default registry.
	Registry *prometheus.Registry

	Namespace string
	Subsystem string
}

// DecoratePublisher wraps a publisher, counting published events per topic.
func (b PrometheusMetricsBuilder) DecoratePublisher(pub events.Publisher) (events.Publisher, error) {
	publishedTotal, err := b.registerCounterVec(prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: b.Namespace,
			Subsystem: b.Subsystem,
			Name:      "published_events_total",
			Help:      "The total number of events published, per topic and result",
		},
		[]string{"topic", "success"},
	))
	if err != nil {
		return nil, errors.Wrap(err, "could not register published events metric")
	}

	return publisherDecorator{
		pub:            pub,
		publishedTotal: publishedTotal,
	}, nil
}

// NewRouterMiddleware returns a middleware counting handled events.
func (b PrometheusMetricsBuilder) NewRouterMiddleware() (events.HandlerMiddleware, error) {
	handledTotal, err := b.registerCounterVec(prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: b.Namespace,
			Subsystem: b.Subsystem,
			Name:      "handled_events_total",
			Help:      "The total number of events handled, per result",
		},
		[]string{"success"},
	))
	if err != nil {
		return nil, errors.Wrap(err, "could not register handled events metric")
	}

	return func(h events.HandlerFunc) events.HandlerFunc {
		return func(event events.Event) error {
			err := h(event)
			if err != nil {
				handledTotal.WithLabelValues("false").Inc()
			} else {
				handledTotal.WithLabelValues("true").Inc()
			}
			return err
		}
	}, nil
}

func (b *PrometheusMetricsBuilder) registerCounterVec(c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if b.Registry == nil {
		b.Registry = prometheus.NewRegistry()
	}

	err := b.Registry.Register(c)
	if err != nil {
		are := prometheus.AlreadyRegisteredError{}
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, err
	}

	return c, nil
}

type publisherDecorator struct {
	pub            events.Publisher
	publishedTotal *prometheus.CounterVec
}

func (d publisherDecorator) Publish(topic string, evs ...events.Event) error {
	err := d.pub.Publish(topic, evs...)

	success := "true"
	if err != nil {
		success = "false"
	}
	d.publishedTotal.WithLabelValues(topic, success).Add(float64(len(evs)))

	return err
}

func (d publisherDecorator) Close() error {
	return d.pub.Close()
}
