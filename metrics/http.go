package metrics

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CreateRegistryAndServeHTTP establishes an HTTP server that exposes the
// /metrics endpoint for Prometheus at the given address.
// It returns a new prometheus registry (to register the metrics on) and a
// canceling function that ends the server.
func CreateRegistryAndServeHTTP(addr string) (registry *prometheus.Registry, cancel func()) {
	registry = prometheus.NewRegistry()
	return registry, ServeHTTP(addr, registry)
}

// ServeHTTP establishes an HTTP server that exposes the /metrics endpoint
// for Prometheus at the given address.
// It takes an existing Prometheus registry and returns a canceling function
// that ends the server.
func ServeHTTP(addr string, registry *prometheus.Registry) (cancel func()) {
	router := chi.NewRouter()
	router.Get("/metrics", Handler(registry).ServeHTTP)

	server := http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		err := server.ListenAndServe()
		if err != http.ErrServerClosed {
			panic(err)
		}
	}()

	return func() { _ = server.Close() }
}

// Handler returns the promhttp handler for the registry, for mounting on
// an existing router.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
