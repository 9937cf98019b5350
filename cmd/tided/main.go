// tided serves the ephemeral reaction store of the CoastlineVibe platform.
//
// Configuration comes from the environment:
//
//	TIDE_HTTP_ADDR          listen address, default :8080
//	TIDE_POSTGRES_DSN       Postgres DSN; enables the SQL bridge and notifications
//	TIDE_BRIDGE_URL         endpoint for the HTTP write-through bridge
//	TIDE_REACTION_TTL       per-reaction lifetime, default 20m
//	TIDE_INACTIVITY_WINDOW  whole-store purge after no activity, default 20m
//	TIDE_SWEEP_INTERVAL     expiry sweep period, default 1m
//	TIDE_IDENTITY_FILE      path persisting the generated identity
//	TIDE_USER_ID            identity override, with TIDE_USERNAME
//	TIDE_DEBUG, TIDE_TRACE  logging verbosity
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coastlinevibe/tide"
	"github.com/coastlinevibe/tide/bridge"
	"github.com/coastlinevibe/tide/events"
	"github.com/coastlinevibe/tide/httpapi"
	"github.com/coastlinevibe/tide/identity"
	"github.com/coastlinevibe/tide/lifecycle"
	"github.com/coastlinevibe/tide/metrics"
	"github.com/coastlinevibe/tide/notify"
	"github.com/coastlinevibe/tide/reaction"
)

func main() {
	logger := tide.NewStdLogger(os.Getenv("TIDE_DEBUG") != "", os.Getenv("TIDE_TRACE") != "")

	if err := run(logger); err != nil {
		logger.Error("Service failed", err, nil)
		os.Exit(1)
	}
}

func run(logger tide.LoggerAdapter) error {
	addr := envOr("TIDE_HTTP_ADDR", ":8080")

	registry := prometheus.NewRegistry()
	builder := metrics.NewPrometheusMetricsBuilder(registry, "tide", "")

	bus := events.NewBus(events.BusConfig{OutputChannelBuffer: 64}, logger)
	defer bus.Close()

	publisher, err := builder.DecoratePublisher(bus)
	if err != nil {
		return errors.Wrap(err, "cannot decorate publisher")
	}

	var db *sql.DB
	if dsn := os.Getenv("TIDE_POSTGRES_DSN"); dsn != "" {
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return errors.Wrap(err, "cannot open postgres")
		}
		defer db.Close()

		if err := createTables(db); err != nil {
			return err
		}
	}

	storeBridge, closeBridge, err := newBridge(db, logger)
	if err != nil {
		return err
	}
	defer closeBridge()

	resolver := identity.NewResolver(identity.ResolverConfig{
		Sources: []identity.Source{envIdentitySource()},
		Saved:   identitySavedStore(),
		Logger:  logger,
	})

	store, err := reaction.NewStore(reaction.StoreConfig{
		TTL:       envDurationOr("TIDE_REACTION_TTL", reaction.DefaultTTL),
		Bridge:    storeBridge,
		Publisher: publisher,
		Logger:    logger,
	}, resolver)
	if err != nil {
		return errors.Wrap(err, "cannot create store")
	}
	defer store.Close()

	runner := lifecycle.NewRunner(lifecycle.RunnerConfig{
		InactivityWindow: envDurationOr("TIDE_INACTIVITY_WINDOW", lifecycle.DefaultInactivityWindow),
		SweepInterval:    envDurationOr("TIDE_SWEEP_INTERVAL", lifecycle.DefaultSweepInterval),
		Logger:           logger,
	}, store, publisher)
	defer runner.Close()

	router, err := newRouter(bus, builder, db, logger)
	if err != nil {
		return err
	}

	handler, err := httpapi.NewHandler(httpapi.Config{
		Store:      store,
		Lifecycle:  runner,
		Subscriber: bus,
		Registry:   registry,
		Logger:     logger,
	})
	if err != nil {
		return errors.Wrap(err, "cannot build http handler")
	}

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	routerErr := make(chan error, 1)
	go func() {
		routerErr <- router.Run(ctx)
	}()
	<-router.Running()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Listening", tide.LogFields{"addr": addr})
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down", nil)
	case err := <-serverErr:
		return errors.Wrap(err, "http server failed")
	case err := <-routerErr:
		return errors.Wrap(err, "event router failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", err, nil)
	}

	store.Clear(reaction.ClearReasonShutdown)

	if err := router.Close(); err != nil {
		logger.Error("Router close failed", err, nil)
	}

	return nil
}

func newBridge(db *sql.DB, logger tide.LoggerAdapter) (reaction.Bridge, func() error, error) {
	if url := os.Getenv("TIDE_BRIDGE_URL"); url != "" {
		b, err := bridge.NewHTTPBridge(bridge.HTTPConfig{
			URL:    url,
			Logger: logger,
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "cannot create http bridge")
		}
		return b, b.Close, nil
	}

	if db != nil {
		b, err := bridge.NewSQLBridge(db, bridge.SQLConfig{Logger: logger})
		if err != nil {
			return nil, nil, errors.Wrap(err, "cannot create sql bridge")
		}
		return b, b.Close, nil
	}

	logger.Info("No persistence configured, write-through disabled", nil)
	return bridge.Nop{}, func() error { return nil }, nil
}

func newRouter(bus *events.Bus, builder metrics.PrometheusMetricsBuilder, db *sql.DB, logger tide.LoggerAdapter) (*events.Router, error) {
	router, err := events.NewRouter(events.RouterConfig{}, bus, logger)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create router")
	}

	metricsMiddleware, err := builder.NewRouterMiddleware()
	if err != nil {
		return nil, errors.Wrap(err, "cannot create metrics middleware")
	}

	retry := events.Retry{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		Logger:          logger,
	}
	router.AddMiddleware(metricsMiddleware, retry.Middleware, events.Recoverer)

	collector, err := builder.NewStoreCollector()
	if err != nil {
		return nil, errors.Wrap(err, "cannot create store collector")
	}

	if err := router.AddHandler("reaction_metrics", reaction.TopicReactions, collector.Handler()); err != nil {
		return nil, err
	}
	if err := router.AddHandler("store_metrics", reaction.TopicStore, collector.Handler()); err != nil {
		return nil, err
	}

	if db != nil {
		storage, err := notify.NewSQLStorage(db, "")
		if err != nil {
			return nil, errors.Wrap(err, "cannot create notification storage")
		}

		notifier, err := notify.NewNotifier(notify.NotifierConfig{
			Storage:     storage,
			LookupOwner: postOwnerLookup(db),
			Publisher:   bus,
			Logger:      logger,
		})
		if err != nil {
			return nil, errors.Wrap(err, "cannot create notifier")
		}

		if err := router.AddHandler(notify.HandlerName, reaction.TopicReactions, notifier.Handler()); err != nil {
			return nil, err
		}
	}

	return router, nil
}

func postOwnerLookup(db *sql.DB) notify.OwnerLookupFunc {
	return func(ctx context.Context, postID string) (string, error) {
		var ownerID string
		err := db.QueryRowContext(ctx, `SELECT user_id FROM posts WHERE id = $1`, postID).Scan(&ownerID)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		if err != nil {
			return "", errors.Wrap(err, "cannot look up post owner")
		}
		return ownerID, nil
	}
}

func createTables(db *sql.DB) error {
	for _, schema := range []string{
		bridge.Schema(""),
		notify.Schema(""),
	} {
		if _, err := db.Exec(schema); err != nil {
			return errors.Wrap(err, "cannot create table")
		}
	}
	return nil
}

func envIdentitySource() identity.Source {
	return identity.SourceFunc(func() (identity.Identity, bool) {
		userID := os.Getenv("TIDE_USER_ID")
		if userID == "" {
			return identity.Identity{}, false
		}
		return identity.Identity{
			UserID:   userID,
			Username: os.Getenv("TIDE_USERNAME"),
		}, true
	})
}

func identitySavedStore() identity.SavedIDStore {
	path := os.Getenv("TIDE_IDENTITY_FILE")
	if path == "" {
		return nil
	}
	return identity.NewFileStore(path)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
