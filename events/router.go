package events

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/coastlinevibe/tide"
	"github.com/coastlinevibe/tide/internal/syncutil"
)

// HandlerFunc processes a single event.
//
// When the handler returns an error, the error is logged and the event is
// dropped; delivery is not repeated unless a Retry middleware is installed.
type HandlerFunc func(event Event) error

// HandlerMiddleware wraps a HandlerFunc with additional behaviour.
type HandlerMiddleware func(h HandlerFunc) HandlerFunc

type RouterConfig struct {
	// CloseTimeout determines how long the router will wait for running
	// handlers when closing.
	CloseTimeout time.Duration
}

func (c *RouterConfig) setDefaults() {
	if c.CloseTimeout == 0 {
		c.CloseTimeout = time.Second * 30
	}
}

// Router dispatches subscribed events to named handlers.
type Router struct {
	config RouterConfig

	subscriber Subscriber
	logger     tide.LoggerAdapter

	middlewares []HandlerMiddleware
	handlers    map[string]*handler

	handlersWg sync.WaitGroup

	running     chan struct{}
	isRunning   bool
	runningLock sync.Mutex

	closingCh  chan struct{}
	closed     bool
	closedLock sync.Mutex
}

// NewRouter creates a Router consuming events from the provided subscriber.
func NewRouter(config RouterConfig, subscriber Subscriber, logger tide.LoggerAdapter) (*Router, error) {
	config.setDefaults()

	if subscriber == nil {
		return nil, errors.New("missing subscriber")
	}
	if logger == nil {
		logger = tide.NopLogger{}
	}

	return &Router{
		config:     config,
		subscriber: subscriber,
		logger:     logger,
		handlers:   map[string]*handler{},
		running:    make(chan struct{}),
		closingCh:  make(chan struct{}),
	}, nil
}

// AddMiddleware adds a new middleware to the router.
//
// The order of middlewares matters. Middleware added at the beginning is executed first.
func (r *Router) AddMiddleware(m ...HandlerMiddleware) {
	r.middlewares = append(r.middlewares, m...)
}

// AddHandler registers a handler for the given topic.
//
// Handlers must be added before Run is called.
func (r *Router) AddHandler(handlerName string, topic string, handlerFunc HandlerFunc) error {
	r.runningLock.Lock()
	defer r.runningLock.Unlock()

	if r.isRunning {
		return errors.New("cannot add handler to a running router")
	}
	if _, ok := r.handlers[handlerName]; ok {
		return errors.Errorf("handler %s already exists", handlerName)
	}

	r.logger.Info("Adding handler", tide.LogFields{
		"handler_name": handlerName,
		"topic":        topic,
	})

	r.handlers[handlerName] = &handler{
		name:        handlerName,
		topic:       topic,
		handlerFunc: handlerFunc,
	}

	return nil
}

// Run subscribes all handlers and dispatches events until ctx is cancelled
// or Close is called.
func (r *Router) Run(ctx context.Context) error {
	r.runningLock.Lock()
	if r.isRunning {
		r.runningLock.Unlock()
		return errors.New("router is already running")
	}
	r.isRunning = true
	r.runningLock.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, h := range r.handlers {
		eventsCh, err := r.subscriber.Subscribe(ctx, h.topic)
		if err != nil {
			return errors.Wrapf(err, "cannot subscribe topic %s", h.topic)
		}
		h.eventsCh = eventsCh
		h.handlerFunc = r.decorated(h.handlerFunc)
	}

	for i := range r.handlers {
		h := r.handlers[i]

		r.handlersWg.Add(1)
		go func() {
			defer r.handlersWg.Done()
			h.run(r.logger)
		}()
	}

	close(r.running)

	select {
	case <-ctx.Done():
	case <-r.closingCh:
	}
	cancel()

	if timedOut := syncutil.WaitTimeout(&r.handlersWg, r.config.CloseTimeout); timedOut {
		return errors.New("router close timeout")
	}

	r.logger.Info("All handlers stopped", nil)

	return nil
}

func (r *Router) decorated(h HandlerFunc) HandlerFunc {
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}
	return h
}

// Running returns a channel which is closed when the router is running.
func (r *Router) Running() chan struct{} {
	return r.running
}

// Close stops the router and waits for running handlers to finish.
func (r *Router) Close() error {
	r.closedLock.Lock()
	defer r.closedLock.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	r.logger.Info("Closing router", nil)
	close(r.closingCh)

	if timedOut := syncutil.WaitTimeout(&r.handlersWg, r.config.CloseTimeout); timedOut {
		return errors.New("router close timeout")
	}

	return nil
}

type handler struct {
	name  string
	topic string

	handlerFunc HandlerFunc
	eventsCh    <-chan Event
}

func (h *handler) run(logger tide.LoggerAdapter) {
	logFields := tide.LogFields{
		"handler_name": h.name,
		"topic":        h.topic,
	}
	logger.Debug("Handler started", logFields)

	for event := range h.eventsCh {
		if err := h.handlerFunc(event); err != nil {
			logger.Error("Handler failed", err, logFields.Add(tide.LogFields{
				"event_id": event.ID,
			}))
		}
	}

	logger.Debug("Handler stopped", logFields)
}
