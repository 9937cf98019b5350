package events

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/coastlinevibe/tide"
)

// Publisher publishes events to a topic.
type Publisher interface {
	Publish(topic string, events ...Event) error
	Close() error
}

// Subscriber returns a channel with events from the provided topic.
//
// The channel is closed when the provided ctx is cancelled or the
// subscriber is closed.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan Event, error)
	Close() error
}

type BusConfig struct {
	// Output channel buffer size.
	OutputChannelBuffer int64
}

// Bus is an in-process Pub/Sub based on Go channels.
//
// There is no delivery persistence: if a topic has no subscribers when an
// event is published, the event is discarded. Delivery is best-effort; a
// subscriber that stops reading loses the events that overflow its buffer.
//
// Bus has no global state; the same instance must be used for publishing
// and subscribing.
type Bus struct {
	config BusConfig
	logger tide.LoggerAdapter

	subscribersWg   sync.WaitGroup
	subscribers     map[string][]*subscriber
	subscribersLock sync.RWMutex

	closed     bool
	closedLock sync.Mutex
	closing    chan struct{}
}

// NewBus creates a new in-process event Bus.
func NewBus(config BusConfig, logger tide.LoggerAdapter) *Bus {
	if logger == nil {
		logger = tide.NopLogger{}
	}

	return &Bus{
		config:      config,
		subscribers: make(map[string][]*subscriber),
		logger: logger.With(tide.LogFields{
			"bus_uuid": tide.NewShortUUID(),
		}),
		closing: make(chan struct{}),
	}
}

// Publish sends the events to all subscribers of the topic.
//
// Publish never blocks: events are buffered in the subscribers' output
// channels, and a subscriber whose buffer is full loses the event. A
// publisher must not be stalled by one slow consumer.
func (b *Bus) Publish(topic string, events ...Event) error {
	if b.isClosed() {
		return errors.New("bus closed")
	}

	b.subscribersLock.RLock()
	defer b.subscribersLock.RUnlock()

	for i := range events {
		b.sendEvent(topic, events[i].Copy())
	}

	return nil
}

func (b *Bus) sendEvent(topic string, event Event) {
	subscribers := b.subscribers[topic]

	logFields := tide.LogFields{"event_id": event.ID, "topic": topic}

	if len(subscribers) == 0 {
		b.logger.Trace("No subscribers to send event", logFields)
		return
	}

	for i := range subscribers {
		subscribers[i].send(event, logFields)
	}
}

// Subscribe returns a channel to which all events published to the topic are sent.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan Event, error) {
	b.closedLock.Lock()
	if b.closed {
		b.closedLock.Unlock()
		return nil, errors.New("bus closed")
	}
	b.subscribersWg.Add(1)
	b.closedLock.Unlock()

	s := &subscriber{
		uuid:          tide.NewUUID(),
		outputChannel: make(chan Event, b.config.OutputChannelBuffer),
		logger:        b.logger,
		closing:       make(chan struct{}),
	}

	b.subscribersLock.Lock()
	b.addSubscriber(topic, s)
	b.subscribersLock.Unlock()

	go func(s *subscriber) {
		select {
		case <-ctx.Done():
			// unblock
		case <-b.closing:
			// unblock
		}

		s.close()

		b.subscribersLock.Lock()
		b.removeSubscriber(topic, s)
		b.subscribersLock.Unlock()

		b.subscribersWg.Done()
	}(s)

	return s.outputChannel, nil
}

func (b *Bus) addSubscriber(topic string, s *subscriber) {
	if _, ok := b.subscribers[topic]; !ok {
		b.subscribers[topic] = make([]*subscriber, 0)
	}
	b.subscribers[topic] = append(b.subscribers[topic], s)
}

func (b *Bus) removeSubscriber(topic string, toRemove *subscriber) {
	for i, sub := range b.subscribers[topic] {
		if sub == toRemove {
			b.subscribers[topic] = append(b.subscribers[topic][:i], b.subscribers[topic][i+1:]...)
			return
		}
	}
	panic("cannot remove subscriber, not found " + toRemove.uuid)
}

func (b *Bus) isClosed() bool {
	b.closedLock.Lock()
	defer b.closedLock.Unlock()

	return b.closed
}

// Close closes the Bus and all subscriber channels.
func (b *Bus) Close() error {
	b.closedLock.Lock()
	defer b.closedLock.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	close(b.closing)

	b.logger.Debug("Closing bus, waiting for subscribers", nil)
	b.subscribersWg.Wait()

	b.logger.Info("Bus closed", nil)

	return nil
}

type subscriber struct {
	uuid string

	sending       sync.Mutex
	outputChannel chan Event

	logger  tide.LoggerAdapter
	closed  bool
	closing chan struct{}
}

func (s *subscriber) close() {
	if s.closed {
		return
	}
	close(s.closing)

	// ensures that we are not sending to a closed channel
	s.sending.Lock()
	defer s.sending.Unlock()

	s.closed = true
	close(s.outputChannel)
}

func (s *subscriber) send(event Event, logFields tide.LogFields) {
	s.sending.Lock()
	defer s.sending.Unlock()

	if s.closed {
		s.logger.Trace("Subscriber closed, discarding event", logFields)
		return
	}

	select {
	case s.outputChannel <- event:
		s.logger.Trace("Sent event to subscriber", logFields)
	case <-s.closing:
		s.logger.Trace("Closing, event discarded", logFields)
	default:
		s.logger.Error("Subscriber output channel full, event dropped", nil, logFields)
	}
}
