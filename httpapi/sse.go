package httpapi

import (
	"fmt"
	"net/http"

	"github.com/coastlinevibe/tide"
	"github.com/coastlinevibe/tide/events"
	"github.com/coastlinevibe/tide/lifecycle"
	"github.com/coastlinevibe/tide/reaction"
)

// streamTopics are the topics fanned into the event stream endpoint.
var streamTopics = []string{
	reaction.TopicReactions,
	reaction.TopicStore,
	lifecycle.TopicConnectivity,
}

// stream serves live store events as server-sent events. The subscription
// lives as long as the request context; disconnecting the client tears it
// down.
func (s *server) stream(w http.ResponseWriter, r *http.Request) {
	if s.config.Subscriber == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event stream not available")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	merged := make(chan events.Event)

	for _, topic := range streamTopics {
		eventsCh, err := s.config.Subscriber.Subscribe(ctx, topic)
		if err != nil {
			s.writeError(w, http.StatusServiceUnavailable, "cannot subscribe to events")
			return
		}

		go func() {
			for event := range eventsCh {
				select {
				case merged <- event:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-merged:
			eventType := event.Metadata.Get(reaction.MetadataEventType)
			if eventType == "" {
				eventType = "message"
			}

			_, err := fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", eventType, event.ID, event.Payload)
			if err != nil {
				s.logger.Debug("Stream client gone", tide.LogFields{
					"event_id": event.ID,
				})
				return
			}
			flusher.Flush()
		}
	}
}
