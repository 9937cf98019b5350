package events

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/coastlinevibe/tide"
)

// Metadata carries extra context with every event, without unmarshaling the payload.
type Metadata map[string]string

func (m Metadata) Get(key string) string {
	if v, ok := m[key]; ok {
		return v
	}

	return ""
}

func (m Metadata) Set(key, value string) {
	m[key] = value
}

// Event is the unit transported by the Bus.
//
// The payload is JSON. Subscribers unmarshal it into the payload type
// published for the topic they subscribed to.
type Event struct {
	ID         string
	OccurredAt time.Time
	Metadata   Metadata
	Payload    []byte
}

// NewEvent creates an Event with a generated ULID and the payload marshaled to JSON.
func NewEvent(payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, errors.Wrap(err, "cannot marshal event payload")
	}

	return Event{
		ID:         tide.NewULID(),
		OccurredAt: time.Now().UTC(),
		Metadata:   Metadata{},
		Payload:    raw,
	}, nil
}

// UnmarshalPayload unmarshals the event payload into v.
func (e Event) UnmarshalPayload(v interface{}) error {
	return errors.Wrapf(json.Unmarshal(e.Payload, v), "cannot unmarshal payload of event %s", e.ID)
}

// Copy returns a copy of the event with its own metadata map.
func (e Event) Copy() Event {
	metadata := make(Metadata, len(e.Metadata))
	for k, v := range e.Metadata {
		metadata[k] = v
	}

	payload := make([]byte, len(e.Payload))
	copy(payload, e.Payload)

	cp := e
	cp.Metadata = metadata
	cp.Payload = payload

	return cp
}
