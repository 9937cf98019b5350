package reaction

import (
	"time"
)

// Topics the store publishes to.
const (
	// TopicReactions carries per-record events: added, removed.
	TopicReactions = "reactions"
	// TopicStore carries whole-store events: sweeps and clears.
	TopicStore = "store"
)

// Event type values set in event metadata under MetadataEventType.
const (
	MetadataEventType = "event_type"

	EventTypeAdded   = "reaction_added"
	EventTypeRemoved = "reaction_removed"
	EventTypeExpired = "reactions_expired"
	EventTypeCleared = "store_cleared"
)

// Added is published on TopicReactions after a record lands in the store.
type Added struct {
	Record Record `json:"record"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Removed is published on TopicReactions after a record leaves the store,
// whether by explicit removal or by toggle.
type Removed struct {
	ReactionID string `json:"reaction_id"`
	PostID     string `json:"post_id"`
	UserID     string `json:"user_id"`
	Code       string `json:"code"`
	// Toggled is true when the removal was caused by re-adding the same reaction.
	Toggled bool `json:"toggled"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Expired is published on TopicStore when a sweep removed at least one
// record. One event per sweep, never more.
type Expired struct {
	Count int `json:"count"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Cleared is published on TopicStore after a full purge.
type Cleared struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Clear reasons.
const (
	ClearReasonOffline    = "offline"
	ClearReasonInactivity = "inactivity"
	ClearReasonShutdown   = "shutdown"
)
