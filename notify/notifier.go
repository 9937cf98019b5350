// Package notify turns reaction events into notifications for post owners.
//
// Unlike the persistence bridge, notification delivery is allowed to retry:
// the handler runs on the event router, where a Retry middleware re-invokes
// it on error.
package notify

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/coastlinevibe/tide"
	"github.com/coastlinevibe/tide/events"
	"github.com/coastlinevibe/tide/reaction"
)

// HandlerName to register the notifier under on the router.
const HandlerName = "reaction_notifier"

// EventTypeCreated is set on published notification events.
const EventTypeCreated = "notification_created"

// UserTopic returns the per-recipient realtime topic.
func UserTopic(userID string) string {
	return "notifications." + userID
}

// Notification is one entry in a member's notification feed.
type Notification struct {
	ID string `json:"id"`

	// UserID is the recipient, the owner of the reacted-to post.
	UserID string `json:"user_id"`

	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name"`

	PostID       string `json:"post_id"`
	ReactionCode string `json:"reaction_code"`

	CreatedAt time.Time `json:"created_at"`
}

// Storage persists notifications.
type Storage interface {
	Insert(ctx context.Context, notification Notification) error
}

// OwnerLookupFunc resolves the owner of a post.
type OwnerLookupFunc func(ctx context.Context, postID string) (userID string, err error)

type NotifierConfig struct {
	// Storage receiving the notification rows. Required.
	Storage Storage

	// LookupOwner resolves the recipient. Required.
	LookupOwner OwnerLookupFunc

	// Publisher for per-user realtime topics. Optional.
	Publisher events.Publisher

	// LookupTimeout bounds the owner lookup and the insert. Defaults to 5s.
	LookupTimeout time.Duration

	Logger tide.LoggerAdapter

	// Now overrides the clock. Used in tests.
	Now func() time.Time
}

func (c *NotifierConfig) setDefaults() {
	if c.LookupTimeout == 0 {
		c.LookupTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = tide.NopLogger{}
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
}

func (c NotifierConfig) validate() error {
	if c.Storage == nil {
		return errors.New("missing storage")
	}
	if c.LookupOwner == nil {
		return errors.New("missing owner lookup")
	}
	return nil
}

// Notifier handles reaction events and fans notifications out to the
// notification table and the owner's realtime topic.
type Notifier struct {
	config NotifierConfig
	logger tide.LoggerAdapter
}

func NewNotifier(config NotifierConfig) (*Notifier, error) {
	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid Notifier config")
	}

	return &Notifier{
		config: config,
		logger: config.Logger,
	}, nil
}

// Handler returns the router handler consuming reaction.TopicReactions.
//
// Removals and toggles do not notify; only a landed reaction does.
// Errors are returned to the router so its middleware can retry.
func (n *Notifier) Handler() events.HandlerFunc {
	return func(event events.Event) error {
		if event.Metadata.Get(reaction.MetadataEventType) != reaction.EventTypeAdded {
			return nil
		}

		var added reaction.Added
		if err := event.UnmarshalPayload(&added); err != nil {
			// malformed events would fail every retry, drop them
			n.logger.Error("Dropping malformed reaction event", err, tide.LogFields{
				"event_id": event.ID,
			})
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), n.config.LookupTimeout)
		defer cancel()

		ownerID, err := n.config.LookupOwner(ctx, added.Record.PostID)
		if err != nil {
			return errors.Wrapf(err, "cannot resolve owner of post %s", added.Record.PostID)
		}

		if ownerID == "" || ownerID == added.Record.UserID {
			return nil
		}

		notification := Notification{
			ID:           tide.NewUUID(),
			UserID:       ownerID,
			ActorID:      added.Record.UserID,
			ActorName:    added.Record.Username,
			PostID:       added.Record.PostID,
			ReactionCode: added.Record.Code,
			CreatedAt:    n.config.Now(),
		}

		if err := n.config.Storage.Insert(ctx, notification); err != nil {
			return errors.Wrap(err, "cannot insert notification")
		}

		n.publish(notification)

		n.logger.Debug("Notification created", tide.LogFields{
			"notification_id": notification.ID,
			"user_id":         notification.UserID,
			"post_id":         notification.PostID,
		})

		return nil
	}
}

func (n *Notifier) publish(notification Notification) {
	if n.config.Publisher == nil {
		return
	}

	event, err := events.NewEvent(notification)
	if err != nil {
		n.logger.Error("Cannot create notification event", err, nil)
		return
	}
	event.Metadata.Set(reaction.MetadataEventType, EventTypeCreated)

	if err := n.config.Publisher.Publish(UserTopic(notification.UserID), event); err != nil {
		n.logger.Error("Cannot publish notification event", err, tide.LogFields{
			"notification_id": notification.ID,
		})
	}
}
