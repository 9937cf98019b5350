package reaction

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/coastlinevibe/tide"
	"github.com/coastlinevibe/tide/events"
	"github.com/coastlinevibe/tide/identity"
)

// DefaultTTL is how long a reaction lives without any other trigger
// removing it first.
const DefaultTTL = 20 * time.Minute

var (
	// ErrStoreOffline is returned by Add while the store is offline.
	// The local state is left untouched.
	ErrStoreOffline = errors.New("store is offline, reaction not added")

	// ErrUnknownReaction is returned by Add for a code absent from the catalog.
	ErrUnknownReaction = errors.New("unknown reaction code")

	// ErrStoreClosed is returned by mutating operations after Close.
	ErrStoreClosed = errors.New("store is closed")
)

// Resolver provides the acting identity. Satisfied by *identity.Resolver.
type Resolver interface {
	Resolve() identity.Identity
}

// Bridge mirrors added records to remote persistence.
//
// WriteThrough must not block the caller and must not fail it either;
// implementations log and drop errors.
type Bridge interface {
	WriteThrough(ctx context.Context, record Record)
}

type StoreConfig struct {
	// TTL applied to every added record. Defaults to DefaultTTL.
	TTL time.Duration

	// Catalog of accepted reactions. Defaults to DefaultCatalog.
	Catalog *Catalog

	// Bridge receives a best-effort write-through for every added record.
	// Optional; nil disables the write-through.
	Bridge Bridge

	// Publisher receives Added/Removed/Expired/Cleared events.
	// Optional; nil disables event publishing.
	Publisher events.Publisher

	Logger tide.LoggerAdapter

	// Now overrides the clock. Used in tests.
	Now func() time.Time
}

func (c *StoreConfig) setDefaults() {
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.Catalog == nil {
		c.Catalog = DefaultCatalog()
	}
	if c.Logger == nil {
		c.Logger = tide.NopLogger{}
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
}

// Store holds ephemeral reactions, keyed by post.
//
// The store owns its map exclusively; all reads and writes go through its
// methods. Reactions disappear through four doors only: explicit removal,
// toggle, the expiry sweep, and whole-store clears on offline or inactivity.
type Store struct {
	config   StoreConfig
	logger   tide.LoggerAdapter
	resolver Resolver

	lock      sync.RWMutex
	reactions map[string][]Record
	online    bool
	closed    bool
}

// NewStore creates a Store. The store starts online and empty.
func NewStore(config StoreConfig, resolver Resolver) (*Store, error) {
	config.setDefaults()

	if resolver == nil {
		return nil, errors.New("missing identity resolver")
	}

	return &Store{
		config: config,
		logger: config.Logger.With(tide.LogFields{
			"store_uuid": tide.NewShortUUID(),
		}),
		resolver:  resolver,
		reactions: make(map[string][]Record),
		online:    true,
	}, nil
}

// Add places a reaction on a post for the resolved identity.
//
// Adding the same (post, user, code) again toggles: the existing record is
// removed and no new one is created; the returned record is nil then.
//
// The in-memory mutation is authoritative. The write-through to the bridge
// is fire-and-forget; its failures never reach the caller.
func (s *Store) Add(ctx context.Context, postID string, code string, metadata map[string]string) (*Record, error) {
	asset, ok := s.config.Catalog.Resolve(code)
	if !ok {
		s.logger.Error("Reaction code not in catalog, ignoring add", ErrUnknownReaction, tide.LogFields{
			"post_id": postID,
			"code":    code,
		})
		return nil, ErrUnknownReaction
	}

	id := s.resolver.Resolve()
	now := s.config.Now()

	s.lock.Lock()

	if s.closed {
		s.lock.Unlock()
		return nil, ErrStoreClosed
	}
	if !s.online {
		s.lock.Unlock()
		return nil, ErrStoreOffline
	}

	if toggled, found := s.takeRecord(postID, id.UserID, code, now); found {
		s.lock.Unlock()

		s.logger.Debug("Reaction toggled off", tide.LogFields{
			"post_id":     postID,
			"reaction_id": toggled.ID,
			"code":        code,
		})
		s.publishRemoved(toggled, true)

		return nil, nil
	}

	record := Record{
		ID:        tide.NewULID(),
		PostID:    postID,
		UserID:    id.UserID,
		Username:  id.Username,
		Code:      asset.Code,
		Kind:      asset.Kind,
		AssetURL:  asset.URL,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.TTL),
		Metadata:  metadata,
	}

	s.reactions[postID] = append(s.reactions[postID], record)
	s.lock.Unlock()

	s.logger.Debug("Reaction added", tide.LogFields{
		"post_id":     postID,
		"reaction_id": record.ID,
		"code":        code,
	})

	if s.config.Bridge != nil {
		s.config.Bridge.WriteThrough(ctx, record.Copy())
	}

	s.publishAdded(record)

	recordCopy := record.Copy()
	return &recordCopy, nil
}

// takeRecord removes and returns the user's unexpired record for the code.
// Expired leftovers for the same triple are dropped in passing, keeping the
// one-record-per-triple invariant without waiting for the sweep.
// Caller must hold the write lock.
func (s *Store) takeRecord(postID, userID, code string, now time.Time) (Record, bool) {
	records, ok := s.reactions[postID]
	if !ok {
		return Record{}, false
	}

	var taken Record
	found := false

	kept := records[:0]
	for _, r := range records {
		if r.UserID == userID && r.Code == code {
			if !r.Expired(now) && !found {
				taken = r
				found = true
			}
			continue
		}
		kept = append(kept, r)
	}

	if len(kept) == len(records) {
		return Record{}, false
	}

	if len(kept) == 0 {
		delete(s.reactions, postID)
	} else {
		s.reactions[postID] = kept
	}

	return taken, found
}

// Remove deletes a record by id. Removing an unknown id is a no-op.
func (s *Store) Remove(reactionID string) error {
	s.lock.Lock()

	if s.closed {
		s.lock.Unlock()
		return ErrStoreClosed
	}

	var removed Record
	found := false

	for postID, records := range s.reactions {
		for i, r := range records {
			if r.ID != reactionID {
				continue
			}

			removed = r
			found = true

			records = append(records[:i], records[i+1:]...)
			if len(records) == 0 {
				delete(s.reactions, postID)
			} else {
				s.reactions[postID] = records
			}
			break
		}
		if found {
			break
		}
	}
	s.lock.Unlock()

	if !found {
		return nil
	}

	s.logger.Debug("Reaction removed", tide.LogFields{
		"post_id":     removed.PostID,
		"reaction_id": removed.ID,
	})
	s.publishRemoved(removed, false)

	return nil
}

// HasUserReacted reports whether the resolved identity holds an unexpired
// record for the post and code.
func (s *Store) HasUserReacted(postID, code string) bool {
	userID := s.resolver.Resolve().UserID
	now := s.config.Now()

	s.lock.RLock()
	defer s.lock.RUnlock()

	for _, r := range s.reactions[postID] {
		if r.UserID == userID && r.Code == code && !r.Expired(now) {
			return true
		}
	}

	return false
}

// ForPost returns the unexpired records for the post.
func (s *Store) ForPost(postID string) []Record {
	now := s.config.Now()

	s.lock.RLock()
	defer s.lock.RUnlock()

	records := s.reactions[postID]
	result := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Expired(now) {
			continue
		}
		result = append(result, r.Copy())
	}

	return result
}

// Len returns the total number of records, expired ones included.
func (s *Store) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()

	count := 0
	for _, records := range s.reactions {
		count += len(records)
	}
	return count
}

// Sweep physically removes expired records.
//
// At most one event is published per sweep, and only when at least one
// record was removed.
func (s *Store) Sweep() int {
	now := s.config.Now()

	s.lock.Lock()

	if s.closed {
		s.lock.Unlock()
		return 0
	}

	removed := 0
	for postID, records := range s.reactions {
		kept := records[:0]
		for _, r := range records {
			if r.Expired(now) {
				removed++
				continue
			}
			kept = append(kept, r)
		}

		if len(kept) == 0 {
			delete(s.reactions, postID)
		} else {
			s.reactions[postID] = kept
		}
	}
	s.lock.Unlock()

	if removed == 0 {
		return 0
	}

	s.logger.Debug("Sweep removed expired reactions", tide.LogFields{
		"count": removed,
	})
	s.publishStoreEvent(EventTypeExpired, Expired{Count: removed, OccurredAt: now})

	return removed
}

// Clear purges all records for all posts.
func (s *Store) Clear(reason string) int {
	s.lock.Lock()

	if s.closed {
		s.lock.Unlock()
		return 0
	}

	count := 0
	for _, records := range s.reactions {
		count += len(records)
	}
	s.reactions = make(map[string][]Record)
	s.lock.Unlock()

	s.logger.Info("Store cleared", tide.LogFields{
		"reason": reason,
		"count":  count,
	})
	s.publishStoreEvent(EventTypeCleared, Cleared{Reason: reason, Count: count, OccurredAt: s.config.Now()})

	return count
}

// SetOnline flips the connectivity flag.
//
// A transition to offline purges the whole store; stale ephemeral state
// must not be shown while disconnected.
func (s *Store) SetOnline(online bool) {
	s.lock.Lock()

	if s.closed {
		s.lock.Unlock()
		return
	}

	wasOnline := s.online
	s.online = online
	s.lock.Unlock()

	if wasOnline && !online {
		s.Clear(ClearReasonOffline)
	}
}

// Catalog returns the catalog the store accepts reactions from.
func (s *Store) Catalog() *Catalog {
	return s.config.Catalog
}

// Online reports the connectivity flag.
func (s *Store) Online() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.online
}

// Close marks the store closed. Further mutations return ErrStoreClosed.
func (s *Store) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	s.reactions = nil

	s.logger.Info("Store closed", nil)

	return nil
}

func (s *Store) publishAdded(record Record) {
	if s.config.Publisher == nil {
		return
	}

	event, err := events.NewEvent(Added{Record: record, OccurredAt: record.CreatedAt})
	if err != nil {
		s.logger.Error("Cannot create added event", err, nil)
		return
	}
	event.Metadata.Set(MetadataEventType, EventTypeAdded)

	if err := s.config.Publisher.Publish(TopicReactions, event); err != nil {
		s.logger.Error("Cannot publish added event", err, tide.LogFields{
			"reaction_id": record.ID,
		})
	}
}

func (s *Store) publishRemoved(record Record, toggled bool) {
	if s.config.Publisher == nil {
		return
	}

	event, err := events.NewEvent(Removed{
		ReactionID: record.ID,
		PostID:     record.PostID,
		UserID:     record.UserID,
		Code:       record.Code,
		Toggled:    toggled,
		OccurredAt: s.config.Now(),
	})
	if err != nil {
		s.logger.Error("Cannot create removed event", err, nil)
		return
	}
	event.Metadata.Set(MetadataEventType, EventTypeRemoved)

	if err := s.config.Publisher.Publish(TopicReactions, event); err != nil {
		s.logger.Error("Cannot publish removed event", err, tide.LogFields{
			"reaction_id": record.ID,
		})
	}
}

func (s *Store) publishStoreEvent(eventType string, payload interface{}) {
	if s.config.Publisher == nil {
		return
	}

	event, err := events.NewEvent(payload)
	if err != nil {
		s.logger.Error("Cannot create store event", err, nil)
		return
	}
	event.Metadata.Set(MetadataEventType, eventType)

	if err := s.config.Publisher.Publish(TopicStore, event); err != nil {
		s.logger.Error("Cannot publish store event", err, tide.LogFields{
			"event_type": eventType,
		})
	}
}
