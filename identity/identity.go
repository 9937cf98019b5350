// Package identity resolves the acting user for the reaction store.
//
// The platform serves logged-in members and anonymous visitors alike, so
// resolution never fails: sources are tried in order and when none of them
// knows the user, a fresh identifier is generated and saved for reuse
// within the session.
package identity

import (
	"github.com/coastlinevibe/tide"
)

// AnonymousUsername is used when no source provides a display name.
const AnonymousUsername = "Anonymous"

// Identity is a resolved (possibly anonymous) actor.
type Identity struct {
	UserID   string
	Username string
}

// Source provides an identity from one location, for example an
// authenticated session or a previously saved identifier.
//
// Returning ok == false means the source has no identity; that is not an
// error, the resolver moves on to the next source.
type Source interface {
	Lookup() (id Identity, ok bool)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() (Identity, bool)

func (f SourceFunc) Lookup() (Identity, bool) {
	return f()
}

// Resolver resolves the current identity through an ordered chain of sources.
type Resolver struct {
	sources []Source
	saved   SavedIDStore
	logger  tide.LoggerAdapter

	generate func() string
}

type ResolverConfig struct {
	// Sources are tried in order; the first one that returns an identity wins.
	Sources []Source

	// Saved persists generated identifiers so the identity stays stable
	// across resolver calls within the session. Defaults to an in-memory store.
	Saved SavedIDStore

	Logger tide.LoggerAdapter

	// GenerateID overrides the identifier generator. Used in tests.
	GenerateID func() string
}

func (c *ResolverConfig) setDefaults() {
	if c.Saved == nil {
		c.Saved = NewMemoryStore()
	}
	if c.Logger == nil {
		c.Logger = tide.NopLogger{}
	}
	if c.GenerateID == nil {
		c.GenerateID = tide.NewUUID
	}
}

// NewResolver creates a Resolver.
//
// The saved-identifier store is always consulted before the configured
// sources, so a generated identity sticks even when sources keep failing.
func NewResolver(config ResolverConfig) *Resolver {
	config.setDefaults()

	return &Resolver{
		sources:  config.Sources,
		saved:    config.Saved,
		logger:   config.Logger,
		generate: config.GenerateID,
	}
}

// Resolve returns the current identity. It never fails.
func (r *Resolver) Resolve() Identity {
	if id, ok := r.saved.Load(); ok {
		return id
	}

	for _, source := range r.sources {
		id, ok := source.Lookup()
		if !ok {
			continue
		}

		if id.Username == "" {
			id.Username = AnonymousUsername
		}

		if err := r.saved.Save(id); err != nil {
			r.logger.Error("Cannot save resolved identity", err, tide.LogFields{
				"user_id": id.UserID,
			})
		}

		return id
	}

	id := Identity{
		UserID:   r.generate(),
		Username: AnonymousUsername,
	}

	r.logger.Debug("No identity source matched, generated new identity", tide.LogFields{
		"user_id": id.UserID,
	})

	if err := r.saved.Save(id); err != nil {
		r.logger.Error("Cannot save generated identity", err, tide.LogFields{
			"user_id": id.UserID,
		})
	}

	return id
}

// UserID returns the resolved user identifier.
func (r *Resolver) UserID() string {
	return r.Resolve().UserID
}

// Username returns the resolved display name.
func (r *Resolver) Username() string {
	return r.Resolve().Username
}
