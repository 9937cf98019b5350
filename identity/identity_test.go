package identity_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coastlinevibe/tide/identity"
)

func TestResolver_first_source_wins(t *testing.T) {
	resolver := identity.NewResolver(identity.ResolverConfig{
		Sources: []identity.Source{
			identity.SourceFunc(func() (identity.Identity, bool) {
				return identity.Identity{}, false
			}),
			identity.SourceFunc(func() (identity.Identity, bool) {
				return identity.Identity{UserID: "u-session", Username: "Marina"}, true
			}),
			identity.SourceFunc(func() (identity.Identity, bool) {
				t.Fatal("source after a successful one should not be called")
				return identity.Identity{}, false
			}),
		},
	})

	id := resolver.Resolve()
	assert.Equal(t, "u-session", id.UserID)
	assert.Equal(t, "Marina", id.Username)
}

func TestResolver_generates_and_persists_fallback(t *testing.T) {
	saved := identity.NewMemoryStore()

	resolver := identity.NewResolver(identity.ResolverConfig{
		Saved: saved,
		GenerateID: func() string {
			return "generated-id"
		},
	})

	id := resolver.Resolve()
	assert.Equal(t, "generated-id", id.UserID)
	assert.Equal(t, identity.AnonymousUsername, id.Username)

	persisted, ok := saved.Load()
	require.True(t, ok)
	assert.Equal(t, id, persisted)

	// stable across calls
	assert.Equal(t, id, resolver.Resolve())
}

func TestResolver_saved_identity_preferred_over_sources(t *testing.T) {
	saved := identity.NewMemoryStore()
	require.NoError(t, saved.Save(identity.Identity{UserID: "u-saved", Username: "Saved"}))

	resolver := identity.NewResolver(identity.ResolverConfig{
		Saved: saved,
		Sources: []identity.Source{
			identity.SourceFunc(func() (identity.Identity, bool) {
				return identity.Identity{UserID: "u-session"}, true
			}),
		},
	})

	assert.Equal(t, "u-saved", resolver.UserID())
}

func TestResolver_anonymous_username_default(t *testing.T) {
	resolver := identity.NewResolver(identity.ResolverConfig{
		Sources: []identity.Source{
			identity.SourceFunc(func() (identity.Identity, bool) {
				return identity.Identity{UserID: "u1"}, true
			}),
		},
	})

	assert.Equal(t, identity.AnonymousUsername, resolver.Username())
}

func TestFileStore_roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	store := identity.NewFileStore(path)

	_, ok := store.Load()
	assert.False(t, ok)

	require.NoError(t, store.Save(identity.Identity{UserID: "u1", Username: "Marina"}))

	loaded, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, "u1", loaded.UserID)
	assert.Equal(t, "Marina", loaded.Username)

	// a second store on the same path sees the saved identity
	reopened := identity.NewFileStore(path)
	loaded, ok = reopened.Load()
	require.True(t, ok)
	assert.Equal(t, "u1", loaded.UserID)
}
