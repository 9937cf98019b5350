package reaction

import (
	"time"
)

// Record is a single ephemeral reaction held by the Store.
type Record struct {
	ID string `json:"id"`

	PostID   string `json:"post_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`

	Code     string `json:"code"`
	Kind     Kind   `json:"kind"`
	AssetURL string `json:"asset_url"`

	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt marks the record for removal by the sweep once reached.
	// A zero value means the record does not expire on its own.
	ExpiresAt time.Time `json:"expires_at"`

	// Metadata is an open-ended bag, passed through untouched.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Expired reports whether the record must no longer be rendered or counted.
func (r Record) Expired(now time.Time) bool {
	if r.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(r.ExpiresAt)
}

func (r Record) copyMetadata() map[string]string {
	if r.Metadata == nil {
		return nil
	}

	cp := make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		cp[k] = v
	}
	return cp
}

// Copy returns a copy of the record with its own metadata map.
func (r Record) Copy() Record {
	cp := r
	cp.Metadata = r.copyMetadata()
	return cp
}
