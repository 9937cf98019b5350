package identity

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// SavedIDStore persists a resolved identity for the session.
//
// It is the server-side counterpart of keeping a generated visitor id in
// browser local storage: cheap, overwritten freely, gone with the session.
type SavedIDStore interface {
	Load() (Identity, bool)
	Save(Identity) error
}

// MemoryStore keeps the saved identity in memory.
type MemoryStore struct {
	lock sync.RWMutex

	identity Identity
	present  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (Identity, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.identity, s.present
}

func (s *MemoryStore) Save(id Identity) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.identity = id
	s.present = true

	return nil
}

// FileStore keeps the saved identity in a JSON file, surviving restarts
// of the same session host.
type FileStore struct {
	path string
	lock sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type fileStorePayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func (s *FileStore) Load() (Identity, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return Identity{}, false
	}

	var payload fileStorePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Identity{}, false
	}
	if payload.UserID == "" {
		return Identity{}, false
	}

	return Identity{UserID: payload.UserID, Username: payload.Username}, true
}

func (s *FileStore) Save(id Identity) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	raw, err := json.Marshal(fileStorePayload{
		UserID:   id.UserID,
		Username: id.Username,
	})
	if err != nil {
		return errors.Wrap(err, "cannot marshal identity")
	}

	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return errors.Wrap(err, "cannot write identity file")
	}

	return nil
}
