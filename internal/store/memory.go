package store

import (
	"sync"

	"gossips/internal/domain"
)

// MemoryStore keeps passphrases in process memory only.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[domain.RoomID]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[domain.RoomID]string)}
}

func (s *MemoryStore) SavePassphrase(room domain.RoomID, passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[room] = passphrase
	return nil
}

func (s *MemoryStore) LoadPassphrase(room domain.RoomID) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[room]
	return p, ok, nil
}

func (s *MemoryStore) DeletePassphrase(room domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, room)
	return nil
}

var _ domain.PassphraseStore = (*MemoryStore)(nil)
