package store

import (
	"encoding/json"
	"path/filepath"
	"sync"

	"gossips/internal/domain"
)

const passphraseFile = "passphrases.enc"

// FileStore persists the passphrase cache as one sealed file under dir.
type FileStore struct {
	dir      string
	password string
	params   scryptParams
	mu       sync.Mutex
}

// NewFileStore returns a FileStore rooted at dir, sealed with password.
func NewFileStore(dir, password string) *FileStore {
	return &FileStore{dir: dir, password: password, params: defaultScrypt()}
}

func (s *FileStore) SavePassphrase(room domain.RoomID, passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	m[string(room)] = passphrase
	return s.save(m)
}

func (s *FileStore) LoadPassphrase(room domain.RoomID) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return "", false, err
	}
	p, ok := m[string(room)]
	return p, ok, nil
}

func (s *FileStore) DeletePassphrase(room domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := m[string(room)]; !ok {
		return nil
	}
	delete(m, string(room))
	return s.save(m)
}

func (s *FileStore) path() string { return filepath.Join(s.dir, passphraseFile) }

func (s *FileStore) load() (map[string]string, error) {
	m := make(map[string]string)
	b, err := readFile(s.path())
	if err != nil || b == nil {
		return m, err
	}
	raw, err := open(s.password, b)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *FileStore) save(m map[string]string) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	b, err := seal(s.password, raw, s.params)
	if err != nil {
		return err
	}
	return writeFile(s.path(), b, 0o600)
}

// Compile-time assertion that FileStore implements domain.PassphraseStore.
var _ domain.PassphraseStore = (*FileStore)(nil)
