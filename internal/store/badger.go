package store

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"gossips/internal/crypto"
	"gossips/internal/domain"
	"gossips/internal/logger"
)

const (
	saltFile      = "cache.salt"
	passphraseKey = "passphrase/"
)

// ErrPasswordRequired is returned when a BadgerStore is opened without a password.
var ErrPasswordRequired = errors.New("cache password not provided")

// BadgerStore keeps passphrases in an encrypted BadgerDB under dir.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens or creates the database in dir. The encryption key
// is derived from password and a salt stored beside the database.
func OpenBadgerStore(dir, password string) (*BadgerStore, error) {
	if password == "" {
		return nil, ErrPasswordRequired
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	salt, err := loadSalt(filepath.Join(dir, saltFile))
	if err != nil {
		return nil, fmt.Errorf("cache salt: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dir, "db")).
		WithEncryptionKey(crypto.DeriveKEK(password, salt)).
		WithIndexCacheSize(16 << 20).
		WithSyncWrites(true).
		WithLogger(quietBadgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	logger.Debug("Opened passphrase cache", "path", dir)
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) SavePassphrase(room domain.RoomID, passphrase string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(roomKey(room), []byte(passphrase))
	})
}

func (s *BadgerStore) LoadPassphrase(room domain.RoomID) (string, bool, error) {
	var out string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(room))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return out, true, nil
}

func (s *BadgerStore) DeletePassphrase(room domain.RoomID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(roomKey(room))
	})
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func roomKey(room domain.RoomID) []byte { return []byte(passphraseKey + string(room)) }

// loadSalt reads the salt at path, creating it on first use.
func loadSalt(path string) ([]byte, error) {
	b, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if b != nil {
		if len(b) != crypto.SaltBytes {
			return nil, fmt.Errorf("salt has %d bytes, want %d", len(b), crypto.SaltBytes)
		}
		return b, nil
	}
	salt := make([]byte, crypto.SaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	if err := writeFile(path, salt, 0o600); err != nil {
		return nil, err
	}
	return salt, nil
}

// quietBadgerLogger forwards only warnings and errors.
type quietBadgerLogger struct{}

func (quietBadgerLogger) Errorf(f string, args ...any) {
	logger.Error("badger", errors.New(strings.TrimSpace(fmt.Sprintf(f, args...))))
}

func (quietBadgerLogger) Warningf(f string, args ...any) {
	logger.Warn(strings.TrimSpace(fmt.Sprintf(f, args...)), "component", "badger")
}

func (quietBadgerLogger) Infof(string, ...any)  {}
func (quietBadgerLogger) Debugf(string, ...any) {}

var _ domain.PassphraseStore = (*BadgerStore)(nil)
