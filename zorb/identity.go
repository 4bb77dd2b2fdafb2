package zorb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// IdentityStore persists the identifier of the device the host last bound,
// so later connects can go straight to it instead of scanning. One
// identifier lives under one fixed settings key.
type IdentityStore struct {
	mu   sync.Mutex
	v    *viper.Viper
	path string
}

// NewIdentityStore opens (or lazily creates) the settings file at path.
func NewIdentityStore(path string) (*IdentityStore, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read identity store: %w", err)
		}
		// Missing file just means no device was bound yet.
	}

	return &IdentityStore{v: v, path: path}, nil
}

// Identifier returns the persisted device identifier, if one is bound.
func (s *IdentityStore) Identifier() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.v.GetString(identityKey)
	return id, id != ""
}

// Save binds a device identifier, replacing any previous one.
func (s *IdentityStore) Save(identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.Set(identityKey, identifier)
	return s.flushLocked()
}

// Clear forgets the bound device.
func (s *IdentityStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.Set(identityKey, "")
	return s.flushLocked()
}

func (s *IdentityStore) flushLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create identity store dir: %w", err)
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write identity store: %w", err)
	}
	return nil
}
