package secret

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// Service identifies this application's keychain items.
	Service = "gemini-vision"
	// Account is the keychain account holding the Gemini API key.
	Account = "user_gemini_key"
)

// Store saves and loads a single API key.
type Store interface {
	Save(apiKey string) error
	// Load returns the stored key, or ok=false when none is stored.
	Load() (apiKey string, ok bool)
}

// KeyringStore keeps the key in the platform secret store (macOS Keychain,
// Windows Credential Manager, Secret Service on Linux).
type KeyringStore struct {
	Service string
	Account string
}

// NewKeyringStore returns a KeyringStore for the default service and account.
func NewKeyringStore() KeyringStore {
	return KeyringStore{Service: Service, Account: Account}
}

// Save updates the existing item when there is one and adds it otherwise.
func (s KeyringStore) Save(apiKey string) error {
	current, err := keyring.Get(s.Service, s.Account)
	switch {
	case err == nil:
		if current == apiKey {
			return nil
		}
		if err := keyring.Set(s.Service, s.Account, apiKey); err != nil {
			return fmt.Errorf("update keychain item: %w", err)
		}
	case errors.Is(err, keyring.ErrNotFound):
		if err := keyring.Set(s.Service, s.Account, apiKey); err != nil {
			return fmt.Errorf("add keychain item: %w", err)
		}
	default:
		return fmt.Errorf("read keychain item: %w", err)
	}
	return nil
}

func (s KeyringStore) Load() (string, bool) {
	key, err := keyring.Get(s.Service, s.Account)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			log.Printf("secret: keychain lookup failed: %v", err)
		}
		return "", false
	}
	return key, true
}

// FileStore keeps the key in a plain file readable only by the owner.
type FileStore struct {
	Path string
}

func (s FileStore) Save(apiKey string) error {
	if s.Path == "" {
		return errors.New("key file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(s.Path, []byte(apiKey+"\n"), 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

func (s FileStore) Load() (string, bool) {
	if s.Path == "" {
		return "", false
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", false
	}
	key := strings.TrimSpace(string(data))
	return key, key != ""
}

// Chain loads from the first store holding a key and saves to the first store.
type Chain []Store

func (c Chain) Save(apiKey string) error {
	if len(c) == 0 {
		return errors.New("no secret store configured")
	}
	return c[0].Save(apiKey)
}

func (c Chain) Load() (string, bool) {
	for _, s := range c {
		if key, ok := s.Load(); ok {
			return key, true
		}
	}
	return "", false
}
