package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// DefaultProfile names the token used when no profile is given
const DefaultProfile = "default"

// Credential is one stored scraping backend token
type Credential struct {
	Profile      string    `json:"profile"`
	Token        string    `json:"token"`
	LastModified time.Time `json:"last_modified"`
}

// TokenStore stores credentials by profile name
type TokenStore interface {
	// Name identifies the backend in status output
	Name() string

	Store(cred *Credential) error
	Retrieve(profile string) (*Credential, error)
	Delete(profile string) error
}

// Manager tries its stores in order
type Manager struct {
	stores []TokenStore
}

// NewManager uses the system keychain when it works and always falls back
// to an encrypted file in configDir
func NewManager(configDir string) (*Manager, error) {
	var stores []TokenStore

	if ks, err := NewKeyringStore(); err == nil {
		stores = append(stores, ks)
	}

	fileStore, err := NewEncryptedFileStore(afero.NewOsFs(), filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, fileStore)

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores builds a Manager over explicit stores
func NewManagerWithStores(stores ...TokenStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the token in the first store that accepts it and returns that
// store's name
func (m *Manager) Store(profile, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("token is required")
	}
	if profile == "" {
		profile = DefaultProfile
	}

	cred := &Credential{Profile: profile, Token: token, LastModified: time.Now()}

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(cred)
		if err == nil {
			return store.Name(), nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return "", fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return "", ErrStoreUnavailable
}

// Retrieve returns the credential from the first store that has it
func (m *Manager) Retrieve(profile string) (*Credential, string, error) {
	if profile == "" {
		profile = DefaultProfile
	}
	for _, store := range m.stores {
		if cred, err := store.Retrieve(profile); err == nil && cred != nil {
			return cred, store.Name(), nil
		}
	}
	return nil, "", fmt.Errorf("%w for profile: %s", ErrCredentialsNotFound, profile)
}

// TokenSource returns a function yielding the token of profile, suitable as
// a configuration fallback
func (m *Manager) TokenSource(profile string) func() (string, error) {
	return func() (string, error) {
		cred, _, err := m.Retrieve(profile)
		if err != nil {
			return "", err
		}
		return cred.Token, nil
	}
}

// Delete removes profile from every store
func (m *Manager) Delete(profile string) error {
	if profile == "" {
		profile = DefaultProfile
	}

	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		err := store.Delete(profile)
		switch {
		case err == nil:
			deleted = true
		case !errors.Is(err, ErrCredentialsNotFound):
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w for profile: %s", ErrCredentialsNotFound, profile)
	}
	return nil
}

// StoreNames lists the active backends in lookup order
func (m *Manager) StoreNames() []string {
	names := make([]string, 0, len(m.stores))
	for _, s := range m.stores {
		names = append(names, s.Name())
	}
	return names
}

// ConfigDir returns the per-user configuration directory, creating it
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "igdownloader")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "igdownloader")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "igdownloader")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "igdownloader")
		}
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// MaskToken hides all but the first and last four characters
func MaskToken(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
