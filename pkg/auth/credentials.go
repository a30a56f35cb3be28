package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Credentials holds the secrets needed to talk to one upstream catalog
// environment: the bearer token for API calls and the shared secret the
// trigger endpoint expects.
type Credentials struct {
	Environment   string    `json:"environment"`
	APIToken      string    `json:"api_token"`
	TriggerSecret string    `json:"trigger_secret,omitempty"`
	LastModified  time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving credentials
type CredentialStore interface {
	// Store saves credentials for an environment
	Store(creds *Credentials) error

	// Retrieve gets credentials for a specific environment
	Retrieve(environment string) (*Credentials, error)

	// List returns all stored credential sets
	List() ([]*Credentials, error)

	// Delete removes credentials for a specific environment
	Delete(environment string) error

	// Exists checks if credentials exist for an environment
	Exists(environment string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager with the available storage
// backends, preferring the system keychain over the encrypted file.
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	// Environment variables are read-only and checked last
	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// Store saves credentials using the first store that accepts them
func (m *Manager) Store(creds *Credentials) error {
	if creds.Environment == "" {
		return errors.New("environment name is required")
	}
	if creds.APIToken == "" {
		return errors.New("API token is required")
	}

	creds.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(creds); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(environment string) (*Credentials, error) {
	for _, store := range m.stores {
		if creds, err := store.Retrieve(environment); err == nil && creds != nil {
			return creds, nil
		}
	}
	return nil, fmt.Errorf("credentials not found for environment: %s", environment)
}

// RetrieveDefault gets credentials from the environment variables if set,
// otherwise the first stored set.
func (m *Manager) RetrieveDefault() (*Credentials, error) {
	if envStore, ok := m.stores[len(m.stores)-1].(*EnvironmentStore); ok {
		if creds, err := envStore.Retrieve(""); err == nil && creds != nil {
			return creds, nil
		}
	}

	sets, err := m.List()
	if err == nil && len(sets) > 0 {
		return sets[0], nil
	}

	return nil, errors.New("no credentials found")
}

// List returns all stored credential sets across all stores
func (m *Manager) List() ([]*Credentials, error) {
	byEnv := make(map[string]*Credentials)

	for _, store := range m.stores {
		sets, err := store.List()
		if err != nil {
			continue
		}
		for _, creds := range sets {
			// Keep the most recently modified version
			if existing, ok := byEnv[creds.Environment]; !ok || creds.LastModified.After(existing.LastModified) {
				byEnv[creds.Environment] = creds
			}
		}
	}

	var result []*Credentials
	for _, creds := range byEnv {
		result = append(result, creds)
	}

	return result, nil
}

// Delete removes credentials from all stores
func (m *Manager) Delete(environment string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(environment); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("credentials not found for environment: %s", environment)
	}

	return nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "casesync")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "casesync")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "casesync")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "casesync")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// Sanitize creates a copy of the credentials with secrets masked for display
func Sanitize(creds *Credentials) *Credentials {
	if creds == nil {
		return nil
	}

	return &Credentials{
		Environment:   creds.Environment,
		APIToken:      maskString(creds.APIToken),
		TriggerSecret: maskString(creds.TriggerSecret),
		LastModified:  creds.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
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
