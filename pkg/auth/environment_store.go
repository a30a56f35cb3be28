package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore using environment variables.
// Read-only; this is how containerized deployments inject secrets.
type EnvironmentStore struct{}

// NewEnvironmentStore creates an environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(creds *Credentials) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(environment string) (*Credentials, error) {
	apiToken := os.Getenv("CASESYNC_API_TOKEN")
	triggerSecret := os.Getenv("CASESYNC_TRIGGER_SECRET")

	if apiToken == "" {
		return nil, ErrCredentialsNotFound
	}

	// The environment variables carry no environment name
	if environment == "" {
		environment = "default"
	}

	return &Credentials{
		Environment:   environment,
		APIToken:      apiToken,
		TriggerSecret: triggerSecret,
		LastModified:  time.Now(),
	}, nil
}

// List returns a single credential set if the environment variables are set
func (e *EnvironmentStore) List() ([]*Credentials, error) {
	creds, err := e.Retrieve("")
	if err != nil {
		return []*Credentials{}, nil
	}
	return []*Credentials{creds}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(environment string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(environment string) bool {
	return os.Getenv("CASESYNC_API_TOKEN") != ""
}
