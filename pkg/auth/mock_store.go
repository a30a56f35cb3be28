package auth

import "sync"

// MockStore implements CredentialStore for testing purposes
type MockStore struct {
	sets map[string]*Credentials
	mu   sync.RWMutex

	// Error injection for testing
	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates a new mock credential store
func NewMockStore() *MockStore {
	return &MockStore{
		sets: make(map[string]*Credentials),
	}
}

// Store saves credentials to the mock store
func (m *MockStore) Store(creds *Credentials) error {
	if m.StoreError != nil {
		return m.StoreError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if creds == nil || creds.Environment == "" {
		return ErrInvalidCredentials
	}

	credsCopy := *creds
	m.sets[creds.Environment] = &credsCopy

	return nil
}

// Retrieve gets credentials from the mock store
func (m *MockStore) Retrieve(environment string) (*Credentials, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if environment == "" {
		return nil, ErrInvalidCredentials
	}

	creds, exists := m.sets[environment]
	if !exists {
		return nil, ErrCredentialsNotFound
	}

	credsCopy := *creds
	return &credsCopy, nil
}

// List returns all stored credential sets from the mock store
func (m *MockStore) List() ([]*Credentials, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var sets []*Credentials
	for _, creds := range m.sets {
		credsCopy := *creds
		sets = append(sets, &credsCopy)
	}

	return sets, nil
}

// Delete removes credentials from the mock store
func (m *MockStore) Delete(environment string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if environment == "" {
		return ErrInvalidCredentials
	}

	if _, exists := m.sets[environment]; !exists {
		return ErrCredentialsNotFound
	}

	delete(m.sets, environment)
	return nil
}

// Exists checks if credentials exist in the mock store
func (m *MockStore) Exists(environment string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.sets[environment]
	return exists
}

// Count returns the number of credential sets in the mock store
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sets)
}

// NewMockManager creates a Manager with a mock store for testing
func NewMockManager() (*Manager, *MockStore) {
	mockStore := NewMockStore()
	manager := &Manager{
		stores: []CredentialStore{mockStore},
	}
	return manager, mockStore
}

// NewManagerWithStores creates a Manager over an explicit store chain
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}
