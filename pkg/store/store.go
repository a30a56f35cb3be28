package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key does not exist in the store
var ErrNotFound = errors.New("store: key not found")

// KV is the persistence interface the sync engine works against. The engine
// intentionally requires nothing richer than keyed access plus prefix delete.
type KV interface {
	// Get returns the value stored under key, or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, overwriting any existing value
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key starting with prefix
	DeletePrefix(ctx context.Context, prefix string) error

	// Close releases underlying resources
	Close() error
}

// Key prefixes used across the engine. Each record family is exclusively
// owned by the component that writes it.
const (
	PrefixProcedures = "procedures"
	PrefixCase       = "case/"
	PrefixRun        = "run/"
	PrefixManifest   = "manifest/"
	PrefixCheckpoint = "checkpoint/"
	PrefixCache      = "cache/"

	KeyCurrentRun = "run/current"
)

// CaseKey returns the store key for a case record
func CaseKey(externalID string) string {
	return PrefixCase + externalID
}

// RunKey returns the store key for a sync run record
func RunKey(runID string) string {
	return PrefixRun + runID
}

// ManifestKey returns the store key for a run's case manifest
func ManifestKey(runID string) string {
	return PrefixManifest + runID
}

// CheckpointKey returns the store key for a run's checkpoint
func CheckpointKey(runID string) string {
	return PrefixCheckpoint + runID
}

// GetJSON loads and unmarshals the value stored under key into target
func GetJSON(ctx context.Context, kv KV, key string, target interface{}) error {
	data, err := kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode record %q: %w", key, err)
	}
	return nil
}

// SetJSON marshals value and stores it under key
func SetJSON(ctx context.Context, kv KV, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode record %q: %w", key, err)
	}
	return kv.Set(ctx, key, data)
}
