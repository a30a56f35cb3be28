package sync

import (
	"context"
	"errors"
	"fmt"

	"casesync/pkg/models"
	"casesync/pkg/store"
)

// runStore wraps the KV store with the record families the engine owns
type runStore struct {
	kv store.KV
}

// ErrNoCurrentRun is returned by Resume when no run is in progress
var ErrNoCurrentRun = errors.New("sync: no run in progress")

// SaveRun persists a sync run record
func (rs *runStore) SaveRun(ctx context.Context, run *models.SyncRun) error {
	if err := store.SetJSON(ctx, rs.kv, store.RunKey(run.RunID), run); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.RunID, err)
	}
	return nil
}

// LoadRun loads a sync run record by id
func (rs *runStore) LoadRun(ctx context.Context, runID string) (*models.SyncRun, error) {
	var run models.SyncRun
	if err := store.GetJSON(ctx, rs.kv, store.RunKey(runID), &run); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("run %s not found: %w", runID, err)
		}
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return &run, nil
}

// SetCurrentRun records which run external re-triggers should resume
func (rs *runStore) SetCurrentRun(ctx context.Context, runID string) error {
	return rs.kv.Set(ctx, store.KeyCurrentRun, []byte(runID))
}

// CurrentRunID returns the run id recorded as current, or ErrNoCurrentRun
func (rs *runStore) CurrentRunID(ctx context.Context) (string, error) {
	data, err := rs.kv.Get(ctx, store.KeyCurrentRun)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNoCurrentRun
	}
	if err != nil {
		return "", fmt.Errorf("failed to read current run: %w", err)
	}
	return string(data), nil
}

// LoadProcedures returns the stored procedure set, empty when none exists
func (rs *runStore) LoadProcedures(ctx context.Context) (models.ProcedureSet, error) {
	var set models.ProcedureSet
	err := store.GetJSON(ctx, rs.kv, store.PrefixProcedures, &set)
	if errors.Is(err, store.ErrNotFound) {
		return models.ProcedureSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load procedures: %w", err)
	}
	return set, nil
}

// SaveProcedures persists the full procedure set
func (rs *runStore) SaveProcedures(ctx context.Context, set models.ProcedureSet) error {
	if err := store.SetJSON(ctx, rs.kv, store.PrefixProcedures, set); err != nil {
		return fmt.Errorf("failed to save procedures: %w", err)
	}
	return nil
}

// SaveManifest persists the case manifest for a run
func (rs *runStore) SaveManifest(ctx context.Context, m *models.Manifest) error {
	if err := store.SetJSON(ctx, rs.kv, store.ManifestKey(m.RunID), m); err != nil {
		return fmt.Errorf("failed to save manifest for run %s: %w", m.RunID, err)
	}
	return nil
}

// LoadManifest loads the case manifest built for a run. Stage 3 only ever
// consumes the manifest keyed by its own run id.
func (rs *runStore) LoadManifest(ctx context.Context, runID string) (*models.Manifest, error) {
	var m models.Manifest
	if err := store.GetJSON(ctx, rs.kv, store.ManifestKey(runID), &m); err != nil {
		return nil, fmt.Errorf("failed to load manifest for run %s: %w", runID, err)
	}
	return &m, nil
}

// DeleteManifest removes a run's manifest
func (rs *runStore) DeleteManifest(ctx context.Context, runID string) error {
	return rs.kv.Delete(ctx, store.ManifestKey(runID))
}

// SaveCheckpoint persists Stage 3 progress for a run
func (rs *runStore) SaveCheckpoint(ctx context.Context, cp *models.Checkpoint) error {
	if err := store.SetJSON(ctx, rs.kv, store.CheckpointKey(cp.RunID), cp); err != nil {
		return fmt.Errorf("failed to save checkpoint for run %s: %w", cp.RunID, err)
	}
	return nil
}

// LoadCheckpoint returns the stored checkpoint for a run, or nil if none
func (rs *runStore) LoadCheckpoint(ctx context.Context, runID string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	err := store.GetJSON(ctx, rs.kv, store.CheckpointKey(runID), &cp)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for run %s: %w", runID, err)
	}
	return &cp, nil
}

// DeleteCheckpoint removes a run's checkpoint once its stage completes
func (rs *runStore) DeleteCheckpoint(ctx context.Context, runID string) error {
	return rs.kv.Delete(ctx, store.CheckpointKey(runID))
}

// LoadCase returns the stored case record for an external id, or nil
func (rs *runStore) LoadCase(ctx context.Context, externalID string) (*models.Case, error) {
	var c models.Case
	err := store.GetJSON(ctx, rs.kv, store.CaseKey(externalID), &c)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case %s: %w", externalID, err)
	}
	return &c, nil
}

// SaveCase persists a case record
func (rs *runStore) SaveCase(ctx context.Context, c *models.Case) error {
	if err := store.SetJSON(ctx, rs.kv, store.CaseKey(c.ExternalID), c); err != nil {
		return fmt.Errorf("failed to save case %s: %w", c.ExternalID, err)
	}
	return nil
}
