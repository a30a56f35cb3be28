package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casesync/pkg/config"
	"casesync/pkg/models"
)

// seedStage3 stores a run and a manifest of n cases, ready for processCases
func seedStage3(t *testing.T, e *Engine, n int) *models.SyncRun {
	t.Helper()
	ctx := context.Background()

	run := &models.SyncRun{
		RunID:     "run-1",
		Stage:     models.StageCases,
		Status:    models.StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, e.runs.SaveRun(ctx, run))
	require.NoError(t, e.runs.SetCurrentRun(ctx, run.RunID))

	manifest := models.NewManifest(run.RunID)
	for i := 0; i < n; i++ {
		manifest.Add(fmt.Sprintf("case-%03d", i), "p1")
	}
	require.NoError(t, e.runs.SaveManifest(ctx, manifest))
	run.ManifestSize = manifest.Len()
	return run
}

func TestProcessCasesFiveInvocations(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Sync.BatchSize = 50
	// A tiny time limit makes every batch boundary suspend
	cfg.Sync.SoftTimeLimit = time.Nanosecond

	fake := newFakeCatalog()
	engine, _ := newTestEngine(cfg, fake)
	run := seedStage3(t, engine, 250)

	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		result, err := engine.processCases(ctx, run)
		require.NoError(t, err)
		assert.True(t, result.NeedsResume, "invocation %d", i)
		assert.Equal(t, i*50, result.Cursor, "invocation %d", i)
		assert.Equal(t, i*50, result.Counts.Attempted, "invocation %d", i)
	}

	// The fifth invocation drains the manifest and completes instead of
	// suspending at the final boundary
	result, err := engine.processCases(ctx, run)
	require.NoError(t, err)
	assert.False(t, result.NeedsResume)
	assert.Equal(t, 250, result.Cursor)
	assert.Equal(t, 250, result.Counts.Attempted)
	assert.Equal(t, 250, result.Counts.Created)

	// Each case processed exactly once across all five invocations
	assert.Equal(t, 250, fake.totalDetailCalls())
	for id, calls := range fake.detailCalls {
		assert.Equal(t, 1, calls, "case %s", id)
	}

	// The checkpoint is gone once the stage completes
	cp, err := engine.runs.LoadCheckpoint(ctx, run.RunID)
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestProcessCasesResumesFromAnyCheckpoint(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Sync.BatchSize = 10

	fake := newFakeCatalog()
	engine, _ := newTestEngine(cfg, fake)
	run := seedStage3(t, engine, 35)

	ctx := context.Background()
	require.NoError(t, engine.runs.SaveCheckpoint(ctx, &models.Checkpoint{
		RunID:  run.RunID,
		Stage:  models.StageCases,
		Cursor: 20,
		Counts: models.CaseCounts{Created: 20, Attempted: 20},
	}))

	result, err := engine.processCases(ctx, run)
	require.NoError(t, err)
	assert.False(t, result.NeedsResume)
	assert.Equal(t, 35, result.Counts.Attempted)
	assert.Equal(t, 35, result.Counts.Created)

	// Only the unprocessed tail was fetched
	assert.Equal(t, 15, fake.totalDetailCalls())
	assert.Equal(t, 0, fake.detailCalls["case-000"])
	assert.Equal(t, 1, fake.detailCalls["case-020"])
}

func TestProcessCasesCheckpointAfterEveryBatch(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Sync.BatchSize = 10
	cfg.Sync.SoftTimeLimit = time.Nanosecond

	fake := newFakeCatalog()
	engine, _ := newTestEngine(cfg, fake)
	run := seedStage3(t, engine, 25)

	ctx := context.Background()
	result, err := engine.processCases(ctx, run)
	require.NoError(t, err)
	require.True(t, result.NeedsResume)

	cp, err := engine.runs.LoadCheckpoint(ctx, run.RunID)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, models.StageCases, cp.Stage)
	assert.Equal(t, 10, cp.Cursor)
	assert.Equal(t, result.Counts, cp.Counts)
}

func TestProcessCasesStopFlagSuspends(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Sync.BatchSize = 5

	fake := newFakeCatalog()
	engine, _ := newTestEngine(cfg, fake)
	run := seedStage3(t, engine, 20)

	engine.stop.Store(true)

	result, err := engine.processCases(context.Background(), run)
	require.NoError(t, err)
	assert.True(t, result.NeedsResume)
	assert.Equal(t, 5, result.Cursor)
	assert.Equal(t, 5, result.Counts.Attempted)
}

func TestProcessCasesFinalBatchNeverSuspends(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Sync.BatchSize = 5
	cfg.Sync.SoftTimeLimit = time.Nanosecond

	fake := newFakeCatalog()
	engine, _ := newTestEngine(cfg, fake)
	run := seedStage3(t, engine, 5)

	// A single batch covering the whole manifest completes even though the
	// soft limit has tripped; there is nothing left to resume
	result, err := engine.processCases(context.Background(), run)
	require.NoError(t, err)
	assert.False(t, result.NeedsResume)
	assert.Equal(t, 5, result.Counts.Attempted)
}

func TestProcessCasesUpdatesChangedCase(t *testing.T) {
	cfg := testSyncConfig()
	fake := newFakeCatalog()
	engine, _ := newTestEngine(cfg, fake)
	run := seedStage3(t, engine, 3)

	ctx := context.Background()
	require.NoError(t, engine.runs.SaveCase(ctx, &models.Case{
		ExternalID:   "case-000",
		ProcedureIDs: []string{"p1"},
		Title:        "stale title",
	}))
	require.NoError(t, engine.runs.SaveCase(ctx, &models.Case{
		ExternalID:   "case-001",
		ProcedureIDs: []string{"p1"},
		Title:        "Case case-001",
		UpdatedAt:    time.Unix(0, 0).UTC(),
	}))

	result, err := engine.processCases(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Counts.Created)
	assert.Equal(t, 1, result.Counts.Updated)
	assert.Equal(t, 3, result.Counts.Attempted)

	stored, err := engine.runs.LoadCase(ctx, "case-000")
	require.NoError(t, err)
	assert.Equal(t, "Case case-000", stored.Title)
}

func TestBatchSizeShorterThanManifest(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Sync.BatchSize = 50

	fake := newFakeCatalog()
	engine, _ := newTestEngine(cfg, fake)
	run := seedStage3(t, engine, 7)

	result, err := engine.processCases(context.Background(), run)
	require.NoError(t, err)
	assert.False(t, result.NeedsResume)
	assert.Equal(t, 7, result.Counts.Attempted)
}

func defaultConfigForSuspend() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Sync.SoftTimeLimit = time.Hour
	cfg.Sync.SoftMemoryLimit = 0
	return cfg
}

func TestShouldSuspendReasons(t *testing.T) {
	engine, _ := newTestEngine(defaultConfigForSuspend(), newFakeCatalog())

	assert.Empty(t, engine.shouldSuspend(time.Now()))

	engine.cfg.Sync.SoftTimeLimit = time.Nanosecond
	assert.Equal(t, "soft time limit exceeded", engine.shouldSuspend(time.Now().Add(-time.Second)))
	engine.cfg.Sync.SoftTimeLimit = time.Hour

	engine.cfg.Sync.SoftMemoryLimit = 1 // any live heap exceeds one byte
	assert.Equal(t, "soft memory limit exceeded", engine.shouldSuspend(time.Now()))
	engine.cfg.Sync.SoftMemoryLimit = 0

	engine.stop.Store(true)
	assert.Equal(t, "stop requested", engine.shouldSuspend(time.Now()))
}
