package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"casesync/pkg/config"
	"casesync/pkg/logger"
	"casesync/pkg/metrics"
	"casesync/pkg/models"
	"casesync/pkg/store"
)

// ErrAlreadyRunning is returned when a second sync is started while one is
// still in progress against the same catalog
var ErrAlreadyRunning = errors.New("sync: a run is already in progress")

// Engine orchestrates the three synchronization stages over a sync run. A
// run is processed by a single logical worker; the running flag prevents a
// second RunFullSync or Resume from starting concurrently.
type Engine struct {
	cfg     *config.Config
	client  CatalogAPI
	runs    *runStore
	logger  logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	running bool
	stop    atomic.Bool
}

// NewEngine creates a sync engine over the given client and store
func NewEngine(cfg *config.Config, client CatalogAPI, kv store.KV, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Engine{
		cfg:    cfg,
		client: client,
		runs:   &runStore{kv: kv},
		logger: log,
	}
}

// SetMetrics attaches prometheus collectors to the engine
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// RequestStop sets the cooperative cancellation flag. It is honored at the
// next Stage 3 batch boundary; the run is left paused, never failed.
func (e *Engine) RequestStop() {
	e.stop.Store(true)
}

func (e *Engine) stopRequested() bool {
	return e.stop.Load()
}

// acquire takes the running flag, rejecting overlapping invocations
func (e *Engine) acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyRunning
	}
	e.running = true
	e.stop.Store(false)
	return nil
}

func (e *Engine) release() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// RunFullSync drives all three stages to completion synchronously,
// re-invoking Stage 3 until it no longer needs resumption. Used for
// on-demand full resyncs.
func (e *Engine) RunFullSync(ctx context.Context) (*models.Report, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.release()

	run := &models.SyncRun{
		RunID:     uuid.NewString(),
		Stage:     models.StageProcedures,
		Status:    models.StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := e.runs.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	if err := e.runs.SetCurrentRun(ctx, run.RunID); err != nil {
		return nil, err
	}

	e.logger.InfoWithFields("full sync started", map[string]interface{}{
		"run_id": run.RunID,
	})

	if err := e.runStage1(ctx, run); err != nil {
		return e.failRun(ctx, run, models.StageProcedures, err), err
	}

	if err := e.runStage2(ctx, run); err != nil {
		return e.failRun(ctx, run, models.StageManifest, err), err
	}

	for {
		result, err := e.runStage3(ctx, run)
		if err != nil {
			return e.failRun(ctx, run, models.StageCases, err), err
		}
		if !result.NeedsResume {
			break
		}
		if e.stopRequested() {
			return e.pauseRun(ctx, run), nil
		}
		// Soft limits reset per invocation, so the driver just re-enters
	}

	return e.completeRun(ctx, run), nil
}

// Resume re-invokes only the stage currently recorded as in-progress, using
// its persisted checkpoint. External schedulers call this so a single host
// invocation never has to process the full catalog.
func (e *Engine) Resume(ctx context.Context) (*models.Report, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.release()

	runID, err := e.runs.CurrentRunID(ctx)
	if err != nil {
		return nil, err
	}

	run, err := e.runs.LoadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.IsTerminal() {
		return nil, fmt.Errorf("run %s already %s, nothing to resume", run.RunID, run.Status)
	}

	run.Status = models.StatusRunning
	if err := e.runs.SaveRun(ctx, run); err != nil {
		return nil, err
	}

	e.logger.InfoWithFields("resuming run", map[string]interface{}{
		"run_id": run.RunID,
		"stage":  run.Stage.String(),
	})

	switch run.Stage {
	case models.StageProcedures:
		if err := e.runStage1(ctx, run); err != nil {
			return e.failRun(ctx, run, models.StageProcedures, err), err
		}
		fallthrough
	case models.StageManifest:
		if err := e.runStage2(ctx, run); err != nil {
			return e.failRun(ctx, run, models.StageManifest, err), err
		}
	}

	result, err := e.runStage3(ctx, run)
	if err != nil {
		return e.failRun(ctx, run, models.StageCases, err), err
	}
	if result.NeedsResume {
		return e.pauseRun(ctx, run), nil
	}

	return e.completeRun(ctx, run), nil
}

// runStage1 executes procedure sync and records its totals on the run
func (e *Engine) runStage1(ctx context.Context, run *models.SyncRun) error {
	run.Stage = models.StageProcedures
	if err := e.runs.SaveRun(ctx, run); err != nil {
		return err
	}

	result, err := e.syncProcedures(ctx)
	if err != nil {
		return err
	}

	run.Procedures = models.ProcedureCounts{Created: result.Created, Updated: result.Updated}
	run.ProcedureCount = result.ProcedureCount
	return e.runs.SaveRun(ctx, run)
}

// runStage2 executes the manifest build and records its totals on the run
func (e *Engine) runStage2(ctx context.Context, run *models.SyncRun) error {
	run.Stage = models.StageManifest
	if err := e.runs.SaveRun(ctx, run); err != nil {
		return err
	}

	manifest, result, err := e.buildManifest(ctx, run.RunID)
	if err != nil {
		return err
	}

	run.ManifestSize = manifest.Len()
	run.DuplicateOccurrences = result.DuplicateOccurrences
	run.DuplicateUniqueIDs = result.DuplicateUniqueIDs
	run.Warnings = append(run.Warnings, result.Warnings...)
	return e.runs.SaveRun(ctx, run)
}

// runStage3 executes one case-processing invocation
func (e *Engine) runStage3(ctx context.Context, run *models.SyncRun) (Stage3Result, error) {
	run.Stage = models.StageCases
	if err := e.runs.SaveRun(ctx, run); err != nil {
		return Stage3Result{}, err
	}

	result, err := e.processCases(ctx, run)
	if err != nil {
		return Stage3Result{}, err
	}

	run.Cases = result.Counts
	return result, e.runs.SaveRun(ctx, run)
}

// completeRun finalizes a successful run
func (e *Engine) completeRun(ctx context.Context, run *models.SyncRun) *models.Report {
	now := time.Now().UTC()
	run.Status = models.StatusCompleted
	run.CompletedAt = &now
	run.CurrentItem = ""
	if err := e.runs.SaveRun(ctx, run); err != nil {
		e.logger.WithError(err).Error("failed to persist completed run")
	}
	if err := e.runs.DeleteManifest(ctx, run.RunID); err != nil {
		e.logger.WithError(err).Warn("failed to delete manifest")
	}
	if e.metrics != nil {
		e.metrics.RunsTotal.WithLabelValues(string(models.StatusCompleted)).Inc()
	}

	e.logger.InfoWithFields("sync run completed", map[string]interface{}{
		"run_id":   run.RunID,
		"warnings": len(run.Warnings),
	})

	return e.buildReport(run)
}

// pauseRun records a clean, resumable exit. A stop or soft-limit pause is
// ordinary control flow and never marks the run failed.
func (e *Engine) pauseRun(ctx context.Context, run *models.SyncRun) *models.Report {
	run.Status = models.StatusPaused
	if err := e.runs.SaveRun(ctx, run); err != nil {
		e.logger.WithError(err).Error("failed to persist paused run")
	}

	e.logger.InfoWithFields("sync run paused", map[string]interface{}{
		"run_id": run.RunID,
		"stage":  run.Stage.String(),
	})

	return e.buildReport(run)
}

// failRun marks the run failed, preserving partial counts
func (e *Engine) failRun(ctx context.Context, run *models.SyncRun, stage models.Stage, cause error) *models.Report {
	now := time.Now().UTC()
	run.Status = models.StatusFailed
	run.CompletedAt = &now
	run.FailureStage = stage
	run.FailureMessage = cause.Error()
	if err := e.runs.SaveRun(ctx, run); err != nil {
		e.logger.WithError(err).Error("failed to persist failed run")
	}
	if e.metrics != nil {
		e.metrics.RunsTotal.WithLabelValues(string(models.StatusFailed)).Inc()
	}

	e.logger.ErrorWithFields("sync run failed", map[string]interface{}{
		"run_id": run.RunID,
		"stage":  stage.String(),
		"error":  cause.Error(),
	})

	return e.buildReport(run)
}

// buildReport assembles the operator-facing summary for a run
func (e *Engine) buildReport(run *models.SyncRun) *models.Report {
	end := time.Now().UTC()
	if run.CompletedAt != nil {
		end = *run.CompletedAt
	}
	return &models.Report{
		RunID:      run.RunID,
		Status:     run.Status,
		Procedures: run.Procedures,
		Cases:      run.Cases,
		Duplicates: models.DuplicateStats{
			Unique:      run.DuplicateUniqueIDs,
			Occurrences: run.DuplicateOccurrences,
		},
		Warnings: run.Warnings,
		Duration: end.Sub(run.StartedAt),
	}
}

// Status returns the external status view for a run
func (e *Engine) Status(ctx context.Context, runID string) (*models.RunStatusInfo, error) {
	run, err := e.runs.LoadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &models.RunStatusInfo{
		RunID:             run.RunID,
		Stage:             run.Stage,
		Status:            run.Status,
		OverallPercentage: run.Progress(),
		Counts:            run.Cases,
		CurrentItem:       run.CurrentItem,
	}, nil
}

// CurrentStatus returns the status of the run recorded as current
func (e *Engine) CurrentStatus(ctx context.Context) (*models.RunStatusInfo, error) {
	runID, err := e.runs.CurrentRunID(ctx)
	if err != nil {
		return nil, err
	}
	return e.Status(ctx, runID)
}
