package sync

import (
	"bytes"
	"context"
	"runtime"
	"time"

	"casesync/pkg/models"
)

// Stage3Result is the outcome of one Stage 3 invocation. NeedsResume is
// ordinary control flow, not a failure: the caller re-invokes the stage with
// the same run id to continue from Cursor.
type Stage3Result struct {
	NeedsResume bool
	Cursor      int
	Counts      models.CaseCounts
}

// processCases runs Stage 3: consume the run's manifest in insertion order
// from the persisted checkpoint cursor, fetching case detail live and
// upserting by external id. After each batch the checkpoint is written and
// the soft limits plus the stop flag are checked; tripping any of them
// returns early with NeedsResume set.
func (e *Engine) processCases(ctx context.Context, run *models.SyncRun) (Stage3Result, error) {
	manifest, err := e.runs.LoadManifest(ctx, run.RunID)
	if err != nil {
		return Stage3Result{}, err
	}

	cursor := 0
	counts := models.CaseCounts{}
	if cp, err := e.runs.LoadCheckpoint(ctx, run.RunID); err != nil {
		return Stage3Result{}, err
	} else if cp != nil {
		cursor = cp.Cursor
		counts = cp.Counts
	}

	invocationStart := time.Now()
	inBatch := 0

	for i := cursor; i < manifest.Len(); i++ {
		entry := manifest.Entries[i]
		run.CurrentItem = entry.CaseExternalID

		e.processOneCase(ctx, entry, &counts)
		inBatch++

		if inBatch < e.cfg.Sync.BatchSize && i != manifest.Len()-1 {
			continue
		}
		inBatch = 0

		// Checkpoint after every batch so any exit point is resumable
		next := i + 1
		if err := e.runs.SaveCheckpoint(ctx, &models.Checkpoint{
			RunID:     run.RunID,
			Stage:     models.StageCases,
			Cursor:    next,
			Counts:    counts,
			UpdatedAt: time.Now().UTC(),
		}); err != nil {
			return Stage3Result{}, err
		}

		run.Cases = counts
		if err := e.runs.SaveRun(ctx, run); err != nil {
			return Stage3Result{}, err
		}

		if reason := e.shouldSuspend(invocationStart); reason != "" && next < manifest.Len() {
			e.logger.InfoWithFields("case processing suspended", map[string]interface{}{
				"run_id": run.RunID,
				"cursor": next,
				"reason": reason,
			})
			return Stage3Result{NeedsResume: true, Cursor: next, Counts: counts}, nil
		}
	}

	// Stage complete: the checkpoint has served its purpose
	if err := e.runs.DeleteCheckpoint(ctx, run.RunID); err != nil {
		e.logger.WithError(err).Warn("failed to delete checkpoint")
	}

	e.logger.InfoWithFields("case processing completed", map[string]interface{}{
		"run_id":    run.RunID,
		"created":   counts.Created,
		"updated":   counts.Updated,
		"failed":    counts.Failed,
		"attempted": counts.Attempted,
	})

	return Stage3Result{NeedsResume: false, Cursor: manifest.Len(), Counts: counts}, nil
}

// processOneCase fetches and upserts a single manifest entry. Failures are
// counted and skipped without retry; they never halt the batch.
func (e *Engine) processOneCase(ctx context.Context, entry models.ManifestEntry, counts *models.CaseCounts) {
	counts.Attempted++

	fetched, err := e.client.FetchCaseDetail(ctx, entry.CaseExternalID, entry.ProcedureExternalIDs)
	if err != nil {
		counts.Failed++
		e.recordItem("failed")
		e.logger.WarnWithFields("case detail fetch failed, skipping", map[string]interface{}{
			"case_id": entry.CaseExternalID,
			"error":   err.Error(),
		})
		return
	}

	existing, err := e.runs.LoadCase(ctx, entry.CaseExternalID)
	if err != nil {
		counts.Failed++
		e.recordItem("failed")
		e.logger.WithError(err).WithField("case_id", entry.CaseExternalID).Warn("case load failed, skipping")
		return
	}

	switch {
	case existing == nil:
		if err := e.runs.SaveCase(ctx, &fetched); err != nil {
			counts.Failed++
			e.recordItem("failed")
			return
		}
		counts.Created++
		e.recordItem("created")
	case caseChanged(existing, &fetched):
		if err := e.runs.SaveCase(ctx, &fetched); err != nil {
			counts.Failed++
			e.recordItem("failed")
			return
		}
		counts.Updated++
		e.recordItem("updated")
	default:
		e.recordItem("unchanged")
	}
}

// caseChanged reports whether any synced field differs between two records
func caseChanged(a, b *models.Case) bool {
	if a.Title != b.Title {
		return true
	}
	if !stringSlicesEqual(a.ProcedureIDs, b.ProcedureIDs) {
		return true
	}
	if len(a.Media) != len(b.Media) {
		return true
	}
	for i := range a.Media {
		if a.Media[i] != b.Media[i] {
			return true
		}
	}
	return !bytes.Equal(a.Raw, b.Raw)
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// shouldSuspend checks the cooperative stop flag and the soft time/memory
// limits. Only called at batch boundaries, never mid-item.
func (e *Engine) shouldSuspend(invocationStart time.Time) string {
	if e.stopRequested() {
		return "stop requested"
	}

	if limit := e.cfg.Sync.SoftTimeLimit; limit > 0 && time.Since(invocationStart) > limit {
		return "soft time limit exceeded"
	}

	if limit := e.cfg.Sync.SoftMemoryLimit; limit > 0 {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		if int64(mem.HeapAlloc) > limit {
			return "soft memory limit exceeded"
		}
	}

	return ""
}

// recordItem increments the per-stage prometheus counter
func (e *Engine) recordItem(result string) {
	if e.metrics != nil {
		e.metrics.ItemsProcessed.WithLabelValues(models.StageCases.String(), result).Inc()
	}
}
