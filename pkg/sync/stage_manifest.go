package sync

import (
	"context"
	"fmt"
	"sort"

	"casesync/pkg/models"
)

// Stage2Result holds the manifest build totals
type Stage2Result struct {
	ProcedureCount       int
	CaseCount            int
	DuplicateOccurrences int
	DuplicateUniqueIDs   int
	Warnings             []string
}

// buildManifest runs Stage 2: page through every procedure's case listing and
// collect a deduplicated, ordered manifest keyed by the run id. A single
// procedure's listing failure is logged and skipped; the stage only fails
// outright when the resulting manifest is empty, which protects stored case
// data from being wiped by a total upstream outage.
func (e *Engine) buildManifest(ctx context.Context, runID string) (*models.Manifest, Stage2Result, error) {
	result := Stage2Result{}
	manifest := models.NewManifest(runID)

	procedures, err := e.runs.LoadProcedures(ctx)
	if err != nil {
		return nil, result, err
	}

	// Stable procedure order keeps first_seen_order deterministic
	ids := make([]string, 0, len(procedures))
	for id := range procedures {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, procedureID := range ids {
		if err := e.collectListing(ctx, manifest, procedureID); err != nil {
			warning := fmt.Sprintf("listing for procedure %s skipped: %v", procedureID, err)
			result.Warnings = append(result.Warnings, warning)
			e.logger.WarnWithFields("procedure listing failed, skipping", map[string]interface{}{
				"procedure_id": procedureID,
				"error":        err.Error(),
			})
			continue
		}
		result.ProcedureCount++
	}

	if manifest.Len() == 0 {
		return nil, result, fmt.Errorf("manifest is empty after listing %d procedures", len(ids))
	}

	if err := e.runs.SaveManifest(ctx, manifest); err != nil {
		return nil, result, err
	}

	result.CaseCount = manifest.Len()
	result.DuplicateOccurrences = manifest.DuplicateOccurrences
	result.DuplicateUniqueIDs = manifest.DuplicateUniqueIDs()

	if result.DuplicateOccurrences > 0 {
		warning := fmt.Sprintf("%d duplicate case listing rows collapsed into %d shared entries",
			result.DuplicateOccurrences, result.DuplicateUniqueIDs)
		result.Warnings = append(result.Warnings, warning)
	}

	e.logger.InfoWithFields("manifest build completed", map[string]interface{}{
		"run_id":                runID,
		"procedure_count":       result.ProcedureCount,
		"case_count":            result.CaseCount,
		"duplicate_occurrences": result.DuplicateOccurrences,
		"duplicate_unique_ids":  result.DuplicateUniqueIDs,
	})

	return manifest, result, nil
}

// collectListing pages through one procedure's case listing until exhausted
func (e *Engine) collectListing(ctx context.Context, manifest *models.Manifest, procedureID string) error {
	for page := 1; ; page++ {
		listing, err := e.client.FetchCaseListing(ctx, procedureID, page)
		if err != nil {
			return err
		}

		for _, caseID := range listing.CaseIDs {
			if manifest.Add(caseID, procedureID) {
				// A case under multiple procedures is a warning, not an error
				e.logger.WarnWithFields("duplicate case id in listing", map[string]interface{}{
					"case_id":      caseID,
					"procedure_id": procedureID,
				})
			}
		}

		if !listing.HasMore {
			return nil
		}
	}
}
