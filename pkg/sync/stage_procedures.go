package sync

import (
	"context"
	"fmt"

	"casesync/pkg/models"
)

// Stage1Result holds the procedure sync totals
type Stage1Result struct {
	Created        int
	Updated        int
	ProcedureCount int
}

// syncProcedures runs Stage 1: fetch the taxonomy live, diff it against the
// stored procedure set by external id and upsert. Procedures are a
// prerequisite for the later stages, so any failure here is stage-fatal.
func (e *Engine) syncProcedures(ctx context.Context) (Stage1Result, error) {
	result := Stage1Result{}

	procedures, err := e.client.FetchTaxonomy(ctx)
	if err != nil {
		return result, fmt.Errorf("taxonomy fetch failed: %w", err)
	}

	existing, err := e.runs.LoadProcedures(ctx)
	if err != nil {
		return result, err
	}

	for _, proc := range procedures {
		stored, ok := existing[proc.ExternalID]
		if !ok {
			existing[proc.ExternalID] = proc
			result.Created++
			continue
		}

		if stored.Name != proc.Name || stored.Slug != proc.Slug || stored.CaseCount != proc.CaseCount {
			// external_id is immutable; only the mutable fields move
			stored.Name = proc.Name
			stored.Slug = proc.Slug
			stored.CaseCount = proc.CaseCount
			stored.UpdatedAt = proc.UpdatedAt
			existing[proc.ExternalID] = stored
			result.Updated++
		}
	}

	if err := e.runs.SaveProcedures(ctx, existing); err != nil {
		return result, err
	}

	result.ProcedureCount = len(procedures)

	if e.metrics != nil {
		e.metrics.ItemsProcessed.WithLabelValues(models.StageProcedures.String(), "created").Add(float64(result.Created))
		e.metrics.ItemsProcessed.WithLabelValues(models.StageProcedures.String(), "updated").Add(float64(result.Updated))
	}

	e.logger.InfoWithFields("procedure sync completed", map[string]interface{}{
		"created":         result.Created,
		"updated":         result.Updated,
		"procedure_count": result.ProcedureCount,
	})

	return result, nil
}
