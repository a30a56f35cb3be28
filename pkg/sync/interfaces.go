package sync

import (
	"context"

	"casesync/pkg/catalog"
	"casesync/pkg/models"
)

// CatalogAPI is the upstream surface the engine depends on. *catalog.Client
// satisfies it; tests substitute a fake.
type CatalogAPI interface {
	// FetchTaxonomy fetches the full procedure taxonomy in one live call
	FetchTaxonomy(ctx context.Context) ([]models.Procedure, error)

	// FetchCaseListing fetches one page of a procedure's case listing
	FetchCaseListing(ctx context.Context, procedureID string, page int) (catalog.ListingPage, error)

	// FetchCaseDetail fetches one case by external id, always live
	FetchCaseDetail(ctx context.Context, caseID string, procedureIDs []string) (models.Case, error)

	// Stats returns the per-endpoint counters collected so far
	Stats() map[string]catalog.EndpointStats
}
