package catalog

import (
	"fmt"
	"net/url"
)

// Endpoint paths for the upstream catalog API
const (
	taxonomyPath    = "/api/v2/procedures"
	caseListingPath = "/api/v2/procedures/%s/cases"
	caseDetailPath  = "/api/v2/cases/%s"
)

// Endpoint labels used for per-endpoint counters and metrics
const (
	EndpointTaxonomy    = "taxonomy"
	EndpointCaseListing = "case_listing"
	EndpointCaseDetail  = "case_detail"
)

// TaxonomyURL returns the full taxonomy endpoint URL
func TaxonomyURL(baseURL string) string {
	return baseURL + taxonomyPath
}

// CaseListingURL returns the paginated case listing URL for a procedure
func CaseListingURL(baseURL, procedureID string, page, pageSize int) string {
	query := url.Values{}
	query.Set("page", fmt.Sprintf("%d", page))
	query.Set("per_page", fmt.Sprintf("%d", pageSize))
	return baseURL + fmt.Sprintf(caseListingPath, url.PathEscape(procedureID)) + "?" + query.Encode()
}

// CaseDetailURL returns the case detail URL for a case id
func CaseDetailURL(baseURL, caseID string) string {
	return baseURL + fmt.Sprintf(caseDetailPath, url.PathEscape(caseID))
}
