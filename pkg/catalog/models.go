package catalog

import (
	"encoding/json"
	"strings"
	"time"

	"casesync/pkg/models"
)

// Upstream payloads are loosely typed: fields are sometimes absent. The
// wire types below use pointers for optional fields and defaulting happens
// once here, at the mapping boundary.

// taxonomyResponse is the upstream taxonomy payload
type taxonomyResponse struct {
	Procedures []procedurePayload `json:"procedures"`
}

// procedurePayload is one upstream procedure record
type procedurePayload struct {
	ID        string  `json:"id"`
	Name      *string `json:"name"`
	Slug      *string `json:"slug"`
	CaseCount *int    `json:"case_count"`
}

// listingResponse is one page of a procedure's case listing
type listingResponse struct {
	Cases []listingRow `json:"cases"`
	Page  int          `json:"page"`
	Total *int         `json:"total"`
	HasMore *bool      `json:"has_more"`
}

// listingRow is one row of a case listing page
type listingRow struct {
	ID string `json:"id"`
}

// caseDetailResponse is the upstream case detail payload
type caseDetailResponse struct {
	ID     string         `json:"id"`
	Title  *string        `json:"title"`
	Photos []mediaPayload `json:"photos"`
	Videos []mediaPayload `json:"videos"`
}

// mediaPayload is one upstream media asset reference
type mediaPayload struct {
	URL *string `json:"url"`
}

// slugify derives a slug from a display name when upstream omits one
func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	return slug
}

// mapProcedure converts an upstream procedure payload, applying defaults for
// absent fields
func mapProcedure(p procedurePayload) models.Procedure {
	proc := models.Procedure{
		ExternalID: p.ID,
		UpdatedAt:  time.Now().UTC(),
	}
	if p.Name != nil {
		proc.Name = *p.Name
	}
	if p.Slug != nil && *p.Slug != "" {
		proc.Slug = *p.Slug
	} else {
		proc.Slug = slugify(proc.Name)
	}
	if p.CaseCount != nil {
		proc.CaseCount = *p.CaseCount
	}
	return proc
}

// mapCase converts an upstream case detail payload. The raw payload is kept
// verbatim for the hosting application's renderer.
func mapCase(d caseDetailResponse, raw json.RawMessage, procedureIDs []string) models.Case {
	c := models.Case{
		ExternalID:   d.ID,
		ProcedureIDs: procedureIDs,
		Raw:          raw,
		UpdatedAt:    time.Now().UTC(),
	}
	if d.Title != nil {
		c.Title = *d.Title
	} else {
		c.Title = "Case " + d.ID
	}
	for _, p := range d.Photos {
		if p.URL != nil && *p.URL != "" {
			c.Media = append(c.Media, models.MediaRef{Kind: "photo", URL: *p.URL})
		}
	}
	for _, v := range d.Videos {
		if v.URL != nil && *v.URL != "" {
			c.Media = append(c.Media, models.MediaRef{Kind: "video", URL: *v.URL})
		}
	}
	return c
}

// ListingPage is the mapped result of one case listing call
type ListingPage struct {
	CaseIDs []string
	HasMore bool
}

// mapListing converts an upstream listing page. When upstream omits has_more
// the page is treated as final once it comes back short or empty.
func mapListing(l listingResponse, pageSize int) ListingPage {
	page := ListingPage{}
	for _, row := range l.Cases {
		if row.ID != "" {
			page.CaseIDs = append(page.CaseIDs, row.ID)
		}
	}
	if l.HasMore != nil {
		page.HasMore = *l.HasMore
	} else {
		page.HasMore = len(l.Cases) == pageSize && pageSize > 0
	}
	return page
}
