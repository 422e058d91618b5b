package ports

import (
	"context"

	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// Filter narrows a record listing. Keys follow the external API's filter names.
type Filter map[string]string

// FilterIDs is the filter key selecting records by external id.
const FilterIDs = "ids"

// Pagination describes where a page sits in a listing.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
	NextPage   int `json:"next_page"` // 0 on the last page
}

// Page is one page of external records.
type Page struct {
	Results    []record.External
	Pagination Pagination
}

// LocationSummary is one match of a location search.
type LocationSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
	Type string `json:"type,omitempty"`
}

// ExternalAPI is the remote CRM. A failed call returns an error and an empty
// result, never a partial one.
type ExternalAPI interface {
	// GetRecords returns one page of records of the given entity.
	GetRecords(ctx context.Context, entity record.EntityType, filter Filter, page, perPage int) (Page, error)

	// UpdateRecord sends a payload for an existing external record and
	// reports whether the API accepted it.
	UpdateRecord(ctx context.Context, entity record.EntityType, externalID string, payload record.External) (bool, error)

	// SearchLocations looks up locations by free text.
	SearchLocations(ctx context.Context, query string, perPage int) ([]LocationSummary, error)
}
