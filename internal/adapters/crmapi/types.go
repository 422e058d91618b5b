package crmapi

import "github.com/jbctechsolutions/listingsync/internal/domain/record"

// DefaultBaseURL is the default CRM API endpoint.
const DefaultBaseURL = "https://atlas.propertyfinder.com/v1"

// API endpoints
const (
	EndpointListings  = "/listings"
	EndpointAgents    = "/users"
	EndpointLocations = "/locations"
)

var entityEndpoints = map[record.EntityType]string{
	record.EntityListing: EndpointListings,
	record.EntityAgent:   EndpointAgents,
}

// Response paths
const (
	pathResults    = "results"
	pathData       = "data"
	pathPage       = "pagination.page"
	pathPerPage    = "pagination.perPage"
	pathTotal      = "pagination.total"
	pathTotalPages = "pagination.totalPages"
	pathNextPage   = "pagination.nextPage"
)

// ErrorResponse is the error body returned by the API. Validation errors
// list the offending fields.
type ErrorResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Errors []struct {
		Field  string `json:"field"`
		Detail string `json:"detail"`
	} `json:"errors"`
}
