// Package platform talks to one remote threat-intel or simulation
// platform: a Searcher collaborator exposing the paginated search
// endpoint, and a Fetcher that drives it page by page until the whole
// corpus has been retrieved.
package platform

import (
	"context"

	"github.com/ajitpratap0/threatlex/internal/models"
)

const (
	// DefaultPageSize is used for generic entity collections.
	DefaultPageSize = 500

	// DistinctPageSize is used for collections queried with the
	// server-side distinct flag (findings).
	DistinctPageSize = 200
)

// Query selects one entity collection on a platform.
type Query struct {
	TypeKey  models.EntityTypeKey
	Endpoint string
	PageSize int
	Distinct bool
}

// QueryForType returns the standard query for a type key: findings use
// the smaller page size with the distinct flag, everything else the
// generic default. The endpoint is the type key itself unless the
// caller overrides it.
func QueryForType(typeKey models.EntityTypeKey) Query {
	q := Query{
		TypeKey:  typeKey,
		Endpoint: string(typeKey),
		PageSize: DefaultPageSize,
	}
	if typeKey == models.TypeFinding {
		q.PageSize = DistinctPageSize
		q.Distinct = true
	}
	return q
}

// Page is one envelope returned by a platform's search endpoint.
// TotalPages may be zero on malformed responses; the fetcher defaults
// it to 1.
type Page struct {
	Content       []models.CachedEntity `json:"content"`
	TotalPages    int                   `json:"totalPages"`
	TotalElements int                   `json:"totalElements"`
}

// Searcher is the remote platform collaborator.
type Searcher interface {
	Search(ctx context.Context, q Query, page int) (*Page, error)
}
