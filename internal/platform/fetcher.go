package platform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ajitpratap0/threatlex/internal/metrics"
	"github.com/ajitpratap0/threatlex/internal/models"
)

// Fetcher retrieves a platform's full corpus for one collection by
// walking the paginated search endpoint. Pages are requested strictly
// sequentially: each request depends on the previous page's reported
// total.
type Fetcher struct {
	searcher Searcher
	logger   *slog.Logger
}

// NewFetcher creates a fetcher over the given searcher.
func NewFetcher(searcher Searcher, logger *slog.Logger) *Fetcher {
	return &Fetcher{searcher: searcher, logger: logger}
}

// FetchAll returns every entity the server reports for the query, in
// server-delivered order. No dedup is performed: if the remote
// collection mutates mid-fetch, duplicates or gaps are possible. Any
// page error aborts the whole fetch; accumulated pages are discarded
// and the error propagates.
func (f *Fetcher) FetchAll(ctx context.Context, q Query) ([]models.CachedEntity, error) {
	var all []models.CachedEntity
	totalPages := 1
	for page := 0; page < totalPages; page++ {
		envelope, err := f.searcher.Search(ctx, q, page)
		if err != nil {
			return nil, fmt.Errorf("fetching %s page %d: %w", q.Endpoint, page, err)
		}
		metrics.Inc(metrics.PagesFetched)
		all = append(all, envelope.Content...)
		// A missing or zero totalPages means a single page; never
		// loop forever on a malformed envelope.
		if envelope.TotalPages > 0 {
			totalPages = envelope.TotalPages
		}
	}
	f.logger.Debug("fetched collection", "endpoint", q.Endpoint, "entities", len(all), "pages", totalPages)
	return all, nil
}
