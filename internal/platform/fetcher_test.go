package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/threatlex/internal/models"
)

// fakeSearcher serves a fixed corpus split into pages of size
// q.PageSize and records every page index requested.
type fakeSearcher struct {
	entities  []models.CachedEntity
	requested []int
	failAt    int // page index that errors; -1 = never
}

func newFakeSearcher(n int) *fakeSearcher {
	entities := make([]models.CachedEntity, n)
	for i := range entities {
		entities[i] = models.CachedEntity{
			ID:   fmt.Sprintf("ent-%d", i),
			Name: fmt.Sprintf("Entity %d", i),
		}
	}
	return &fakeSearcher{entities: entities, failAt: -1}
}

func (f *fakeSearcher) Search(_ context.Context, q Query, page int) (*Page, error) {
	f.requested = append(f.requested, page)
	if page == f.failAt {
		return nil, errors.New("connection reset")
	}
	totalPages := (len(f.entities) + q.PageSize - 1) / q.PageSize
	start := page * q.PageSize
	end := min(start+q.PageSize, len(f.entities))
	var content []models.CachedEntity
	if start < len(f.entities) {
		content = f.entities[start:end]
	}
	return &Page{
		Content:       content,
		TotalPages:    totalPages,
		TotalElements: len(f.entities),
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestFetchAll_Completeness(t *testing.T) {
	// 1250 items at page size 500 is 3 pages.
	src := newFakeSearcher(1250)
	fetcher := NewFetcher(src, testLogger())

	got, err := fetcher.FetchAll(context.Background(), QueryForType(models.TypeMalware))
	require.NoError(t, err)
	require.Len(t, got, 1250)

	// Exactly 3 page requests, ascending.
	assert.Equal(t, []int{0, 1, 2}, src.requested)

	// No duplicate ids.
	seen := make(map[string]bool, len(got))
	for _, e := range got {
		assert.False(t, seen[e.ID], "duplicate id %s", e.ID)
		seen[e.ID] = true
	}
}

func TestFetchAll_PreservesServerOrder(t *testing.T) {
	src := newFakeSearcher(7)
	fetcher := NewFetcher(src, testLogger())

	got, err := fetcher.FetchAll(context.Background(), Query{TypeKey: models.TypeMalware, Endpoint: "malware", PageSize: 3})
	require.NoError(t, err)
	require.Len(t, got, 7)
	for i, e := range got {
		assert.Equal(t, fmt.Sprintf("ent-%d", i), e.ID)
	}
	assert.Equal(t, []int{0, 1, 2}, src.requested)
}

func TestFetchAll_ZeroResults(t *testing.T) {
	src := newFakeSearcher(0)
	fetcher := NewFetcher(src, testLogger())

	got, err := fetcher.FetchAll(context.Background(), QueryForType(models.TypeTool))
	require.NoError(t, err)
	assert.Empty(t, got)
	// Exactly one request, no infinite loop on totalPages 0.
	assert.Equal(t, []int{0}, src.requested)
}

func TestFetchAll_MissingTotalPagesDefaultsToOne(t *testing.T) {
	src := newFakeSearcher(2)
	// Zeroed totalPages in every envelope.
	broken := &brokenTotalsSearcher{inner: src}
	fetcher := NewFetcher(broken, testLogger())

	got, err := fetcher.FetchAll(context.Background(), QueryForType(models.TypeMalware))
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []int{0}, src.requested)
}

type brokenTotalsSearcher struct {
	inner Searcher
}

func (b *brokenTotalsSearcher) Search(ctx context.Context, q Query, page int) (*Page, error) {
	p, err := b.inner.Search(ctx, q, page)
	if err != nil {
		return nil, err
	}
	p.TotalPages = 0
	return p, nil
}

func TestFetchAll_PageErrorAbortsWholeFetch(t *testing.T) {
	src := newFakeSearcher(1250)
	src.failAt = 1
	fetcher := NewFetcher(src, testLogger())

	got, err := fetcher.FetchAll(context.Background(), QueryForType(models.TypeMalware))
	require.Error(t, err)
	// Partial pages are discarded, not returned.
	assert.Nil(t, got)
	assert.Equal(t, []int{0, 1}, src.requested)
}

func TestQueryForType_PageSizes(t *testing.T) {
	generic := QueryForType(models.TypeMalware)
	assert.Equal(t, DefaultPageSize, generic.PageSize)
	assert.False(t, generic.Distinct)

	findings := QueryForType(models.TypeFinding)
	assert.Equal(t, DistinctPageSize, findings.PageSize)
	assert.True(t, findings.Distinct)
}
