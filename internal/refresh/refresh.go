// Package refresh drives full refresh cycles: for each configured
// platform and each of its entity type collections, fetch the whole
// corpus and replace the corresponding cache bucket. Distinct
// platform/type pairs run concurrently; pages within one fetch stay
// strictly sequential.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/threatlex/internal/cache"
	"github.com/ajitpratap0/threatlex/internal/cachestore"
	"github.com/ajitpratap0/threatlex/internal/metrics"
	"github.com/ajitpratap0/threatlex/internal/models"
	"github.com/ajitpratap0/threatlex/internal/platform"
)

// DefaultConcurrency bounds how many platform/type fetches run at
// once.
const DefaultConcurrency = 4

// Platform describes one configured remote platform for a cycle.
type Platform struct {
	ID       string
	Kind     models.PlatformKind
	Searcher platform.Searcher
}

// TypeReport records the outcome of one platform/type fetch.
type TypeReport struct {
	PlatformID string               `json:"platform_id"`
	TypeKey    models.EntityTypeKey `json:"type_key"`
	Entities   int                  `json:"entities"`
	SaveState  cachestore.SaveState `json:"-"`
	Save       string               `json:"save"`
	Err        string               `json:"error,omitempty"`
}

// Report summarizes one refresh cycle.
type Report struct {
	RunID    string        `json:"run_id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Entities int           `json:"entities"`
	Failures int           `json:"failures"`
	Pruned   int           `json:"pruned"`
	Types    []TypeReport  `json:"types"`
}

// Refresher glues the fetcher, the cache manager, and the configured
// platforms into refresh cycles.
type Refresher struct {
	manager     *cache.Manager
	platforms   []Platform
	concurrency int
	logger      *slog.Logger
}

// New creates a refresher. A non-positive concurrency selects the
// default.
func New(manager *cache.Manager, platforms []Platform, concurrency int, logger *slog.Logger) *Refresher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Refresher{
		manager:     manager,
		platforms:   platforms,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run refreshes the named platforms, or every configured platform
// when ids is empty, then prunes snapshots for platforms no longer
// configured. Fetch failures are recorded in the report and logged,
// never returned: a platform that produced nothing this cycle keeps
// its previous snapshot.
func (r *Refresher) Run(ctx context.Context, ids ...string) *Report {
	report := &Report{
		RunID:   uuid.NewString(),
		Started: time.Now().UTC(),
	}
	logger := r.logger.With("run_id", report.RunID)

	targets := r.selectPlatforms(ids)
	logger.Info("refresh cycle starting", "platforms", len(targets))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, p := range targets {
		for _, typeKey := range p.Kind.TypeKeys() {
			g.Go(func() error {
				tr := r.refreshType(gctx, p, typeKey, logger)
				mu.Lock()
				report.Types = append(report.Types, tr)
				if tr.Err != "" {
					report.Failures++
				} else {
					report.Entities += tr.Entities
				}
				mu.Unlock()
				// Errors never cancel sibling fetches.
				return nil
			})
		}
	}
	_ = g.Wait()

	report.Pruned = r.manager.CleanupOrphaned(ctx, r.configuredIDs())
	report.Duration = time.Since(report.Started)
	metrics.Inc(metrics.RefreshCycles)
	logger.Info("refresh cycle finished",
		"entities", report.Entities, "failures", report.Failures,
		"pruned", report.Pruned, "duration", report.Duration)
	return report
}

func (r *Refresher) refreshType(ctx context.Context, p Platform, typeKey models.EntityTypeKey, logger *slog.Logger) TypeReport {
	tr := TypeReport{PlatformID: p.ID, TypeKey: typeKey}

	fetcher := platform.NewFetcher(p.Searcher, logger)
	entities, err := fetcher.FetchAll(ctx, platform.QueryForType(typeKey))
	if err != nil {
		// This platform/type produced nothing this cycle; the old
		// bucket stays in place until it expires.
		logger.Error("fetch failed", "platform", p.ID, "type", typeKey, "error", err)
		metrics.Inc(metrics.FetchFailures)
		tr.Err = err.Error()
		return tr
	}

	result := r.manager.UpdateForType(ctx, p.ID, p.Kind, typeKey, entities)
	tr.Entities = len(entities)
	tr.SaveState = result.State
	tr.Save = result.State.String()
	return tr
}

func (r *Refresher) selectPlatforms(ids []string) []Platform {
	if len(ids) == 0 {
		return r.platforms
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []Platform
	for _, p := range r.platforms {
		if wanted[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

func (r *Refresher) configuredIDs() []string {
	ids := make([]string, 0, len(r.platforms))
	for _, p := range r.platforms {
		ids = append(ids, p.ID)
	}
	return ids
}
