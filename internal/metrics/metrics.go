// Package metrics provides application-level counters using stdlib
// expvar. Counters are exported on the /debug/vars HTTP endpoint when
// the serve command is running.
package metrics

import "expvar"

// Operation counters.
var (
	RefreshCycles = expvar.NewInt("threatlex_refresh_cycles_total")
	PagesFetched  = expvar.NewInt("threatlex_pages_fetched_total")
	FetchFailures = expvar.NewInt("threatlex_fetch_failures_total")
	SaveDegraded  = expvar.NewInt("threatlex_save_degraded_total")
	SaveDropped   = expvar.NewInt("threatlex_save_dropped_total")
	Lookups       = expvar.NewInt("threatlex_lookups_total")
	OrphansPruned = expvar.NewInt("threatlex_orphans_pruned_total")
)

// Inc increments the given counter by 1.
func Inc(counter *expvar.Int) { counter.Add(1) }
