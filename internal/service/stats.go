package service

import "sync/atomic"

// Counters are the process-global engine statistics. All fields are
// monotonic for the process lifetime and incremented without ordering
// requirements; readers see a consistent-per-counter snapshot.
type Counters struct {
	analyses          atomic.Int64
	batchAnalyses     atomic.Int64
	beliefsCreated    atomic.Int64
	beliefsReinforced atomic.Int64
	conflictsDetected atomic.Int64
	conflictsResolved atomic.Int64
	deprecations      atomic.Int64
}

func NewCounters() *Counters { return &Counters{} }

// CountersSnapshot is one read of every counter.
type CountersSnapshot struct {
	Analyses          int64 `json:"analyses"`
	BatchAnalyses     int64 `json:"batch_analyses"`
	BeliefsCreated    int64 `json:"beliefs_created"`
	BeliefsReinforced int64 `json:"beliefs_reinforced"`
	ConflictsDetected int64 `json:"conflicts_detected"`
	ConflictsResolved int64 `json:"conflicts_resolved"`
	Deprecations      int64 `json:"deprecations"`
}

func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		Analyses:          c.analyses.Load(),
		BatchAnalyses:     c.batchAnalyses.Load(),
		BeliefsCreated:    c.beliefsCreated.Load(),
		BeliefsReinforced: c.beliefsReinforced.Load(),
		ConflictsDetected: c.conflictsDetected.Load(),
		ConflictsResolved: c.conflictsResolved.Load(),
		Deprecations:      c.deprecations.Load(),
	}
}
