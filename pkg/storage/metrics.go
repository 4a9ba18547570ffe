package storage

// Metrics counts the work a world has done since creation or the last ResetMetrics. The gauges
// (Entities through Stashes) are sampled when Metrics is called and are not reset.
type Metrics struct {
	Commits             uint64 `json:"commits"`
	Migrations          uint64 `json:"migrations"`
	StashResizes        uint64 `json:"stash_resizes"`
	ArchetypesCreated   uint64 `json:"archetypes_created"`
	ArchetypesReclaimed uint64 `json:"archetypes_reclaimed"`

	Entities   int `json:"entities"`
	Archetypes int `json:"archetypes"`
	Filters    int `json:"filters"`
	Stashes    int `json:"stashes"`
	Pooled     int `json:"pooled_archetypes"`
}

// Metrics returns a snapshot of the world's counters and gauges.
func (w *World) Metrics() Metrics {
	m := w.metrics
	m.Entities = w.entities.count
	m.Archetypes = len(w.archetypes)
	m.Filters = w.filters.len()
	m.Stashes = len(w.stashes)
	m.Pooled = w.pool.available()
	return m
}

// ResetMetrics zeroes the counters.
func (w *World) ResetMetrics() {
	w.metrics = Metrics{}
}
