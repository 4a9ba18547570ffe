package storage

import "github.com/argus-labs/stash/pkg/assert"

// archetypePool recycles archetypes so that entities passing through short-lived signatures don't
// allocate a new bucket each time. Every archetype it ever created is kept in all, indexed by id.
type archetypePool struct {
	all  []*archetype
	free []*archetype
}

func newArchetypePool(warmup int) archetypePool {
	p := archetypePool{
		all:  make([]*archetype, 0, warmup),
		free: make([]*archetype, 0, warmup),
	}
	p.warmup(warmup)
	return p
}

// rent returns an empty archetype for the given signature.
func (p *archetypePool) rent(hash ArchetypeHash) *archetype {
	var a *archetype
	if n := len(p.free); n > 0 {
		a = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		a = newArchetype(len(p.all))
		p.all = append(p.all, a)
	}
	assert.That(a.isEmpty(), "rented archetype %d is not empty", a.id)
	a.hash = hash
	return a
}

// put resets an archetype and returns it to the pool.
func (p *archetypePool) put(a *archetype) {
	a.reset()
	p.free = append(p.free, a)
}

// warmup pre-allocates count archetypes.
func (p *archetypePool) warmup(count int) {
	for range count {
		a := newArchetype(len(p.all))
		p.all = append(p.all, a)
		p.free = append(p.free, a)
	}
}

// available returns the number of pooled archetypes.
func (p *archetypePool) available() int {
	return len(p.free)
}

// -------------------------------------------------------------------------------------------------
// Registry
// -------------------------------------------------------------------------------------------------

// registerArchetype indexes a live archetype by its signature.
func (w *World) registerArchetype(a *archetype) {
	_, exists := w.archetypes[a.hash]
	assert.That(!exists, "archetype %s registered twice", a.hash)
	w.archetypes[a.hash] = a
	w.metrics.ArchetypesCreated++
}

// scheduleArchetypeRemoval queues an archetype that just became empty for the reclamation check at
// the end of the commit.
func (w *World) scheduleArchetypeRemoval(a *archetype) {
	if !a.isEmpty() || a.scheduled {
		return
	}
	a.scheduled = true
	w.emptyArchetypes = append(w.emptyArchetypes, a)

	if evt := w.logger.Trace(); evt.Enabled() {
		evt.Stringer("archetype_hash", a.hash).Msg("scheduled archetype for removal")
	}
}

// reclaimArchetype unlinks an empty archetype from its filters, drops it from the registry, and
// returns it to the pool.
func (w *World) reclaimArchetype(a *archetype) {
	a.filters.Range(func(fid uint32) {
		w.filters.get(fid).removeArchetype(a)
	})
	delete(w.archetypes, a.hash)
	w.pool.put(a)
	w.metrics.ArchetypesReclaimed++
}
