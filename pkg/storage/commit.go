package storage

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/argus-labs/stash/pkg/performance"
)

// Commit phase names reported to the performance collector.
const (
	PhaseDisposals        = "disposals"
	PhaseTransientChanges = "transient_changes"
	PhaseFreeIDs          = "free_ids"
	PhaseReclamation      = "reclamation"
)

// Commit applies every pending structural change. See CommitContext.
func (w *World) Commit() error {
	return w.CommitContext(context.Background())
}

// CommitContext applies every pending structural change as one synchronous batch. The context only
// parents the trace span.
//
// The phases run in a fixed order:
//  1. Disposed entities are torn down: stash values cleaned, detached from their archetype, index
//     staged for reuse, generation bumped.
//  2. Dirty entities move to the archetype of their pending signature, creating and classifying it
//     if needed. An entity whose signature became empty is torn down like a disposal.
//  3. Indices freed by 1 and 2 become reusable.
//  4. Archetypes left empty by 1 and 2 are re-checked and, if still empty, unlinked from their
//     filters and returned to the pool.
//
// Commit fails with ErrReentrantCommit while any filter iteration is active or when called from a
// dispose hook during another commit.
func (w *World) CommitContext(ctx context.Context) error {
	if err := w.checkAffinity(); err != nil {
		return err
	}
	if w.committing {
		return eris.Wrap(ErrReentrantCommit, "commit called from inside a commit")
	}
	if n := w.iterating.Load(); n > 0 {
		return eris.Wrapf(ErrReentrantCommit, "%d filter iterations in progress", n)
	}

	w.committing = true
	defer func() { w.committing = false }()

	_, span := w.tracer.Start(ctx, "storage.commit")
	defer span.End()

	start := time.Now()
	w.metrics.Commits++
	if w.collector != nil {
		w.collector.StartCommit()
	}

	disposed := w.disposed.len()
	dirty := w.dirty.len()
	created := w.metrics.ArchetypesCreated
	reclaimed := w.metrics.ArchetypesReclaimed

	if disposed > 0 {
		w.runPhase(PhaseDisposals, disposed, w.completeDisposals)
	}
	if w.dirty.len() > 0 {
		w.runPhase(PhaseTransientChanges, w.dirty.len(), w.applyTransientChanges)
	}
	if n := len(w.entities.nextFree); n > 0 {
		w.runPhase(PhaseFreeIDs, n, func() { w.entities.publishFree() })
	}
	if n := len(w.emptyArchetypes); n > 0 {
		w.runPhase(PhaseReclamation, n, w.clearEmptyArchetypes)
	}

	if w.collector != nil {
		w.collector.RecordCommit(w.metrics.Commits, start)
	}

	span.SetAttributes(
		attribute.Int("storage.disposed", disposed),
		attribute.Int("storage.dirty", dirty),
		attribute.Int64("storage.archetypes_created", int64(w.metrics.ArchetypesCreated-created)),     //nolint:gosec // it's ok
		attribute.Int64("storage.archetypes_reclaimed", int64(w.metrics.ArchetypesReclaimed-reclaimed)), //nolint:gosec // it's ok
		attribute.Int("storage.entities", w.entities.count),
	)
	span.SetStatus(codes.Ok, "")

	w.logger.Debug().
		Uint64("commit", w.metrics.Commits).
		Int("disposed", disposed).
		Int("dirty", dirty).
		Int("entities", w.entities.count).
		Int("archetypes", len(w.archetypes)).
		Dur("duration", time.Since(start)).
		Msg("commit done")

	return nil
}

// runPhase runs fn and reports its duration to the collector, if one is configured.
func (w *World) runPhase(name string, items int, fn func()) {
	if w.collector == nil {
		fn()
		return
	}
	start := time.Now()
	fn()
	w.collector.RecordPhase(performance.PhaseSpan{
		Phase:     name,
		Items:     items,
		StartTime: start,
		EndTime:   time.Now(),
	})
}

// completeDisposals tears down every entity disposed since the last commit. Dispose hooks may
// dispose more entities, so the set length is re-read on every iteration.
func (w *World) completeDisposals() {
	for i := 0; i < w.disposed.len(); i++ {
		index := w.disposed.at(i)
		w.cleanStashes(index)
		w.teardown(index)
	}
	w.disposed.clear()
}

// cleanStashes drops the entity's values from every stash it has or is about to have. Dispose
// hooks run here and may touch other entities.
func (w *World) cleanStashes(index uint32) {
	d := w.entities.get(index)
	if d.archetype != nil {
		d.archetype.components.Range(func(id uint32) {
			w.stashes[id].clean(index)
		})
	}
	for _, change := range d.changes {
		if change.isAddition {
			w.stashes[change.typeID].clean(index)
		}
	}
}

// teardown detaches the entity from its archetype and releases its index.
func (w *World) teardown(index uint32) {
	d := w.entities.get(index)
	if d.archetype != nil {
		w.detach(d)
		d.archetype = nil
	}
	w.entities.release(index)

	w.logger.Trace().Uint32("entity_index", index).Msg("entity torn down")
}

// detach swap-removes the entity from its current archetype and fixes the row of the entity that
// took its place.
func (w *World) detach(d *entityData) {
	a := d.archetype
	row := d.row
	if moved, ok := a.remove(row); ok {
		w.entities.get(moved.Index()).row = row
	}
	w.scheduleArchetypeRemoval(a)
}

// applyTransientChanges moves every dirty entity to the archetype of its pending signature.
func (w *World) applyTransientChanges() {
	for i := 0; i < w.dirty.len(); i++ {
		index := w.dirty.at(i)
		d := w.entities.get(index)

		if d.next == 0 {
			if d.archetype != nil {
				// Every component was removed.
				w.teardown(index)
			} else {
				// Net-zero changes on an entity that was never placed. It stays alive and unplaced,
				// same as an entity that was created and never touched.
				d.changes = d.changes[:0]
			}
			continue
		}

		if len(d.changes) == 0 {
			continue
		}

		w.migrate(index, d)
	}
	w.dirty.clear()
}

// migrate moves a dirty entity into the archetype for its pending signature.
func (w *World) migrate(index uint32, d *entityData) {
	next, ok := w.archetypes[d.next]
	if !ok {
		next = w.createMigratedArchetype(d)
	}
	if next == d.archetype {
		// Only reachable through a type hash collision.
		w.logger.Warn().
			Uint32("entity_index", index).
			Stringer("archetype_hash", next.hash).
			Msg("pending signature equals current signature, dropping ledger")
		d.changes = d.changes[:0]
		return
	}

	row := next.add(w.entities.handle(index))
	if d.archetype != nil {
		w.detach(d)
	}

	d.archetype = next
	d.row = row
	d.changes = d.changes[:0]
	d.next = next.hash
	w.metrics.Migrations++

	if e := w.logger.Trace(); e.Enabled() {
		logArchetype(e, next, &w.types).Uint32("entity_index", index).Msg("entity migrated")
	}
}

// createMigratedArchetype builds the archetype for d's pending signature from d's current archetype
// and ledger, then classifies it against the filter index.
func (w *World) createMigratedArchetype(d *entityData) *archetype {
	a := w.pool.rent(d.next)

	if d.archetype != nil {
		a.components = d.archetype.components.Clone(&a.components)
	}
	for _, change := range d.changes {
		if change.isAddition {
			a.components.Set(change.typeID)
		} else {
			a.components.Remove(change.typeID)
		}
	}

	// Filters that matched the base archetype only need to be re-tested.
	if d.archetype != nil {
		d.archetype.filters.Range(func(fid uint32) {
			w.filters.get(fid).addArchetypeIfMatches(a)
		})
	}
	// Any other match must involve a type the ledger touched.
	for _, change := range d.changes {
		for _, f := range w.filters.candidates(change.typeID) {
			f.addArchetypeIfMatches(a)
		}
	}

	w.registerArchetype(a)

	if e := w.logger.Trace(); e.Enabled() {
		logArchetype(e, a, &w.types).Int("filters", a.filters.Count()).Msg("created archetype")
	}
	return a
}

// clearEmptyArchetypes reclaims archetypes that are still empty at the end of the commit.
func (w *World) clearEmptyArchetypes() {
	for _, a := range w.emptyArchetypes {
		a.scheduled = false
		if !a.isEmpty() {
			w.logger.Debug().
				Stringer("archetype_hash", a.hash).
				Int("entities", len(a.entities)).
				Msg("archetype refilled before reclamation, keeping it")
			continue
		}
		w.reclaimArchetype(a)
	}
	w.emptyArchetypes = w.emptyArchetypes[:0]
}
