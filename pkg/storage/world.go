// Package storage is an in-memory entity/component store. Entities are generational handles,
// component values live in per-type stashes, and entities with the same component signature are
// grouped into archetypes that filters match incrementally. Structural changes are recorded as they
// happen and applied in one batch by World.Commit.
package storage

import (
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/argus-labs/stash/pkg/performance"
	"github.com/argus-labs/stash/pkg/telemetry"
)

// World owns every entity, stash, archetype, and filter of one storage instance. A world has a
// single writer: mutating calls from any goroutine but the owner fail with
// ErrThreadAffinityViolation. Committed state may be read concurrently between commits.
type World struct {
	id       uuid.UUID
	entities entityRegistry
	types    typeRegistry
	stashes  []abstractStash // Type id -> stash

	dirty    indexSet // Entities with pending ledger entries
	disposed indexSet // Entities waiting for teardown

	archetypes      map[ArchetypeHash]*archetype // Live archetypes by signature
	pool            archetypePool
	emptyArchetypes []*archetype // Archetypes to re-check at the end of the commit
	filters         filterIndex

	affinity   affinity
	iterating  atomic.Int32 // Active filter iterations, from any goroutine
	committing bool
	jobs       *errgroup.Group

	metrics   Metrics
	options   WorldOptions
	logger    zerolog.Logger
	tracer    trace.Tracer
	collector *performance.Collector
}

// NewWorld creates a world. Options not set in opts fall back to the STASH_* environment variables
// and then to built-in defaults. The calling goroutine becomes the owner.
func NewWorld(opts WorldOptions) (*World, error) {
	cfg, err := loadWorldConfig()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load world config")
	}
	options := newDefaultWorldOptions()
	options.apply(cfg.toOptions())
	options.apply(opts)
	if err := options.validate(); err != nil {
		return nil, eris.Wrap(err, "invalid world options")
	}

	id := uuid.New()

	logger := telemetry.ConsoleLogger("storage")
	if options.Logger != nil {
		logger = *options.Logger
	}
	logger = logger.With().Str("world", id.String()).Logger()

	tracer := options.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("storage")
	}

	w := &World{
		id:              id,
		entities:        newEntityRegistry(options.EntityCapacity, options.Tag),
		types:           newTypeRegistry(),
		stashes:         make([]abstractStash, 0),
		dirty:           newIndexSet(options.EntityCapacity),
		disposed:        newIndexSet(options.EntityCapacity),
		archetypes:      make(map[ArchetypeHash]*archetype),
		pool:            newArchetypePool(options.ArchetypeWarmup),
		emptyArchetypes: make([]*archetype, 0),
		filters:         newFilterIndex(),
		jobs:            &errgroup.Group{},
		options:         options,
		logger:          logger,
		tracer:          tracer,
		collector:       options.Collector,
	}
	w.affinity.enabled = !options.DisableThreadSafety
	w.affinity.owner.Store(CurrentGoroutineID())

	w.logger.Debug().
		Uint8("tag", options.Tag).
		Int("entity_capacity", options.EntityCapacity).
		Bool("thread_safety", w.affinity.enabled).
		Msg("world created")

	return w, nil
}

// ID returns the world's unique id.
func (w *World) ID() uuid.UUID {
	return w.id
}

// Tag returns the tag packed into the world's handles.
func (w *World) Tag() uint8 {
	return w.entities.tag
}

// -------------------------------------------------------------------------------------------------
// Entity operations
// -------------------------------------------------------------------------------------------------

// CreateEntity returns a new live entity with no components. Indices freed by a commit are reused
// last-in first-out; indices freed by a disposal are not reused before the next commit completes.
func (w *World) CreateEntity() (Entity, error) {
	if err := w.checkAffinity(); err != nil {
		return 0, err
	}

	e, grew, err := w.entities.create()
	if err != nil {
		return 0, err
	}
	if grew {
		w.logger.Debug().Int("capacity", len(w.entities.data)).Msg("grew entity storage")
	}
	return e, nil
}

// Dispose marks e for teardown. The handle stays live until the next Commit, which cleans its
// stash values, detaches it from its archetype, and bumps the generation of its index. Every stash
// operation rejects a disposed entity immediately.
func (w *World) Dispose(e Entity) error {
	if err := w.checkMutable(e); err != nil {
		return err
	}

	index := e.Index()
	w.dirty.remove(index)
	w.disposed.add(index)

	if evt := w.logger.Trace(); evt.Enabled() {
		logEntity(evt, w, e).Msg("entity disposed")
	}
	return nil
}

// IsAlive reports whether e's generation matches its slot. It stays true for a disposed entity
// until the next commit.
func (w *World) IsAlive(e Entity) bool {
	return w.entities.isAlive(e)
}

// IsDisposed reports whether e is stale or waiting for teardown.
func (w *World) IsDisposed(e Entity) bool {
	return !w.entities.isAlive(e) || w.disposed.has(e.Index())
}

// IsDirty reports whether e has structural changes waiting for the next commit.
func (w *World) IsDirty(e Entity) bool {
	return w.entities.isAlive(e) && w.dirty.has(e.Index())
}

// EntityCount returns the number of entities not yet torn down.
func (w *World) EntityCount() int {
	return w.entities.count
}

// ComponentTypes returns the type ids of e's committed archetype, in ascending order.
func (w *World) ComponentTypes(e Entity) ([]TypeID, error) {
	if err := w.validate(e); err != nil {
		return nil, err
	}
	d := w.entities.get(e.Index())
	if d.archetype == nil {
		return []TypeID{}, nil
	}
	return d.archetype.typeIDs(), nil
}

// Has reports whether e's committed archetype includes the component type. Pending changes are
// not visible until the next commit.
func (w *World) Has(e Entity, id TypeID) bool {
	if !w.entities.isAlive(e) {
		return false
	}
	d := w.entities.get(e.Index())
	return d.archetype != nil && d.archetype.has(id)
}

// validate rejects foreign, stale, and disposed handles.
func (w *World) validate(e Entity) error {
	if err := w.entities.check(e); err != nil {
		return err
	}
	if w.disposed.has(e.Index()) {
		return eris.Wrapf(ErrStaleHandle, "%s is pending disposal", e)
	}
	return nil
}

// checkMutable runs the affinity check and validates the handle.
func (w *World) checkMutable(e Entity) error {
	if err := w.checkAffinity(); err != nil {
		return err
	}
	return w.validate(e)
}

// -------------------------------------------------------------------------------------------------
// Archetypes and jobs
// -------------------------------------------------------------------------------------------------

// ArchetypeCount returns the number of live archetypes.
func (w *World) ArchetypeCount() int {
	return len(w.archetypes)
}

// WarmupArchetypes pre-allocates count archetypes into the pool.
func (w *World) WarmupArchetypes(count int) error {
	if err := w.checkAffinity(); err != nil {
		return err
	}
	if count < 0 {
		return eris.New("warmup count cannot be negative")
	}
	w.pool.warmup(count)
	return nil
}

// RunReadJob runs fn on a new goroutine. fn may only read committed state: iterate filters and
// call Get, TryGet, or Has. Call JobsComplete before the next mutation or Commit.
func (w *World) RunReadJob(fn func() error) error {
	if err := w.checkAffinity(); err != nil {
		return err
	}
	w.jobs.Go(fn)
	return nil
}

// JobsComplete waits for every job started with RunReadJob and returns the first error.
func (w *World) JobsComplete() error {
	if err := w.checkAffinity(); err != nil {
		return err
	}
	err := w.jobs.Wait()
	w.jobs = &errgroup.Group{}
	if err != nil {
		return eris.Wrap(err, "read job failed")
	}
	return nil
}
