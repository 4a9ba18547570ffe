package storage

import (
	"iter"

	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
)

// Filter is a long-lived query over committed archetypes: every archetype whose signature contains
// all include types and none of the exclude types. The matching set is maintained incrementally by
// Commit, so iteration always reflects the most recent commit.
//
// Iterating a filter from any goroutine blocks Commit with ErrReentrantCommit until the iteration
// ends.
type Filter struct {
	world      *World
	id         uint32
	include    bitmap.Bitmap
	exclude    bitmap.Bitmap
	includeIDs []TypeID
	excludeIDs []TypeID
	archetypes slotMap[*archetype] // Archetype id -> matching archetype
	scratch    bitmap.Bitmap
}

// Typed is implemented by anything that names a component type, such as a Stash.
type Typed interface {
	TypeID() TypeID
}

// FilterBuilder collects include and exclude types for a Filter.
type FilterBuilder struct {
	world   *World
	include []TypeID
	exclude []TypeID
}

// Filter starts building a filter.
func (w *World) Filter() *FilterBuilder {
	return &FilterBuilder{world: w}
}

// With requires the given component types.
func (b *FilterBuilder) With(types ...Typed) *FilterBuilder {
	for _, t := range types {
		b.include = append(b.include, t.TypeID())
	}
	return b
}

// Without rejects the given component types.
func (b *FilterBuilder) Without(types ...Typed) *FilterBuilder {
	for _, t := range types {
		b.exclude = append(b.exclude, t.TypeID())
	}
	return b
}

// Build returns the filter for the collected types. Filters with the same include and exclude sets
// are shared.
func (b *FilterBuilder) Build() (*Filter, error) {
	return b.world.buildFilter(b.include, b.exclude)
}

func newFilter(w *World, id uint32, include, exclude bitmap.Bitmap) *Filter {
	f := &Filter{
		world:      w,
		id:         id,
		include:    include,
		exclude:    exclude,
		archetypes: newSlotMap[*archetype](w.pool.available() + len(w.archetypes)),
	}
	include.Range(func(id uint32) { f.includeIDs = append(f.includeIDs, id) })
	exclude.Range(func(id uint32) { f.excludeIDs = append(f.excludeIDs, id) })
	return f
}

// matches reports whether the archetype's signature satisfies the filter.
func (f *Filter) matches(a *archetype) bool {
	intersect := f.include.Clone(&f.scratch)
	intersect.And(a.components)
	if intersect.Count() != len(f.includeIDs) {
		return false
	}
	for _, id := range f.excludeIDs {
		if a.components.Contains(id) {
			return false
		}
	}
	return true
}

// addArchetypeIfMatches links the archetype and the filter in both directions if the archetype
// matches and isn't linked yet. Reports whether a link was created.
func (f *Filter) addArchetypeIfMatches(a *archetype) bool {
	if a.filters.Contains(f.id) || !f.matches(a) {
		return false
	}
	f.archetypes.insert(a.id, a)
	a.filters.Set(f.id)
	return true
}

// removeArchetype drops the filter's side of the link. The archetype clears its side on reset.
func (f *Filter) removeArchetype(a *archetype) {
	f.archetypes.remove(a.id)
}

// -------------------------------------------------------------------------------------------------
// Iteration
// -------------------------------------------------------------------------------------------------

// Entities yields every entity of every matching archetype.
func (f *Filter) Entities() iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		f.world.iterating.Add(1)
		defer f.world.iterating.Add(-1)

		for _, a := range f.archetypes.all() {
			for _, e := range (*a).entities {
				if !yield(e) {
					return
				}
			}
		}
	}
}

// Len returns the number of matching entities.
func (f *Filter) Len() int {
	n := 0
	for _, a := range f.archetypes.all() {
		n += len((*a).entities)
	}
	return n
}

// IsEmpty reports whether no committed entity matches.
func (f *Filter) IsEmpty() bool {
	for _, a := range f.archetypes.all() {
		if !(*a).isEmpty() {
			return false
		}
	}
	return true
}

// First returns a matching entity, if any.
func (f *Filter) First() (Entity, bool) {
	for _, a := range f.archetypes.all() {
		if !(*a).isEmpty() {
			return (*a).entities[0], true
		}
	}
	return 0, false
}

// ArchetypeCount returns the number of matching archetypes.
func (f *Filter) ArchetypeCount() int {
	return f.archetypes.len()
}

// Include returns the required type ids in ascending order.
func (f *Filter) Include() []TypeID {
	return append([]TypeID(nil), f.includeIDs...)
}

// Exclude returns the rejected type ids in ascending order.
func (f *Filter) Exclude() []TypeID {
	return append([]TypeID(nil), f.excludeIDs...)
}

// -------------------------------------------------------------------------------------------------
// Filter index
// -------------------------------------------------------------------------------------------------

type filterKey struct {
	include ArchetypeHash
	exclude ArchetypeHash
}

// filterIndex owns every filter of a world. byType is the reverse index from a component type to
// the filters that mention it in either set, which is all a new archetype needs to be classified
// against besides the filters of the archetype it was derived from.
type filterIndex struct {
	filters []*Filter
	lookup  map[filterKey]*Filter
	byType  [][]*Filter
}

func newFilterIndex() filterIndex {
	return filterIndex{
		filters: make([]*Filter, 0),
		lookup:  make(map[filterKey]*Filter),
		byType:  make([][]*Filter, 0),
	}
}

func (fi *filterIndex) get(id uint32) *Filter {
	return fi.filters[id]
}

// candidates returns the filters that mention the type.
func (fi *filterIndex) candidates(id TypeID) []*Filter {
	if int(id) >= len(fi.byType) {
		return nil
	}
	return fi.byType[id]
}

func (fi *filterIndex) add(key filterKey, f *Filter) {
	fi.filters = append(fi.filters, f)
	fi.lookup[key] = f
	for _, ids := range [][]TypeID{f.includeIDs, f.excludeIDs} {
		for _, id := range ids {
			for int(id) >= len(fi.byType) {
				fi.byType = append(fi.byType, nil)
			}
			fi.byType[id] = append(fi.byType[id], f)
		}
	}
}

func (fi *filterIndex) len() int {
	return len(fi.filters)
}

// buildFilter validates the type sets, returns an existing filter with the same sets, or creates
// one and classifies every live archetype against it once.
func (w *World) buildFilter(include, exclude []TypeID) (*Filter, error) {
	if err := w.checkAffinity(); err != nil {
		return nil, err
	}
	if len(include) == 0 {
		return nil, eris.Wrap(ErrInvalidFilter, "filter needs at least one included component")
	}

	var includeSet, excludeSet bitmap.Bitmap
	for _, id := range include {
		if _, ok := w.types.info(id); !ok {
			return nil, eris.Wrapf(ErrComponentNotFound, "type id %d", id)
		}
		includeSet.Set(id)
	}
	for _, id := range exclude {
		if _, ok := w.types.info(id); !ok {
			return nil, eris.Wrapf(ErrComponentNotFound, "type id %d", id)
		}
		if includeSet.Contains(id) {
			return nil, eris.Wrapf(ErrInvalidFilter, "component %s is both included and excluded", w.types.infos[id].name)
		}
		excludeSet.Set(id)
	}

	f := newFilter(w, uint32(w.filters.len()), includeSet, excludeSet) //nolint:gosec // it's ok
	key := filterKey{
		include: w.types.signature(f.includeIDs),
		exclude: w.types.signature(f.excludeIDs),
	}
	if existing, ok := w.filters.lookup[key]; ok {
		return existing, nil
	}
	w.filters.add(key, f)

	for _, a := range w.archetypes {
		f.addArchetypeIfMatches(a)
	}

	w.logger.Debug().
		Uint32("filter_id", f.id).
		Strs("include", w.types.names(f.includeIDs)).
		Strs("exclude", w.types.names(f.excludeIDs)).
		Int("archetypes", f.archetypes.len()).
		Msg("created filter")

	return f, nil
}
