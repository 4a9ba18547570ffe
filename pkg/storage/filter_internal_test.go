package storage

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/stash/pkg/storage/internal/testutils"
)

func collect(f *Filter) []Entity {
	return slices.Collect(f.Entities())
}

func TestFilter_Build(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash[testutils.Position](t, w)
	vel := mustStash[testutils.Velocity](t, w)

	f, err := w.Filter().With(pos).Without(vel).Build()
	require.NoError(t, err)
	assert.Equal(t, []TypeID{pos.TypeID()}, f.Include())
	assert.Equal(t, []TypeID{vel.TypeID()}, f.Exclude())
	assert.True(t, f.IsEmpty())
	assert.Equal(t, 0, f.Len())

	_, ok := f.First()
	assert.False(t, ok)
}

func TestFilter_Invalid(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash[testutils.Position](t, w)
	vel := mustStash[testutils.Velocity](t, w)

	_, err := w.Filter().Build()
	require.ErrorIs(t, err, ErrInvalidFilter)

	_, err = w.Filter().Without(vel).Build()
	require.ErrorIs(t, err, ErrInvalidFilter)

	_, err = w.Filter().With(pos).Without(pos).Build()
	require.ErrorIs(t, err, ErrInvalidFilter)

	_, err = w.buildFilter([]TypeID{42}, nil)
	require.ErrorIs(t, err, ErrComponentNotFound)
}

func TestFilter_Deduplicated(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash[testutils.Position](t, w)
	vel := mustStash[testutils.Velocity](t, w)
	hp := mustStash[testutils.Health](t, w)

	a, err := w.Filter().With(pos, vel).Without(hp).Build()
	require.NoError(t, err)
	b, err := w.Filter().With(vel, pos).Without(hp).Build()
	require.NoError(t, err)
	c, err := w.Filter().With(pos, vel).Build()
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, w.filters.len())
}

func TestFilter_MatchesAfterCommit(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash[testutils.Position](t, w)
	vel := mustStash[testutils.Velocity](t, w)
	frozen := mustStash[testutils.Frozen](t, w)

	moving, err := w.Filter().With(pos, vel).Without(frozen).Build()
	require.NoError(t, err)

	e1 := mustCreate(t, w)
	e2 := mustCreate(t, w)
	e3 := mustCreate(t, w)
	require.NoError(t, pos.Add(e1, testutils.Position{}))
	require.NoError(t, vel.Add(e1, testutils.Velocity{}))
	require.NoError(t, pos.Add(e2, testutils.Position{}))
	require.NoError(t, pos.Add(e3, testutils.Position{}))
	require.NoError(t, vel.Add(e3, testutils.Velocity{}))
	require.NoError(t, frozen.Add(e3, testutils.Frozen{}))

	assert.Empty(t, collect(moving), "filters only see committed state")

	require.NoError(t, w.Commit())
	assert.Equal(t, []Entity{e1}, collect(moving))
	assert.Equal(t, 1, moving.ArchetypeCount())

	// Unfreezing e3 moves it into a matching archetype.
	_, err = frozen.Remove(e3)
	require.NoError(t, err)
	require.NoError(t, w.Commit())
	assert.ElementsMatch(t, []Entity{e1, e3}, collect(moving))

	// e1 and e3 share the archetype, the old frozen archetype is gone.
	assert.Equal(t, 1, moving.ArchetypeCount())
	assert.Equal(t, 2, w.ArchetypeCount())

	first, ok := moving.First()
	require.True(t, ok)
	assert.Contains(t, []Entity{e1, e3}, first)
}

func TestFilter_CreatedAfterArchetypes(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash[testutils.Position](t, w)
	vel := mustStash[testutils.Velocity](t, w)

	for i := range 6 {
		e := mustCreate(t, w)
		require.NoError(t, pos.Add(e, testutils.Position{}))
		if i%2 == 0 {
			require.NoError(t, vel.Add(e, testutils.Velocity{}))
		}
	}
	require.NoError(t, w.Commit())

	withPos, err := w.Filter().With(pos).Build()
	require.NoError(t, err)
	onlyPos, err := w.Filter().With(pos).Without(vel).Build()
	require.NoError(t, err)

	assert.Equal(t, 6, withPos.Len())
	assert.Equal(t, 2, withPos.ArchetypeCount())
	assert.Equal(t, 3, onlyPos.Len())
	assert.Equal(t, 1, onlyPos.ArchetypeCount())
}

func TestFilter_UnlinkedOnReclaim(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash[testutils.Position](t, w)
	f, err := w.Filter().With(pos).Build()
	require.NoError(t, err)

	e := mustCreate(t, w)
	require.NoError(t, pos.Add(e, testutils.Position{}))
	require.NoError(t, w.Commit())
	a := w.entities.get(e.Index()).archetype
	require.True(t, a.filters.Contains(f.id))

	require.NoError(t, w.Dispose(e))
	require.NoError(t, w.Commit())

	assert.Equal(t, 0, f.ArchetypeCount())
	assert.False(t, a.filters.Contains(f.id), "pooled archetypes carry no filter links")
	assert.Equal(t, 0, w.ArchetypeCount())
}

func TestFilter_EarlyBreakReleasesIteration(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash[testutils.Position](t, w)
	for range 3 {
		e := mustCreate(t, w)
		require.NoError(t, pos.Add(e, testutils.Position{}))
	}
	require.NoError(t, w.Commit())

	f, err := w.Filter().With(pos).Build()
	require.NoError(t, err)

	for range f.Entities() {
		break
	}
	assert.Equal(t, int32(0), w.iterating.Load())
	assert.NoError(t, w.Commit())
}
