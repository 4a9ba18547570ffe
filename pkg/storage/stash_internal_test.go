package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/stash/pkg/storage/internal/testutils"
)

func TestGetStash_RegistersOnce(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash[testutils.Position](t, w)
	vel := mustStash[testutils.Velocity](t, w)
	again := mustStash[testutils.Position](t, w)

	assert.Same(t, pos, again)
	assert.Equal(t, TypeID(0), pos.TypeID())
	assert.Equal(t, TypeID(1), vel.TypeID())
	assert.Equal(t, "position", pos.Name())
	assert.True(t, pos.IsEmpty())
}

// renamedPosition reuses the name of testutils.Position with a different Go type.
type renamedPosition struct{ Z int }

func (renamedPosition) Name() string { return "position" }

func TestGetStash_NameConflict(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	mustStash[testutils.Position](t, w)

	_, err := GetStash[renamedPosition](w)
	assert.Error(t, err)
}

func TestStash_Add(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash[testutils.Position](t, w)
	e := mustCreate(t, w)

	require.NoError(t, pos.Add(e, testutils.Position{X: 1, Y: 2}))
	assert.True(t, pos.Has(e))
	assert.True(t, w.IsDirty(e))

	got, err := pos.Get(e)
	require.NoError(t, err)
	assert.Equal(t, testutils.Position{X: 1, Y: 2}, got)

	err = pos.Add(e, testutils.Position{X: 9})
	require.ErrorIs(t, err, ErrAlreadyHasComponent)
	got, _ = pos.Get(e)
	assert.Equal(t, testutils.Position{X: 1, Y: 2}, got, "failed add keeps the old value")
	assert.Len(t, w.entities.get(e.Index()).changes, 1)
}

func TestStash_Set(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	hp := mustStash[testutils.Health](t, w)
	e := mustCreate(t, w)

	require.NoError(t, hp.Set(e, testutils.Health{Value: 10}))
	require.NoError(t, w.Commit())
	assert.False(t, w.IsDirty(e))

	// Overwriting an existing value is not a structural change.
	require.NoError(t, hp.Set(e, testutils.Health{Value: 5}))
	assert.False(t, w.IsDirty(e))

	got, err := hp.Get(e)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Value)
}

func TestStash_GetMissing(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash[testutils.Position](t, w)
	e := mustCreate(t, w)

	_, err := pos.Get(e)
	require.ErrorIs(t, err, ErrMissingComponent)

	_, ok := pos.TryGet(e)
	assert.False(t, ok)

	_, err = pos.GetPtr(e)
	assert.ErrorIs(t, err, ErrMissingComponent)
}

func TestStash_GetPtr(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash[testutils.Position](t, w)
	e := mustCreate(t, w)
	require.NoError(t, pos.Add(e, testutils.Position{X: 1}))

	p, err := pos.GetPtr(e)
	require.NoError(t, err)
	p.X = 42

	got, _ := pos.TryGet(e)
	assert.InDelta(t, 42.0, got.X, 1e-9)
}

func TestStash_Remove(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash[testutils.Position](t, w)
	vel := mustStash[testutils.Velocity](t, w)
	e := mustCreate(t, w)
	require.NoError(t, pos.Add(e, testutils.Position{}))
	require.NoError(t, vel.Add(e, testutils.Velocity{}))
	require.NoError(t, w.Commit())

	removed, err := pos.Remove(e)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, pos.Has(e))
	assert.True(t, w.Has(e, pos.TypeID()), "archetype changes on commit")

	removed, err = pos.Remove(e)
	require.NoError(t, err)
	assert.False(t, removed, "second remove is a no-op")

	require.NoError(t, w.Commit())
	assert.False(t, w.Has(e, pos.TypeID()))
	assert.True(t, w.Has(e, vel.TypeID()))
}

func TestStash_StaleHandle(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash[testutils.Position](t, w)
	e := mustCreate(t, w)
	require.NoError(t, w.Dispose(e))
	require.NoError(t, w.Commit())

	reused := mustCreate(t, w)
	require.Equal(t, e.Index(), reused.Index())
	require.NoError(t, pos.Add(reused, testutils.Position{X: 3}))

	// The old handle can't see or touch the new occupant's values.
	assert.ErrorIs(t, pos.Add(e, testutils.Position{}), ErrStaleHandle)
	_, err := pos.Get(e)
	require.ErrorIs(t, err, ErrStaleHandle)
	_, err = pos.Remove(e)
	require.ErrorIs(t, err, ErrStaleHandle)
	assert.False(t, pos.Has(e))

	got, err := pos.Get(reused)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, got.X, 1e-9)
}

func TestStash_RemoveAll(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash[testutils.Position](t, w)
	vel := mustStash[testutils.Velocity](t, w)

	entities := make([]Entity, 5)
	for i := range entities {
		entities[i] = mustCreate(t, w)
		require.NoError(t, pos.Add(entities[i], testutils.Position{}))
		require.NoError(t, vel.Add(entities[i], testutils.Velocity{}))
	}
	require.NoError(t, w.Commit())

	require.NoError(t, pos.RemoveAll())
	assert.True(t, pos.IsEmpty())
	for _, e := range entities {
		assert.True(t, w.IsDirty(e))
	}

	require.NoError(t, w.Commit())
	for _, e := range entities {
		assert.False(t, w.Has(e, pos.TypeID()))
		assert.True(t, w.Has(e, vel.TypeID()))
	}
	assert.Equal(t, 1, w.ArchetypeCount())
}

func TestStash_Migrate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		destHas    bool
		overwrite  bool
		wantHealth int
	}{
		{name: "destination without component", destHas: false, overwrite: false, wantHealth: 10},
		{name: "destination keeps value", destHas: true, overwrite: false, wantHealth: 99},
		{name: "destination overwritten", destHas: true, overwrite: true, wantHealth: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := newTestWorld(t)
			hp := mustStash[testutils.Health](t, w)
			from := mustCreate(t, w)
			to := mustCreate(t, w)
			require.NoError(t, hp.Add(from, testutils.Health{Value: 10}))
			if tt.destHas {
				require.NoError(t, hp.Add(to, testutils.Health{Value: 99}))
			}
			require.NoError(t, w.Commit())

			require.NoError(t, hp.Migrate(from, to, tt.overwrite))

			assert.False(t, hp.Has(from))
			got, err := hp.Get(to)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHealth, got.Value)

			require.NoError(t, w.Commit())
			assert.True(t, w.Has(to, hp.TypeID()))
			assert.False(t, w.Has(from, hp.TypeID()))
		})
	}
}

func TestStash_MigrateWithoutSourceValue(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	hp := mustStash[testutils.Health](t, w)
	from := mustCreate(t, w)
	to := mustCreate(t, w)

	require.NoError(t, hp.Migrate(from, to, true))
	assert.False(t, hp.Has(to))
	assert.False(t, w.IsDirty(to))
}

func TestStash_DisposeHooks(t *testing.T) {
	t.Parallel()

	t.Run("disposable component", func(t *testing.T) {
		t.Parallel()

		w := newTestWorld(t)
		res := mustStash[testutils.Resource](t, w)
		disposed := 0

		a := mustCreate(t, w)
		b := mustCreate(t, w)
		c := mustCreate(t, w)
		for _, e := range []Entity{a, b, c} {
			require.NoError(t, res.Add(e, testutils.Resource{Disposed: &disposed}))
		}
		require.NoError(t, w.Commit())

		_, err := res.Remove(a)
		require.NoError(t, err)
		assert.Equal(t, 1, disposed, "remove runs the hook")

		require.NoError(t, w.Dispose(b))
		assert.Equal(t, 1, disposed, "dispose defers the hook to commit")
		require.NoError(t, w.Commit())
		assert.Equal(t, 2, disposed)

		require.NoError(t, res.RemoveAll())
		assert.Equal(t, 3, disposed)
		assert.False(t, res.Has(c))
	})

	t.Run("explicit disposer", func(t *testing.T) {
		t.Parallel()

		w := newTestWorld(t)
		var seen []int
		hp := mustStash(t, w, WithDisposer(func(h *testutils.Health) {
			seen = append(seen, h.Value)
		}))

		e := mustCreate(t, w)
		require.NoError(t, hp.Add(e, testutils.Health{Value: 7}))
		require.NoError(t, w.Dispose(e))
		require.NoError(t, w.Commit())

		assert.Equal(t, []int{7}, seen)
	})

	t.Run("hook disposes another entity", func(t *testing.T) {
		t.Parallel()

		w := newTestWorld(t)
		pos := mustStash[testutils.Position](t, w)
		var child Entity
		parent := mustStash(t, w, WithDisposer(func(*testutils.Health) {
			require.NoError(t, w.Dispose(child))
		}))

		owner := mustCreate(t, w)
		child = mustCreate(t, w)
		require.NoError(t, parent.Add(owner, testutils.Health{}))
		require.NoError(t, pos.Add(child, testutils.Position{}))
		require.NoError(t, w.Commit())

		require.NoError(t, w.Dispose(owner))
		require.NoError(t, w.Commit())

		assert.False(t, w.IsAlive(owner))
		assert.False(t, w.IsAlive(child))
		assert.Equal(t, 0, w.EntityCount())
		assert.Equal(t, 0, w.ArchetypeCount())
	})
}

func TestStash_CapacityGrowth(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash(t, w, WithCapacity[testutils.Position](2))

	for range 10 {
		e := mustCreate(t, w)
		require.NoError(t, pos.Add(e, testutils.Position{}))
	}
	assert.Equal(t, 10, pos.Len())
	assert.Positive(t, w.Metrics().StashResizes)
}
