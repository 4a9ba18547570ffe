package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-labs/stash/pkg/storage/internal/testutils"
)

func TestLedger_AddThenRemoveCancels(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash[testutils.Position](t, w)
	vel := mustStash[testutils.Velocity](t, w)
	e := mustCreate(t, w)
	d := w.entities.get(e.Index())

	require.NoError(t, pos.Add(e, testutils.Position{}))
	require.NoError(t, vel.Add(e, testutils.Velocity{}))
	assert.Len(t, d.changes, 2)
	assert.Equal(t, pos.info.hash.Combine(vel.info.hash), d.next)

	_, err := pos.Remove(e)
	require.NoError(t, err)

	// The position entry is swapped out and the velocity entry stays.
	require.Len(t, d.changes, 1)
	assert.Equal(t, structuralChange{typeID: vel.TypeID(), isAddition: true}, d.changes[0])
	assert.Equal(t, vel.info.hash, d.next)
}

func TestLedger_RemoveThenAddCancels(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash[testutils.Position](t, w)
	e := mustCreate(t, w)
	require.NoError(t, pos.Add(e, testutils.Position{}))
	require.NoError(t, w.Commit())

	d := w.entities.get(e.Index())
	committed := d.archetype

	_, err := pos.Remove(e)
	require.NoError(t, err)
	require.NoError(t, pos.Add(e, testutils.Position{X: 5}))

	assert.Empty(t, d.changes)
	assert.Equal(t, committed.hash, d.next)
	assert.True(t, w.IsDirty(e), "cancelled entities stay in the dirty set")

	require.NoError(t, w.Commit())
	assert.Same(t, committed, d.archetype, "net-zero changes don't migrate")
	assert.Equal(t, uint64(0), w.Metrics().ArchetypesReclaimed)
}

func TestLedger_NetZeroOnFreshEntity(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	pos := mustStash[testutils.Position](t, w)
	e := mustCreate(t, w)

	require.NoError(t, pos.Add(e, testutils.Position{}))
	_, err := pos.Remove(e)
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	// The entity was never placed, so it stays alive and unplaced.
	assert.True(t, w.IsAlive(e))
	assert.Equal(t, 1, w.EntityCount())
	assert.Nil(t, w.entities.get(e.Index()).archetype)
	assert.Equal(t, 0, w.ArchetypeCount())

	// The same handle is placed by its next real change.
	require.NoError(t, pos.Add(e, testutils.Position{}))
	require.NoError(t, w.Commit())
	types, err := w.ComponentTypes(e)
	require.NoError(t, err)
	assert.Equal(t, []TypeID{pos.TypeID()}, types)
}

func TestLedger_OneEntryPerType(t *testing.T) {
	t.Parallel()
	w := newTestWorld(t)

	pos := mustStash[testutils.Position](t, w)
	vel := mustStash[testutils.Velocity](t, w)
	hp := mustStash[testutils.Health](t, w)
	e := mustCreate(t, w)
	d := w.entities.get(e.Index())

	require.NoError(t, pos.Add(e, testutils.Position{}))
	require.NoError(t, vel.Add(e, testutils.Velocity{}))
	require.NoError(t, hp.Add(e, testutils.Health{}))
	_, err := vel.Remove(e)
	require.NoError(t, err)
	require.NoError(t, vel.Add(e, testutils.Velocity{}))

	seen := make(map[TypeID]int)
	for _, change := range d.changes {
		seen[change.typeID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "type %d has %d ledger entries", id, n)
	}
	assert.Len(t, d.changes, 3)
	assert.Equal(t, w.types.signature([]TypeID{pos.TypeID(), vel.TypeID(), hp.TypeID()}), d.next)
}
