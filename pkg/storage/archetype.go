package storage

import (
	"github.com/kelindar/bitmap"

	"github.com/argus-labs/stash/pkg/assert"
)

// archetype holds the entities that share one component signature. Signatures are immutable while
// the archetype is registered: entities move between archetypes instead.
type archetype struct {
	id         int           // Stable id assigned by the pool, reused across rentals
	hash       ArchetypeHash // Signature of components
	components bitmap.Bitmap // Type ids present in the signature
	entities   []Entity      // Dense member list, swap-remove on departure
	filters    bitmap.Bitmap // Ids of the filters matching this archetype
	scheduled  bool          // Queued for the reclamation check of the current commit
}

func newArchetype(id int) *archetype {
	return &archetype{
		id:       id,
		entities: make([]Entity, 0),
	}
}

// add appends e and returns its row.
func (a *archetype) add(e Entity) int {
	a.entities = append(a.entities, e)
	return len(a.entities) - 1
}

// remove swap-removes the entity at row. If another entity was moved into row it is returned with
// moved set, and the caller must update that entity's stored row.
func (a *archetype) remove(row int) (Entity, bool) {
	assert.That(row >= 0 && row < len(a.entities), "archetype row out of range")

	last := len(a.entities) - 1
	if row == last {
		a.entities = a.entities[:last]
		return 0, false
	}

	moved := a.entities[last]
	a.entities[row] = moved
	a.entities = a.entities[:last]
	return moved, true
}

func (a *archetype) isEmpty() bool {
	return len(a.entities) == 0
}

// has reports whether the signature includes the type.
func (a *archetype) has(id TypeID) bool {
	return a.components.Contains(id)
}

// typeIDs returns the component type ids in ascending order.
func (a *archetype) typeIDs() []TypeID {
	ids := make([]TypeID, 0, a.components.Count())
	a.components.Range(func(id uint32) {
		ids = append(ids, id)
	})
	return ids
}

// reset clears everything but the id so the archetype can go back to the pool.
func (a *archetype) reset() {
	assert.That(a.isEmpty(), "resetting non-empty archetype %d", a.id)
	a.hash = 0
	a.components.Clear()
	a.filters.Clear()
	a.entities = a.entities[:0]
	a.scheduled = false
}
