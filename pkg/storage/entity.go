package storage

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/argus-labs/stash/pkg/assert"
)

// Entity is a generational handle packed into 64 bits:
//
//	[ index: 32 bits | generation: 16 bits | world tag: 8 bits | unused: 8 bits ]
//
// A handle is live while the world's generation for its index equals the handle's generation.
// Generations start at 1, so the zero Entity is never live.
type Entity uint64

const (
	generationShift = 32
	tagShift        = 48

	// MaxEntityIndex is the largest index an entity can occupy.
	MaxEntityIndex = math.MaxUint32 - 1

	firstGeneration uint16 = 1
)

func newEntity(index uint32, generation uint16, tag uint8) Entity {
	return Entity(uint64(index) | uint64(generation)<<generationShift | uint64(tag)<<tagShift)
}

// Index returns the entity's slot index.
func (e Entity) Index() uint32 {
	return uint32(e) //nolint:gosec // truncation is the point
}

// Generation returns the generation the handle was issued with.
func (e Entity) Generation() uint16 {
	return uint16(e >> generationShift) //nolint:gosec // it's ok
}

// Tag returns the tag of the world that issued the handle.
func (e Entity) Tag() uint8 {
	return uint8(e >> tagShift) //nolint:gosec // it's ok
}

func (e Entity) String() string {
	return fmt.Sprintf("Entity(index=%d, gen=%d, tag=%d)", e.Index(), e.Generation(), e.Tag())
}

// nextGeneration increments a generation, wrapping around and skipping zero.
func nextGeneration(gen uint16) uint16 {
	gen++
	if gen == 0 {
		gen = firstGeneration
	}
	return gen
}

// entityData is the per-slot record owned by the entity registry. Stashes never touch it.
type entityData struct {
	archetype  *archetype         // Committed archetype, nil when the entity is not placed
	row        int                // Index of the entity in archetype.entities
	next       ArchetypeHash      // Pending signature, equal to archetype.hash when clean
	changes    []structuralChange // Pending ledger entries, at most one per component type
	generation uint16
}

// entityRegistry allocates entity slots. Freed indices are staged in nextFree and only become
// reusable after publishFree, which the commit pipeline calls once per cycle.
type entityRegistry struct {
	tag      uint8
	data     []entityData // Index -> entity record, grows geometrically
	length   uint32       // Number of slots ever handed out
	count    int          // Entities created and not yet torn down
	free     []uint32     // Reusable indices, popped LIFO
	nextFree []uint32     // Indices freed during the current commit
}

func newEntityRegistry(capacity int, tag uint8) entityRegistry {
	assert.That(capacity > 0, "entity capacity must be positive")
	r := entityRegistry{
		tag:      tag,
		data:     make([]entityData, capacity),
		free:     make([]uint32, 0),
		nextFree: make([]uint32, 0),
	}
	for i := range r.data {
		r.data[i].generation = firstGeneration
	}
	return r
}

// create allocates an index and returns a live handle for it. It reports whether the backing
// array had to grow.
func (r *entityRegistry) create() (Entity, bool, error) {
	var index uint32
	grew := false

	if n := len(r.free); n > 0 {
		index = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		if r.length > MaxEntityIndex {
			return 0, false, ErrEntityLimit
		}
		index = r.length
		r.length++
		if int(index) >= len(r.data) {
			r.grow()
			grew = true
		}
	}

	r.count++
	return r.handle(index), grew, nil
}

// grow doubles the entity array. Archetypes only store handles, so nothing points into the old
// array after the copy.
func (r *entityRegistry) grow() {
	oldLen := len(r.data)
	grown := make([]entityData, oldLen*2)
	copy(grown, r.data)
	for i := oldLen; i < len(grown); i++ {
		grown[i].generation = firstGeneration
	}
	r.data = grown
}

// handle returns the current handle for an index.
func (r *entityRegistry) handle(index uint32) Entity {
	return newEntity(index, r.data[index].generation, r.tag)
}

// isAlive reports whether the handle's generation matches its slot's current generation.
func (r *entityRegistry) isAlive(e Entity) bool {
	if e.Tag() != r.tag {
		return false
	}
	index := e.Index()
	if index >= r.length {
		return false
	}
	return r.data[index].generation == e.Generation()
}

// check returns a wrapped sentinel describing why the handle is not live.
func (r *entityRegistry) check(e Entity) error {
	if e.Tag() != r.tag {
		return eris.Wrapf(ErrForeignEntity, "%s used in world with tag %d", e, r.tag)
	}
	if !r.isAlive(e) {
		return eris.Wrapf(ErrStaleHandle, "%s", e)
	}
	return nil
}

// get returns the record for an index. The pointer is invalidated by the next create.
func (r *entityRegistry) get(index uint32) *entityData {
	return &r.data[index]
}

// release resets an index's record, bumps its generation, and stages the index for reuse.
func (r *entityRegistry) release(index uint32) {
	d := &r.data[index]
	assert.That(d.archetype == nil, "released entity is still placed")

	d.row = 0
	d.next = 0
	d.changes = d.changes[:0]
	d.generation = nextGeneration(d.generation)

	r.nextFree = append(r.nextFree, index)
	r.count--
}

// publishFree makes the indices freed during this commit available to create.
func (r *entityRegistry) publishFree() int {
	n := len(r.nextFree)
	r.free = append(r.free, r.nextFree...)
	r.nextFree = r.nextFree[:0]
	return n
}
