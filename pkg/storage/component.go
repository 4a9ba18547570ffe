package storage

import (
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"
	"github.com/rotisserie/eris"

	"github.com/argus-labs/stash/pkg/assert"
)

// Component is the interface that all components must implement.
type Component interface { //nolint:iface // We may add more methods in the future.
	// Name returns a unique string identifier for the component type. It seeds the type hash, so
	// it must stay the same across program executions.
	Name() string
}

// TypeID is the small integer id a world assigns to a registered component type.
type TypeID = uint32

// ArchetypeHash is the signature of a set of component types: the XOR of their type hashes. XOR is
// commutative and self-inverse, so adding and removing a type are the same operation. Two different
// sets may collide; the probability is accepted as negligible.
type ArchetypeHash uint64

// Combine toggles other in or out of the signature.
func (h ArchetypeHash) Combine(other ArchetypeHash) ArchetypeHash {
	return h ^ other
}

func (h ArchetypeHash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// typeHash returns the 64-bit hash of a component name.
func typeHash(name string) ArchetypeHash {
	return ArchetypeHash(xxhash.Sum64String(name))
}

// typeInfo describes a registered component type.
type typeInfo struct {
	id     TypeID
	hash   ArchetypeHash
	name   string
	goType reflect.Type
}

// typeRegistry assigns ids and hashes to component types. Ids and hashes never change once assigned.
type typeRegistry struct {
	catalog map[string]TypeID        // Component name -> type id
	byHash  map[ArchetypeHash]TypeID // Type hash -> type id, used to reject collisions
	infos   []typeInfo               // Type id -> info
}

func newTypeRegistry() typeRegistry {
	return typeRegistry{
		catalog: make(map[string]TypeID),
		byHash:  make(map[ArchetypeHash]TypeID),
		infos:   make([]typeInfo, 0),
	}
}

// register assigns an id to the component name. Registering the same name and Go type again
// returns the existing info.
func (r *typeRegistry) register(name string, goType reflect.Type) (typeInfo, error) {
	if name == "" {
		return typeInfo{}, eris.New("component name cannot be empty")
	}

	if id, exists := r.catalog[name]; exists {
		info := r.infos[id]
		if info.goType != goType {
			return typeInfo{}, eris.Errorf("component name %q is already registered by %s", name, info.goType)
		}
		return info, nil
	}

	hash := typeHash(name)
	if hash == 0 {
		return typeInfo{}, eris.Wrapf(ErrTypeHashCollision, "component %q hashes to the empty signature", name)
	}
	if other, exists := r.byHash[hash]; exists {
		return typeInfo{}, eris.Wrapf(ErrTypeHashCollision, "component %q collides with %q", name, r.infos[other].name)
	}

	id := TypeID(len(r.infos)) //nolint:gosec // it's ok
	info := typeInfo{id: id, hash: hash, name: name, goType: goType}
	r.catalog[name] = id
	r.byHash[hash] = id
	r.infos = append(r.infos, info)
	assert.That(len(r.infos) == len(r.catalog), "type infos and catalog out of sync")

	return info, nil
}

// lookup returns the info of a registered component name.
func (r *typeRegistry) lookup(name string) (typeInfo, error) {
	id, exists := r.catalog[name]
	if !exists {
		return typeInfo{}, eris.Wrapf(ErrComponentNotFound, "component %s", name)
	}
	return r.infos[id], nil
}

// info returns the info of a type id.
func (r *typeRegistry) info(id TypeID) (typeInfo, bool) {
	if int(id) >= len(r.infos) {
		return typeInfo{}, false
	}
	return r.infos[id], true
}

// signature returns the archetype hash of a set of type ids. Ids must be registered and distinct.
func (r *typeRegistry) signature(ids []TypeID) ArchetypeHash {
	var h ArchetypeHash
	for _, id := range ids {
		h = h.Combine(r.infos[id].hash)
	}
	return h
}

// names returns the component names of the given ids.
func (r *typeRegistry) names(ids []TypeID) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = r.infos[id].name
	}
	return names
}

func (r *typeRegistry) len() int {
	return len(r.infos)
}
