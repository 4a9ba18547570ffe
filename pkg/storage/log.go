package storage

import "github.com/rs/zerolog"

// logArchetype attaches an archetype's signature, id, component names, and size to the event.
func logArchetype(evt *zerolog.Event, a *archetype, types *typeRegistry) *zerolog.Event {
	return evt.
		Stringer("archetype_hash", a.hash).
		Int("archetype_id", a.id).
		Strs("components", types.names(a.typeIDs())).
		Int("entities", len(a.entities))
}

// logEntity attaches an entity handle and its committed components to the event.
func logEntity(evt *zerolog.Event, w *World, e Entity) *zerolog.Event {
	evt = evt.Stringer("entity", e)
	if !w.entities.isAlive(e) {
		return evt.Bool("alive", false)
	}
	d := w.entities.get(e.Index())
	if d.archetype == nil {
		return evt.Strs("components", []string{})
	}
	return evt.
		Stringer("archetype_hash", d.archetype.hash).
		Strs("components", w.types.names(d.archetype.typeIDs()))
}
