package storage

// structuralChange is a pending intent to add or remove a component type from an entity.
type structuralChange struct {
	typeID     TypeID
	isAddition bool
}

// enqueueChange records a pending add or remove of a component type on the entity at index.
//
// The ledger holds at most one entry per type: a second change for the same type cancels the first
// (add then remove, or remove then add) by deleting it with swap-with-last. Either way the pending
// signature is toggled by the type hash and the entity joins the dirty set.
func (w *World) enqueueChange(index uint32, info typeInfo, isAddition bool) {
	d := w.entities.get(index)

	if !d.cancelChange(info.id) {
		d.changes = append(d.changes, structuralChange{typeID: info.id, isAddition: isAddition})
	}
	d.next = d.next.Combine(info.hash)
	w.dirty.add(index)

	if evt := w.logger.Trace(); evt.Enabled() {
		evt.Uint32("entity_index", index).
			Str("component", info.name).
			Bool("addition", isAddition).
			Stringer("next_hash", d.next).
			Msg("queued structural change")
	}
}

// cancelChange removes the pending entry for typeID if one exists and reports whether it did.
func (d *entityData) cancelChange(typeID TypeID) bool {
	for i := range d.changes {
		if d.changes[i].typeID != typeID {
			continue
		}
		last := len(d.changes) - 1
		d.changes[i] = d.changes[last]
		d.changes = d.changes[:last]
		return true
	}
	return false
}
