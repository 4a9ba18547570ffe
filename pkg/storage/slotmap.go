package storage

import "iter"

const (
	slotTombstone       = -1
	defaultSlotCapacity = 64
)

// slotMap maps small non-negative integer keys to slots of a compact value array. Removing a key
// tombstones its slot and pushes it onto a free list, so the value array only grows when every
// slot is in use and values never move once placed.
type slotMap[V any] struct {
	sparse []int // Key -> slot, slotTombstone when absent
	keys   []int // Slot -> key, slotTombstone when the slot is free
	values []V   // Slot -> value
	free   []int // Free slots, reused LIFO
	count  int
}

func newSlotMap[V any](capacity int) slotMap[V] {
	if capacity <= 0 {
		capacity = defaultSlotCapacity
	}
	m := slotMap[V]{
		sparse: make([]int, capacity),
		keys:   make([]int, 0, capacity),
		values: make([]V, 0, capacity),
		free:   make([]int, 0),
	}
	for i := range m.sparse {
		m.sparse[i] = slotTombstone
	}
	return m
}

// slot returns the slot holding key.
func (m *slotMap[V]) slot(key int) (int, bool) {
	if key < 0 || key >= len(m.sparse) {
		return 0, false
	}
	s := m.sparse[key]
	if s == slotTombstone {
		return 0, false
	}
	return s, true
}

func (m *slotMap[V]) has(key int) bool {
	_, ok := m.slot(key)
	return ok
}

// get returns a pointer to the value stored for key. The pointer is invalidated when the value
// array grows.
func (m *slotMap[V]) get(key int) (*V, bool) {
	s, ok := m.slot(key)
	if !ok {
		return nil, false
	}
	return &m.values[s], true
}

// insert stores value for key if key is absent. Returns the slot and whether it was inserted.
func (m *slotMap[V]) insert(key int, value V) (int, bool) {
	if s, ok := m.slot(key); ok {
		return s, false
	}
	m.ensureKey(key)

	var s int
	if n := len(m.free); n > 0 {
		s = m.free[n-1]
		m.free = m.free[:n-1]
		m.keys[s] = key
		m.values[s] = value
	} else {
		s = len(m.values)
		m.keys = append(m.keys, key)
		m.values = append(m.values, value)
	}

	m.sparse[key] = s
	m.count++
	return s, true
}

// set upserts value for key. Returns the slot and whether the key was newly added.
func (m *slotMap[V]) set(key int, value V) (int, bool) {
	if s, ok := m.slot(key); ok {
		m.values[s] = value
		return s, false
	}
	return m.insert(key, value)
}

// remove deletes key and returns the value it held.
func (m *slotMap[V]) remove(key int) (V, bool) {
	var zero V
	s, ok := m.slot(key)
	if !ok {
		return zero, false
	}

	value := m.values[s]
	m.values[s] = zero
	m.keys[s] = slotTombstone
	m.sparse[key] = slotTombstone
	m.free = append(m.free, s)
	m.count--
	return value, true
}

// keyAt returns the key stored in a slot, or slotTombstone for a free slot.
func (m *slotMap[V]) keyAt(s int) int {
	return m.keys[s]
}

func (m *slotMap[V]) len() int {
	return m.count
}

// capacity returns the number of values the map can hold before the value array reallocates.
func (m *slotMap[V]) capacity() int {
	return cap(m.values)
}

// all yields every live (key, value) pair in slot order. Removing keys while iterating is safe.
func (m *slotMap[V]) all() iter.Seq2[int, *V] {
	return func(yield func(int, *V) bool) {
		for s := 0; s < len(m.keys); s++ {
			key := m.keys[s]
			if key == slotTombstone {
				continue
			}
			if !yield(key, &m.values[s]) {
				return
			}
		}
	}
}

// clear removes every key while keeping the allocated capacity.
func (m *slotMap[V]) clear() {
	for _, key := range m.keys {
		if key != slotTombstone {
			m.sparse[key] = slotTombstone
		}
	}
	clear(m.values)
	m.keys = m.keys[:0]
	m.values = m.values[:0]
	m.free = m.free[:0]
	m.count = 0
}

// ensureKey grows the sparse array so key is addressable. Growth at least doubles the array.
func (m *slotMap[V]) ensureKey(key int) {
	if key < len(m.sparse) {
		return
	}
	newLen := max(len(m.sparse)*2, key+1)
	grown := make([]int, newLen)
	copy(grown, m.sparse)
	for i := len(m.sparse); i < newLen; i++ {
		grown[i] = slotTombstone
	}
	m.sparse = grown
}

// -------------------------------------------------------------------------------------------------
// Index set
// -------------------------------------------------------------------------------------------------

// indexSet is a sparse set of entity indices. Membership is O(1) and the dense list keeps insertion
// order until a removal swaps the last element into the hole.
type indexSet struct {
	sparse []int
	dense  []uint32
}

func newIndexSet(capacity int) indexSet {
	s := indexSet{
		sparse: make([]int, capacity),
		dense:  make([]uint32, 0, capacity),
	}
	for i := range s.sparse {
		s.sparse[i] = slotTombstone
	}
	return s
}

func (s *indexSet) has(x uint32) bool {
	return int(x) < len(s.sparse) && s.sparse[x] != slotTombstone
}

// add inserts x and reports whether it was absent.
func (s *indexSet) add(x uint32) bool {
	if s.has(x) {
		return false
	}
	if int(x) >= len(s.sparse) {
		newLen := max(len(s.sparse)*2, int(x)+1)
		grown := make([]int, newLen)
		copy(grown, s.sparse)
		for i := len(s.sparse); i < newLen; i++ {
			grown[i] = slotTombstone
		}
		s.sparse = grown
	}
	s.sparse[x] = len(s.dense)
	s.dense = append(s.dense, x)
	return true
}

// remove deletes x and reports whether it was present.
func (s *indexSet) remove(x uint32) bool {
	if !s.has(x) {
		return false
	}
	pos := s.sparse[x]
	last := len(s.dense) - 1
	moved := s.dense[last]
	s.dense[pos] = moved
	s.sparse[moved] = pos
	s.dense = s.dense[:last]
	s.sparse[x] = slotTombstone
	return true
}

func (s *indexSet) len() int {
	return len(s.dense)
}

// at returns the i-th element of the dense list.
func (s *indexSet) at(i int) uint32 {
	return s.dense[i]
}

func (s *indexSet) clear() {
	for _, x := range s.dense {
		s.sparse[x] = slotTombstone
	}
	s.dense = s.dense[:0]
}
