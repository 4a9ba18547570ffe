package storage

import (
	"reflect"

	"github.com/rotisserie/eris"

	"github.com/argus-labs/stash/pkg/assert"
)

// abstractStash is the type-erased view of a Stash the world uses on the disposal path.
type abstractStash interface {
	typeInfo() typeInfo
	// clean drops the entity's value and runs the dispose hook without writing to the ledger.
	clean(index uint32)
	has(index uint32) bool
	Len() int
}

// Stash stores the values of one component type, keyed by entity index. Add, Set, Remove, and
// Migrate write the value immediately and record the structural change in the owning entity's
// ledger. The entity moves to its new archetype on the next Commit.
type Stash[T Component] struct {
	world   *World
	info    typeInfo
	data    slotMap[T]
	dispose func(*T)
}

// Disposable is implemented by component types that release resources when they leave an entity.
type Disposable interface {
	Dispose()
}

type stashOptions[T Component] struct {
	capacity int
	dispose  func(*T)
}

// StashOption configures a stash when its component type is registered.
type StashOption[T Component] func(*stashOptions[T])

// WithCapacity sets the initial number of value slots.
func WithCapacity[T Component](capacity int) StashOption[T] {
	return func(o *stashOptions[T]) {
		o.capacity = capacity
	}
}

// WithDisposer sets a hook that runs whenever a value leaves the stash through Remove, RemoveAll,
// or entity disposal.
func WithDisposer[T Component](fn func(*T)) StashOption[T] {
	return func(o *stashOptions[T]) {
		o.dispose = fn
	}
}

// GetStash returns the stash for component type T, registering the type on first use. Options are
// only applied on registration.
func GetStash[T Component](w *World, opts ...StashOption[T]) (*Stash[T], error) {
	var zero T
	name := zero.Name()

	if info, err := w.types.lookup(name); err == nil {
		stash, ok := w.stashes[info.id].(*Stash[T])
		if !ok {
			return nil, eris.Errorf("component %q is registered with type %s", name, info.goType)
		}
		return stash, nil
	}

	if err := w.checkAffinity(); err != nil {
		return nil, err
	}

	info, err := w.types.register(name, reflect.TypeFor[T]())
	if err != nil {
		return nil, eris.Wrap(err, "failed to register component")
	}

	options := stashOptions[T]{capacity: w.options.ComponentCapacity}
	for _, opt := range opts {
		opt(&options)
	}
	if options.dispose == nil {
		if _, ok := any(&zero).(Disposable); ok {
			options.dispose = func(v *T) {
				any(v).(Disposable).Dispose() //nolint:forcetypeassert // checked above
			}
		}
	}

	stash := &Stash[T]{
		world:   w,
		info:    info,
		data:    newSlotMap[T](options.capacity),
		dispose: options.dispose,
	}
	w.stashes = append(w.stashes, stash)
	assert.That(len(w.stashes) == w.types.len(), "stash count doesn't match registered types")

	w.logger.Debug().
		Str("component", name).
		Uint32("type_id", info.id).
		Stringer("type_hash", info.hash).
		Msg("registered component")

	return stash, nil
}

// TypeID returns the id of the stash's component type.
func (s *Stash[T]) TypeID() TypeID {
	return s.info.id
}

// Name returns the component name.
func (s *Stash[T]) Name() string {
	return s.info.name
}

func (s *Stash[T]) typeInfo() typeInfo {
	return s.info
}

// Add attaches value to e. Fails with ErrAlreadyHasComponent if e already has the component.
func (s *Stash[T]) Add(e Entity, value T) error {
	if err := s.world.checkMutable(e); err != nil {
		return err
	}

	capacity := s.data.capacity()
	if _, ok := s.data.insert(int(e.Index()), value); !ok {
		return eris.Wrapf(ErrAlreadyHasComponent, "%s already has %s", e, s.info.name)
	}
	s.trackResize(capacity)

	s.world.enqueueChange(e.Index(), s.info, true)
	return nil
}

// Set stores value for e, attaching the component if e does not have it yet.
func (s *Stash[T]) Set(e Entity, value T) error {
	if err := s.world.checkMutable(e); err != nil {
		return err
	}

	capacity := s.data.capacity()
	if _, added := s.data.set(int(e.Index()), value); added {
		s.trackResize(capacity)
		s.world.enqueueChange(e.Index(), s.info, true)
	}
	return nil
}

// Get returns e's value. Fails with ErrMissingComponent if e does not have the component.
func (s *Stash[T]) Get(e Entity) (T, error) {
	var zero T
	if err := s.world.validate(e); err != nil {
		return zero, err
	}

	value, ok := s.data.get(int(e.Index()))
	if !ok {
		return zero, eris.Wrapf(ErrMissingComponent, "%s has no %s", e, s.info.name)
	}
	return *value, nil
}

// TryGet returns e's value and whether e has the component. A stale handle has no components.
func (s *Stash[T]) TryGet(e Entity) (T, bool) {
	var zero T
	if s.world.validate(e) != nil {
		return zero, false
	}

	value, ok := s.data.get(int(e.Index()))
	if !ok {
		return zero, false
	}
	return *value, true
}

// GetPtr returns a pointer to e's value for in-place updates. The pointer is valid until the next
// component is added to this stash.
func (s *Stash[T]) GetPtr(e Entity) (*T, error) {
	if err := s.world.checkMutable(e); err != nil {
		return nil, err
	}

	value, ok := s.data.get(int(e.Index()))
	if !ok {
		return nil, eris.Wrapf(ErrMissingComponent, "%s has no %s", e, s.info.name)
	}
	return value, nil
}

// Has reports whether e has the component. A stale handle has no components.
func (s *Stash[T]) Has(e Entity) bool {
	if s.world.validate(e) != nil {
		return false
	}
	return s.data.has(int(e.Index()))
}

func (s *Stash[T]) has(index uint32) bool {
	return s.data.has(int(index))
}

// Remove detaches the component from e and reports whether it was present.
func (s *Stash[T]) Remove(e Entity) (bool, error) {
	if err := s.world.checkMutable(e); err != nil {
		return false, err
	}

	value, ok := s.data.remove(int(e.Index()))
	if !ok {
		return false, nil
	}

	s.world.enqueueChange(e.Index(), s.info, false)
	s.runDispose(&value)
	return true, nil
}

// RemoveAll detaches the component from every entity that has it.
func (s *Stash[T]) RemoveAll() error {
	if err := s.world.checkAffinity(); err != nil {
		return err
	}

	for key, value := range s.data.all() {
		s.runDispose(value)
		s.world.enqueueChange(uint32(key), s.info, false) //nolint:gosec // keys are entity indices
	}
	s.data.clear()
	return nil
}

// Migrate moves the component from one entity to another. When to already has the component,
// overwrite decides whether its value is replaced or kept. from loses the component either way.
// Migrating from an entity without the component does nothing.
func (s *Stash[T]) Migrate(from, to Entity, overwrite bool) error {
	if err := s.world.checkMutable(from); err != nil {
		return eris.Wrap(err, "invalid source entity")
	}
	if err := s.world.checkMutable(to); err != nil {
		return eris.Wrap(err, "invalid destination entity")
	}
	if from == to {
		return nil
	}

	source, ok := s.data.get(int(from.Index()))
	if !ok {
		return nil
	}
	value := *source

	if destination, exists := s.data.get(int(to.Index())); exists {
		if overwrite {
			*destination = value
		}
	} else {
		capacity := s.data.capacity()
		s.data.insert(int(to.Index()), value)
		s.trackResize(capacity)
		s.world.enqueueChange(to.Index(), s.info, true)
	}

	s.data.remove(int(from.Index()))
	s.world.enqueueChange(from.Index(), s.info, false)
	return nil
}

// Len returns the number of entities holding the component.
func (s *Stash[T]) Len() int {
	return s.data.len()
}

// IsEmpty reports whether no entity holds the component.
func (s *Stash[T]) IsEmpty() bool {
	return s.data.len() == 0
}

func (s *Stash[T]) clean(index uint32) {
	value, ok := s.data.remove(int(index))
	if !ok {
		return
	}
	s.runDispose(&value)
}

func (s *Stash[T]) runDispose(value *T) {
	if s.dispose != nil {
		s.dispose(value)
	}
}

func (s *Stash[T]) trackResize(previousCapacity int) {
	if s.data.capacity() != previousCapacity {
		s.world.metrics.StashResizes++
	}
}
