package storage

import "github.com/rotisserie/eris"

var (
	// ErrStaleHandle is returned when an operation receives a handle whose generation no longer
	// matches the entity slot, or whose entity is already pending disposal.
	ErrStaleHandle = eris.New("stale entity handle")

	// ErrForeignEntity is returned when a handle was issued by a world with a different tag.
	ErrForeignEntity = eris.New("entity belongs to another world")

	// ErrAlreadyHasComponent is returned by Stash.Add when the entity already holds the component.
	ErrAlreadyHasComponent = eris.New("entity already has component")

	// ErrMissingComponent is returned by Stash.Get when the entity does not hold the component.
	ErrMissingComponent = eris.New("entity is missing component")

	// ErrThreadAffinityViolation is returned when a goroutine other than the world's owner mutates it.
	ErrThreadAffinityViolation = eris.New("world accessed from a goroutine that does not own it")

	// ErrReentrantCommit is returned when Commit is called during a filter iteration or from inside
	// another commit.
	ErrReentrantCommit = eris.New("commit called while iterating or committing")

	// ErrComponentNotFound is returned when a component type is not registered with the world.
	ErrComponentNotFound = eris.New("component type not registered")

	// ErrTypeHashCollision is returned when two component names hash to the same type hash.
	ErrTypeHashCollision = eris.New("component type hash collision")

	// ErrInvalidFilter is returned when a filter's include and exclude sets are malformed.
	ErrInvalidFilter = eris.New("invalid filter")

	// ErrEntityLimit is returned when every entity index is in use.
	ErrEntityLimit = eris.New("max number of entities exceeded")
)
