package storage

import (
	"sync/atomic"

	"github.com/petermattis/goid"
	"github.com/rotisserie/eris"
)

// affinity records the goroutine allowed to mutate a world. An owner of 0 means unowned: the next
// goroutine to mutate the world claims it.
type affinity struct {
	enabled bool
	owner   atomic.Int64
}

// CurrentGoroutineID returns the id of the calling goroutine, for use with World.SetOwner.
func CurrentGoroutineID() int64 {
	return goid.Get()
}

// checkAffinity fails with ErrThreadAffinityViolation unless the caller owns the world.
func (w *World) checkAffinity() error {
	if !w.affinity.enabled {
		return nil
	}

	gid := goid.Get()
	owner := w.affinity.owner.Load()
	if owner == gid {
		return nil
	}
	if owner == 0 && w.affinity.owner.CompareAndSwap(0, gid) {
		return nil
	}
	return eris.Wrapf(ErrThreadAffinityViolation,
		"goroutine %d touched world %s owned by goroutine %d", gid, w.id, w.affinity.owner.Load())
}

// SetOwner hands the world to another goroutine. Only the current owner may call it. Passing 0
// releases the world so the next goroutine to mutate it becomes the owner.
func (w *World) SetOwner(goroutineID int64) error {
	if err := w.checkAffinity(); err != nil {
		return err
	}
	w.affinity.owner.Store(goroutineID)
	return nil
}

// Owner returns the id of the owning goroutine, or 0 if the world is unowned.
func (w *World) Owner() int64 {
	return w.affinity.owner.Load()
}
