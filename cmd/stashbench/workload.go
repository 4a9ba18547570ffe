package main

import (
	"math/rand/v2"

	"github.com/rotisserie/eris"

	"github.com/argus-labs/stash/pkg/storage"
)

type Position struct{ X, Y float64 }

func (Position) Name() string { return "position" }

type Velocity struct{ X, Y float64 }

func (Velocity) Name() string { return "velocity" }

type Health struct{ Value int }

func (Health) Name() string { return "health" }

type Sleeping struct{}

func (Sleeping) Name() string { return "sleeping" }

// workload holds the world and stashes a run mutates, plus the handles it has issued.
type workload struct {
	world    *storage.World
	rng      *rand.Rand
	position *storage.Stash[Position]
	velocity *storage.Stash[Velocity]
	health   *storage.Stash[Health]
	sleeping *storage.Stash[Sleeping]
	moving   *storage.Filter
	entities []storage.Entity
}

func newWorkload(w *storage.World, seed uint64) (*workload, error) {
	wl := &workload{
		world: w,
		rng:   rand.New(rand.NewPCG(seed, seed)), //nolint:gosec // not for crypto
	}

	var err error
	if wl.position, err = storage.GetStash[Position](w); err != nil {
		return nil, err
	}
	if wl.velocity, err = storage.GetStash[Velocity](w); err != nil {
		return nil, err
	}
	if wl.health, err = storage.GetStash[Health](w); err != nil {
		return nil, err
	}
	if wl.sleeping, err = storage.GetStash[Sleeping](w); err != nil {
		return nil, err
	}

	wl.moving, err = w.Filter().With(wl.position, wl.velocity).Without(wl.sleeping).Build()
	if err != nil {
		return nil, eris.Wrap(err, "failed to build filter")
	}
	return wl, nil
}

// populate creates count entities with a random mix of components.
func (wl *workload) populate(count int) error {
	for range count {
		if err := wl.spawn(); err != nil {
			return err
		}
	}
	return nil
}

func (wl *workload) spawn() error {
	e, err := wl.world.CreateEntity()
	if err != nil {
		return err
	}
	if err := wl.position.Add(e, Position{X: wl.rng.Float64(), Y: wl.rng.Float64()}); err != nil {
		return err
	}
	if wl.rng.IntN(2) == 0 {
		if err := wl.velocity.Add(e, Velocity{X: 1, Y: 1}); err != nil {
			return err
		}
	}
	if wl.rng.IntN(3) == 0 {
		if err := wl.health.Add(e, Health{Value: 100}); err != nil {
			return err
		}
	}
	wl.entities = append(wl.entities, e)
	return nil
}

// churn applies structural changes to roughly ratio of the entities: toggles sleeping and velocity,
// replaces some entities with new ones.
func (wl *workload) churn(ratio float64) error {
	for i := 0; i < len(wl.entities); i++ {
		if wl.rng.Float64() >= ratio {
			continue
		}
		e := wl.entities[i]

		switch wl.rng.IntN(4) {
		case 0:
			if wl.sleeping.Has(e) {
				if _, err := wl.sleeping.Remove(e); err != nil {
					return err
				}
			} else if err := wl.sleeping.Add(e, Sleeping{}); err != nil {
				return err
			}
		case 1:
			if wl.velocity.Has(e) {
				if _, err := wl.velocity.Remove(e); err != nil {
					return err
				}
			} else if err := wl.velocity.Set(e, Velocity{X: -1, Y: 1}); err != nil {
				return err
			}
		case 2:
			if err := wl.health.Set(e, Health{Value: wl.rng.IntN(100)}); err != nil {
				return err
			}
		case 3:
			if err := wl.world.Dispose(e); err != nil {
				return err
			}
			last := len(wl.entities) - 1
			wl.entities[i] = wl.entities[last]
			wl.entities = wl.entities[:last]
			i--
			if err := wl.spawn(); err != nil {
				return err
			}
		}
	}
	return nil
}

// step moves every entity of the moving filter.
func (wl *workload) step() (int, error) {
	moved := 0
	for e := range wl.moving.Entities() {
		p, err := wl.position.GetPtr(e)
		if err != nil {
			return moved, err
		}
		v, _ := wl.velocity.TryGet(e)
		p.X += v.X
		p.Y += v.Y
		moved++
	}
	return moved, nil
}
