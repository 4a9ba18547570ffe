// Package testutils provides component types shared by the storage tests.
package testutils

type Position struct {
	X, Y float64
}

func (Position) Name() string { return "position" }

type Velocity struct {
	X, Y float64
}

func (Velocity) Name() string { return "velocity" }

type Health struct {
	Value int
}

func (Health) Name() string { return "health" }

// Frozen is a marker component with no data.
type Frozen struct{}

func (Frozen) Name() string { return "frozen" }

type Label struct {
	Text string `json:"text"`
}

func (Label) Name() string { return "label" }

// Resource counts its Dispose calls through a shared counter.
type Resource struct {
	ID       int
	Disposed *int
}

func (Resource) Name() string { return "resource" }

func (r *Resource) Dispose() {
	if r.Disposed != nil {
		*r.Disposed++
	}
}
