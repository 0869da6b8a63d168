// Package environment outlines the interfaces and structs needed to
// implement the environments that world models collect sequences from
package environment

import (
	"github.com/samuelfneumann/worldmodel/timestep"
	"gonum.org/v1/gonum/mat"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when an episode ends. If an episode should end, the
// Ender marks the timestep as the last step of the episode.
type Ender interface {
	End(*timestep.TimeStep) bool
}

// Environment implements a simulated environment
type Environment interface {
	Reset() timestep.TimeStep
	Step(action *mat.VecDense) (timestep.TimeStep, bool)
	ObservationSpec() Spec
	ActionSpec() Spec
	DiscountSpec() Spec
}

// End runs each Ender on t in order, returning whether any of them
// ended the episode
func End(enders []Ender, t *timestep.TimeStep) bool {
	for _, ender := range enders {
		if ender.End(t) {
			return true
		}
	}
	return false
}
