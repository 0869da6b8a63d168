// Package rssm implements the recurrent state-space model (RSSM) of a
// world model. The belief state of an RSSM is the concatenation of a
// deterministic recurrent state h of width D and a sample z of width S
// from a diagonal Gaussian latent. At each step, a prior over z is
// predicted from h alone and a posterior over z is computed from h and
// an embedding of the current observation.
package rssm

import (
	"fmt"

	"github.com/samuelfneumann/worldmodel/initwfn"
)

// Variant determines which outputs a Core stacks over time
type Variant string

const (
	// FinalState cores return only the belief state after the last step
	FinalState Variant = "FinalState"

	// Trajectory cores additionally stack the belief state after every
	// step
	Trajectory Variant = "Trajectory"
)

// Config describes an RSSM
type Config struct {
	EmbedDim  int // E
	ActionDim int // A
	DeterDim  int // D
	StochDim  int // S
	HiddenDim int // H

	// Lower bound on the standard deviation of the prior and posterior
	MinStd float64

	// Weight initializers of the feed forward layers and of the hidden
	// to hidden weights of the recurrent cell. If nil, Glorot uniform
	// and orthogonal initializers are used respectively.
	InitWFn          *initwfn.InitWFn
	RecurrentInitWFn *initwfn.InitWFn

	Variant Variant
}

// DefaultConfig returns the default RSSM configuration
func DefaultConfig() Config {
	return Config{
		EmbedDim:  256,
		ActionDim: 7,
		DeterDim:  200,
		StochDim:  30,
		HiddenDim: 200,
		MinStd:    0.1,
		Variant:   FinalState,
	}
}

// StateDim returns the width D+S of the belief state
func (c Config) StateDim() int {
	return c.DeterDim + c.StochDim
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	dims := []struct {
		name  string
		value int
	}{
		{"EmbedDim", c.EmbedDim},
		{"ActionDim", c.ActionDim},
		{"DeterDim", c.DeterDim},
		{"StochDim", c.StochDim},
		{"HiddenDim", c.HiddenDim},
	}
	for _, dim := range dims {
		if dim.value <= 0 {
			return fmt.Errorf("validate: %v must be > 0, have %v", dim.name,
				dim.value)
		}
	}

	if c.MinStd < 0 {
		return fmt.Errorf("validate: MinStd must be >= 0, have %v", c.MinStd)
	}

	switch c.Variant {
	case FinalState, Trajectory:
	default:
		return fmt.Errorf("validate: unknown variant %q", c.Variant)
	}

	return nil
}

// initWFns returns the weight initializers described by c
func (c Config) initWFns() (*initwfn.InitWFn, *initwfn.InitWFn, error) {
	init, recurrentInit := c.InitWFn, c.RecurrentInitWFn

	var err error
	if init == nil {
		if init, err = initwfn.NewGlorotU(1.0, 0); err != nil {
			return nil, nil, err
		}
	}
	if recurrentInit == nil {
		if recurrentInit, err = initwfn.NewOrthogonal(1.0, 0); err != nil {
			return nil, nil, err
		}
	}
	return init, recurrentInit, nil
}
