// Package globalstate implements a recurrent world model whose belief
// is a single recurrent memory vector. Unlike an RSSM, the model keeps
// no stochastic state in its belief and predicts no prior: it computes
// a posterior over a stochastic latent from the memory at each step,
// and is regularized by the KL divergence between the posteriors of
// consecutive steps.
package globalstate

import (
	"fmt"

	"github.com/samuelfneumann/worldmodel/initwfn"
)

// Config describes a global state model
type Config struct {
	EmbedDim  int // E
	ActionDim int // A
	MemDim    int // M
	StochDim  int // S
	HiddenDim int // H

	// Lower bound on the standard deviation of the posterior
	MinStd float64

	// Weight initializers of the feed forward layers and of the hidden
	// to hidden weights of the recurrent cell. If nil, Glorot uniform
	// and orthogonal initializers are used respectively.
	InitWFn          *initwfn.InitWFn
	RecurrentInitWFn *initwfn.InitWFn
}

// DefaultConfig returns the default global state model configuration
func DefaultConfig() Config {
	return Config{
		EmbedDim:  256,
		ActionDim: 7,
		MemDim:    200,
		StochDim:  30,
		HiddenDim: 200,
		MinStd:    0.1,
	}
}

// Validate checks a Config to ensure it is a valid configuration
func (c Config) Validate() error {
	if c.EmbedDim <= 0 || c.ActionDim <= 0 || c.MemDim <= 0 ||
		c.StochDim <= 0 || c.HiddenDim <= 0 {
		return fmt.Errorf("validate: all dimensions must be > 0, have "+
			"E=%v A=%v M=%v S=%v H=%v", c.EmbedDim, c.ActionDim, c.MemDim,
			c.StochDim, c.HiddenDim)
	}
	if c.MinStd < 0 {
		return fmt.Errorf("validate: MinStd must be >= 0, have %v", c.MinStd)
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
