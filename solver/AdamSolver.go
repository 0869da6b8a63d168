package solver

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// AdamConfig describes a configuration of the Adam solver
type AdamConfig struct {
	Options
	Epsilon float64 // Smoothing factor
	Beta1   float64
	Beta2   float64
}

// NewDefaultAdam returns a new Adam Solver with default hyperparameters
// and no gradient clipping
func NewDefaultAdam(stepSize float64, batchSize int) (*Solver, error) {
	return NewAdam(stepSize, 1e-8, 0.9, 0.999, batchSize, -1.0)
}

// NewAdam returns a new Adam Solver. World models are usually trained
// with gradients clipped to clip; use clip <= 0 for no clipping.
func NewAdam(stepSize, epsilon, beta1, beta2 float64, batchSize int,
	clip float64) (*Solver, error) {
	return New(AdamConfig{
		Options: Options{stepSize, batchSize, clip},
		Epsilon: epsilon,
		Beta1:   beta1,
		Beta2:   beta2,
	})
}

// Type returns the Adam solver type
func (a AdamConfig) Type() Type {
	return Adam
}

// Validate returns an error if either decay is not in [0, 1)
func (a AdamConfig) Validate() error {
	if err := a.validate(); err != nil {
		return err
	}
	for _, beta := range []float64{a.Beta1, a.Beta2} {
		if beta < 0 || beta >= 1 {
			return fmt.Errorf("decay must be in [0, 1), have %v", beta)
		}
	}
	return nil
}

// Create returns a new Gorgonia Adam Solver as described by the
// AdamConfig
func (a AdamConfig) Create() G.Solver {
	return G.NewAdamSolver(a.solverOpts(G.WithEps(a.Epsilon),
		G.WithBeta1(a.Beta1), G.WithBeta2(a.Beta2))...)
}
