package solver

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// RMSPropConfig describes the RMSProp solver, which scales the step
// of each weight by a running root mean square of its gradients
// decayed by Rho.
type RMSPropConfig struct {
	Options
	Epsilon float64
	Rho     float64
}

// NewDefaultRMSProp returns a new RMSProp Solver with default
// hyperparameters and no gradient clipping
func NewDefaultRMSProp(stepSize float64, batchSize int) (*Solver, error) {
	return NewRMSProp(stepSize, 1e-8, 0.999, batchSize, -1.0)
}

// NewRMSProp returns a new RMSProp Solver
func NewRMSProp(stepSize, epsilon, rho float64, batchSize int,
	clip float64) (*Solver, error) {
	return New(RMSPropConfig{
		Options: Options{stepSize, batchSize, clip},
		Epsilon: epsilon,
		Rho:     rho,
	})
}

// Type returns the RMSProp solver type
func (r RMSPropConfig) Type() Type {
	return RMSProp
}

// Validate returns an error if the decay is not in (0, 1) or the
// smoothing term is negative
func (r RMSPropConfig) Validate() error {
	if err := r.validate(); err != nil {
		return err
	}
	if r.Rho <= 0 || r.Rho >= 1 {
		return fmt.Errorf("decay must be in (0, 1), have %v", r.Rho)
	}
	if r.Epsilon < 0 {
		return fmt.Errorf("epsilon must be >= 0, have %v", r.Epsilon)
	}
	return nil
}

// Create returns a new Gorgonia RMSProp Solver as described by the
// RMSPropConfig
func (r RMSPropConfig) Create() G.Solver {
	return G.NewRMSPropSolver(r.solverOpts(G.WithEps(r.Epsilon),
		G.WithRho(r.Rho))...)
}
