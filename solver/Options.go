package solver

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// Options holds the hyperparameters shared by every solver. Embedding
// Options in a Config flattens them into the JSON of the Config.
type Options struct {
	StepSize float64
	Batch    int
	Clip     float64 // <= 0 if no clipping
}

func (o Options) validate() error {
	if o.StepSize <= 0 {
		return fmt.Errorf("step size must be > 0, have %v", o.StepSize)
	}
	if o.Batch <= 0 {
		return fmt.Errorf("batch size must be > 0, have %v", o.Batch)
	}
	return nil
}

// solverOpts returns the Gorgonia options for o followed by extra
func (o Options) solverOpts(extra ...G.SolverOpt) []G.SolverOpt {
	opts := append([]G.SolverOpt{
		G.WithLearnRate(o.StepSize),
		G.WithBatchSize(float64(o.Batch)),
	}, extra...)
	if o.Clip > 0 {
		opts = append(opts, G.WithClip(o.Clip))
	}
	return opts
}

// VanillaConfig describes plain stochastic gradient descent
type VanillaConfig struct {
	Options
}

// NewVanilla returns a new Vanilla Solver
func NewVanilla(stepSize float64, batchSize int, clip float64) (*Solver,
	error) {
	return New(VanillaConfig{Options{stepSize, batchSize, clip}})
}

func (v VanillaConfig) Type() Type      { return Vanilla }
func (v VanillaConfig) Validate() error { return v.validate() }

func (v VanillaConfig) Create() G.Solver {
	return G.NewVanillaSolver(v.solverOpts()...)
}
