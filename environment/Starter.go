package environment

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Choice is a Starter that samples each starting state from a fixed
// set of candidate states
type Choice struct {
	candidates []*mat.VecDense
	dist       distuv.Categorical
}

// NewChoice returns a Starter sampling candidates[i] with probability
// proportional to weights[i]. If weights is nil, every candidate is
// equally likely. All candidates must have the same length.
func NewChoice(candidates []*mat.VecDense, weights []float64,
	seed uint64) (*Choice, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("newChoice: no candidate states")
	}
	if weights == nil {
		weights = make([]float64, len(candidates))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != len(candidates) {
		return nil, fmt.Errorf("newChoice: %v weights for %v candidates",
			len(weights), len(candidates))
	}

	total := 0.0
	for i, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("newChoice: negative weight %v", w)
		}
		if candidates[i].Len() != candidates[0].Len() {
			return nil, fmt.Errorf("newChoice: candidate %v has length %v, "+
				"want %v", i, candidates[i].Len(), candidates[0].Len())
		}
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("newChoice: weights sum to zero")
	}

	return &Choice{
		candidates: candidates,
		dist:       distuv.NewCategorical(weights, rand.NewSource(seed)),
	}, nil
}

// Start returns a copy of a sampled candidate state
func (c *Choice) Start() *mat.VecDense {
	start := c.candidates[int(c.dist.Rand())]
	return mat.VecDenseCopyOf(start)
}
