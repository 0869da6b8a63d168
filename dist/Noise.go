package dist

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"
)

// Noise draws standard normal noise for reparameterized sampling.
// Noise lives outside the computational graph: a graph built with
// DiagNormal.Rsample takes its noise as an input node, which is filled
// with values from a Noise before each run of the graph.
type Noise struct {
	normal distuv.Normal
}

// NewNoise returns a new standard normal noise source with the given
// seed
func NewNoise(seed uint64) *Noise {
	source := rand.NewSource(seed)
	return &Noise{
		normal: distuv.Normal{Mu: 0, Sigma: 1, Src: source},
	}
}

// Sample returns a new tensor of the given shape filled with draws
// from a standard normal
func (n *Noise) Sample(shape ...int) *tensor.Dense {
	t := tensor.New(tensor.WithShape(shape...), tensor.Of(tensor.Float64))
	n.Fill(t)
	return t
}

// Fill overwrites t with draws from a standard normal
func (n *Noise) Fill(t *tensor.Dense) {
	data := t.Data().([]float64)
	for i := range data {
		data[i] = n.normal.Rand()
	}
}

// Zeros returns a new tensor of the given shape filled with zeros. A
// reparameterized sample using zero noise is the mean of the
// distribution, which is useful for evaluation.
func Zeros(shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.Of(tensor.Float64))
}
