// Package network implements the neural network building blocks of
// the world models: fully connected layers, MLPs, gated recurrent
// cells, and the encoders and decoders that map observations to and
// from embeddings.
package network

import (
	"fmt"

	"github.com/samuelfneumann/worldmodel/utils/tensorutils"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NeuralNet is a parameterized function on a computational graph. The
// forward pass of a NeuralNet is added to its graph by calling its
// Fwd method, and the parameters of the NeuralNet are shared between
// all forward passes.
type NeuralNet interface {
	Graph() *G.ExprGraph
	Learnables() G.Nodes
	Model() []G.ValueGrad
	Set(NeuralNet) error
}

// Set sets the values of the learnables dest to the values of the
// learnables source. Both slices must describe the same architecture.
func Set(dest, source G.Nodes) error {
	if len(dest) != len(source) {
		return fmt.Errorf("set: incompatible number of learnables "+
			"\n\twant(%v) \n\thave(%v)", len(dest), len(source))
	}
	for i := range dest {
		if !tensorutils.SameShape(dest[i].Shape(), source[i].Shape()) {
			return fmt.Errorf("set: incompatible shape for learnable %v "+
				"\n\twant(%v) \n\thave(%v)", i, dest[i].Shape(),
				source[i].Shape())
		}
		sourceValue := source[i].Value().(*tensor.Dense).Clone()
		if err := G.Let(dest[i], sourceValue); err != nil {
			return fmt.Errorf("set: could not set learnable %v: %v", i, err)
		}
	}
	return nil
}

// model returns learnables with their gradients
func model(learnables G.Nodes) []G.ValueGrad {
	model := make([]G.ValueGrad, 0, len(learnables))
	for _, node := range learnables {
		model = append(model, node)
	}
	return model
}

// Model returns the learnables of all nets as a single []G.ValueGrad,
// ready to be stepped by a G.Solver
func Model(nets ...NeuralNet) []G.ValueGrad {
	var all []G.ValueGrad
	for _, net := range nets {
		all = append(all, net.Model()...)
	}
	return all
}

// Learnables returns the learnables of all nets
func Learnables(nets ...NeuralNet) G.Nodes {
	var all G.Nodes
	for _, net := range nets {
		all = append(all, net.Learnables()...)
	}
	return all
}
