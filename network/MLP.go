package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// MLP implements a multi-layered perceptron whose weights live on a
// computational graph. Unlike a network with a fixed input node, the
// forward pass of an MLP can be added to its graph any number of times
// through Fwd, with every forward pass sharing the same weights. This
// is what allows a recurrent cell to apply the same MLP at each step
// of an unrolled sequence.
//
// For index i, hiddenSizes[i] is the number of nodes in layer i;
// biases[i] is true if layer i has a bias unit; and activations[i] is
// the activation function of layer i. No final layer is added, so
// the last entry of hiddenSizes is the output size of the MLP.
type MLP struct {
	g      *G.ExprGraph
	name   string
	layers []*fcLayer

	numInputs  int
	numOutputs int

	hiddenSizes []int
	biases      []bool
	activations []*Activation

	learnables G.Nodes
	model      []G.ValueGrad
}

// NewMLP adds the weights of a new MLP to the graph g. The name of
// the MLP prefixes the names of all its weights and must be unique
// within g. The parameter init determines the weight initialization
// scheme.
func NewMLP(g *G.ExprGraph, name string, features int, hiddenSizes []int,
	biases []bool, activations []*Activation, init G.InitWFn) (*MLP, error) {
	if len(hiddenSizes) == 0 {
		return nil, fmt.Errorf("newMLP: %v must have at least one layer", name)
	}

	// Ensure we have one activation per layer
	if len(hiddenSizes) != len(activations) {
		msg := "newMLP: invalid number of activations" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}

	// Ensure one bias bool per layer
	if len(hiddenSizes) != len(biases) {
		msg := "newMLP: invalid number of biases\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}

	if features <= 0 {
		return nil, fmt.Errorf("newMLP: features must be > 0")
	}

	layers := make([]*fcLayer, len(hiddenSizes))
	inputs := features
	for i, size := range hiddenSizes {
		if size <= 0 {
			return nil, fmt.Errorf("newMLP: layer %v must have > 0 units", i)
		}
		layerName := fmt.Sprintf("%v_L%d", name, i)
		layers[i] = newFCLayer(g, layerName, inputs, size, biases[i],
			activations[i], init)
		inputs = size
	}

	return &MLP{
		g:           g,
		name:        name,
		layers:      layers,
		numInputs:   features,
		numOutputs:  hiddenSizes[len(hiddenSizes)-1],
		hiddenSizes: hiddenSizes,
		biases:      biases,
		activations: activations,
	}, nil
}

// NewDense returns a new MLP with a single layer with a bias unit
func NewDense(g *G.ExprGraph, name string, features, outputs int,
	act *Activation, init G.InitWFn) (*MLP, error) {
	return NewMLP(g, name, features, []int{outputs}, []bool{true},
		[]*Activation{act}, init)
}

// Fwd adds the forward pass of the MLP on the input node to the
// computational graph. The input must be a matrix whose rows are
// samples in a batch.
func (m *MLP) Fwd(input *G.Node) (*G.Node, error) {
	if !input.IsMatrix() {
		return nil, fmt.Errorf("fwd: %v input must be a matrix, have "+
			"shape %v", m.name, input.Shape())
	}
	if features := input.Shape()[1]; features != m.numInputs {
		return nil, fmt.Errorf("fwd: invalid shape for input to %v:"+
			" \n\twant(%v) \n\thave(%v)", m.name, m.numInputs, features)
	}

	pred := input
	var err error
	for i, l := range m.layers {
		if pred, err = l.fwd(pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %v"
			return nil, fmt.Errorf(msg, i, err)
		}
	}
	return pred, nil
}

// Graph returns the computational graph of the MLP.
func (m *MLP) Graph() *G.ExprGraph {
	return m.g
}

// Features returns the number of features the MLP takes as input
func (m *MLP) Features() int {
	return m.numInputs
}

// Outputs returns the number of outputs from the MLP
func (m *MLP) Outputs() int {
	return m.numOutputs
}

// Learnables returns the learnable nodes in the MLP
func (m *MLP) Learnables() G.Nodes {
	// Lazy instantiation
	if m.learnables == nil {
		learnables := make(G.Nodes, 0, 2*len(m.layers))
		for i := range m.layers {
			learnables = append(learnables, m.layers[i].learnables()...)
		}
		m.learnables = learnables
	}
	return m.learnables
}

// Model returns the learnables nodes with their gradients.
func (m *MLP) Model() []G.ValueGrad {
	// Lazy instantiation
	if m.model == nil {
		m.model = model(m.Learnables())
	}
	return m.model
}

// Set sets the weights of the MLP to be equal to the weights of
// another NeuralNet with the same architecture
func (m *MLP) Set(source NeuralNet) error {
	return Set(m.Learnables(), source.Learnables())
}
