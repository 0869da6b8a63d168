package network

import (
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// newFCLayer adds the weights of a fully connected layer with the
// given number of inputs and outputs to the graph g. Weights are
// initialized with init and biases with zeroes. Node names are
// prefixed by name, which must be unique within g.
func newFCLayer(g *G.ExprGraph, name string, inputs, outputs int,
	bias bool, act *Activation, init G.InitWFn) *fcLayer {
	weights := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(inputs, outputs),
		G.WithName(name+"_W"),
		G.WithInit(init),
	)

	var b *G.Node
	if bias {
		b = G.NewMatrix(
			g,
			tensor.Float64,
			G.WithShape(1, outputs),
			G.WithName(name+"_b"),
			G.WithInit(G.Zeroes()),
		)
	}

	return &fcLayer{weights: weights, bias: b, act: act}
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	if f.Weights() != nil {
		x = G.Must(G.Mul(x, f.Weights()))
	}
	if f.Bias() != nil {
		// Broadcast the bias weights to all samples along the batch
		// dimension
		x = G.Must(G.BroadcastAdd(x, f.Bias(), nil, []byte{0}))
	}
	if f.Activation().IsNil() {
		return x, nil
	}
	return f.Activation().fwd(x)
}

// learnables returns the learnable nodes of the layer
func (f *fcLayer) learnables() G.Nodes {
	learnables := G.Nodes{f.weights}
	if f.bias != nil {
		learnables = append(learnables, f.bias)
	}
	return learnables
}

func (f *fcLayer) Activation() *Activation {
	return f.act
}

func (f *fcLayer) Bias() *G.Node {
	return f.bias
}

func (f *fcLayer) Weights() *G.Node {
	return f.weights
}
