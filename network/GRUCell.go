package network

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// GRUCell implements a single step of a gated recurrent unit:
//
//	r  = σ(x Wir + bir + h Whr + bhr)
//	z  = σ(x Wiz + biz + h Whz + bhz)
//	n  = tanh(x Win + bin + r ⊙ (h Whn + bhn))
//	h' = (1 - z) ⊙ n + z ⊙ h
//
// where x is the input, h the previous hidden state, r the reset gate,
// z the update gate, and n the candidate state.
type GRUCell struct {
	g      *G.ExprGraph
	name   string
	inputs int
	hidden int

	// Input to hidden layers for the reset, update, and candidate gates
	ir, iz, in *fcLayer

	// Hidden to hidden layers for the reset, update, and candidate gates
	hr, hz, hn *fcLayer

	learnables G.Nodes
	model      []G.ValueGrad
}

// NewGRUCell adds the weights of a new GRUCell to the graph g. Input
// to hidden weights are initialized with init, hidden to hidden
// weights with recurrentInit, and all biases with zeroes.
func NewGRUCell(g *G.ExprGraph, name string, inputs, hidden int,
	init, recurrentInit G.InitWFn) (*GRUCell, error) {
	if inputs <= 0 || hidden <= 0 {
		return nil, fmt.Errorf("newGRUCell: inputs (%v) and hidden (%v) "+
			"must be > 0", inputs, hidden)
	}

	layer := func(gate string, in int, init G.InitWFn) *fcLayer {
		return newFCLayer(g, name+"_"+gate, in, hidden, true, Nil(), init)
	}

	return &GRUCell{
		g:      g,
		name:   name,
		inputs: inputs,
		hidden: hidden,

		ir: layer("ir", inputs, init),
		iz: layer("iz", inputs, init),
		in: layer("in", inputs, init),

		hr: layer("hr", hidden, recurrentInit),
		hz: layer("hz", hidden, recurrentInit),
		hn: layer("hn", hidden, recurrentInit),
	}, nil
}

// Fwd adds a single step of the GRUCell to the computational graph,
// taking input x of shape (batch, inputs) and hidden state h of shape
// (batch, hidden) to the next hidden state of shape (batch, hidden).
func (c *GRUCell) Fwd(x, h *G.Node) (*G.Node, error) {
	if !x.IsMatrix() || x.Shape()[1] != c.inputs {
		return nil, fmt.Errorf("fwd: invalid input shape for %v "+
			"\n\twant(batch, %v) \n\thave(%v)", c.name, c.inputs, x.Shape())
	}
	if !h.IsMatrix() || h.Shape()[1] != c.hidden {
		return nil, fmt.Errorf("fwd: invalid hidden shape for %v "+
			"\n\twant(batch, %v) \n\thave(%v)", c.name, c.hidden, h.Shape())
	}

	gate := func(input, hidden *fcLayer) (*G.Node, error) {
		xi, err := input.fwd(x)
		if err != nil {
			return nil, err
		}
		hi, err := hidden.fwd(h)
		if err != nil {
			return nil, err
		}
		return G.Sigmoid(G.Must(G.Add(xi, hi)))
	}

	r, err := gate(c.ir, c.hr)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not compute reset gate: %v", err)
	}
	z, err := gate(c.iz, c.hz)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not compute update gate: %v", err)
	}

	xn, err := c.in.fwd(x)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not compute candidate: %v", err)
	}
	hn, err := c.hn.fwd(h)
	if err != nil {
		return nil, fmt.Errorf("fwd: could not compute candidate: %v", err)
	}
	n := G.Must(G.HadamardProd(r, hn))
	n = G.Must(G.Tanh(G.Must(G.Add(xn, n))))

	// h' = n + z ⊙ (h - n)
	next := G.Must(G.Sub(h, n))
	next = G.Must(G.HadamardProd(z, next))
	return G.Add(n, next)
}

// Graph returns the computational graph of the GRUCell
func (c *GRUCell) Graph() *G.ExprGraph {
	return c.g
}

// Hidden returns the size of the hidden state
func (c *GRUCell) Hidden() int {
	return c.hidden
}

// Learnables returns the learnable nodes of the GRUCell
func (c *GRUCell) Learnables() G.Nodes {
	if c.learnables == nil {
		for _, l := range []*fcLayer{c.ir, c.iz, c.in, c.hr, c.hz, c.hn} {
			c.learnables = append(c.learnables, l.learnables()...)
		}
	}
	return c.learnables
}

// Model returns the learnable nodes of the GRUCell with their gradients
func (c *GRUCell) Model() []G.ValueGrad {
	if c.model == nil {
		c.model = model(c.Learnables())
	}
	return c.model
}

// Set sets the weights of the GRUCell to the weights of another
// NeuralNet with the same architecture
func (c *GRUCell) Set(source NeuralNet) error {
	return Set(c.Learnables(), source.Learnables())
}
