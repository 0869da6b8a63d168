package rssm

import (
	"fmt"

	"github.com/samuelfneumann/worldmodel/dist"
	"github.com/samuelfneumann/worldmodel/network"
	G "gorgonia.org/gorgonia"
)

// Step holds the outputs of a single transition of a Cell
type Step struct {
	Prior  *G.Node // (B, 2S)
	Post   *G.Node // (B, 2S)
	Sample *G.Node // (B, S)
	State  *G.Node // (B, D+S)
}

// Cell is a single transition of an RSSM. Given the previous belief
// state (h, z), the previous action, and the embedding of the current
// observation, the cell computes:
//
//	h'    = GRU(ELU(W [z, a]), h)
//	prior = MLP(h')
//	post  = MLP([h', embed])
//	z'    ~ post
//
// and the next belief state is (h', z'). Since the prior and h' never
// see the embedding, the cell can be rolled forward without
// observations.
type Cell struct {
	g      *G.ExprGraph
	name   string
	config Config

	zaMLP    *network.MLP
	gru      *network.GRUCell
	priorMLP *network.MLP
	postMLP  *network.MLP

	learnables G.Nodes
	model      []G.ValueGrad
}

// NewCell adds the weights of a new Cell to the graph g
func NewCell(g *G.ExprGraph, name string, c Config) (*Cell, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newCell: %v", err)
	}
	initWFn, recurrentInitWFn, err := c.initWFns()
	if err != nil {
		return nil, fmt.Errorf("newCell: could not create initializers: %v",
			err)
	}
	init := initWFn.InitWFn()

	zaMLP, err := network.NewDense(g, name+"_za", c.StochDim+c.ActionDim,
		c.HiddenDim, network.ELU(), init)
	if err != nil {
		return nil, fmt.Errorf("newCell: %v", err)
	}

	gru, err := network.NewGRUCell(g, name+"_gru", c.HiddenDim, c.DeterDim,
		init, recurrentInitWFn.InitWFn())
	if err != nil {
		return nil, fmt.Errorf("newCell: %v", err)
	}

	priorMLP, err := newDistMLP(g, name+"_prior", c.DeterDim, c, init)
	if err != nil {
		return nil, fmt.Errorf("newCell: %v", err)
	}

	postMLP, err := newDistMLP(g, name+"_post", c.DeterDim+c.EmbedDim, c,
		init)
	if err != nil {
		return nil, fmt.Errorf("newCell: %v", err)
	}

	return &Cell{
		g:        g,
		name:     name,
		config:   c,
		zaMLP:    zaMLP,
		gru:      gru,
		priorMLP: priorMLP,
		postMLP:  postMLP,
	}, nil
}

// newDistMLP returns an MLP with one hidden ELU layer that outputs the
// raw parameters of a distribution over the stochastic state
func newDistMLP(g *G.ExprGraph, name string, features int, c Config,
	init G.InitWFn) (*network.MLP, error) {
	return network.NewMLP(
		g,
		name,
		features,
		[]int{c.HiddenDim, 2 * c.StochDim},
		[]bool{true, true},
		[]*network.Activation{network.ELU(), network.Identity()},
		init,
	)
}

// Fwd adds one transition of the cell to the graph. The inputs have
// shapes:
//
//	embed:   (B, E)
//	action:  (B, A)
//	reset:   (B), 1 where the state should be reset and 0 elsewhere
//	inState: (B, D+S)
//	noise:   (B, S), standard normal noise for sampling z
//
// Rows of inState whose reset flag is 1 are zeroed before they are
// used.
func (c *Cell) Fwd(embed, action, reset, inState, noise *G.Node) (Step,
	error) {
	if inState == nil || !inState.IsMatrix() {
		return Step{}, dist.CheckShape("fwd", inState, -1, c.config.StateDim())
	}
	b := inState.Shape()[0]
	checks := []struct {
		node  *G.Node
		shape []int
	}{
		{embed, []int{b, c.config.EmbedDim}},
		{action, []int{b, c.config.ActionDim}},
		{reset, []int{b}},
		{inState, []int{b, c.config.StateDim()}},
		{noise, []int{b, c.config.StochDim}},
	}
	for _, check := range checks {
		if err := dist.CheckShape("fwd", check.node, check.shape...); err != nil {
			return Step{}, err
		}
	}

	state, err := dist.Reset(inState, reset)
	if err != nil {
		return Step{}, fmt.Errorf("fwd: could not reset state: %w", err)
	}
	parts, err := dist.SplitSizes(state, c.config.DeterDim, c.config.StochDim)
	if err != nil {
		return Step{}, fmt.Errorf("fwd: %w", err)
	}
	inH, inZ := parts[0], parts[1]

	// Deterministic transition
	za, err := dist.Cat(inZ, action)
	if err != nil {
		return Step{}, fmt.Errorf("fwd: %w", err)
	}
	if za, err = c.zaMLP.Fwd(za); err != nil {
		return Step{}, fmt.Errorf("fwd: %v", err)
	}
	h, err := c.gru.Fwd(za, inH)
	if err != nil {
		return Step{}, fmt.Errorf("fwd: %v", err)
	}

	// Prior and posterior over the stochastic state
	prior, err := c.priorMLP.Fwd(h)
	if err != nil {
		return Step{}, fmt.Errorf("fwd: %v", err)
	}
	if prior, err = dist.ToMeanStd(prior, c.config.MinStd); err != nil {
		return Step{}, fmt.Errorf("fwd: %w", err)
	}

	post, err := dist.Cat(h, embed)
	if err != nil {
		return Step{}, fmt.Errorf("fwd: %w", err)
	}
	if post, err = c.postMLP.Fwd(post); err != nil {
		return Step{}, fmt.Errorf("fwd: %v", err)
	}
	if post, err = dist.ToMeanStd(post, c.config.MinStd); err != nil {
		return Step{}, fmt.Errorf("fwd: %w", err)
	}

	// Reparameterized sample from the posterior
	posterior, err := dist.NewDiagNormal(post)
	if err != nil {
		return Step{}, fmt.Errorf("fwd: %w", err)
	}
	sample, err := posterior.Rsample(noise)
	if err != nil {
		return Step{}, fmt.Errorf("fwd: %w", err)
	}

	next, err := dist.Cat(h, sample)
	if err != nil {
		return Step{}, fmt.Errorf("fwd: %w", err)
	}

	return Step{Prior: prior, Post: post, Sample: sample, State: next}, nil
}

// Config returns the configuration of the cell
func (c *Cell) Config() Config {
	return c.config
}

// Graph returns the computational graph of the cell
func (c *Cell) Graph() *G.ExprGraph {
	return c.g
}

// Learnables returns the learnable nodes of the cell
func (c *Cell) Learnables() G.Nodes {
	if c.learnables == nil {
		c.learnables = network.Learnables(c.zaMLP, c.gru, c.priorMLP,
			c.postMLP)
	}
	return c.learnables
}

// Model returns the learnable nodes of the cell with their gradients
func (c *Cell) Model() []G.ValueGrad {
	if c.model == nil {
		c.model = network.Model(c.zaMLP, c.gru, c.priorMLP, c.postMLP)
	}
	return c.model
}

// Set sets the weights of the cell to those of another NeuralNet with
// the same architecture
func (c *Cell) Set(source network.NeuralNet) error {
	return network.Set(c.Learnables(), source.Learnables())
}
