package globalstate

import (
	"fmt"

	"github.com/samuelfneumann/worldmodel/dist"
	"github.com/samuelfneumann/worldmodel/network"
	"github.com/samuelfneumann/worldmodel/utils/tensorutils"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Cell is a single transition of a global state model:
//
//	m'   = GRU(ELU(W [embed, a]), m)
//	post = MLP(m')
type Cell struct {
	g      *G.ExprGraph
	name   string
	config Config

	eaMLP   *network.MLP
	gru     *network.GRUCell
	postMLP *network.MLP

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

	eaMLP, err := network.NewDense(g, name+"_ea", c.EmbedDim+c.ActionDim,
		c.HiddenDim, network.ELU(), init)
	if err != nil {
		return nil, fmt.Errorf("newCell: %v", err)
	}

	gru, err := network.NewGRUCell(g, name+"_gru", c.HiddenDim, c.MemDim,
		init, recurrentInitWFn.InitWFn())
	if err != nil {
		return nil, fmt.Errorf("newCell: %v", err)
	}

	postMLP, err := newPostMLP(g, name+"_post", c, init)
	if err != nil {
		return nil, fmt.Errorf("newCell: %v", err)
	}

	return &Cell{
		g:       g,
		name:    name,
		config:  c,
		eaMLP:   eaMLP,
		gru:     gru,
		postMLP: postMLP,
	}, nil
}

// newPostMLP returns the MLP mapping the memory to the raw parameters
// of the posterior
func newPostMLP(g *G.ExprGraph, name string, c Config,
	init G.InitWFn) (*network.MLP, error) {
	return network.NewMLP(
		g,
		name,
		c.MemDim,
		[]int{c.HiddenDim, 2 * c.StochDim},
		[]bool{true, true},
		[]*network.Activation{network.ELU(), network.Identity()},
		init,
	)
}

// Fwd adds one transition of the cell to the graph, returning the next
// memory of shape (B, M) and the posterior of shape (B, 2S). The
// inputs have shapes:
//
//	embed:   (B, E)
//	action:  (B, A)
//	reset:   (B), 1 where the memory should be reset and 0 elsewhere
//	inState: (B, M)
func (c *Cell) Fwd(embed, action, reset, inState *G.Node) (*G.Node,
	*G.Node, error) {
	if inState == nil || !inState.IsMatrix() {
		return nil, nil, dist.CheckShape("fwd", inState, -1, c.config.MemDim)
	}
	b := inState.Shape()[0]
	if err := dist.CheckShape("fwd", embed, b, c.config.EmbedDim); err != nil {
		return nil, nil, err
	}
	if err := dist.CheckShape("fwd", action, b, c.config.ActionDim); err != nil {
		return nil, nil, err
	}
	if err := dist.CheckShape("fwd", reset, b); err != nil {
		return nil, nil, err
	}
	if err := dist.CheckShape("fwd", inState, b, c.config.MemDim); err != nil {
		return nil, nil, err
	}

	mem, err := dist.Reset(inState, reset)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: could not reset memory: %w", err)
	}

	ea, err := dist.Cat(embed, action)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: %w", err)
	}
	if ea, err = c.eaMLP.Fwd(ea); err != nil {
		return nil, nil, fmt.Errorf("fwd: %v", err)
	}
	state, err := c.gru.Fwd(ea, mem)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: %v", err)
	}

	post, err := c.postMLP.Fwd(state)
	if err != nil {
		return nil, nil, fmt.Errorf("fwd: %v", err)
	}
	if post, err = dist.ToMeanStd(post, c.config.MinStd); err != nil {
		return nil, nil, fmt.Errorf("fwd: %w", err)
	}

	return state, post, nil
}

// InitState returns the initial memory and posterior for a batch of
// the given size. The memory is all zeroes and the posterior is the
// posterior the cell computes from the zero memory. Both are host
// tensors, detached from the graph of the cell.
func (c *Cell) InitState(batch int) (*tensor.Dense, *tensor.Dense, error) {
	state := dist.Zeros(batch, c.config.MemDim)

	// Evaluate a copy of the posterior MLP on the zero memory
	g := G.NewGraph()
	postMLP, err := newPostMLP(g, c.name+"_init_post", c.config, G.Zeroes())
	if err != nil {
		return nil, nil, fmt.Errorf("initState: %v", err)
	}
	if err := postMLP.Set(c.postMLP); err != nil {
		return nil, nil, fmt.Errorf("initState: %v", err)
	}

	zeros := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, c.config.MemDim),
		G.WithName("init_state"), G.WithValue(state.Clone()))
	post, err := postMLP.Fwd(zeros)
	if err != nil {
		return nil, nil, fmt.Errorf("initState: %v", err)
	}
	if post, err = dist.ToMeanStd(post, c.config.MinStd); err != nil {
		return nil, nil, fmt.Errorf("initState: %w", err)
	}

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, nil, fmt.Errorf("initState: %v", err)
	}

	return state, tensorutils.Clone(post.Value()), nil
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
		c.learnables = network.Learnables(c.eaMLP, c.gru, c.postMLP)
	}
	return c.learnables
}

// Model returns the learnable nodes of the cell with their gradients
func (c *Cell) Model() []G.ValueGrad {
	if c.model == nil {
		c.model = network.Model(c.eaMLP, c.gru, c.postMLP)
	}
	return c.model
}

// Set sets the weights of the cell to those of another NeuralNet with
// the same architecture
func (c *Cell) Set(source network.NeuralNet) error {
	return network.Set(c.Learnables(), source.Learnables())
}
