package globalstate

import (
	"fmt"

	"github.com/samuelfneumann/worldmodel/dist"
	G "gorgonia.org/gorgonia"
)

// Output holds the outputs of a Core unrolled over T steps
type Output struct {
	// Sample is a single sample from the posterior of the last step
	Sample *G.Node // (B, S)

	States *G.Node // (T, B, M)
	Posts  *G.Node // (T, B, 2S)

	// Memory and posterior carried into the window
	InState *G.Node // (B, M)
	InPost  *G.Node // (B, 2S)

	// Memory and posterior after the last step. These should only be
	// read out of the graph and fed back as the InState and InPost of
	// the next window, so that no gradient flows between windows.
	OutState *G.Node // (B, M)
	OutPost  *G.Node // (B, 2S)

	posts G.Nodes // posterior of each step
}

// Core unrolls a Cell over a sequence, threading the memory output by
// step t into step t+1. All steps share the weights of the same Cell.
type Core struct {
	*Cell
}

// NewCore adds the weights of a new Core to the graph g
func NewCore(g *G.ExprGraph, name string, c Config) (*Core, error) {
	cell, err := NewCell(g, name, c)
	if err != nil {
		return nil, fmt.Errorf("newCore: %v", err)
	}
	return &Core{Cell: cell}, nil
}

// Fwd adds the unrolled core to the graph. The inputs have shapes:
//
//	embed:   (T, B, E)
//	action:  (T, B, A)
//	reset:   (T, B)
//	inState: (B, M)
//	inPost:  (B, 2S)
//	noise:   (B, S), standard normal noise for the final sample
func (c *Core) Fwd(embed, action, reset, inState, inPost,
	noise *G.Node) (Output, error) {
	if embed == nil || embed.Dims() != 3 {
		return Output{}, dist.CheckShape("fwd", embed, -1, -1,
			c.config.EmbedDim)
	}
	n, b := embed.Shape()[0], embed.Shape()[1]
	checks := []struct {
		node  *G.Node
		shape []int
	}{
		{embed, []int{n, b, c.config.EmbedDim}},
		{action, []int{n, b, c.config.ActionDim}},
		{reset, []int{n, b}},
		{inState, []int{b, c.config.MemDim}},
		{inPost, []int{b, 2 * c.config.StochDim}},
		{noise, []int{b, c.config.StochDim}},
	}
	for _, check := range checks {
		if err := dist.CheckShape("fwd", check.node, check.shape...); err != nil {
			return Output{}, err
		}
	}

	states := make(G.Nodes, n)
	posts := make(G.Nodes, n)

	state := inState
	for t := 0; t < n; t++ {
		inputs := make(G.Nodes, 3)
		for i, seq := range []*G.Node{embed, action, reset} {
			var err error
			if inputs[i], err = dist.Index(seq, t); err != nil {
				return Output{}, fmt.Errorf("fwd: step %v: %w", t, err)
			}
		}

		var err error
		state, posts[t], err = c.Cell.Fwd(inputs[0], inputs[1], inputs[2],
			state)
		if err != nil {
			return Output{}, fmt.Errorf("fwd: step %v: %w", t, err)
		}
		states[t] = state
	}

	final, err := dist.NewDiagNormal(posts[n-1])
	if err != nil {
		return Output{}, fmt.Errorf("fwd: %w", err)
	}
	sample, err := final.Rsample(noise)
	if err != nil {
		return Output{}, fmt.Errorf("fwd: %w", err)
	}

	out := Output{
		Sample:   sample,
		InState:  inState,
		InPost:   inPost,
		OutState: states[n-1],
		OutPost:  posts[n-1],
		posts:    posts,
	}
	if out.States, err = dist.Stack(states...); err != nil {
		return Output{}, fmt.Errorf("fwd: %w", err)
	}
	if out.Posts, err = dist.Stack(posts...); err != nil {
		return Output{}, fmt.Errorf("fwd: %w", err)
	}

	return out, nil
}

// Loss adds the KL divergence between the posteriors of consecutive
// steps to the graph, averaged over time and batch. The prior of step
// t is the posterior of step t-1, and the prior of the first step is
// the posterior carried into the window:
//
//	loss = mean_t KL(post[t] || post[t-1]),  post[-1] = InPost
func (c *Core) Loss(out Output) (*G.Node, error) {
	if len(out.posts) == 0 {
		return nil, fmt.Errorf("loss: output has no steps")
	}
	priors := append(G.Nodes{out.InPost}, out.posts[:len(out.posts)-1]...)
	stackedPriors, err := dist.Stack(priors...)
	if err != nil {
		return nil, fmt.Errorf("loss: %w", err)
	}

	post, err := dist.NewDiagNormal(out.Posts)
	if err != nil {
		return nil, fmt.Errorf("loss: %w", err)
	}
	prior, err := dist.NewDiagNormal(stackedPriors)
	if err != nil {
		return nil, fmt.Errorf("loss: %w", err)
	}

	kl, err := dist.KL(post, prior)
	if err != nil {
		return nil, fmt.Errorf("loss: %w", err)
	}
	return G.Mean(kl)
}
