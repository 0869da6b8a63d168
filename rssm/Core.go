package rssm

import (
	"fmt"

	"github.com/samuelfneumann/worldmodel/dist"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Output holds the outputs of a Core unrolled over T steps
type Output struct {
	Priors  *G.Node // (T, B, 2S)
	Posts   *G.Node // (T, B, 2S)
	Samples *G.Node // (T, B, S)

	// States holds the belief state after every step, with shape
	// (T, B, D+S). It is nil for FinalState cores.
	States *G.Node

	Final *G.Node // (B, D+S)

	steps G.Nodes // belief state after each step
}

// Core unrolls a Cell over a sequence, threading the belief state
// output by step t into step t+1. All steps share the weights of the
// same Cell.
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
//	inState: (B, D+S)
//	noise:   (T, B, S)
//
// where action[t] is the action taken before observation t was
// observed and reset[t] is 1 if observation t starts a new episode.
func (c *Core) Fwd(embed, action, reset, inState, noise *G.Node) (Output,
	error) {
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
		{inState, []int{b, c.config.StateDim()}},
		{noise, []int{n, b, c.config.StochDim}},
	}
	for _, check := range checks {
		if err := dist.CheckShape("fwd", check.node, check.shape...); err != nil {
			return Output{}, err
		}
	}

	priors := make(G.Nodes, n)
	posts := make(G.Nodes, n)
	samples := make(G.Nodes, n)
	states := make(G.Nodes, n)

	state := inState
	for t := 0; t < n; t++ {
		inputs := make(G.Nodes, 4)
		for i, seq := range []*G.Node{embed, action, reset, noise} {
			var err error
			if inputs[i], err = dist.Index(seq, t); err != nil {
				return Output{}, fmt.Errorf("fwd: step %v: %w", t, err)
			}
		}

		step, err := c.Cell.Fwd(inputs[0], inputs[1], inputs[2], state,
			inputs[3])
		if err != nil {
			return Output{}, fmt.Errorf("fwd: step %v: %w", t, err)
		}

		priors[t] = step.Prior
		posts[t] = step.Post
		samples[t] = step.Sample
		states[t] = step.State
		state = step.State
	}

	var out Output
	var err error
	if out.Priors, err = dist.Stack(priors...); err != nil {
		return Output{}, fmt.Errorf("fwd: %w", err)
	}
	if out.Posts, err = dist.Stack(posts...); err != nil {
		return Output{}, fmt.Errorf("fwd: %w", err)
	}
	if out.Samples, err = dist.Stack(samples...); err != nil {
		return Output{}, fmt.Errorf("fwd: %w", err)
	}
	if c.config.Variant == Trajectory {
		if out.States, err = dist.Stack(states...); err != nil {
			return Output{}, fmt.Errorf("fwd: %w", err)
		}
	}
	out.Final = state
	out.steps = states

	return out, nil
}

// Features adds the features of each step used by decoders to the
// graph. The features are the belief states (h, z) after every step,
// of shape (T, B, D+S), and are available for FinalState cores too.
func (c *Core) Features(out Output) (*G.Node, error) {
	if out.States != nil {
		return out.States, nil
	}
	if len(out.steps) == 0 {
		return nil, fmt.Errorf("features: output has no steps")
	}
	return dist.Stack(out.steps...)
}

// KLLoss adds the KL divergence KL(post || prior) of the unrolled core
// to the graph, averaged over time and batch
func (c *Core) KLLoss(out Output) (*G.Node, error) {
	post, err := dist.NewDiagNormal(out.Posts)
	if err != nil {
		return nil, fmt.Errorf("klLoss: %w", err)
	}
	prior, err := dist.NewDiagNormal(out.Priors)
	if err != nil {
		return nil, fmt.Errorf("klLoss: %w", err)
	}

	kl, err := dist.KL(post, prior)
	if err != nil {
		return nil, fmt.Errorf("klLoss: %w", err)
	}
	return G.Mean(kl)
}

// InitState returns the initial belief state for a batch of the given
// size, which is all zeroes
func (c *Core) InitState(batch int) *tensor.Dense {
	return dist.Zeros(batch, c.config.StateDim())
}
