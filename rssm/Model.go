package rssm

import (
	"fmt"

	"github.com/samuelfneumann/worldmodel/dist"
	"github.com/samuelfneumann/worldmodel/utils/tensorutils"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Result holds the values computed by a run of a Model
type Result struct {
	Priors  *tensor.Dense // (T, B, 2S)
	Posts   *tensor.Dense // (T, B, 2S)
	Samples *tensor.Dense // (T, B, S)
	States  *tensor.Dense // (T, B, D+S), nil for FinalState models

	// Final is the belief state after the last step. It is a copy that
	// is detached from the graph, so it can be passed as the initial
	// state of the next window.
	Final *tensor.Dense // (B, D+S)
}

// Model runs a Core on fixed size windows of T steps of B sequences.
// A Model owns its own graph and tape machine, so that a window can be
// run by setting the inputs of the graph and running the machine.
type Model struct {
	*Core
	vm G.VM

	seqLen, batch int
	noise         *dist.Noise

	// Input nodes
	embed, action, reset, inState, noiseNode *G.Node

	out Output

	priorsVal, postsVal, samplesVal, statesVal, finalVal G.Value
}

// NewModel returns a new Model running windows of seqLen steps of
// batch sequences. The seed determines the noise used to sample the
// stochastic state.
func NewModel(c Config, seqLen, batch int, seed uint64) (*Model, error) {
	if seqLen <= 0 || batch <= 0 {
		return nil, fmt.Errorf("newModel: sequence length (%v) and batch "+
			"size (%v) must be > 0", seqLen, batch)
	}

	g := G.NewGraph()
	core, err := NewCore(g, "rssm", c)
	if err != nil {
		return nil, fmt.Errorf("newModel: %v", err)
	}

	newInput := func(name string, shape ...int) *G.Node {
		return G.NewTensor(g, tensor.Float64, len(shape),
			G.WithShape(shape...), G.WithName(name))
	}
	m := &Model{
		Core:      core,
		seqLen:    seqLen,
		batch:     batch,
		noise:     dist.NewNoise(seed),
		embed:     newInput("embed", seqLen, batch, c.EmbedDim),
		action:    newInput("action", seqLen, batch, c.ActionDim),
		reset:     newInput("reset", seqLen, batch),
		inState:   newInput("inState", batch, c.StateDim()),
		noiseNode: newInput("noise", seqLen, batch, c.StochDim),
	}

	m.out, err = core.Fwd(m.embed, m.action, m.reset, m.inState, m.noiseNode)
	if err != nil {
		return nil, fmt.Errorf("newModel: %v", err)
	}

	G.Read(m.out.Priors, &m.priorsVal)
	G.Read(m.out.Posts, &m.postsVal)
	G.Read(m.out.Samples, &m.samplesVal)
	G.Read(m.out.Final, &m.finalVal)
	if m.out.States != nil {
		G.Read(m.out.States, &m.statesVal)
	}

	m.vm = G.NewTapeMachine(g)
	return m, nil
}

// Run runs the model on a window. The shapes of the inputs are those
// documented by Core.Fwd, with T and B fixed by the Model.
func (m *Model) Run(embed, action, reset, inState *tensor.Dense) (Result,
	error) {
	inputs := []struct {
		node  *G.Node
		value *tensor.Dense
	}{
		{m.embed, embed},
		{m.action, action},
		{m.reset, reset},
		{m.inState, inState},
		{m.noiseNode, m.noise.Sample(m.noiseNode.Shape()...)},
	}
	for _, in := range inputs {
		if in.value == nil || !tensorutils.SameShape(in.value.Shape(),
			in.node.Shape()) {
			var have tensor.Shape
			if in.value != nil {
				have = in.value.Shape()
			}
			return Result{}, &dist.ShapeError{
				Op:   "run",
				Want: in.node.Shape().Clone(),
				Have: have,
				Err:  fmt.Errorf("invalid value for %v", in.node.Name()),
			}
		}
		if err := G.Let(in.node, in.value); err != nil {
			return Result{}, fmt.Errorf("run: could not set %v: %v",
				in.node.Name(), err)
		}
	}

	defer m.vm.Reset()
	if err := m.vm.RunAll(); err != nil {
		return Result{}, fmt.Errorf("run: %v", err)
	}

	result := Result{
		Priors:  tensorutils.Clone(m.priorsVal),
		Posts:   tensorutils.Clone(m.postsVal),
		Samples: tensorutils.Clone(m.samplesVal),
		Final:   tensorutils.Clone(m.finalVal),
	}
	if m.statesVal != nil {
		result.States = tensorutils.Clone(m.statesVal)
	}
	return result, nil
}

// InitState returns the initial belief state of the batch of sequences
// run by the model
func (m *Model) InitState() *tensor.Dense {
	return m.Core.InitState(m.batch)
}

// SeqLen returns the number of steps in a window
func (m *Model) SeqLen() int {
	return m.seqLen
}

// Batch returns the number of sequences in a window
func (m *Model) Batch() int {
	return m.batch
}

// Close releases the resources of the tape machine of the model
func (m *Model) Close() error {
	return m.vm.Close()
}
