package globalstate

import (
	"fmt"

	"github.com/samuelfneumann/worldmodel/dist"
	"github.com/samuelfneumann/worldmodel/utils/tensorutils"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Result holds the values computed by a run of a Model
type Result struct {
	Sample *tensor.Dense // (B, S)
	States *tensor.Dense // (T, B, M)
	Posts  *tensor.Dense // (T, B, 2S)

	// OutState and OutPost are copies of the memory and posterior after
	// the last step, detached from the graph so that they can be
	// carried into the next window.
	OutState *tensor.Dense // (B, M)
	OutPost  *tensor.Dense // (B, 2S)

	// Loss is the KL divergence between consecutive posteriors
	Loss float64
}

// Model runs a Core on fixed size windows of T steps of B sequences.
// A Model owns its own graph and tape machine.
type Model struct {
	*Core
	vm G.VM

	seqLen, batch int
	noise         *dist.Noise

	// Input nodes
	embed, action, reset, inState, inPost, noiseNode *G.Node

	out  Output
	loss *G.Node

	sampleVal, statesVal, postsVal, outStateVal, outPostVal, lossVal G.Value
}

// NewModel returns a new Model running windows of seqLen steps of
// batch sequences. The seed determines the noise used to sample the
// stochastic latent.
func NewModel(c Config, seqLen, batch int, seed uint64) (*Model, error) {
	if seqLen <= 0 || batch <= 0 {
		return nil, fmt.Errorf("newModel: sequence length (%v) and batch "+
			"size (%v) must be > 0", seqLen, batch)
	}

	g := G.NewGraph()
	core, err := NewCore(g, "globalstate", c)
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
		inState:   newInput("inState", batch, c.MemDim),
		inPost:    newInput("inPost", batch, 2*c.StochDim),
		noiseNode: newInput("noise", batch, c.StochDim),
	}

	m.out, err = core.Fwd(m.embed, m.action, m.reset, m.inState, m.inPost,
		m.noiseNode)
	if err != nil {
		return nil, fmt.Errorf("newModel: %v", err)
	}
	if m.loss, err = core.Loss(m.out); err != nil {
		return nil, fmt.Errorf("newModel: %v", err)
	}

	G.Read(m.out.Sample, &m.sampleVal)
	G.Read(m.out.States, &m.statesVal)
	G.Read(m.out.Posts, &m.postsVal)
	G.Read(m.out.OutState, &m.outStateVal)
	G.Read(m.out.OutPost, &m.outPostVal)
	G.Read(m.loss, &m.lossVal)

	m.vm = G.NewTapeMachine(g)
	return m, nil
}

// Run runs the model on a window. The shapes of the inputs are those
// documented by Core.Fwd, with T and B fixed by the Model.
func (m *Model) Run(embed, action, reset, inState,
	inPost *tensor.Dense) (Result, error) {
	inputs := []struct {
		node  *G.Node
		value *tensor.Dense
	}{
		{m.embed, embed},
		{m.action, action},
		{m.reset, reset},
		{m.inState, inState},
		{m.inPost, inPost},
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

	return Result{
		Sample:   tensorutils.Clone(m.sampleVal),
		States:   tensorutils.Clone(m.statesVal),
		Posts:    tensorutils.Clone(m.postsVal),
		OutState: tensorutils.Clone(m.outStateVal),
		OutPost:  tensorutils.Clone(m.outPostVal),
		Loss:     tensorutils.Scalar(m.lossVal),
	}, nil
}

// InitState returns the initial memory and posterior of the batch of
// sequences run by the model
func (m *Model) InitState() (*tensor.Dense, *tensor.Dense, error) {
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
