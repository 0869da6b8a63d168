package trainer

import (
	"encoding/gob"
	"fmt"
	"log"
	"os"

	"github.com/samuelfneumann/worldmodel/dist"
	"github.com/samuelfneumann/worldmodel/initwfn"
	"github.com/samuelfneumann/worldmodel/network"
	"github.com/samuelfneumann/worldmodel/rssm"
	"github.com/samuelfneumann/worldmodel/sequence"
	"github.com/samuelfneumann/worldmodel/utils/tensorutils"
	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Result holds the losses of a single training step
type Result struct {
	Loss  float64
	Recon float64
	KL    float64
}

// Trainer trains an encoder, RSSM core, and decoder on consecutive
// windows of sequences. The belief state after each window is carried
// into the next window without gradients flowing across windows.
//
// The encoder is a DenseEncoder unless the configuration describes a
// ConvEncoder.
type Trainer struct {
	config Config

	g       *G.ExprGraph
	encoder network.Encoder
	core    *rssm.Core
	decoder *network.DenseDecoder
	vm      G.VM
	solver  G.Solver
	noise   *dist.Noise

	// Input nodes
	obs, action, reset, inState, noiseNode, target *G.Node

	lossVal, reconVal, klVal, finalVal G.Value

	// Belief state carried between windows
	state *tensor.Dense
}

// New returns a new Trainer
func New(c Config, seed uint64) (*Trainer, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	init := c.InitWFn
	if init == nil {
		var err error
		if init, err = initwfn.NewGlorotU(1.0, seed); err != nil {
			return nil, fmt.Errorf("new: %v", err)
		}
	}

	g := G.NewGraph()
	encoder, err := newEncoder(g, c, init)
	if err != nil {
		return nil, fmt.Errorf("new: could not create encoder: %v", err)
	}
	core, err := rssm.NewCore(g, "rssm", c.Core)
	if err != nil {
		return nil, fmt.Errorf("new: could not create core: %v", err)
	}
	decoder, err := network.NewDenseDecoder(g, "decoder", c.Decoder,
		init.InitWFn())
	if err != nil {
		return nil, fmt.Errorf("new: could not create decoder: %v", err)
	}

	n, b := c.SeqLen, c.Batch
	obsShape := c.ObsShape()
	newInput := func(name string, shape ...int) *G.Node {
		return G.NewTensor(g, tensor.Float64, len(shape),
			G.WithShape(shape...), G.WithName(name))
	}
	t := &Trainer{
		config:    c,
		g:         g,
		encoder:   encoder,
		core:      core,
		decoder:   decoder,
		solver:    c.Solver.Solver,
		noise:     dist.NewNoise(seed),
		obs:       newInput("obs", n, b, obsShape[0], obsShape[1], obsShape[2]),
		action:    newInput("action", n, b, c.Core.ActionDim),
		reset:     newInput("reset", n, b),
		inState:   newInput("inState", b, c.Core.StateDim()),
		noiseNode: newInput("noise", n, b, c.Core.StochDim),
		target:    newInput("target", n, b, obsShape[1], obsShape[2]),
		state:     core.InitState(b),
	}

	loss, recon, kl, final, err := t.build()
	if err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	G.Read(loss, &t.lossVal)
	G.Read(recon, &t.reconVal)
	G.Read(kl, &t.klVal)
	G.Read(final, &t.finalVal)

	learnables := t.learnables()
	if _, err := G.Grad(loss, learnables...); err != nil {
		return nil, fmt.Errorf("new: could not compute gradient: %v", err)
	}
	t.vm = G.NewTapeMachine(g, G.BindDualValues(learnables...))

	return t, nil
}

// newEncoder adds the encoder described by c to the graph g
func newEncoder(g *G.ExprGraph, c Config, init *initwfn.InitWFn) (
	network.Encoder, error) {
	if c.ConvEncoder != nil {
		return network.NewConvEncoder(g, "encoder", *c.ConvEncoder,
			init.InitWFn())
	}
	return network.NewDenseEncoder(g, "encoder", c.Encoder, init.InitWFn())
}

// build adds the loss of the world model to the graph
func (t *Trainer) build() (loss, recon, kl, final *G.Node, err error) {
	// (T, B, C, H, W) => (TB, C, H, W) => (TB, E) => (T, B, E)
	obs, err := dist.Flatten(t.obs)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	embed, err := t.encoder.Fwd(obs)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("could not embed: %v", err)
	}
	if embed, err = dist.Unflatten(embed, t.config.SeqLen); err != nil {
		return nil, nil, nil, nil, err
	}

	out, err := t.core.Fwd(embed, t.action, t.reset, t.inState, t.noiseNode)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("could not unroll core: %w",
			err)
	}
	features, err := t.core.Features(out)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	logits, err := t.decoder.FwdSequence(features)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("could not decode: %v", err)
	}
	reconLoss, err := t.decoder.Loss(logits, t.target)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if recon, err = G.Mean(reconLoss); err != nil {
		return nil, nil, nil, nil, err
	}

	if kl, err = t.core.KLLoss(out); err != nil {
		return nil, nil, nil, nil, err
	}
	weighted := G.Must(G.Mul(kl, G.NewConstant(t.config.KLWeight)))
	loss = G.Must(G.Add(recon, weighted))

	return loss, recon, kl, out.Final, nil
}

// learnables returns the learnable nodes of the world model
func (t *Trainer) learnables() G.Nodes {
	return network.Learnables(t.encoder, t.core, t.decoder)
}

// Step takes a single gradient step on a window of sequences, which
// must have SeqLen steps of Batch sequences. The window must continue
// the sequences of the previous window, since the belief state after
// the previous window is used as the initial state.
//
// If the loss is NaN, the weights are not updated and the carried
// belief state is reset, so the next window starts from the initial
// state rather than from a state two windows old.
func (t *Trainer) Step(batch sequence.Batch) (Result, error) {
	if steps, size := batch.Dims(); steps != t.config.SeqLen ||
		size != t.config.Batch {
		return Result{}, &dist.ShapeError{
			Op:   "step",
			Want: tensor.Shape{t.config.SeqLen, t.config.Batch},
			Have: tensor.Shape{steps, size},
			Err:  fmt.Errorf("invalid window size"),
		}
	}

	target, err := network.Classes(batch.Obs)
	if err != nil {
		return Result{}, fmt.Errorf("step: %v", err)
	}

	inputs := []struct {
		node  *G.Node
		value *tensor.Dense
	}{
		{t.obs, batch.Obs},
		{t.action, batch.Action},
		{t.reset, batch.Reset},
		{t.inState, t.state},
		{t.noiseNode, t.noise.Sample(t.noiseNode.Shape()...)},
		{t.target, target},
	}
	for _, in := range inputs {
		if !tensorutils.SameShape(in.value.Shape(), in.node.Shape()) {
			return Result{}, &dist.ShapeError{
				Op:   "step",
				Want: in.node.Shape().Clone(),
				Have: in.value.Shape().Clone(),
				Err:  fmt.Errorf("invalid value for %v", in.node.Name()),
			}
		}
		if err := G.Let(in.node, in.value); err != nil {
			return Result{}, fmt.Errorf("step: could not set %v: %v",
				in.node.Name(), err)
		}
	}

	defer t.vm.Reset()
	if err := t.vm.RunAll(); err != nil {
		return Result{}, fmt.Errorf("step: %v", err)
	}

	result := Result{
		Loss:  tensorutils.Scalar(t.lossVal),
		Recon: tensorutils.Scalar(t.reconVal),
		KL:    tensorutils.Scalar(t.klVal),
	}
	if floats.HasNaN([]float64{result.Loss, result.Recon, result.KL}) {
		log.Printf("step: loss is NaN (recon = %v, kl = %v), skipping "+
			"update", result.Recon, result.KL)
		t.ResetState()
		return result, nil
	}

	if err := t.solver.Step(network.Model(t.encoder, t.core,
		t.decoder)); err != nil {
		return Result{}, fmt.Errorf("step: could not step solver: %v", err)
	}
	t.state = tensorutils.Clone(t.finalVal)

	return result, nil
}

// State returns the belief state that will be used as the initial
// state of the next window
func (t *Trainer) State() *tensor.Dense {
	return t.state
}

// ResetState sets the carried belief state back to the initial state,
// for example when the next window does not continue the sequences of
// the previous one
func (t *Trainer) ResetState() {
	t.state = t.core.InitState(t.config.Batch)
}

// Core returns the RSSM core being trained
func (t *Trainer) Core() *rssm.Core {
	return t.core
}

// Config returns the configuration of the trainer
func (t *Trainer) Config() Config {
	return t.config
}

// Save saves the weights of the encoder, core, and decoder to filename
func (t *Trainer) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save: could not open save file: %v", err)
	}
	defer file.Close()

	learnables := t.learnables()
	weights := make([]*tensor.Dense, len(learnables))
	for i, node := range learnables {
		weights[i] = node.Value().(*tensor.Dense)
	}

	if err := gob.NewEncoder(file).Encode(weights); err != nil {
		return fmt.Errorf("save: could not encode weights: %v", err)
	}
	return nil
}

// Load sets the weights of the encoder, core, and decoder to those
// saved in filename by Save
func (t *Trainer) Load(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("load: could not open weights file: %v", err)
	}
	defer file.Close()

	var weights []*tensor.Dense
	if err := gob.NewDecoder(file).Decode(&weights); err != nil {
		return fmt.Errorf("load: could not decode weights: %v", err)
	}

	learnables := t.learnables()
	if len(weights) != len(learnables) {
		return fmt.Errorf("load: incompatible number of weights "+
			"\n\twant(%v) \n\thave(%v)", len(learnables), len(weights))
	}
	for i, node := range learnables {
		if !tensorutils.SameShape(weights[i].Shape(), node.Shape()) {
			return fmt.Errorf("load: incompatible shape for %v "+
				"\n\twant(%v) \n\thave(%v)", node.Name(), node.Shape(),
				weights[i].Shape())
		}
		if err := G.Let(node, weights[i]); err != nil {
			return fmt.Errorf("load: could not set %v: %v", node.Name(), err)
		}
	}
	return nil
}

// Close releases the resources of the tape machine of the trainer
func (t *Trainer) Close() error {
	return t.vm.Close()
}
