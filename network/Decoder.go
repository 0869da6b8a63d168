package network

import (
	"fmt"

	"github.com/samuelfneumann/worldmodel/dist"
	"github.com/samuelfneumann/worldmodel/utils/op"
	"github.com/samuelfneumann/worldmodel/utils/tensorutils"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// DenseDecoderConfig describes a DenseDecoder. OutShape is the
// (C, H, W) shape of the reconstructed observation, where C is the
// number of classes of each of the H x W cells.
type DenseDecoderConfig struct {
	InDim        int
	OutShape     []int
	HiddenDim    int
	HiddenLayers int
	Activation   *Activation
}

// DefaultDenseDecoderConfig returns the configuration of a dense
// decoder with 2 hidden layers of 400 units reconstructing a 7 x 7 map
// of 33 classes.
func DefaultDenseDecoderConfig(inDim int) DenseDecoderConfig {
	return DenseDecoderConfig{
		InDim:        inDim,
		OutShape:     []int{33, 7, 7},
		HiddenDim:    400,
		HiddenLayers: 2,
		Activation:   ELU(),
	}
}

// DenseDecoder reconstructs a categorical map of shape (C, H, W) from
// a latent feature vector with an MLP. The output of the decoder holds
// the unnormalized log probabilities of each class in each cell.
type DenseDecoder struct {
	*MLP
	config DenseDecoderConfig
}

// NewDenseDecoder adds a new DenseDecoder to the graph g
func NewDenseDecoder(g *G.ExprGraph, name string, c DenseDecoderConfig,
	init G.InitWFn) (*DenseDecoder, error) {
	if len(c.OutShape) != 3 {
		return nil, fmt.Errorf("newDenseDecoder: output shape must be "+
			"(C, H, W), have %v", c.OutShape)
	}
	if c.HiddenLayers < 1 {
		return nil, fmt.Errorf("newDenseDecoder: must have at least 1 " +
			"hidden layer")
	}
	act := c.Activation
	if act == nil {
		act = ELU()
	}

	sizes := make([]int, 0, c.HiddenLayers+1)
	biases := make([]bool, 0, c.HiddenLayers+1)
	activations := make([]*Activation, 0, c.HiddenLayers+1)
	for i := 0; i < c.HiddenLayers; i++ {
		sizes = append(sizes, c.HiddenDim)
		biases = append(biases, true)
		activations = append(activations, act)
	}
	sizes = append(sizes, c.OutShape[0]*c.OutShape[1]*c.OutShape[2])
	biases = append(biases, true)
	activations = append(activations, Identity())

	mlp, err := NewMLP(g, name, c.InDim, sizes, biases, activations, init)
	if err != nil {
		return nil, fmt.Errorf("newDenseDecoder: %v", err)
	}
	return &DenseDecoder{MLP: mlp, config: c}, nil
}

// Fwd adds the forward pass of the decoder to the graph, mapping
// features of shape (N, InDim) to logits of shape (N, C, H, W)
func (d *DenseDecoder) Fwd(x *G.Node) (*G.Node, error) {
	out, err := d.MLP.Fwd(x)
	if err != nil {
		return nil, err
	}

	shape := append(tensor.Shape{x.Shape()[0]}, d.config.OutShape...)
	return G.Reshape(out, shape)
}

// FwdSequence adds the forward pass of the decoder on a sequence of
// features of shape (T, B, InDim) to the graph, returning logits of
// shape (T, B, C, H, W)
func (d *DenseDecoder) FwdSequence(x *G.Node) (*G.Node, error) {
	if x.Dims() != 3 {
		return nil, fmt.Errorf("fwdSequence: input must have shape "+
			"(T, B, %v), have %v", d.config.InDim, x.Shape())
	}
	n := x.Shape()[0]

	flat, err := dist.Flatten(x)
	if err != nil {
		return nil, fmt.Errorf("fwdSequence: %w", err)
	}
	out, err := d.Fwd(flat)
	if err != nil {
		return nil, fmt.Errorf("fwdSequence: %v", err)
	}
	return dist.Unflatten(out, n)
}

// Loss adds the reconstruction loss of the decoder to the graph. The
// output holds logits of shape (N, B, C, H, W), and target holds the
// index of the true class of each cell as a float with shape
// (N, B, H, W). The returned node has shape (N, B) and holds the
// categorical cross-entropy of each reconstruction summed over all
// H x W cells.
func (d *DenseDecoder) Loss(output, target *G.Node) (*G.Node, error) {
	return CategoricalLoss(output, target)
}

// CategoricalLoss computes the per-cell categorical cross-entropy of
// logits of shape (N, B, C, H, W) with respect to class indices of
// shape (N, B, H, W), summed over cells, resulting in shape (N, B).
func CategoricalLoss(output, target *G.Node) (*G.Node, error) {
	shape := output.Shape()
	if len(shape) != 5 {
		return nil, fmt.Errorf("categoricalLoss: output must have shape "+
			"(N, B, C, H, W), have %v", shape)
	}
	n, b, c, h, w := shape[0], shape[1], shape[2], shape[3], shape[4]
	if want := (tensor.Shape{n, b, h, w}); !tensorutils.SameShape(target.Shape(), want) {
		return nil, fmt.Errorf("categoricalLoss: target must have shape "+
			"%v, have %v", want, target.Shape())
	}

	// (N, B, C, H, W) => (NB, C, HW)
	logits, err := G.Reshape(output, tensor.Shape{n * b, c, h * w})
	if err != nil {
		return nil, fmt.Errorf("categoricalLoss: %v", err)
	}
	logProbs := op.LogSoftmax(logits, 1)

	// One-hot encode the target classes as (NB, C, HW)
	classes, err := G.Reshape(target, tensor.Shape{n * b, 1, h * w})
	if err != nil {
		return nil, fmt.Errorf("categoricalLoss: %v", err)
	}
	masks := make(G.Nodes, c)
	for k := 0; k < c; k++ {
		class := G.NewConstant(float64(k))
		masks[k] = G.Must(G.Eq(classes, class, true))
	}
	oneHot := masks[0]
	if c > 1 {
		oneHot = G.Must(G.Concat(1, masks...))
	}

	// Cross-entropy of each cell, summed over cells
	loss := G.Must(G.HadamardProd(oneHot, logProbs))
	loss = G.Must(G.Sum(loss, 1))
	loss = G.Must(G.Neg(loss))
	loss = G.Must(G.Sum(loss, 1))

	return G.Reshape(loss, tensor.Shape{n, b})
}

// Classes converts a one-hot or probability map of shape
// (N, B, C, H, W) into the class index map of shape (N, B, H, W) that
// CategoricalLoss takes as its target, by taking the most likely class
// of each cell.
func Classes(probs *tensor.Dense) (*tensor.Dense, error) {
	shape := probs.Shape()
	if len(shape) != 5 {
		return nil, fmt.Errorf("classes: input must have shape "+
			"(N, B, C, H, W), have %v", shape)
	}
	nb, c, hw := shape[0]*shape[1], shape[2], shape[3]*shape[4]
	data := probs.Data().([]float64)

	classes := make([]float64, nb*hw)
	for i := 0; i < nb; i++ {
		for cell := 0; cell < hw; cell++ {
			best := 0
			for k := 1; k < c; k++ {
				if data[i*c*hw+k*hw+cell] > data[i*c*hw+best*hw+cell] {
					best = k
				}
			}
			classes[i*hw+cell] = float64(best)
		}
	}

	return tensor.New(
		tensor.WithShape(shape[0], shape[1], shape[3], shape[4]),
		tensor.WithBacking(classes),
	), nil
}
