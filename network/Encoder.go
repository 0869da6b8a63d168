package network

import (
	"fmt"

	"github.com/samuelfneumann/worldmodel/utils/tensorutils"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Encoder embeds batches of observations of shape (N, ...) into
// vectors of shape (N, OutDim())
type Encoder interface {
	NeuralNet
	Fwd(*G.Node) (*G.Node, error)
	OutDim() int
}

// DenseEncoderConfig describes a DenseEncoder
type DenseEncoderConfig struct {
	InDim        int
	OutDim       int
	HiddenDim    int
	HiddenLayers int
	Activation   *Activation
}

// DefaultDenseEncoderConfig returns the configuration of a dense
// encoder with 2 hidden layers of 400 units and a 256 dimensional
// embedding.
func DefaultDenseEncoderConfig(inDim int) DenseEncoderConfig {
	return DenseEncoderConfig{
		InDim:        inDim,
		OutDim:       256,
		HiddenDim:    400,
		HiddenLayers: 2,
		Activation:   ELU(),
	}
}

// DenseEncoder embeds observations with an MLP. Observations of any
// shape are flattened to vectors of size InDim before the MLP is
// applied, and every layer, including the output layer, applies the
// configured activation.
type DenseEncoder struct {
	*MLP
	config DenseEncoderConfig
}

// NewDenseEncoder adds a new DenseEncoder to the graph g
func NewDenseEncoder(g *G.ExprGraph, name string, c DenseEncoderConfig,
	init G.InitWFn) (*DenseEncoder, error) {
	if c.HiddenLayers < 1 {
		return nil, fmt.Errorf("newDenseEncoder: must have at least 1 " +
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
	sizes = append(sizes, c.OutDim)
	biases = append(biases, true)
	activations = append(activations, act)

	mlp, err := NewMLP(g, name, c.InDim, sizes, biases, activations, init)
	if err != nil {
		return nil, fmt.Errorf("newDenseEncoder: %v", err)
	}
	return &DenseEncoder{MLP: mlp, config: c}, nil
}

// Fwd adds the forward pass of the encoder to the graph. The input
// has shape (N, ...) where the trailing axes have InDim elements in
// total, and the output has shape (N, OutDim).
func (d *DenseEncoder) Fwd(x *G.Node) (*G.Node, error) {
	flat, err := flattenTrailing(x)
	if err != nil {
		return nil, fmt.Errorf("fwd: %v", err)
	}
	return d.MLP.Fwd(flat)
}

// OutDim returns the size of the embedding
func (d *DenseEncoder) OutDim() int {
	return d.config.OutDim
}

// flattenTrailing reshapes x of shape (N, ...) to (N, prod(...))
func flattenTrailing(x *G.Node) (*G.Node, error) {
	shape := x.Shape()
	if len(shape) < 2 {
		return nil, fmt.Errorf("input must have a batch axis, have "+
			"shape %v", shape)
	}
	if len(shape) == 2 {
		return x, nil
	}
	return G.Reshape(x, tensor.Shape{shape[0], shape.TotalSize() / shape[0]})
}

// ConvEncoderConfig describes a ConvEncoder. The encoder has one
// convolutional layer per kernel size in Kernels, and layer i has
// Depth * 2^i output channels.
type ConvEncoderConfig struct {
	InChannels int
	Height     int
	Width      int
	Kernels    []int
	Stride     int
	Depth      int
	Activation *Activation
}

// DefaultConvEncoderConfig returns the configuration of a 4 layer
// convolutional encoder over 64 x 64 images with 32, 64, 128, and 256
// channels per layer.
func DefaultConvEncoderConfig(inChannels int) ConvEncoderConfig {
	return ConvEncoderConfig{
		InChannels: inChannels,
		Height:     64,
		Width:      64,
		Kernels:    []int{4, 4, 4, 4},
		Stride:     2,
		Depth:      32,
		Activation: ELU(),
	}
}

// OutShape returns the (C, H, W) shape of the output of the last
// convolution of an encoder with this configuration
func (c ConvEncoderConfig) OutShape() ([]int, error) {
	if len(c.Kernels) == 0 {
		return nil, fmt.Errorf("outShape: must have at least one kernel")
	}
	if c.Stride <= 0 || c.Depth <= 0 {
		return nil, fmt.Errorf("outShape: stride and depth must be > 0")
	}

	height, width := c.Height, c.Width
	for _, kernel := range c.Kernels {
		height = (height-kernel)/c.Stride + 1
		width = (width-kernel)/c.Stride + 1
		if kernel <= 0 || height <= 0 || width <= 0 {
			return nil, fmt.Errorf("outShape: image of size (%v, %v) too "+
				"small for %v layers", c.Height, c.Width, len(c.Kernels))
		}
	}
	return []int{c.Depth << (len(c.Kernels) - 1), height, width}, nil
}

// OutDim returns the size of the embedding of an encoder with this
// configuration
func (c ConvEncoderConfig) OutDim() (int, error) {
	shape, err := c.OutShape()
	if err != nil {
		return 0, fmt.Errorf("outDim: %v", err)
	}
	return shape[0] * shape[1] * shape[2], nil
}

// convLayer is a single convolutional layer with bias
type convLayer struct {
	filter *G.Node
	bias   *G.Node
	kernel int
}

// ConvEncoder embeds images of shape (C, H, W) with a stack of
// strided convolutions without padding, each followed by the
// configured activation. The output of the last layer is flattened.
type ConvEncoder struct {
	g      *G.ExprGraph
	name   string
	layers []convLayer
	config ConvEncoderConfig
	act    *Activation

	outShape []int // (C, H, W) of the final convolution

	learnables G.Nodes
	model      []G.ValueGrad
}

// NewConvEncoder adds a new ConvEncoder to the graph g
func NewConvEncoder(g *G.ExprGraph, name string, c ConvEncoderConfig,
	init G.InitWFn) (*ConvEncoder, error) {
	shape, err := c.OutShape()
	if err != nil {
		return nil, fmt.Errorf("newConvEncoder: %v", err)
	}
	act := c.Activation
	if act == nil {
		act = ELU()
	}

	layers := make([]convLayer, len(c.Kernels))
	channels := c.InChannels
	for i, kernel := range c.Kernels {
		outChannels := c.Depth << i
		layers[i] = convLayer{
			filter: G.NewTensor(
				g,
				tensor.Float64,
				4,
				G.WithShape(outChannels, channels, kernel, kernel),
				G.WithName(fmt.Sprintf("%v_conv%d_W", name, i)),
				G.WithInit(init),
			),
			bias: G.NewTensor(
				g,
				tensor.Float64,
				4,
				G.WithShape(1, outChannels, 1, 1),
				G.WithName(fmt.Sprintf("%v_conv%d_b", name, i)),
				G.WithInit(G.Zeroes()),
			),
			kernel: kernel,
		}
		channels = outChannels
	}

	return &ConvEncoder{
		g:        g,
		name:     name,
		layers:   layers,
		config:   c,
		act:      act,
		outShape: shape,
	}, nil
}

// Fwd adds the forward pass of the encoder to the graph, mapping
// images of shape (N, C, H, W) to embeddings of shape (N, OutDim()).
func (c *ConvEncoder) Fwd(x *G.Node) (*G.Node, error) {
	want := tensor.Shape{c.config.InChannels, c.config.Height, c.config.Width}
	if x.Dims() != 4 || !tensorutils.SameShape(x.Shape()[1:], want) {
		return nil, fmt.Errorf("fwd: invalid input shape for %v "+
			"\n\twant(N, %v) \n\thave(%v)", c.name, want, x.Shape())
	}

	stride := []int{c.config.Stride, c.config.Stride}
	pred := x
	for i, l := range c.layers {
		conv, err := G.Conv2d(pred, l.filter, tensor.Shape{l.kernel, l.kernel},
			[]int{0, 0}, stride, []int{1, 1})
		if err != nil {
			return nil, fmt.Errorf("fwd: could not convolve layer %v: %v",
				i, err)
		}
		conv = G.Must(G.BroadcastAdd(conv, l.bias, nil, []byte{0, 2, 3}))
		if pred, err = c.act.fwd(conv); err != nil {
			return nil, fmt.Errorf("fwd: could not activate layer %v: %v",
				i, err)
		}
	}

	return G.Reshape(pred, tensor.Shape{x.Shape()[0], c.OutDim()})
}

// OutDim returns the size of the embedding
func (c *ConvEncoder) OutDim() int {
	return c.outShape[0] * c.outShape[1] * c.outShape[2]
}

// Graph returns the computational graph of the encoder
func (c *ConvEncoder) Graph() *G.ExprGraph {
	return c.g
}

// Learnables returns the learnable nodes of the encoder
func (c *ConvEncoder) Learnables() G.Nodes {
	if c.learnables == nil {
		for _, l := range c.layers {
			c.learnables = append(c.learnables, l.filter, l.bias)
		}
	}
	return c.learnables
}

// Model returns the learnable nodes of the encoder with their gradients
func (c *ConvEncoder) Model() []G.ValueGrad {
	if c.model == nil {
		c.model = model(c.Learnables())
	}
	return c.model
}

// Set sets the weights of the encoder to those of another NeuralNet
// with the same architecture
func (c *ConvEncoder) Set(source NeuralNet) error {
	return Set(c.Learnables(), source.Learnables())
}
