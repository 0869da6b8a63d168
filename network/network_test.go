package network

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/samuelfneumann/worldmodel/utils/tensorutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// input adds a node with the given value and shape to g
func input(g *G.ExprGraph, name string, data []float64,
	shape ...int) *G.Node {
	value := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
	return G.NewTensor(g, tensor.Float64, len(shape), G.WithShape(shape...),
		G.WithName(name), G.WithValue(value))
}

// random returns n values uniformly distributed in [-1, 1)
func random(rng *rand.Rand, n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = rng.Float64()*2 - 1
	}
	return values
}

// run runs all operations on g
func run(t *testing.T, g *G.ExprGraph) {
	t.Helper()
	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run graph: %v", err)
	}
}

func TestMLP(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	g := G.NewGraph()
	mlp, err := NewMLP(g, "mlp", 3, []int{5, 2}, []bool{true, false},
		[]*Activation{ELU(), Identity()}, G.GlorotU(1.0))
	if err != nil {
		t.Fatal(err)
	}

	if n := len(mlp.Learnables()); n != 3 {
		t.Errorf("learnables: want(3) have(%v)", n)
	}

	// The same weights are applied to inputs of different batch sizes
	x1 := input(g, "x1", random(rng, 4*3), 4, 3)
	x2 := input(g, "x2", random(rng, 7*3), 7, 3)
	y1, err := mlp.Fwd(x1)
	if err != nil {
		t.Fatal(err)
	}
	y2, err := mlp.Fwd(x2)
	if err != nil {
		t.Fatal(err)
	}
	if !tensorutils.SameShape(y1.Shape(), tensor.Shape{4, 2}) ||
		!tensorutils.SameShape(y2.Shape(), tensor.Shape{7, 2}) {
		t.Errorf("output shapes: have %v and %v", y1.Shape(), y2.Shape())
	}

	if _, err := mlp.Fwd(input(g, "x3", random(rng, 8), 2, 4)); err == nil {
		t.Error("fwd with wrong number of features should fail")
	}

	if _, err := NewMLP(g, "bad", 3, []int{5}, []bool{true, true},
		[]*Activation{ELU()}, G.Zeroes()); err == nil {
		t.Error("newMLP with mismatched biases should fail")
	}
}

func TestMLPSet(t *testing.T) {
	g := G.NewGraph()
	zero, err := NewDense(g, "zero", 2, 3, Identity(), G.Zeroes())
	if err != nil {
		t.Fatal(err)
	}
	one, err := NewDense(g, "one", 2, 3, Identity(), G.Ones())
	if err != nil {
		t.Fatal(err)
	}

	if err := zero.Set(one); err != nil {
		t.Fatal(err)
	}
	weights := zero.Learnables()[0].Value().Data().([]float64)
	if !floats.Equal(weights, []float64{1, 1, 1, 1, 1, 1}) {
		t.Errorf("set: want all ones, have %v", weights)
	}

	// Set copies values, so later changes to the source are not shared
	one.Learnables()[0].Value().Data().([]float64)[0] = 5
	if weights := zero.Learnables()[0].Value().Data().([]float64); weights[0] != 1 {
		t.Errorf("set shares memory with the source: have %v", weights)
	}

	wide, err := NewDense(g, "wide", 3, 3, Identity(), G.Zeroes())
	if err != nil {
		t.Fatal(err)
	}
	if err := zero.Set(wide); err == nil {
		t.Error("set from a different architecture should fail")
	}
}

func TestGRUCell(t *testing.T) {
	// With all weights zero, both gates are σ(0) = 1/2 and the
	// candidate is tanh(0) = 0, so the next state is h / 2.
	g := G.NewGraph()
	cell, err := NewGRUCell(g, "gru", 3, 4, G.Zeroes(), G.Zeroes())
	if err != nil {
		t.Fatal(err)
	}
	if n := len(cell.Learnables()); n != 12 {
		t.Errorf("learnables: want(12) have(%v)", n)
	}

	h := []float64{1, -2, 3, -4, 0.5, 0.25, -0.5, 8}
	x := input(g, "x", []float64{1, 2, 3, 4, 5, 6}, 2, 3)
	next, err := cell.Fwd(x, input(g, "h", h, 2, 4))
	if err != nil {
		t.Fatal(err)
	}
	run(t, g)

	want := make([]float64, len(h))
	floats.ScaleTo(want, 0.5, h)
	if have := next.Value().Data().([]float64); !floats.EqualApprox(have,
		want, 1e-12) {
		t.Errorf("next state: want(%v) have(%v)", want, have)
	}
}

func TestGRUCellBounded(t *testing.T) {
	// Starting from a zero state, the next state is (1 - z) ⊙ n with
	// n = tanh(.), so every element lies in (-1, 1)
	rng := rand.New(rand.NewSource(3))
	g := G.NewGraph()
	cell, err := NewGRUCell(g, "gru", 5, 6, G.GlorotU(1.0), G.GlorotU(1.0))
	if err != nil {
		t.Fatal(err)
	}
	x := input(g, "x", random(rng, 4*5), 4, 5)
	next, err := cell.Fwd(x, input(g, "h", make([]float64, 4*6), 4, 6))
	if err != nil {
		t.Fatal(err)
	}
	run(t, g)

	for _, v := range next.Value().Data().([]float64) {
		if v <= -1 || v >= 1 {
			t.Fatalf("next state %v not in (-1, 1)", v)
		}
	}
}

func TestCategoricalLoss(t *testing.T) {
	const n, b, c, h, w = 2, 3, 4, 2, 2
	rng := rand.New(rand.NewSource(5))

	classes := make([]float64, n*b*h*w)
	for i := range classes {
		classes[i] = float64(rng.Intn(c))
	}

	g := G.NewGraph()
	logits := input(g, "logits", random(rng, n*b*c*h*w), n, b, c, h, w)
	target := input(g, "target", classes, n, b, h, w)
	loss, err := CategoricalLoss(logits, target)
	if err != nil {
		t.Fatal(err)
	}

	// Uniform logits have a loss of log(C) per cell
	uniform := input(g, "uniform", make([]float64, n*b*c*h*w), n, b, c, h,
		w)
	uniformLoss, err := CategoricalLoss(uniform, target)
	if err != nil {
		t.Fatal(err)
	}

	if !tensorutils.SameShape(loss.Shape(), tensor.Shape{n, b}) {
		t.Fatalf("loss shape: want(%v, %v) have(%v)", n, b, loss.Shape())
	}
	run(t, g)

	for _, l := range loss.Value().Data().([]float64) {
		if l < 0 || math.IsNaN(l) {
			t.Errorf("cross-entropy should be non-negative, have %v", l)
		}
	}
	for _, l := range uniformLoss.Value().Data().([]float64) {
		if want := h * w * math.Log(c); math.Abs(l-want) > 1e-9 {
			t.Errorf("uniform loss: want(%v) have(%v)", want, l)
		}
	}
}

func TestDenseDecoderLoss(t *testing.T) {
	const n, b = 3, 2
	rng := rand.New(rand.NewSource(9))

	g := G.NewGraph()
	config := DenseDecoderConfig{
		InDim:        5,
		OutShape:     []int{3, 4, 4},
		HiddenDim:    8,
		HiddenLayers: 2,
		Activation:   ELU(),
	}
	decoder, err := NewDenseDecoder(g, "decoder", config, G.GlorotU(1.0))
	if err != nil {
		t.Fatal(err)
	}

	features := input(g, "features", random(rng, n*b*5), n, b, 5)
	output, err := decoder.FwdSequence(features)
	if err != nil {
		t.Fatal(err)
	}
	if want := (tensor.Shape{n, b, 3, 4, 4}); !tensorutils.SameShape(
		output.Shape(), want) {
		t.Fatalf("output shape: want(%v) have(%v)", want, output.Shape())
	}

	classes := make([]float64, n*b*4*4)
	for i := range classes {
		classes[i] = float64(rng.Intn(3))
	}
	loss, err := decoder.Loss(output, input(g, "target", classes, n, b, 4,
		4))
	if err != nil {
		t.Fatal(err)
	}
	run(t, g)

	if !tensorutils.SameShape(loss.Shape(), tensor.Shape{n, b}) {
		t.Errorf("loss shape: want(%v, %v) have(%v)", n, b, loss.Shape())
	}
	for _, l := range loss.Value().Data().([]float64) {
		if l < 0 {
			t.Errorf("cross-entropy should be non-negative, have %v", l)
		}
	}
}

func TestClasses(t *testing.T) {
	// One sample with 2 classes over a 1 x 3 map
	probs := tensor.New(
		tensor.WithShape(1, 1, 2, 1, 3),
		tensor.WithBacking([]float64{
			0.9, 0.2, 0.4, // class 0
			0.1, 0.8, 0.6, // class 1
		}),
	)
	classes, err := Classes(probs)
	if err != nil {
		t.Fatal(err)
	}
	if !tensorutils.SameShape(classes.Shape(), tensor.Shape{1, 1, 1, 3}) {
		t.Errorf("classes shape: want(1, 1, 1, 3) have(%v)", classes.Shape())
	}
	if want := []float64{0, 1, 1}; !floats.Equal(
		classes.Data().([]float64), want) {
		t.Errorf("classes: want(%v) have(%v)", want, classes.Data())
	}
}

func TestEncoders(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	g := G.NewGraph()

	dense, err := NewDenseEncoder(g, "dense", DenseEncoderConfig{
		InDim:        2 * 3 * 3,
		OutDim:       6,
		HiddenDim:    10,
		HiddenLayers: 2,
		Activation:   ELU(),
	}, G.GlorotU(1.0))
	if err != nil {
		t.Fatal(err)
	}
	embed, err := dense.Fwd(input(g, "obs", random(rng, 4*2*3*3), 4, 2, 3, 3))
	if err != nil {
		t.Fatal(err)
	}
	if !tensorutils.SameShape(embed.Shape(), tensor.Shape{4, 6}) {
		t.Errorf("dense embedding shape: want(4, 6) have(%v)", embed.Shape())
	}

	config := DefaultConvEncoderConfig(3)
	config.Depth = 2
	conv, err := NewConvEncoder(g, "conv", config, G.GlorotU(1.0))
	if err != nil {
		t.Fatal(err)
	}
	// 64 => 31 => 14 => 6 => 2 with 16 channels in the last layer
	if conv.OutDim() != 16*2*2 {
		t.Errorf("conv out dim: want(%v) have(%v)", 16*2*2, conv.OutDim())
	}
	images := input(g, "images", random(rng, 2*3*64*64), 2, 3, 64, 64)
	convEmbed, err := conv.Fwd(images)
	if err != nil {
		t.Fatal(err)
	}
	if want := (tensor.Shape{2, conv.OutDim()}); !tensorutils.SameShape(
		convEmbed.Shape(), want) {
		t.Errorf("conv embedding shape: want(2, %v) have(%v)", conv.OutDim(),
			convEmbed.Shape())
	}
	run(t, g)

	if floats.HasNaN(convEmbed.Value().Data().([]float64)) {
		t.Error("conv embedding has NaN")
	}

	config.Height, config.Width = 8, 8
	if _, err := NewConvEncoder(g, "small", config, G.GlorotU(1.0)); err == nil {
		t.Error("conv encoder on too small images should fail")
	}
}

func TestActivationJSON(t *testing.T) {
	acts := []*Activation{ReLU(), ELU(), TanH(), Sigmoid(), Identity(), Nil()}
	encoded, err := json.Marshal(acts)
	if err != nil {
		t.Fatal(err)
	}

	var decoded []*Activation
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatal(err)
	}
	for i := range acts {
		if acts[i].String() != decoded[i].String() {
			t.Errorf("activation %v: want(%v) have(%v)", i, acts[i],
				decoded[i])
		}
	}

	var bad Activation
	if err := json.Unmarshal([]byte(`"swish"`), &bad); err == nil {
		t.Error("unmarshal of unknown activation should fail")
	}
}
