package rssm

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/samuelfneumann/worldmodel/dist"
	"github.com/samuelfneumann/worldmodel/initwfn"
	"github.com/samuelfneumann/worldmodel/utils/tensorutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const (
	embedDim  = 8
	actionDim = 2
	deterDim  = 4
	stochDim  = 3
	hiddenDim = 10
	batch     = 5
	seqLen    = 6
)

func testConfig(variant Variant) Config {
	return Config{
		EmbedDim:  embedDim,
		ActionDim: actionDim,
		DeterDim:  deterDim,
		StochDim:  stochDim,
		HiddenDim: hiddenDim,
		MinStd:    0.1,
		Variant:   variant,
	}
}

func random(rng *rand.Rand, shape ...int) *tensor.Dense {
	values := make([]float64, tensor.Shape(shape).TotalSize())
	for i := range values {
		values[i] = rng.NormFloat64()
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(values))
}

func input(g *G.ExprGraph, name string, value *tensor.Dense) *G.Node {
	return G.NewTensor(g, tensor.Float64, value.Dims(),
		G.WithShape(value.Shape()...), G.WithName(name), G.WithValue(value))
}

func run(t *testing.T, g *G.ExprGraph) {
	t.Helper()
	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatalf("could not run graph: %v", err)
	}
}

func data(n *G.Node) []float64 {
	return n.Value().Data().([]float64)
}

func TestModelShapes(t *testing.T) {
	tests := []struct {
		name              string
		steps, size, d, s int
	}{
		{"default", seqLen, batch, deterDim, stochDim},
		{"batch 1", seqLen, 1, deterDim, stochDim},
		{"stoch 1", seqLen, batch, deterDim, 1},
		{"deter 1", seqLen, batch, 1, stochDim},
		{"single step", 1, batch, deterDim, stochDim},
		{"all 1", 1, 1, 1, 1},
	}

	rng := rand.New(rand.NewSource(1))
	for _, test := range tests {
		for _, variant := range []Variant{FinalState, Trajectory} {
			c := testConfig(variant)
			c.DeterDim, c.StochDim = test.d, test.s
			n, b, width := test.steps, test.size, test.d+test.s

			m, err := NewModel(c, n, b, 1)
			if err != nil {
				t.Fatalf("%v %v: %v", test.name, variant, err)
			}

			reset := tensor.New(tensor.WithShape(n, b),
				tensor.Of(tensor.Float64))
			result, err := m.Run(
				random(rng, n, b, embedDim),
				random(rng, n, b, actionDim),
				reset,
				m.InitState(),
			)
			if err != nil {
				t.Fatalf("%v %v: %v", test.name, variant, err)
			}

			shapes := []struct {
				name string
				have *tensor.Dense
				want tensor.Shape
			}{
				{"priors", result.Priors, tensor.Shape{n, b, 2 * test.s}},
				{"posts", result.Posts, tensor.Shape{n, b, 2 * test.s}},
				{"samples", result.Samples, tensor.Shape{n, b, test.s}},
				{"final", result.Final, tensor.Shape{b, width}},
			}
			if variant == Trajectory {
				shapes = append(shapes, struct {
					name string
					have *tensor.Dense
					want tensor.Shape
				}{"states", result.States, tensor.Shape{n, b, width}})
			} else if result.States != nil {
				t.Errorf("%v: final state variant should not stack states",
					test.name)
			}
			for _, s := range shapes {
				if s.have == nil {
					t.Fatalf("%v %v %v: missing output", test.name, variant,
						s.name)
				}
				if s.have.Dims() != len(s.want) ||
					!tensorutils.SameShape(s.have.Shape(), s.want) {
					t.Errorf("%v %v %v: want shape %v have %v", test.name,
						variant, s.name, s.want, s.have.Shape())
				}
			}

			if variant == Trajectory {
				// The last stacked state is the final state
				states := result.States.Data().([]float64)
				last := states[(n-1)*b*width:]
				if !floats.Equal(last, result.Final.Data().([]float64)) {
					t.Errorf("%v: last stacked state differs from final "+
						"state", test.name)
				}
			}

			// The sample of the last step is the stochastic half of the
			// final state
			final := result.Final.Data().([]float64)
			samples := result.Samples.Data().([]float64)
			offset := (n - 1) * b * test.s
			for i := 0; i < b; i++ {
				z := final[i*width+test.d : (i+1)*width]
				want := samples[offset+i*test.s : offset+(i+1)*test.s]
				if !floats.Equal(z, want) {
					t.Errorf("%v %v: stochastic state %v differs from "+
						"sample %v", test.name, variant, z, want)
				}
			}

			// Standard deviations respect the floor
			for _, meanStd := range []*tensor.Dense{result.Priors,
				result.Posts} {
				for i, v := range meanStd.Data().([]float64) {
					if i%(2*test.s) >= test.s && v < c.MinStd {
						t.Fatalf("%v: std %v below floor", test.name, v)
					}
				}
			}

			if err := m.Close(); err != nil {
				t.Error(err)
			}
		}
	}
}

func TestInitState(t *testing.T) {
	g := G.NewGraph()
	core, err := NewCore(g, "rssm", testConfig(FinalState))
	if err != nil {
		t.Fatal(err)
	}

	state := core.InitState(batch)
	if want := (tensor.Shape{batch, deterDim + stochDim}); !tensorutils.
		SameShape(state.Shape(), want) {
		t.Errorf("init state: want shape (%v, %v) have %v", batch,
			deterDim+stochDim, state.Shape())
	}
	for _, v := range state.Data().([]float64) {
		if v != 0 {
			t.Fatalf("init state should be all zero, have %v", state)
		}
	}
}

func TestResetErasesHistory(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	const b = 3

	g := G.NewGraph()
	cell, err := NewCell(g, "rssm", testConfig(FinalState))
	if err != nil {
		t.Fatal(err)
	}

	embed := input(g, "embed", random(rng, b, embedDim))
	action := input(g, "action", random(rng, b, actionDim))
	noise := input(g, "noise", random(rng, b, stochDim))

	// A nonzero state that is reset in rows 0 and 2...
	state := random(rng, b, deterDim+stochDim)
	resetRows := tensor.New(tensor.WithShape(b),
		tensor.WithBacking([]float64{1, 0, 1}))
	reset, err := cell.Fwd(embed, action, input(g, "reset", resetRows),
		input(g, "state", state), noise)
	if err != nil {
		t.Fatal(err)
	}

	// ...behaves like a state that is zero in rows 0 and 2
	zeroed := state.Clone().(*tensor.Dense)
	zeroedData := zeroed.Data().([]float64)
	for _, row := range []int{0, 2} {
		for j := 0; j < deterDim+stochDim; j++ {
			zeroedData[row*(deterDim+stochDim)+j] = 0
		}
	}
	noReset := tensor.New(tensor.WithShape(b), tensor.Of(tensor.Float64))
	zero, err := cell.Fwd(embed, action, input(g, "noReset", noReset),
		input(g, "zeroed", zeroed), noise)
	if err != nil {
		t.Fatal(err)
	}
	run(t, g)

	for _, pair := range [][2]*G.Node{
		{reset.Prior, zero.Prior},
		{reset.Post, zero.Post},
		{reset.State, zero.State},
	} {
		if !floats.EqualApprox(data(pair[0]), data(pair[1]), 1e-12) {
			t.Errorf("reset state: want(%v) have(%v)", data(pair[1]),
				data(pair[0]))
		}
	}
}

func TestSingleLaneReset(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	const steps = 3

	g := G.NewGraph()
	core, err := NewCore(g, "rssm", testConfig(Trajectory))
	if err != nil {
		t.Fatal(err)
	}

	embed := random(rng, steps, 1, embedDim)
	action := random(rng, steps, 1, actionDim)
	noise := random(rng, steps, 1, stochDim)
	reset := tensor.New(tensor.WithShape(steps, 1),
		tensor.WithBacking([]float64{0, 1, 0}))
	out, err := core.Fwd(input(g, "embed", embed), input(g, "action", action),
		input(g, "reset", reset), input(g, "state", random(rng, 1,
			deterDim+stochDim)), input(g, "noise", noise))
	if err != nil {
		t.Fatal(err)
	}

	// Starting at the reset step from the initial state must give the
	// same outputs
	tail := func(x *tensor.Dense) *tensor.Dense {
		view, err := x.Slice(G.S(1, steps))
		if err != nil {
			t.Fatal(err)
		}
		return view.(*tensor.Dense).Materialize().(*tensor.Dense)
	}
	fresh, err := core.Fwd(input(g, "embedTail", tail(embed)),
		input(g, "actionTail", tail(action)),
		input(g, "resetTail", tensor.New(tensor.WithShape(steps-1, 1),
			tensor.Of(tensor.Float64))),
		input(g, "stateTail", core.InitState(1)),
		input(g, "noiseTail", tail(noise)))
	if err != nil {
		t.Fatal(err)
	}

	for _, n := range []*G.Node{out.Posts, out.Priors} {
		if n.Dims() != 3 || !tensorutils.SameShape(n.Shape(),
			tensor.Shape{steps, 1, 2 * stochDim}) {
			t.Fatalf("%v: want shape (%v, 1, %v) have %v", n.Name(), steps,
				2*stochDim, n.Shape())
		}
	}
	if !tensorutils.SameShape(out.Final.Shape(),
		tensor.Shape{1, deterDim + stochDim}) {
		t.Fatalf("final: want shape (1, %v) have %v", deterDim+stochDim,
			out.Final.Shape())
	}
	run(t, g)

	for _, pair := range [][2]*G.Node{
		{out.Priors, fresh.Priors},
		{out.Posts, fresh.Posts},
		{out.States, fresh.States},
	} {
		full, want := data(pair[0]), data(pair[1])
		have := full[len(full)-len(want):]
		if !floats.EqualApprox(have, want, 1e-12) {
			t.Errorf("after reset: want(%v) have(%v)", want, have)
		}
	}
	if !floats.EqualApprox(data(out.Final), data(fresh.Final), 1e-12) {
		t.Errorf("final state after reset: want(%v) have(%v)",
			data(fresh.Final), data(out.Final))
	}
}

func TestNoLookahead(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	const steps = 2

	g := G.NewGraph()
	core, err := NewCore(g, "rssm", testConfig(Trajectory))
	if err != nil {
		t.Fatal(err)
	}

	embed := random(rng, steps, batch, embedDim)
	action := random(rng, steps, batch, actionDim)
	reset := tensor.New(tensor.WithShape(steps, batch),
		tensor.Of(tensor.Float64))
	state := input(g, "state", random(rng, batch, deterDim+stochDim))
	noise := input(g, "noise", random(rng, steps, batch, stochDim))

	// Perturb every input of the second step
	perturb := func(x *tensor.Dense) *tensor.Dense {
		y := x.Clone().(*tensor.Dense)
		values := y.Data().([]float64)
		for i := len(values) / steps; i < len(values); i++ {
			values[i] += 1 + rng.Float64()
		}
		return y
	}

	out, err := core.Fwd(input(g, "embed", embed), input(g, "action", action),
		input(g, "reset", reset), state, noise)
	if err != nil {
		t.Fatal(err)
	}
	perturbedReset := reset.Clone().(*tensor.Dense)
	perturbedReset.Data().([]float64)[steps*batch-1] = 1
	perturbed, err := core.Fwd(input(g, "embed2", perturb(embed)),
		input(g, "action2", perturb(action)),
		input(g, "reset2", perturbedReset), state, noise)
	if err != nil {
		t.Fatal(err)
	}
	run(t, g)

	for _, pair := range [][2]*G.Node{
		{out.Priors, perturbed.Priors},
		{out.Posts, perturbed.Posts},
		{out.Samples, perturbed.Samples},
		{out.States, perturbed.States},
	} {
		a, b := data(pair[0]), data(pair[1])
		first := len(a) / steps
		if !floats.Equal(a[:first], b[:first]) {
			t.Errorf("first step depends on second step inputs")
		}
		if floats.Equal(a[first:], b[first:]) {
			t.Errorf("second step does not depend on its inputs")
		}
	}
}

func TestKLLossAndGradients(t *testing.T) {
	rng := rand.New(rand.NewSource(4))

	g := G.NewGraph()
	core, err := NewCore(g, "rssm", testConfig(FinalState))
	if err != nil {
		t.Fatal(err)
	}

	reset := tensor.New(tensor.WithShape(seqLen, batch),
		tensor.Of(tensor.Float64))
	out, err := core.Fwd(
		input(g, "embed", random(rng, seqLen, batch, embedDim)),
		input(g, "action", random(rng, seqLen, batch, actionDim)),
		input(g, "reset", reset),
		input(g, "state", core.InitState(batch)),
		input(g, "noise", random(rng, seqLen, batch, stochDim)),
	)
	if err != nil {
		t.Fatal(err)
	}
	kl, err := core.KLLoss(out)
	if err != nil {
		t.Fatal(err)
	}
	features, err := core.Features(out)
	if err != nil {
		t.Fatal(err)
	}
	want := tensor.Shape{seqLen, batch, deterDim + stochDim}
	if !tensorutils.SameShape(features.Shape(), want) {
		t.Errorf("features: want shape (%v, %v, %v) have %v", seqLen, batch,
			deterDim+stochDim, features.Shape())
	}

	if _, err := G.Grad(kl, core.Learnables()...); err != nil {
		t.Fatalf("could not differentiate kl loss: %v", err)
	}
	vm := G.NewTapeMachine(g, G.BindDualValues(core.Learnables()...))
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	value := kl.Value().Data().(float64)
	if value < 0 || math.IsNaN(value) {
		t.Errorf("kl loss should be non-negative, have %v", value)
	}
	for _, node := range core.Learnables() {
		grad, err := node.Grad()
		if err != nil {
			t.Fatalf("%v has no gradient: %v", node.Name(), err)
		}
		if floats.HasNaN(grad.Data().([]float64)) {
			t.Errorf("gradient of %v has NaN", node.Name())
		}
	}
}

func TestShapeErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(5))

	g := G.NewGraph()
	core, err := NewCore(g, "rssm", testConfig(FinalState))
	if err != nil {
		t.Fatal(err)
	}
	embed := input(g, "embed", random(rng, seqLen, batch, embedDim))
	action := input(g, "action", random(rng, seqLen, batch, actionDim))
	reset := input(g, "reset", random(rng, seqLen, batch))
	state := input(g, "state", core.InitState(batch))
	noise := input(g, "noise", random(rng, seqLen, batch, stochDim))

	shortAction := input(g, "shortAction", random(rng, seqLen-1, batch,
		actionDim))
	smallState := input(g, "smallState", core.InitState(batch-1))
	wideNoise := input(g, "wideNoise", random(rng, seqLen, batch, stochDim+1))

	tests := []struct {
		name                               string
		embed, action, reset, state, noise *G.Node
	}{
		{"action time axis", embed, shortAction, reset, state, noise},
		{"state batch axis", embed, action, reset, smallState, noise},
		{"noise width", embed, action, reset, state, wideNoise},
		{"missing reset", embed, action, nil, state, noise},
	}
	for _, test := range tests {
		_, err := core.Fwd(test.embed, test.action, test.reset, test.state,
			test.noise)
		if !dist.IsShapeError(err) {
			t.Errorf("%v: want *dist.ShapeError, have %v", test.name, err)
		}
	}

	m, err := NewModel(testConfig(FinalState), seqLen, batch, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	_, err = m.Run(random(rng, seqLen, batch, embedDim),
		random(rng, seqLen, batch, actionDim), random(rng, seqLen, batch),
		core.InitState(batch+1))
	if !dist.IsShapeError(err) {
		t.Errorf("run with wrong state shape: want *dist.ShapeError, have %v",
			err)
	}
}

func TestConfig(t *testing.T) {
	c := DefaultConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if c.StateDim() != 230 {
		t.Errorf("state dim: want(230) have(%v)", c.StateDim())
	}

	init, err := initwfn.NewHeU(1.0, 0)
	if err != nil {
		t.Fatal(err)
	}
	c.InitWFn = init
	c.Variant = Trajectory

	encoded, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Config
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.DeterDim != c.DeterDim || decoded.Variant != c.Variant ||
		decoded.InitWFn.Type != initwfn.HeU || decoded.RecurrentInitWFn != nil {
		t.Errorf("json round trip: want(%+v) have(%+v)", c, decoded)
	}

	invalid := []func(*Config){
		func(c *Config) { c.StochDim = 0 },
		func(c *Config) { c.HiddenDim = -1 },
		func(c *Config) { c.MinStd = -0.1 },
		func(c *Config) { c.Variant = "Everything" },
	}
	for i, modify := range invalid {
		c := DefaultConfig()
		modify(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("config %v should be invalid", i)
		}
	}
}
