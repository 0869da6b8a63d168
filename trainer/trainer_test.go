package trainer

import (
	"encoding/json"
	"math"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/worldmodel/dist"
	"github.com/samuelfneumann/worldmodel/environment/gridworld"
	"github.com/samuelfneumann/worldmodel/initwfn"
	"github.com/samuelfneumann/worldmodel/network"
	"github.com/samuelfneumann/worldmodel/rssm"
	"github.com/samuelfneumann/worldmodel/sequence"
	"github.com/samuelfneumann/worldmodel/solver"
	"github.com/samuelfneumann/worldmodel/utils/tensorutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const seqLen, batch = 4, 2

func smallConfig(t *testing.T) Config {
	t.Helper()
	s, err := solver.NewAdam(1e-2, 1e-8, 0.9, 0.999, 1, -1)
	if err != nil {
		t.Fatal(err)
	}
	obsShape := []int{gridworld.Channels, 3, 3}
	core := rssm.Config{
		EmbedDim:  6,
		ActionDim: gridworld.NumActions,
		DeterDim:  8,
		StochDim:  4,
		HiddenDim: 8,
		MinStd:    0.1,
		Variant:   rssm.FinalState,
	}
	return Config{
		Core: core,
		Encoder: network.DenseEncoderConfig{
			InDim:        gridworld.Channels * 3 * 3,
			OutDim:       core.EmbedDim,
			HiddenDim:    16,
			HiddenLayers: 1,
			Activation:   network.ELU(),
		},
		Decoder: network.DenseDecoderConfig{
			InDim:        core.StateDim(),
			OutShape:     obsShape,
			HiddenDim:    16,
			HiddenLayers: 1,
			Activation:   network.ELU(),
		},
		Solver:   s,
		KLWeight: 1.0,
		SeqLen:   seqLen,
		Batch:    batch,
	}
}

// rollouts fills a sequence buffer with steps steps of random actions
// in a 3 x 3 gridworld on each of batch lanes
func rollouts(t *testing.T, steps int) *sequence.Buffer {
	t.Helper()
	buffer, err := sequence.New(batch, steps, []int{gridworld.Channels, 3,
		3}, gridworld.NumActions, 1)
	if err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(2))
	for lane := 0; lane < batch; lane++ {
		c := gridworld.DefaultConfig()
		c.Rows, c.Cols = 3, 3
		c.Goals = []gridworld.Cell{{2, 2}}
		c.EpisodeSteps = 6
		env, step, err := gridworld.New(c, uint64(lane))
		if err != nil {
			t.Fatal(err)
		}
		if err := buffer.Add(lane, nil, step); err != nil {
			t.Fatal(err)
		}

		for i := 1; i < steps; i++ {
			action := gridworld.OneHot(rng.Intn(gridworld.NumActions))
			next, last := env.Step(action)
			if err := buffer.Add(lane, action, next); err != nil {
				t.Fatal(err)
			}
			if last {
				if err := buffer.Add(lane, nil, env.Reset()); err != nil {
					t.Fatal(err)
				}
				i++
			}
		}
	}
	return buffer
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func TestStep(t *testing.T) {
	tr, err := New(smallConfig(t), 1)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	buffer := rollouts(t, 3*seqLen)
	for i := 0; i < 3; i++ {
		window, err := buffer.Next(seqLen)
		if err != nil {
			t.Fatal(err)
		}
		result, err := tr.Step(window)
		if err != nil {
			t.Fatal(err)
		}

		if !finite(result.Loss, result.Recon, result.KL) {
			t.Fatalf("step %v: losses not finite: %+v", i, result)
		}
		if result.Recon <= 0 || result.KL < -1e-9 {
			t.Errorf("step %v: invalid losses %+v", i, result)
		}
		if want := result.Recon + result.KL; math.Abs(result.Loss-want) >
			1e-9 {
			t.Errorf("step %v: loss want(%v) have(%v)", i, want, result.Loss)
		}
	}

	state := tr.State()
	if want := (tensor.Shape{batch, tr.Config().Core.StateDim()}); !tensorutils.
		SameShape(state.Shape(), want) {
		t.Fatalf("carried state: want shape %v have %v", want, state.Shape())
	}
	nonZero := false
	for _, v := range state.Data().([]float64) {
		if v != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		t.Error("carried state should not be the initial state")
	}

	tr.ResetState()
	for _, v := range tr.State().Data().([]float64) {
		if v != 0 {
			t.Fatal("reset state should be zero")
		}
	}
}

// weights returns copies of the current weights of the trainer
func weights(tr *Trainer) [][]float64 {
	learnables := tr.learnables()
	out := make([][]float64, len(learnables))
	for i, node := range learnables {
		data := node.Value().Data().([]float64)
		out[i] = append([]float64(nil), data...)
	}
	return out
}

func TestStepNaN(t *testing.T) {
	tr, err := New(smallConfig(t), 8)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	buffer := rollouts(t, 2*seqLen)
	window, err := buffer.Next(seqLen)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Step(window); err != nil {
		t.Fatal(err)
	}

	// Poison a single decoder weight so that every loss is NaN
	node := tr.decoder.Learnables()[0]
	poisoned := tensorutils.Clone(node.Value())
	poisoned.Data().([]float64)[0] = math.NaN()
	if err := G.Let(node, poisoned); err != nil {
		t.Fatal(err)
	}
	before := weights(tr)

	if window, err = buffer.Next(seqLen); err != nil {
		t.Fatal(err)
	}
	result, err := tr.Step(window)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(result.Loss) {
		t.Fatalf("loss: want NaN have %v", result.Loss)
	}

	for _, v := range tr.State().Data().([]float64) {
		if v != 0 {
			t.Fatal("state should be reset after a NaN loss")
		}
	}
	after := weights(tr)
	for i := range before {
		if !floats.Same(before[i], after[i]) {
			t.Errorf("%v: weights changed after a NaN loss",
				tr.learnables()[i].Name())
		}
	}
}

func TestConvEncoder(t *testing.T) {
	c := smallConfig(t)
	c.ConvEncoder = &network.ConvEncoderConfig{
		InChannels: gridworld.Channels,
		Height:     3,
		Width:      3,
		Kernels:    []int{2},
		Stride:     1,
		Depth:      2,
		Activation: network.ELU(),
	}
	// (2, 2, 2) after a single 2 x 2 convolution with stride 1
	c.Core.EmbedDim = 8
	c.Decoder.InDim = c.Core.StateDim()
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}

	tr, err := New(c, 9)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	if _, ok := tr.encoder.(*network.ConvEncoder); !ok {
		t.Fatalf("encoder: want *network.ConvEncoder have %T", tr.encoder)
	}

	buffer := rollouts(t, 2*seqLen)
	for i := 0; i < 2; i++ {
		window, err := buffer.Next(seqLen)
		if err != nil {
			t.Fatal(err)
		}
		result, err := tr.Step(window)
		if err != nil {
			t.Fatal(err)
		}
		if !finite(result.Loss, result.Recon, result.KL) {
			t.Fatalf("step %v: losses not finite: %+v", i, result)
		}
	}

	invalid := []func(*Config){
		func(c *Config) { c.ConvEncoder.Height++ },
		func(c *Config) { c.ConvEncoder.InChannels++ },
		func(c *Config) { c.ConvEncoder.Depth++ },
		func(c *Config) { c.ConvEncoder.Kernels = []int{4} },
	}
	for i, modify := range invalid {
		c := c
		conv := *c.ConvEncoder
		c.ConvEncoder = &conv
		modify(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("conv config %v should be invalid", i)
		}
	}
}

func TestInitializers(t *testing.T) {
	inits := map[string]func() (*initwfn.InitWFn, error){
		"GlorotU": func() (*initwfn.InitWFn, error) {
			return initwfn.NewGlorotU(1.0, 3)
		},
		"GlorotN": func() (*initwfn.InitWFn, error) {
			return initwfn.NewGlorotN(1.0, 3)
		},
		"HeU": func() (*initwfn.InitWFn, error) {
			return initwfn.NewHeU(0.5, 3)
		},
		"HeN": func() (*initwfn.InitWFn, error) {
			return initwfn.NewHeN(0.5, 3)
		},
		"Uniform": func() (*initwfn.InitWFn, error) {
			return initwfn.NewUniform(-0.1, 0.1, 3)
		},
		"Gaussian": func() (*initwfn.InitWFn, error) {
			return initwfn.NewGaussian(0, 0.1, 3)
		},
		"Constant": func() (*initwfn.InitWFn, error) {
			return initwfn.NewConstant(0.05)
		},
		"Orthogonal": func() (*initwfn.InitWFn, error) {
			return initwfn.NewOrthogonal(1.0, 3)
		},
	}

	for name, create := range inits {
		t.Run(name, func(t *testing.T) {
			c := smallConfig(t)
			var err error
			for _, field := range []**initwfn.InitWFn{&c.InitWFn,
				&c.Core.InitWFn, &c.Core.RecurrentInitWFn} {
				if *field, err = create(); err != nil {
					t.Fatal(err)
				}
			}
			trainSteps(t, c)
		})
	}
}

func TestSolvers(t *testing.T) {
	solvers := map[string]func() (*solver.Solver, error){
		"Adam": func() (*solver.Solver, error) {
			return solver.NewAdam(1e-2, 1e-8, 0.9, 0.999, 1, 5)
		},
		"RMSProp": func() (*solver.Solver, error) {
			return solver.NewRMSProp(1e-3, 1e-6, 0.9, 1, -1)
		},
		"Vanilla": func() (*solver.Solver, error) {
			return solver.NewVanilla(1e-2, 1, 5)
		},
	}

	for name, create := range solvers {
		t.Run(name, func(t *testing.T) {
			c := smallConfig(t)
			var err error
			if c.Solver, err = create(); err != nil {
				t.Fatal(err)
			}
			trainSteps(t, c)
		})
	}
}

// trainSteps trains a trainer with configuration c for two windows
// and checks that the losses are finite and the weights are updated
func trainSteps(t *testing.T, c Config) {
	t.Helper()
	tr, err := New(c, 4)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	before := weights(tr)
	buffer := rollouts(t, 2*seqLen)
	for i := 0; i < 2; i++ {
		window, err := buffer.Next(seqLen)
		if err != nil {
			t.Fatal(err)
		}
		result, err := tr.Step(window)
		if err != nil {
			t.Fatal(err)
		}
		if !finite(result.Loss, result.Recon, result.KL) {
			t.Fatalf("step %v: losses not finite: %+v", i, result)
		}
	}

	after := weights(tr)
	changed := false
	for i := range before {
		if !floats.Equal(before[i], after[i]) {
			changed = true
		}
		if !finite(after[i]...) {
			t.Errorf("weights %v not finite after training", i)
		}
	}
	if !changed {
		t.Error("training should update the weights")
	}
}

func TestLossDecreases(t *testing.T) {
	tr, err := New(smallConfig(t), 3)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	window, err := rollouts(t, seqLen).Next(seqLen)
	if err != nil {
		t.Fatal(err)
	}

	var first, last float64
	const steps, avg = 150, 10
	for i := 0; i < steps; i++ {
		tr.ResetState()
		result, err := tr.Step(window)
		if err != nil {
			t.Fatal(err)
		}
		if i < avg {
			first += result.Recon / avg
		}
		if i >= steps-avg {
			last += result.Recon / avg
		}
	}

	if last >= 0.8*first {
		t.Errorf("reconstruction loss did not decrease: first(%v) last(%v)",
			first, last)
	}
}

func TestStepShapeError(t *testing.T) {
	tr, err := New(smallConfig(t), 4)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	window, err := rollouts(t, seqLen+1).Next(seqLen + 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Step(window); !dist.IsShapeError(err) {
		t.Errorf("step on long window: want shape error, have %v", err)
	}
}

func TestConfig(t *testing.T) {
	c := smallConfig(t)
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Config
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if err := decoded.Validate(); err != nil {
		t.Errorf("decoded config invalid: %v", err)
	}
	if decoded.Solver.Type != solver.Adam {
		t.Errorf("solver type: want(%v) have(%v)", solver.Adam,
			decoded.Solver.Type)
	}

	invalid := []func(*Config){
		func(c *Config) { c.Encoder.OutDim++ },
		func(c *Config) { c.Decoder.InDim++ },
		func(c *Config) { c.Encoder.InDim++ },
		func(c *Config) { c.Solver = nil },
		func(c *Config) { c.KLWeight = -1 },
		func(c *Config) { c.SeqLen = 0 },
	}
	for i, modify := range invalid {
		c := smallConfig(t)
		modify(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("config %v should be invalid", i)
		}
	}

	def, err := DefaultConfig([]int{gridworld.Channels, 7, 7},
		gridworld.NumActions)
	if err != nil {
		t.Fatal(err)
	}
	if err := def.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestSaveLoad(t *testing.T) {
	source, err := New(smallConfig(t), 5)
	if err != nil {
		t.Fatal(err)
	}
	defer source.Close()
	window, err := rollouts(t, seqLen).Next(seqLen)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := source.Step(window); err != nil {
		t.Fatal(err)
	}

	filename := filepath.Join(t.TempDir(), "weights.bin")
	if err := source.Save(filename); err != nil {
		t.Fatal(err)
	}

	dest, err := New(smallConfig(t), 6)
	if err != nil {
		t.Fatal(err)
	}
	defer dest.Close()
	if err := dest.Load(filename); err != nil {
		t.Fatal(err)
	}

	want, have := source.learnables(), dest.learnables()
	for i := range want {
		w := want[i].Value().Data().([]float64)
		h := have[i].Value().Data().([]float64)
		if !floats.Equal(w, h) {
			t.Errorf("%v: loaded weights differ from saved weights",
				want[i].Name())
		}
	}

	c := smallConfig(t)
	c.Core.DeterDim++
	c.Decoder.InDim++
	other, err := New(c, 7)
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()
	if err := other.Load(filename); err == nil {
		t.Error("load into a different architecture should fail")
	}
}
