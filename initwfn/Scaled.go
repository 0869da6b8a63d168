package initwfn

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// scaled returns an InitWFn drawing weights with standard deviation
// gain * sqrt(2 / fan), where fan is computed from the shape of the
// weights. Weights are uniform on [-sqrt(3) std, sqrt(3) std] if
// uniform is set and Gaussian otherwise.
func scaled(gain float64, seed uint64, uniform bool,
	fan func(in, out int) float64) G.InitWFn {
	src := rand.NewSource(seed)

	return func(dt tensor.Dtype, s ...int) interface{} {
		std := gain * math.Sqrt(2/fan(fans(s...)))

		var next func() float64
		if uniform {
			limit := math.Sqrt(3) * std
			next = distuv.Uniform{Min: -limit, Max: limit, Src: src}.Rand
		} else {
			next = distuv.Normal{Mu: 0, Sigma: std, Src: src}.Rand
		}
		return fill(dt, tensor.Shape(s).TotalSize(), next)
	}
}

func fanAvg(in, out int) float64 { return float64(in+out) }

func fanIn(in, _ int) float64 { return float64(in) }

func validateGain(gain float64) error {
	if gain <= 0 || math.IsInf(gain, 0) || math.IsNaN(gain) {
		return fmt.Errorf("gain must be finite and > 0, have %v", gain)
	}
	return nil
}

// GlorotUConfig describes Glorot uniform initialization, which scales
// weights by the average of the fan in and fan out.
type GlorotUConfig struct {
	Gain float64
	Seed uint64
}

// NewGlorotU returns a new Glorot uniform weight initializer
func NewGlorotU(gain float64, seed uint64) (*InitWFn, error) {
	return New(GlorotUConfig{Gain: gain, Seed: seed})
}

func (g GlorotUConfig) Type() Type      { return GlorotU }
func (g GlorotUConfig) Validate() error { return validateGain(g.Gain) }

func (g GlorotUConfig) Create() G.InitWFn {
	return scaled(g.Gain, g.Seed, true, fanAvg)
}

// GlorotNConfig describes Glorot normal initialization
type GlorotNConfig struct {
	Gain float64
	Seed uint64
}

// NewGlorotN returns a new Glorot normal weight initializer
func NewGlorotN(gain float64, seed uint64) (*InitWFn, error) {
	return New(GlorotNConfig{Gain: gain, Seed: seed})
}

func (g GlorotNConfig) Type() Type      { return GlorotN }
func (g GlorotNConfig) Validate() error { return validateGain(g.Gain) }

func (g GlorotNConfig) Create() G.InitWFn {
	return scaled(g.Gain, g.Seed, false, fanAvg)
}

// HeUConfig describes He uniform initialization, which scales weights
// by the fan in only and so suits layers followed by rectifiers.
type HeUConfig struct {
	Gain float64
	Seed uint64
}

// NewHeU returns a new He uniform weight initializer
func NewHeU(gain float64, seed uint64) (*InitWFn, error) {
	return New(HeUConfig{Gain: gain, Seed: seed})
}

func (h HeUConfig) Type() Type      { return HeU }
func (h HeUConfig) Validate() error { return validateGain(h.Gain) }

func (h HeUConfig) Create() G.InitWFn {
	return scaled(h.Gain, h.Seed, true, fanIn)
}

// HeNConfig describes He normal initialization
type HeNConfig struct {
	Gain float64
	Seed uint64
}

// NewHeN returns a new He normal weight initializer
func NewHeN(gain float64, seed uint64) (*InitWFn, error) {
	return New(HeNConfig{Gain: gain, Seed: seed})
}

func (h HeNConfig) Type() Type      { return HeN }
func (h HeNConfig) Validate() error { return validateGain(h.Gain) }

func (h HeNConfig) Create() G.InitWFn {
	return scaled(h.Gain, h.Seed, false, fanIn)
}
