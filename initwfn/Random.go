package initwfn

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ConstantConfig describes an initializer setting every weight to
// Value. Zero is the usual choice for biases.
type ConstantConfig struct {
	Value float64
}

// NewConstant returns a new constant weight initializer
func NewConstant(value float64) (*InitWFn, error) {
	return New(ConstantConfig{Value: value})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (c ConstantConfig) Type() Type {
	return Constant
}

// Validate returns an error if the constant is not finite
func (c ConstantConfig) Validate() error {
	if math.IsInf(c.Value, 0) || math.IsNaN(c.Value) {
		return fmt.Errorf("value must be finite, have %v", c.Value)
	}
	return nil
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (c ConstantConfig) Create() G.InitWFn {
	return func(dt tensor.Dtype, s ...int) interface{} {
		return fill(dt, tensor.Shape(s).TotalSize(), func() float64 {
			return c.Value
		})
	}
}

// UniformConfig describes an initializer drawing weights uniformly
// from [Low, High) independently of the shape of the weights.
type UniformConfig struct {
	Low, High float64
	Seed      uint64
}

// NewUniform returns a new uniform weight initializer
func NewUniform(low, high float64, seed uint64) (*InitWFn, error) {
	return New(UniformConfig{Low: low, High: high, Seed: seed})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (u UniformConfig) Type() Type {
	return Uniform
}

// Validate returns an error if the interval is empty
func (u UniformConfig) Validate() error {
	if !(u.Low < u.High) || math.IsInf(u.High-u.Low, 0) {
		return fmt.Errorf("need finite low < high, have [%v, %v)", u.Low,
			u.High)
	}
	return nil
}

func (u UniformConfig) Create() G.InitWFn {
	dist := distuv.Uniform{Min: u.Low, Max: u.High, Src: rand.NewSource(u.Seed)}
	return func(dt tensor.Dtype, s ...int) interface{} {
		return fill(dt, tensor.Shape(s).TotalSize(), dist.Rand)
	}
}

// GaussianConfig describes an initializer drawing weights from a
// Gaussian independently of the shape of the weights
type GaussianConfig struct {
	Mean, StdDev float64
	Seed         uint64
}

// NewGaussian returns a new Gaussian weight initializer
func NewGaussian(mean, stddev float64, seed uint64) (*InitWFn, error) {
	return New(GaussianConfig{Mean: mean, StdDev: stddev, Seed: seed})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (g GaussianConfig) Type() Type {
	return Gaussian
}

// Validate returns an error if the standard deviation is not positive
func (g GaussianConfig) Validate() error {
	if !(g.StdDev > 0) || math.IsInf(g.StdDev, 0) {
		return fmt.Errorf("standard deviation must be finite and > 0, "+
			"have %v", g.StdDev)
	}
	return nil
}

func (g GaussianConfig) Create() G.InitWFn {
	dist := distuv.Normal{Mu: g.Mean, Sigma: g.StdDev,
		Src: rand.NewSource(g.Seed)}
	return func(dt tensor.Dtype, s ...int) interface{} {
		return fill(dt, tensor.Shape(s).TotalSize(), dist.Rand)
	}
}
