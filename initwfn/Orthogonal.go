package initwfn

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// OrthogonalConfig implements a configuration of the orthogonal
// initialization algorithm, which initializes a matrix of weights to a
// (semi-)orthogonal matrix scaled by Gain. This is the usual
// initialization for the hidden to hidden weights of recurrent cells.
type OrthogonalConfig struct {
	Gain float64
	Seed uint64
}

// NewOrthogonal returns a new orthogonal weight initializer
func NewOrthogonal(gain float64, seed uint64) (*InitWFn, error) {
	return New(OrthogonalConfig{Gain: gain, Seed: seed})
}

// Type returns the type of initialization algorithm described by
// the configuration.
func (o OrthogonalConfig) Type() Type {
	return Orthogonal
}

// Validate returns an error if the gain is not positive
func (o OrthogonalConfig) Validate() error {
	return validateGain(o.Gain)
}

// Create returns the weight initialization algorithm as a Gorgonia
// InitWFn
func (o OrthogonalConfig) Create() G.InitWFn {
	normal := distuv.Normal{
		Mu:    0,
		Sigma: 1,
		Src:   rand.NewSource(o.Seed),
	}

	return func(dt tensor.Dtype, s ...int) interface{} {
		weights := orthogonal(normal, o.Gain, s...)
		i := -1
		return fill(dt, len(weights), func() float64 {
			i++
			return weights[i]
		})
	}
}

// orthogonal returns the row-major data of a (semi-)orthogonal matrix
// of the given shape scaled by gain. Tensors with more than two
// dimensions are treated as a matrix with shape[0] rows.
func orthogonal(normal distuv.Normal, gain float64, shape ...int) []float64 {
	if len(shape) == 0 {
		panic("orthogonal: cannot initialize a scalar")
	}
	rows := shape[0]
	cols := 1
	for _, dim := range shape[1:] {
		cols *= dim
	}

	// Factorize a tall Gaussian matrix
	tall, wide := rows, cols
	if rows < cols {
		tall, wide = cols, rows
	}
	data := make([]float64, tall*wide)
	for i := range data {
		data[i] = normal.Rand()
	}
	var qr mat.QR
	qr.Factorize(mat.NewDense(tall, wide, data))

	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	// Make the factorization unique so that Q is uniformly distributed
	// over orthogonal matrices
	thin := mat.DenseCopyOf(q.Slice(0, tall, 0, wide))
	for j := 0; j < wide; j++ {
		scale := math.Copysign(gain, r.At(j, j))
		for i := 0; i < tall; i++ {
			thin.Set(i, j, scale*thin.At(i, j))
		}
	}

	var weights mat.Dense
	if rows < cols {
		weights.CloneFrom(thin.T())
	} else {
		weights.CloneFrom(thin)
	}
	return weights.RawMatrix().Data
}
