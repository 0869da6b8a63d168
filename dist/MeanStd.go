package dist

import (
	"fmt"

	"github.com/samuelfneumann/worldmodel/utils/op"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ToMeanStd converts the raw output x of a network into a mean_std
// tensor. The first half of the last axis of x is used as the mean
// unchanged. The second half is passed through a softplus and offset
// by minStd, so that the standard deviation is never below minStd.
func ToMeanStd(x *G.Node, minStd float64) (*G.Node, error) {
	mean, rawStd, err := Split(x)
	if err != nil {
		return nil, fmt.Errorf("toMeanStd: %w", err)
	}

	std, err := op.Softplus(rawStd)
	if err != nil {
		return nil, fmt.Errorf("toMeanStd: could not compute softplus: %v",
			err)
	}
	std, err = G.Add(std, G.NewConstant(minStd))
	if err != nil {
		return nil, fmt.Errorf("toMeanStd: could not offset std: %v", err)
	}

	return Cat(mean, std)
}

// ZeroPriorLike returns a constant mean_std node with the same shape as
// meanStd, describing a standard normal: zero mean and unit standard
// deviation.
func ZeroPriorLike(meanStd *G.Node) (*G.Node, error) {
	shape := meanStd.Shape()
	width := shape[len(shape)-1]
	if width%2 != 0 {
		return nil, newShapeError("zeroPriorLike", shape, errOddWidth)
	}

	backing := make([]float64, shape.TotalSize())
	for i := range backing {
		// Within each row, the last half of the columns hold the std
		if i%width >= width/2 {
			backing[i] = 1.0
		}
	}
	prior := tensor.New(
		tensor.WithShape(shape.Clone()...),
		tensor.WithBacking(backing),
	)

	return G.NewConstant(prior, G.WithName("zero_prior")), nil
}
