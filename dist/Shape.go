// Package dist implements diagonal Gaussian distributions and the
// tensor shape helpers needed to move between a flat mean/standard
// deviation parameterization and the distribution itself.
//
// Throughout this package, a mean_std tensor is a tensor whose last
// axis has width 2S. The first S columns hold the mean and the last S
// columns hold the standard deviation of S independent Gaussians.
package dist

import (
	"fmt"

	"github.com/samuelfneumann/worldmodel/utils/tensorutils"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Split splits the last axis of x into two halves of equal width. For
// a mean_std tensor, the halves are the mean and standard deviation.
func Split(x *G.Node) (*G.Node, *G.Node, error) {
	width := x.Shape()[x.Dims()-1]
	if width%2 != 0 {
		return nil, nil, newShapeError("split", x.Shape(), errOddWidth)
	}

	parts, err := SplitSizes(x, width/2, width/2)
	if err != nil {
		return nil, nil, err
	}
	return parts[0], parts[1], nil
}

// SplitSizes splits the last axis of x into consecutive pieces of the
// given widths, which must sum to the width of the last axis of x.
func SplitSizes(x *G.Node, sizes ...int) ([]*G.Node, error) {
	width := x.Shape()[x.Dims()-1]
	total := 0
	for _, size := range sizes {
		if size <= 0 {
			return nil, newShapeError("splitSizes", x.Shape(), errSplitSizes)
		}
		total += size
	}
	if total != width {
		return nil, newShapeError("splitSizes", x.Shape(), errSplitSizes)
	}

	parts := make([]*G.Node, len(sizes))
	start := 0
	for i, size := range sizes {
		part, err := sliceLast(x, start, start+size)
		if err != nil {
			return nil, fmt.Errorf("splitSizes: could not slice piece %v: %v",
				i, err)
		}
		parts[i] = part
		start += size
	}
	return parts, nil
}

// sliceLast slices x[..., start:end]. Gorgonia drops sliced axes of
// size 1, so the slice is always reshaped back to keep every axis.
func sliceLast(x *G.Node, start, end int) (*G.Node, error) {
	slices := make([]tensor.Slice, x.Dims())
	slices[len(slices)-1] = tensorutils.NewSlice(start, end, 1)

	out, err := G.Slice(x, slices...)
	if err != nil {
		return nil, err
	}

	want := x.Shape().Clone()
	want[len(want)-1] = end - start
	return G.Reshape(out, want)
}

// Cat concatenates x1 and x2 along their last axis:
//
//	(..., A), (..., B) => (..., A+B)
func Cat(x1, x2 *G.Node) (*G.Node, error) {
	if x1.Dims() != x2.Dims() {
		return nil, newShapeError("cat", x2.Shape(), errMismatch)
	}
	last := x1.Dims() - 1
	for i := 0; i < last; i++ {
		if x1.Shape()[i] != x2.Shape()[i] {
			return nil, newShapeError("cat", x2.Shape(), errMismatch)
		}
	}

	return G.Concat(last, x1, x2)
}

// Flatten merges the first two axes of x:
//
//	(N, B, ...) => (N*B, ...)
func Flatten(x *G.Node) (*G.Node, error) {
	shape := x.Shape()
	if len(shape) < 2 {
		return nil, newShapeError("flatten", shape, errMismatch)
	}

	flat := append(tensor.Shape{shape[0] * shape[1]}, shape[2:]...)
	return G.Reshape(x, flat)
}

// Unflatten splits the first axis of x into n chunks, inverting
// Flatten:
//
//	(N*B, ...) => (N, B, ...)
func Unflatten(x *G.Node, n int) (*G.Node, error) {
	shape := x.Shape()
	if len(shape) < 1 || n <= 0 || shape[0]%n != 0 {
		return nil, newShapeError("unflatten", shape, errMismatch)
	}

	unflat := append(tensor.Shape{n, shape[0] / n}, shape[1:]...)
	return G.Reshape(x, unflat)
}

// Index returns x[t] along the first axis, with all remaining axes
// kept, even those of size 1. The slice is always reshaped since
// gorgonia may hold the slice of a (T, 1) tensor as a scalar:
//
//	(T, B, ...) => (B, ...)
func Index(x *G.Node, t int) (*G.Node, error) {
	shape := x.Shape()
	if len(shape) < 2 || t < 0 || t >= shape[0] {
		return nil, newShapeError("index", shape, errMismatch)
	}

	out, err := G.Slice(x, G.S(t))
	if err != nil {
		return nil, fmt.Errorf("index: %v", err)
	}

	return G.Reshape(out, shape[1:].Clone())
}

// Stack stacks nodes of equal shapes along a new first axis:
//
//	T x (B, ...) => (T, B, ...)
func Stack(nodes ...*G.Node) (*G.Node, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("stack: no nodes to stack")
	}
	shape := nodes[0].Shape()
	for _, n := range nodes[1:] {
		if !tensorutils.SameShape(n.Shape(), shape) {
			return nil, newShapeError("stack", n.Shape(), errMismatch)
		}
	}

	stacked := nodes[0]
	if len(nodes) > 1 {
		var err error
		if stacked, err = G.Concat(0, nodes...); err != nil {
			return nil, fmt.Errorf("stack: %v", err)
		}
	}

	want := append(tensor.Shape{len(nodes)}, shape...)
	return G.Reshape(stacked, want)
}

// Reset zeroes the rows of state of shape (B, K) whose entry in reset
// of shape (B) is 1. Entries of reset must be 0 or 1.
func Reset(state, reset *G.Node) (*G.Node, error) {
	if !state.IsMatrix() {
		return nil, newShapeError("reset", state.Shape(), errMismatch)
	}
	batch := state.Shape()[0]
	if reset.Shape().TotalSize() != batch {
		return nil, newShapeError("reset", reset.Shape(), errMismatch)
	}

	flags, err := G.Reshape(reset, tensor.Shape{batch})
	if err != nil {
		return nil, fmt.Errorf("reset: %v", err)
	}
	one := G.NewConstant(1.0)
	keep, err := G.Sub(one, flags)
	if err != nil {
		return nil, fmt.Errorf("reset: %v", err)
	}
	keep, err = G.Reshape(keep, tensor.Shape{batch, 1})
	if err != nil {
		return nil, fmt.Errorf("reset: %v", err)
	}

	return G.BroadcastHadamardProd(state, keep, nil, []byte{1})
}
