// Package tensorutils provides utilities for slicing tensors and for
// moving values out of computational graphs.
package tensorutils

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Slice implements a struct that can be used for slicing tensors.
//
// Given a tensor T and a Slice S, T.Slice(..., S, ...) is equivalent to
// T[..., S.start:S.end:S.step, ...]
type Slice struct {
	start, end, step int
}

// Start returns the start index for the tensor slice
func (s Slice) Start() int {
	return s.start
}

// End returns the ending index for the tensor slice
func (s Slice) End() int {
	return s.end
}

// Step returns the step for the tensor slice
func (s Slice) Step() int {
	return s.step
}

// NewSlice returns a new Slice that can be used to slice tensors
func NewSlice(start, stop, step int) Slice {
	return Slice{start, stop, step}
}

// SameShape returns whether a and b have the same number of axes and
// the same size along each axis. Unlike tensor.Shape.Eq, a vector of
// size N is not the same shape as an (N, 1) or (1, N) matrix.
func SameShape(a, b tensor.Shape) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Clone copies a value out of a graph. The copy does not share memory
// with the graph, so it is unaffected by later runs of the graph and
// can be fed back into the graph as an input.
func Clone(v G.Value) *tensor.Dense {
	return v.(*tensor.Dense).Clone().(*tensor.Dense)
}

// Scalar returns the float64 held by a scalar value. Gorgonia may hold
// a scalar either as a float64 or as a one element tensor.
func Scalar(v G.Value) float64 {
	switch data := v.Data().(type) {
	case float64:
		return data
	case []float64:
		if len(data) == 1 {
			return data[0]
		}
	}
	panic(fmt.Sprintf("scalar: value %v is not a float64 scalar", v))
}
