package environment

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SpecType determines what kind of specification a Spec is. A Spec can
// specify the layout of an action, an observation, a discount, or a
// reward
type SpecType int

const (
	Action SpecType = iota
	Observation
	Discount
	Reward
)

// Cardinality determines the cardinality of a number (discrete or
// continuous)
type Cardinality string

const (
	Continuous Cardinality = "Continuous"
	Discrete   Cardinality = "Discrete"
)

// Spec implements an environment specification, which tells the type,
// shape, and bounds of an action, observation, discount, or reward in
// an environment. For observations of a world model, Shape holds the
// dimensions of the observation, e.g. (C, H, W) for image-like
// observations, and the bounds hold the range of each element.
type Spec struct {
	Shape      mat.Vector
	Type       SpecType
	LowerBound mat.Vector
	UpperBound mat.Vector
	Cardinality
}

// NewSpec constructs a new environment specification
// The shape argument outlines the shape of the data described by the
// specification. The argument t outlines what the specification is
// describing (e.g. actions, observations, etc.). The cardinality
// arguments describes whether the values that the spec describes are
// continuous or discrete.
func NewSpec(shape mat.Vector, t SpecType, lowerBound,
	upperBound mat.Vector, cardinality Cardinality) Spec {
	if lowerBound.Len() != upperBound.Len() {
		panic(fmt.Sprintf("lower bounds length %v must match upper "+
			"bounds length %v", lowerBound.Len(), upperBound.Len()))
	}
	return Spec{shape, t, lowerBound, upperBound, cardinality}
}

// Dims returns the shape of the spec as integer dimensions
func (s Spec) Dims() []int {
	dims := make([]int, s.Shape.Len())
	for i := range dims {
		dims[i] = int(s.Shape.AtVec(i))
	}
	return dims
}

// Size returns the total number of elements described by the spec
func (s Spec) Size() int {
	size := 1
	for _, dim := range s.Dims() {
		size *= dim
	}
	return size
}
