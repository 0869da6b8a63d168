package dist

import (
	"errors"
	"fmt"

	"github.com/samuelfneumann/worldmodel/utils/tensorutils"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ShapeError reports a tensor shape that violates the precondition of
// a distribution or shape operation.
type ShapeError struct {
	Op   string
	Want tensor.Shape // nil if no single shape is expected
	Have tensor.Shape
	Err  error
}

// Error satisfies the error interface
func (e *ShapeError) Error() string {
	if e.Want != nil {
		return fmt.Sprintf("%v: %v \n\twant(%v) \n\thave(%v)", e.Op, e.Err,
			e.Want, e.Have)
	}
	return fmt.Sprintf("%v: shape %v: %v", e.Op, e.Have, e.Err)
}

// Unwrap returns the underlying error
func (e *ShapeError) Unwrap() error {
	return e.Err
}

var errOddWidth = errors.New("last axis must have even width")

var errSplitSizes = errors.New("split sizes must sum to the last axis width")

var errMismatch = errors.New("leading dimensions do not match")

var errUnexpected = errors.New("unexpected shape")

var errNilNode = errors.New("missing input node")

// IsShapeError returns whether or not err, or any error it wraps, is a
// *ShapeError.
func IsShapeError(err error) bool {
	var shapeErr *ShapeError
	return errors.As(err, &shapeErr)
}

// newShapeError returns a *ShapeError for op on a tensor of shape have.
func newShapeError(op string, have tensor.Shape, err error) *ShapeError {
	return &ShapeError{Op: op, Have: have.Clone(), Err: err}
}

// CheckShape returns a *ShapeError reporting op if the shape of x is
// not want, and nil otherwise.
func CheckShape(op string, x *G.Node, want ...int) error {
	if x == nil {
		return &ShapeError{Op: op, Want: want, Err: errNilNode}
	}
	if !tensorutils.SameShape(x.Shape(), tensor.Shape(want)) {
		return &ShapeError{
			Op:   op,
			Want: tensor.Shape(want).Clone(),
			Have: x.Shape().Clone(),
			Err:  errUnexpected,
		}
	}
	return nil
}
