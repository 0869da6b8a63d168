// Package op provides extended Gorgonia graph operations.
//
// Adapted from aunum/G.ld on GitHub
package op

import (
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// keepDims returns the shape of a reduction of shape along axis with
// the reduced axis kept as a size 1 dimension.
func keepDims(shape tensor.Shape, along int) tensor.Shape {
	kept := shape.Clone()
	kept[along] = 1
	return kept
}

// LogSumExp calculates the log of the summation of exponentials of
// all logits along the given axis. The returned node has the axis
// along removed.
//
// Use this in place of Gorgonia's LogSumExp, which has the final sum
// and log interchanged, which is incorrect.
func LogSumExp(logits *G.Node, along int) *G.Node {
	max := G.Must(G.Max(logits, along))
	keptMax := G.Must(G.Reshape(max, keepDims(logits.Shape(), along)))

	pattern := []byte{byte(along)}
	exponent := G.Must(G.BroadcastSub(logits, keptMax, nil, pattern))
	exponent = G.Must(G.Exp(exponent))

	sum := G.Must(G.Sum(exponent, along))
	log := G.Must(G.Log(sum))

	return G.Must(G.Add(max, log))
}

// LogSoftmax calculates the log of the softmax of logits along the
// given axis. The shape of the returned node is the shape of logits.
func LogSoftmax(logits *G.Node, along int) *G.Node {
	lse := LogSumExp(logits, along)
	lse = G.Must(G.Reshape(lse, keepDims(logits.Shape(), along)))

	return G.Must(G.BroadcastSub(logits, lse, nil, []byte{byte(along)}))
}

// Softplus computes log(1 + exp(x)) elementwise. The computation is
// arranged as max(x, 0) + log(1 + exp(-|x|)) so that neither large
// positive nor large negative inputs overflow.
func Softplus(x *G.Node) (*G.Node, error) {
	one := G.NewConstant(1.0, G.WithName("softplus_one"))

	positive, err := G.Rectify(x)
	if err != nil {
		return nil, err
	}

	abs, err := G.Abs(x)
	if err != nil {
		return nil, err
	}
	negAbs, err := G.Neg(abs)
	if err != nil {
		return nil, err
	}
	exp, err := G.Exp(negAbs)
	if err != nil {
		return nil, err
	}
	onePlus, err := G.Add(exp, one)
	if err != nil {
		return nil, err
	}
	log, err := G.Log(onePlus)
	if err != nil {
		return nil, err
	}

	return G.Add(positive, log)
}

// ELU computes the exponential linear unit elementwise with α = 1:
//
//	ELU(x) = x            if x > 0
//	       = exp(x) - 1   otherwise
//
// computed as max(x, 0) + exp(min(x, 0)) - 1.
func ELU(x *G.Node) (*G.Node, error) {
	one := G.NewConstant(1.0, G.WithName("elu_one"))

	positive, err := G.Rectify(x)
	if err != nil {
		return nil, err
	}

	// min(x, 0) = -max(-x, 0)
	neg, err := G.Neg(x)
	if err != nil {
		return nil, err
	}
	negPart, err := G.Rectify(neg)
	if err != nil {
		return nil, err
	}
	negPart, err = G.Neg(negPart)
	if err != nil {
		return nil, err
	}
	exp, err := G.Exp(negPart)
	if err != nil {
		return nil, err
	}
	exp, err = G.Sub(exp, one)
	if err != nil {
		return nil, err
	}

	return G.Add(positive, exp)
}
