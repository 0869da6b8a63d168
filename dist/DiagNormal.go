package dist

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/worldmodel/utils/tensorutils"
	G "gorgonia.org/gorgonia"
)

// DiagNormal is a multivariate Gaussian with diagonal covariance over
// the last axis of its parameters. All leading axes are batch axes, so
// that log probabilities, entropies, and KL divergences are summed over
// the last (event) axis only, leaving one value per batch element.
type DiagNormal struct {
	mean *G.Node
	std  *G.Node
}

// NewDiagNormal returns the diagonal Gaussian described by a mean_std
// node.
func NewDiagNormal(meanStd *G.Node) (*DiagNormal, error) {
	mean, std, err := Split(meanStd)
	if err != nil {
		return nil, fmt.Errorf("newDiagNormal: %w", err)
	}
	return &DiagNormal{mean: mean, std: std}, nil
}

// Mean returns the node holding the mean of the distribution
func (d *DiagNormal) Mean() *G.Node {
	return d.mean
}

// Std returns the node holding the standard deviation of the
// distribution
func (d *DiagNormal) Std() *G.Node {
	return d.std
}

// eventAxis returns the axis that is summed over in reductions
func (d *DiagNormal) eventAxis() int {
	return d.mean.Dims() - 1
}

// Rsample adds a reparameterized sample to the graph. The sample is
// computed as μ + σ ⊙ ɛ, where ɛ is the noise node, which should hold
// draws from a standard normal with the same shape as the mean. Since
// the sample is a deterministic function of μ and σ, gradients flow
// through the sample into the distribution parameters.
func (d *DiagNormal) Rsample(noise *G.Node) (*G.Node, error) {
	if !tensorutils.SameShape(noise.Shape(), d.mean.Shape()) {
		return nil, newShapeError("rsample", noise.Shape(), errMismatch)
	}

	scaled, err := G.HadamardProd(d.std, noise)
	if err != nil {
		return nil, fmt.Errorf("rsample: could not scale noise: %v", err)
	}
	return G.Add(d.mean, scaled)
}

// LogProb adds the log density of x to the graph. The returned node
// has the shape of x with the event axis removed.
func (d *DiagNormal) LogProb(x *G.Node) (*G.Node, error) {
	if !tensorutils.SameShape(x.Shape(), d.mean.Shape()) {
		return nil, newShapeError("logProb", x.Shape(), errMismatch)
	}

	negativeHalf := G.NewConstant(-0.5)
	logSqrt2Pi := G.NewConstant(0.5 * math.Log(2*math.Pi))

	// -(1/2) ((x - μ) / σ)²
	z := G.Must(G.Sub(x, d.mean))
	z = G.Must(G.HadamardDiv(z, d.std))
	exponent := G.Must(G.Square(z))
	exponent = G.Must(G.HadamardProd(negativeHalf, exponent))

	// log σ + log √(2π)
	terms := G.Must(G.Log(d.std))
	terms = G.Must(G.Add(terms, logSqrt2Pi))

	logProb := G.Must(G.Sub(exponent, terms))
	return G.Sum(logProb, d.eventAxis())
}

// Entropy adds the differential entropy of the distribution to the
// graph
func (d *DiagNormal) Entropy() (*G.Node, error) {
	constant := G.NewConstant(0.5 + 0.5*math.Log(2*math.Pi))

	entropy := G.Must(G.Log(d.std))
	entropy = G.Must(G.Add(entropy, constant))
	return G.Sum(entropy, d.eventAxis())
}

// KL adds the Kullback-Leibler divergence KL(p || q) between two
// diagonal Gaussians of the same shape to the graph:
//
//	KL(p || q) = Σ log(σq / σp) + (σp² + (μp - μq)²) / (2σq²) - 1/2
//
// where the sum is over the event axis.
func KL(p, q *DiagNormal) (*G.Node, error) {
	if !tensorutils.SameShape(p.mean.Shape(), q.mean.Shape()) {
		return nil, newShapeError("kl", q.mean.Shape(), errMismatch)
	}

	half := G.NewConstant(0.5)
	two := G.NewConstant(2.0)

	logRatio := G.Must(G.Log(q.std))
	logRatio = G.Must(G.Sub(logRatio, G.Must(G.Log(p.std))))

	diff := G.Must(G.Sub(p.mean, q.mean))
	num := G.Must(G.Add(G.Must(G.Square(p.std)), G.Must(G.Square(diff))))
	den := G.Must(G.Square(q.std))
	den = G.Must(G.HadamardProd(two, den))

	kl := G.Must(G.HadamardDiv(num, den))
	kl = G.Must(G.Add(logRatio, kl))
	kl = G.Must(G.Sub(kl, half))

	return G.Sum(kl, p.eventAxis())
}
