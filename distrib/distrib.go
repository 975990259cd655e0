// Package distrib provides the Gaussian distribution types used by deep GP
// layers: a channel-batched multivariate normal over inducing values, a
// diagonal normal over predictive outputs, and the jittered Cholesky factor
// both are built on.
package distrib

import (
	rng "github.com/leesper/go_rng"
	"gorgonia.org/tensor"
)

// Distribution is the common surface of the distribution types here.
type Distribution interface {
	Shape() tensor.Shape
	Mean() *tensor.Dense
}

// Sampler generates reparameterized samples. n is the number of
// replicates to draw: n <= 1 yields a tensor of the distribution's own
// shape, n > 1 adds a leading replicate axis.
type Sampler interface {
	Distribution
	Rsample(g *rng.GaussianGenerator, n int) (*tensor.Dense, error)
	HasRsample() bool
}

// LogProber scores a value under the distribution, returning the total
// log-probability.
type LogProber interface {
	LogProb(x *tensor.Dense) (float64, error)
}
