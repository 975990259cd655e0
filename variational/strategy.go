// Package variational holds the inducing-point variational strategy of a
// sparse GP layer: the inducing locations and the Cholesky-parameterized
// approximate posterior over their function values.
package variational

import (
	"github.com/lrast/deepgp/distrib"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Strategy owns the per-layer inducing configuration: m inducing
// locations per output channel, each of the layer's input
// dimensionality, plus the variational distribution over their function
// values. Layers read it; only an optimizer mutates it, strictly
// between passes.
type Strategy struct {
	inducing *tensor.Dense // channels × m × d
	q        *CholeskyVariationalDistribution
}

// NewStrategy builds a strategy from a (channels × m × d) tensor of
// inducing locations. The variational distribution starts at the
// standard normal (zero mean, identity scale) per channel.
func NewStrategy(inducing *tensor.Dense) (*Strategy, error) {
	shape := inducing.Shape()
	if len(shape) != 3 {
		return nil, errors.Errorf("inducing points must be (channels × m × d), got %v", shape)
	}
	return &Strategy{
		inducing: inducing,
		q:        newCholeskyVariational(shape[0], shape[1]),
	}, nil
}

// InducingPoints returns the (channels × m × d) inducing locations.
// Callers must treat the tensor as read-only.
func (s *Strategy) InducingPoints() *tensor.Dense { return s.inducing }

// Channels returns the number of independent output channels.
func (s *Strategy) Channels() int { return s.inducing.Shape()[0] }

// NumInducing returns m.
func (s *Strategy) NumInducing() int { return s.inducing.Shape()[1] }

// InputDims returns the dimensionality of the inducing locations.
func (s *Strategy) InputDims() int { return s.inducing.Shape()[2] }

// VariationalDistribution materializes the current variational
// posterior q(u) as a batched multivariate normal. It is rebuilt on
// each call since the underlying parameters may have been updated
// between passes.
func (s *Strategy) VariationalDistribution() (*distrib.MultivariateNormal, error) {
	factor, err := distrib.FromLower(s.q.scale)
	if err != nil {
		return nil, errors.Wrap(err, "variational scale")
	}
	return distrib.NewMultivariateNormal(s.q.mean, factor)
}

// Variational returns the raw variational parameters for an optimizer.
func (s *Strategy) Variational() *CholeskyVariationalDistribution { return s.q }

// CholeskyVariationalDistribution parameterizes q(u) per channel by a
// free mean and a free lower-triangular scale L, covariance = LLᵀ.
type CholeskyVariationalDistribution struct {
	mean  *tensor.Dense // channels × m
	scale *tensor.Dense // channels × m × m, lower triangular
}

func newCholeskyVariational(channels, m int) *CholeskyVariationalDistribution {
	scale := make([]float64, channels*m*m)
	for c := 0; c < channels; c++ {
		for i := 0; i < m; i++ {
			scale[c*m*m+i*m+i] = 1
		}
	}
	return &CholeskyVariationalDistribution{
		mean:  tensor.New(tensor.WithShape(channels, m), tensor.WithBacking(make([]float64, channels*m))),
		scale: tensor.New(tensor.WithShape(channels, m, m), tensor.WithBacking(scale)),
	}
}

// Mean returns the (channels × m) variational mean parameter.
func (q *CholeskyVariationalDistribution) Mean() *tensor.Dense { return q.mean }

// ScaleTril returns the (channels × m × m) lower-triangular scale
// parameter. Entries above the diagonal are ignored.
func (q *CholeskyVariationalDistribution) ScaleTril() *tensor.Dense { return q.scale }
