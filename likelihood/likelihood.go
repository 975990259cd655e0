// Package likelihood maps latent GP function values to observations.
package likelihood

import (
	"math"

	"github.com/lrast/deepgp/distrib"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
	"gorgonia.org/tensor"
)

// Likelihood scores observations against an uncertain latent function.
// ExpectedLogProb integrates the observation log-density against the
// Gaussian f, elementwise: the result has the target's shape.
type Likelihood interface {
	ExpectedLogProb(target *tensor.Dense, f *distrib.DiagNormal) (*tensor.Dense, error)
}

// Gaussian is the homoskedastic Gaussian observation model
// y = f + ε, ε ~ N(0, Noise). Its expected log-prob is analytic:
//
//	E[log N(y | f, σ²)] = log N(y | μ, σ²) − v / 2σ²
//
// for f ~ N(μ, v), so no quadrature is needed.
type Gaussian struct {
	Noise float64 // observation noise variance σ², must be positive
}

func (g Gaussian) ExpectedLogProb(target *tensor.Dense, f *distrib.DiagNormal) (*tensor.Dense, error) {
	if g.Noise <= 0 {
		return nil, errors.Errorf("noise variance must be positive, got %g", g.Noise)
	}
	if !target.Shape().Eq(f.Shape()) {
		return nil, errors.Errorf("target %v does not match function distribution %v", target.Shape(), f.Shape())
	}

	ys := target.Data().([]float64)
	mu := f.Mean().Data().([]float64)
	va := f.Variance().Data().([]float64)

	norm := distuv.Normal{Sigma: math.Sqrt(g.Noise)}
	backing := make([]float64, len(ys))
	for i := range ys {
		norm.Mu = mu[i]
		backing[i] = norm.LogProb(ys[i]) - va[i]/(2*g.Noise)
	}
	return tensor.New(tensor.WithShape(target.Shape().Clone()...), tensor.WithBacking(backing)), nil
}
