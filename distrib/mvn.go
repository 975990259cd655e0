package distrib

import (
	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

const log2Pi = 1.8378770664093453

// MultivariateNormal is a Gaussian over k function values, batched over
// independent output channels: mean is (channels × k) and the covariance
// of each channel is held as a Cholesky Factor. This is the belief both
// over inducing values (p(u), q(u)) in a deep GP layer.
type MultivariateNormal struct {
	mean   *tensor.Dense // channels × k
	factor *Factor
}

// NewMultivariateNormal builds the batched Gaussian from a
// (channels × k) mean and a matching Factor.
func NewMultivariateNormal(mean *tensor.Dense, factor *Factor) (*MultivariateNormal, error) {
	shape := mean.Shape()
	if len(shape) != 2 {
		return nil, errors.Errorf("mean must be (channels × k), got %v", shape)
	}
	if shape[0] != factor.Channels() || shape[1] != factor.Dim() {
		return nil, errors.Errorf("mean %v does not match factor (%d × %d × %d)",
			shape, factor.Channels(), factor.Dim(), factor.Dim())
	}
	return &MultivariateNormal{mean: mean, factor: factor}, nil
}

func (d *MultivariateNormal) Shape() tensor.Shape { return d.mean.Shape() }

func (d *MultivariateNormal) Mean() *tensor.Dense { return d.mean }

// Factor exposes the covariance factorization, shared with the layer's
// solve and inverse-quadratic-form steps.
func (d *MultivariateNormal) Factor() *Factor { return d.factor }

func (d *MultivariateNormal) HasRsample() bool { return true }

// Rsample draws joint samples x = μ + Lz with z ~ N(0, I), one per
// channel. n <= 1 returns (channels × k); n > 1 returns (n × channels × k)
// with the replicate axis leading.
func (d *MultivariateNormal) Rsample(g *rng.GaussianGenerator, n int) (*tensor.Dense, error) {
	channels, k := d.factor.Channels(), d.factor.Dim()
	mu := d.mean.Data().([]float64)

	reps := n
	if reps < 1 {
		reps = 1
	}
	backing := make([]float64, reps*channels*k)
	z := mat.NewVecDense(k, nil)
	var lz mat.VecDense
	for s := 0; s < reps; s++ {
		for c := 0; c < channels; c++ {
			for i := 0; i < k; i++ {
				z.SetVec(i, g.Gaussian(0, 1))
			}
			lz.MulVec(d.factor.Lower(c), z)
			for i := 0; i < k; i++ {
				backing[s*channels*k+c*k+i] = mu[c*k+i] + lz.AtVec(i)
			}
		}
	}
	if n <= 1 {
		return tensor.New(tensor.WithShape(channels, k), tensor.WithBacking(backing)), nil
	}
	return tensor.New(tensor.WithShape(n, channels, k), tensor.WithBacking(backing)), nil
}

// LogProb scores x, which is (channels × k) or (n × channels × k).
// Channels are summed; for the replicated form the result is the Monte
// Carlo average over the leading axis.
func (d *MultivariateNormal) LogProb(x *tensor.Dense) (float64, error) {
	channels, k := d.factor.Channels(), d.factor.Dim()
	shape := x.Shape()

	reps := 1
	switch len(shape) {
	case 2:
		if shape[0] != channels || shape[1] != k {
			return 0, errors.Errorf("value %v does not match distribution (%d × %d)", shape, channels, k)
		}
	case 3:
		if shape[1] != channels || shape[2] != k {
			return 0, errors.Errorf("value %v does not match distribution (%d × %d)", shape, channels, k)
		}
		reps = shape[0]
	default:
		return 0, errors.Errorf("value must be rank 2 or 3, got %v", shape)
	}

	xs := x.Data().([]float64)
	mu := d.mean.Data().([]float64)
	diff := make([]float64, k)
	var total float64
	for s := 0; s < reps; s++ {
		for c := 0; c < channels; c++ {
			for i := 0; i < k; i++ {
				diff[i] = xs[s*channels*k+c*k+i] - mu[c*k+i]
			}
			quad, err := d.factor.InvQuad(c, diff)
			if err != nil {
				return 0, err
			}
			total += -0.5 * (float64(k)*log2Pi + d.factor.LogDet(c) + quad)
		}
	}
	return total / float64(reps), nil
}
