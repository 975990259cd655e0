package distrib

import (
	"math"

	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// DiagNormal is an elementwise Gaussian: mean and variance tensors of
// identical shape, every entry independent. Layers hand these to the
// next consumer in channel-last layout, (n × O) or (p × n × O).
type DiagNormal struct {
	mean     *tensor.Dense
	variance *tensor.Dense
}

// NewDiagNormal builds the distribution. Variances must be non-negative;
// a zero entry denotes a degenerate (point mass) output, which sampling
// handles but log-prob scoring rejects.
func NewDiagNormal(mean, variance *tensor.Dense) (*DiagNormal, error) {
	if !mean.Shape().Eq(variance.Shape()) {
		return nil, errors.Errorf("mean %v and variance %v shapes differ", mean.Shape(), variance.Shape())
	}
	for _, v := range variance.Data().([]float64) {
		if v < 0 {
			return nil, errors.Errorf("negative variance %g", v)
		}
	}
	return &DiagNormal{mean: mean, variance: variance}, nil
}

func (d *DiagNormal) Shape() tensor.Shape { return d.mean.Shape() }

func (d *DiagNormal) Mean() *tensor.Dense { return d.mean }

func (d *DiagNormal) Variance() *tensor.Dense { return d.variance }

func (d *DiagNormal) HasRsample() bool { return true }

// Rsample draws μ + σz elementwise. n <= 1 returns a tensor of the
// distribution's own shape; n > 1 adds a leading replicate axis.
func (d *DiagNormal) Rsample(g *rng.GaussianGenerator, n int) (*tensor.Dense, error) {
	mu := d.mean.Data().([]float64)
	va := d.variance.Data().([]float64)

	reps := n
	if reps < 1 {
		reps = 1
	}
	size := len(mu)
	backing := make([]float64, reps*size)
	for s := 0; s < reps; s++ {
		for i := 0; i < size; i++ {
			backing[s*size+i] = mu[i] + math.Sqrt(va[i])*g.Gaussian(0, 1)
		}
	}
	if n <= 1 {
		return tensor.New(tensor.WithShape(d.mean.Shape().Clone()...), tensor.WithBacking(backing)), nil
	}
	shape := append(tensor.Shape{n}, d.mean.Shape().Clone()...)
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing)), nil
}

// LogProbs returns the elementwise log-density of x, which must match
// the distribution's shape.
func (d *DiagNormal) LogProbs(x *tensor.Dense) (*tensor.Dense, error) {
	if !x.Shape().Eq(d.mean.Shape()) {
		return nil, errors.Errorf("value %v does not match distribution %v", x.Shape(), d.mean.Shape())
	}
	mu := d.mean.Data().([]float64)
	va := d.variance.Data().([]float64)
	xs := x.Data().([]float64)

	backing := make([]float64, len(xs))
	for i := range xs {
		if va[i] == 0 {
			return nil, errors.Errorf("cannot score against a degenerate (zero variance) entry at %d", i)
		}
		diff := xs[i] - mu[i]
		backing[i] = -0.5 * (log2Pi + math.Log(va[i]) + diff*diff/va[i])
	}
	return tensor.New(tensor.WithShape(x.Shape().Clone()...), tensor.WithBacking(backing)), nil
}

// LogProb is the sum of LogProbs.
func (d *DiagNormal) LogProb(x *tensor.Dense) (float64, error) {
	lps, err := d.LogProbs(x)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, lp := range lps.Data().([]float64) {
		total += lp
	}
	return total, nil
}
