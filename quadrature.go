package deepgp

import (
	rng "github.com/leesper/go_rng"
	"github.com/lrast/deepgp/distrib"
	"github.com/lrast/deepgp/likelihood"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrSampleUnsupported is returned by QuadratureDist.Rsample: the
// adapter exists only to score observations, never to generate them.
var ErrSampleUnsupported = errors.New("sampling from a quadrature distribution is not supported")

// QuadratureDist adapts a likelihood and a predictive function
// distribution into something an observation site can score against:
// its log-probability is the expected log-likelihood of the target
// under F. When F carries a leading Monte Carlo particle axis that the
// target lacks, particles are averaged.
type QuadratureDist struct {
	Likelihood likelihood.Likelihood
	F          *distrib.DiagNormal
}

func (q *QuadratureDist) LogProb(target *tensor.Dense) (float64, error) {
	fshape := q.F.Shape()
	tshape := target.Shape()

	if len(fshape) == len(tshape)+1 {
		p := fshape[0]
		size := tshape.TotalSize()
		mu := q.F.Mean().Data().([]float64)
		va := q.F.Variance().Data().([]float64)
		if len(mu) != p*size {
			return 0, errors.Errorf("function distribution %v does not broadcast onto target %v", fshape, tshape)
		}
		var total float64
		for s := 0; s < p; s++ {
			f, err := distrib.NewDiagNormal(
				tensor.New(tensor.WithShape(tshape.Clone()...), tensor.WithBacking(mu[s*size:(s+1)*size])),
				tensor.New(tensor.WithShape(tshape.Clone()...), tensor.WithBacking(va[s*size:(s+1)*size])),
			)
			if err != nil {
				return 0, err
			}
			lp, err := q.sum(target, f)
			if err != nil {
				return 0, err
			}
			total += lp
		}
		return total / float64(p), nil
	}

	return q.sum(target, q.F)
}

func (q *QuadratureDist) sum(target *tensor.Dense, f *distrib.DiagNormal) (float64, error) {
	elp, err := q.Likelihood.ExpectedLogProb(target, f)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, v := range elp.Data().([]float64) {
		total += v
	}
	return total, nil
}

// Rsample always fails; see ErrSampleUnsupported.
func (q *QuadratureDist) Rsample(_ *rng.GaussianGenerator, _ int) (*tensor.Dense, error) {
	return nil, ErrSampleUnsupported
}
