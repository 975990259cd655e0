package deepgp

import (
	"github.com/lrast/deepgp/distrib"
	"github.com/lrast/deepgp/kernel"
	"github.com/lrast/deepgp/pp"
	"github.com/lrast/deepgp/variational"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// negVarTol is how negative a raw predictive variance may come out
// before it stops being floating-point noise and becomes an error.
const negVarTol = 1e-8

// HiddenLayer is one sparse variational GP layer of a deep GP. It owns
// its GP prior (kernel and mean function) and reads its inducing
// configuration from a variational strategy. Each of the OutputDims
// channels is an independent GP over the same inputs.
//
// Internally all computation is channel-first; results are moved to
// channel-last layout only at the point of handing them to the next
// consumer.
type HiddenLayer struct {
	conf     LayerConfig
	name     string
	strategy *variational.Strategy
	kern     kernel.Kernel
	mean     kernel.Mean

	site         pp.Site
	channelPlate pp.Plate
}

// NewHiddenLayer builds a layer. The mean function may be nil, in which
// case the zero mean is used. The strategy's inducing configuration
// must agree with conf.
func NewHiddenLayer(name string, conf LayerConfig, s *variational.Strategy, k kernel.Kernel, mean kernel.Mean) (*HiddenLayer, error) {
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid layer config %+v", conf)
	}
	if s.Channels() != conf.OutputDims {
		return nil, DimensionMismatchError{What: name + " inducing channels", Got: s.Channels(), Want: conf.OutputDims}
	}
	if s.NumInducing() != conf.NumInducing {
		return nil, DimensionMismatchError{What: name + " inducing count", Got: s.NumInducing(), Want: conf.NumInducing}
	}
	if s.InputDims() != conf.InputDims {
		return nil, DimensionMismatchError{What: name + " inducing dimensionality", Got: s.InputDims(), Want: conf.InputDims}
	}
	if mean == nil {
		mean = kernel.Zero{}
	}
	return &HiddenLayer{
		conf:         conf,
		name:         name,
		strategy:     s,
		kern:         k,
		mean:         mean,
		site:         pp.NewSite(name, "inducing_values"),
		channelPlate: pp.Plate{Name: name + ".channels", Size: conf.OutputDims, Dim: -2},
	}, nil
}

func (l *HiddenLayer) Name() string { return l.name }

func (l *HiddenLayer) InputDims() int { return l.conf.InputDims }

func (l *HiddenLayer) OutputDims() int { return l.conf.OutputDims }

// Site identifies the layer's inducing-value sample site. The guide and
// the model register the same site, which is what lets a replayed model
// pass pick up the guide's samples.
func (l *HiddenLayer) Site() pp.Site { return l.site }

// Strategy returns the layer's variational strategy.
func (l *HiddenLayer) Strategy() *variational.Strategy { return l.strategy }

// Guide draws one joint sample of inducing values per channel from the
// current variational posterior and registers it on the trace. The
// returned tensor is (OutputDims × m).
func (l *HiddenLayer) Guide(t *pp.Trace) (*tensor.Dense, error) {
	q, err := l.strategy.VariationalDistribution()
	if err != nil {
		return nil, err
	}
	var u *tensor.Dense
	err = t.WithPlate(l.channelPlate, func() error {
		var err error
		u, err = t.Sample(l.site, q, 0)
		return err
	})
	return u, err
}

// Model runs the layer's generative pass over inputs, which are
// (n × InputDims) or, when carrying p Monte Carlo samples from an
// earlier layer, (p × n × InputDims).
//
// With returnSamples true it draws from the predictive distribution and
// returns a (n × OutputDims) or (p × n × OutputDims) tensor shaped for
// the next layer; the distribution result is nil. With returnSamples
// false it returns the predictive distribution itself (used by the
// terminal layer feeding the observation model); the sample result is
// nil.
func (l *HiddenLayer) Model(t *pp.Trace, inputs *tensor.Dense, returnSamples bool) (*tensor.Dense, *distrib.DiagNormal, error) {
	dist, err := l.predictive(t, inputs)
	if err != nil {
		return nil, nil, err
	}
	if !returnSamples {
		return nil, dist, nil
	}
	samples, err := dist.Rsample(t.Gaussian(), 1)
	if err != nil {
		return nil, nil, err
	}
	return samples, nil, nil
}

// predictive implements the inducing-point conditional. Steps, per
// channel: evaluate the joint prior over [inducing ++ inputs]; factor
// the K_mm block with jitter; sample p(u); solve K_mm⁻¹u; predictive
// mean K_xu K_uu⁻¹ u and diagonal variance diag(K_xx) − invquad,
// clamped at zero.
func (l *HiddenLayer) predictive(t *pp.Trace, inputs *tensor.Dense) (*distrib.DiagNormal, error) {
	shape := inputs.Shape()
	var p, n int
	switch len(shape) {
	case 2:
		n = shape[0]
	case 3:
		p, n = shape[0], shape[1]
	default:
		return nil, InvalidInputShapeError{Shape: shape, InputDims: l.conf.InputDims}
	}
	if shape[len(shape)-1] != l.conf.InputDims {
		return nil, InvalidInputShapeError{Shape: shape, InputDims: l.conf.InputDims}
	}

	reps := p
	if reps == 0 {
		reps = 1
	}
	// flatten any sample axis into the data axis; flat index j = s*n + i
	N := reps * n
	m := l.conf.NumInducing
	C := l.conf.OutputDims
	d := l.conf.InputDims
	xs := inputs.Data().([]float64)
	zs := l.strategy.InducingPoints().Data().([]float64)

	// joint prior over [inducing ++ inputs], split into the
	// inducing-inducing block, the inducing-data block, and the
	// data-data diagonal (the off-diagonal of K_xx is never needed)
	inducMean := make([]float64, C*m)
	kmm := make([]float64, C*m*m)
	kmx := make([]float64, C*m*N)
	diagKxx := make([]float64, C*N)
	for c := 0; c < C; c++ {
		for a := 0; a < m; a++ {
			za := zs[(c*m+a)*d : (c*m+a+1)*d]
			inducMean[c*m+a] = l.mean.Mean(za)
			for b := a; b < m; b++ {
				zb := zs[(c*m+b)*d : (c*m+b+1)*d]
				v := l.kern.Cov(za, zb)
				kmm[c*m*m+a*m+b] = v
				kmm[c*m*m+b*m+a] = v
			}
			for j := 0; j < N; j++ {
				kmx[(c*m+a)*N+j] = l.kern.Cov(za, xs[j*d:(j+1)*d])
			}
		}
		for j := 0; j < N; j++ {
			xj := xs[j*d : (j+1)*d]
			diagKxx[c*N+j] = l.kern.Cov(xj, xj)
		}
	}

	factor, err := distrib.Cholesky(
		tensor.New(tensor.WithShape(C, m, m), tensor.WithBacking(kmm)),
		l.conf.Jitter,
	)
	if err != nil {
		return nil, NumericalInstabilityError{Op: "factoring the inducing covariance", Cause: err}
	}

	// p(u), sampled once per upstream Monte Carlo replicate
	prior, err := distrib.NewMultivariateNormal(
		tensor.New(tensor.WithShape(C, m), tensor.WithBacking(inducMean)),
		factor,
	)
	if err != nil {
		return nil, err
	}
	var u *tensor.Dense
	if err := t.WithPlate(l.channelPlate, func() error {
		var err error
		u, err = t.Sample(l.site, prior, p)
		return err
	}); err != nil {
		return nil, err
	}
	uflat := u.Data().([]float64)
	switch len(uflat) {
	case reps * C * m:
	case C * m:
		// a replayed guide value carries no replicate axis; broadcast
		// it across the upstream Monte Carlo samples
		tiled := make([]float64, reps*C*m)
		for s := 0; s < reps; s++ {
			copy(tiled[s*C*m:(s+1)*C*m], uflat)
		}
		uflat = tiled
	default:
		return nil, DimensionMismatchError{What: l.name + " inducing sample size", Got: len(uflat), Want: reps * C * m}
	}

	// K_mm⁻¹u per replicate and channel
	solves := make([][]float64, reps*C)
	for s := 0; s < reps; s++ {
		for c := 0; c < C; c++ {
			sv, err := factor.SolveVec(c, uflat[(s*C+c)*m:(s*C+c+1)*m])
			if err != nil {
				return nil, NumericalInstabilityError{Op: "solving against the inducing covariance", Cause: err}
			}
			solves[s*C+c] = sv
		}
	}

	// predictive mean and clamped diagonal variance, channel-first.
	// Indexing kmx at j = s*n+i is the un-flatten plus permute of the
	// inducing-data block from (C × m × p·n) to (p × C × n × m).
	meanCF := make([]float64, reps*C*n)
	varCF := make([]float64, reps*C*n)
	ki := make([]float64, m)
	for s := 0; s < reps; s++ {
		for c := 0; c < C; c++ {
			for i := 0; i < n; i++ {
				j := s*n + i
				var mean float64
				for a := 0; a < m; a++ {
					ki[a] = kmx[(c*m+a)*N+j]
					mean += ki[a] * solves[s*C+c][a]
				}
				corr, err := factor.InvQuad(c, ki)
				if err != nil {
					return nil, NumericalInstabilityError{Op: "computing the variance correction", Cause: err}
				}
				v, err := clampVariance(diagKxx[c*N+j] - corr)
				if err != nil {
					return nil, err
				}
				idx := (s*C+c)*n + i
				meanCF[idx] = mean
				varCF[idx] = v
			}
		}
	}

	// hand off channel-last: (n × C), or (p × n × C) with the sample
	// axis leading
	var meanT, varT *tensor.Dense
	if p > 0 {
		meanOut := make([]float64, reps*n*C)
		varOut := make([]float64, reps*n*C)
		for s := 0; s < reps; s++ {
			for c := 0; c < C; c++ {
				for i := 0; i < n; i++ {
					meanOut[(s*n+i)*C+c] = meanCF[(s*C+c)*n+i]
					varOut[(s*n+i)*C+c] = varCF[(s*C+c)*n+i]
				}
			}
		}
		meanT = tensor.New(tensor.WithShape(p, n, C), tensor.WithBacking(meanOut))
		varT = tensor.New(tensor.WithShape(p, n, C), tensor.WithBacking(varOut))
	} else {
		meanOut := make([]float64, n*C)
		varOut := make([]float64, n*C)
		for c := 0; c < C; c++ {
			for i := 0; i < n; i++ {
				meanOut[i*C+c] = meanCF[c*n+i]
				varOut[i*C+c] = varCF[c*n+i]
			}
		}
		meanT = tensor.New(tensor.WithShape(n, C), tensor.WithBacking(meanOut))
		varT = tensor.New(tensor.WithShape(n, C), tensor.WithBacking(varOut))
	}
	return distrib.NewDiagNormal(meanT, varT)
}

// clampVariance guards the diag(K_xx) − correction subtraction: small
// negative values are floating-point error and clamp to zero, anything
// past negVarTol aborts the pass.
func clampVariance(raw float64) (float64, error) {
	if raw >= 0 {
		return raw, nil
	}
	if raw < -negVarTol {
		return 0, NumericalInstabilityError{Op: "predictive variance", Cause: errors.Errorf("variance %g is materially negative", raw)}
	}
	return 0, nil
}
