package deepgp

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lrast/deepgp/kernel"
	"github.com/lrast/deepgp/pp"
	"github.com/lrast/deepgp/variational"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"
)

// spreadStrategy builds well-separated inducing locations so the
// inducing covariance factors without drama.
func spreadStrategy(t *testing.T, channels, m, d int) *variational.Strategy {
	t.Helper()
	backing := make([]float64, channels*m*d)
	for c := 0; c < channels; c++ {
		for i := 0; i < m; i++ {
			for k := 0; k < d; k++ {
				backing[(c*m+i)*d+k] = float64(i)*0.7 - float64(m)/2 + 0.05*float64(c) + 0.01*float64(k)
			}
		}
	}
	s, err := variational.NewStrategy(tensor.New(tensor.WithShape(channels, m, d), tensor.WithBacking(backing)))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return s
}

func testLayer(t *testing.T, name string, in, out, m int) *HiddenLayer {
	t.Helper()
	l, err := NewHiddenLayer(name, DefaultLayerConfig(in, out, m), spreadStrategy(t, out, m, in), kernel.DefaultRBF(), nil)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	return l
}

func rangeInputs(shape ...int) *tensor.Dense {
	size := 1
	for _, s := range shape {
		size *= s
	}
	backing := make([]float64, size)
	for i := range backing {
		backing[i] = float64(i)*0.13 - 1
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
}

func TestModelDistribution2D(t *testing.T) {
	l := testLayer(t, "layer0", 3, 2, 6)
	tr := pp.NewTrace(1)

	samples, dist, err := l.Model(tr, rangeInputs(5, 3), false)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if samples != nil {
		t.Error("distribution mode should not return samples")
	}
	if diff := cmp.Diff([]int{5, 2}, []int(dist.Shape())); diff != "" {
		t.Errorf("predictive shape mismatch:\n%s", diff)
	}
	for _, v := range dist.Variance().Data().([]float64) {
		if v < 0 {
			t.Errorf("negative predictive variance %v", v)
		}
	}
}

func TestModelSamples2D(t *testing.T) {
	l := testLayer(t, "layer0", 3, 2, 6)
	tr := pp.NewTrace(1)

	samples, dist, err := l.Model(tr, rangeInputs(5, 3), true)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if dist != nil {
		t.Error("sample mode should not return a distribution")
	}
	assert.Equal(t, tensor.Shape{5, 2}, samples.Shape())
}

func TestModelShapes3D(t *testing.T) {
	assert := assert.New(t)
	l := testLayer(t, "layer0", 3, 2, 6)

	tr := pp.NewTrace(1)
	_, dist, err := l.Model(tr, rangeInputs(4, 5, 3), false)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(tensor.Shape{4, 5, 2}, dist.Shape())

	tr = pp.NewTrace(2)
	samples, _, err := l.Model(tr, rangeInputs(4, 5, 3), true)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(tensor.Shape{4, 5, 2}, samples.Shape())
}

// A layer's sample output must feed a matching layer without shape
// errors, in both the plain and the replicated form.
func TestLayerComposition(t *testing.T) {
	first := testLayer(t, "layer0", 3, 2, 6)
	second := testLayer(t, "layer1", 2, 4, 5)

	tr := pp.NewTrace(1)
	samples, _, err := first.Model(tr, rangeInputs(5, 3), true)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	out, _, err := second.Model(tr, samples, true)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, tensor.Shape{5, 4}, out.Shape())

	tr = pp.NewTrace(2)
	first2 := testLayer(t, "layer0r", 3, 2, 6)
	second2 := testLayer(t, "layer1r", 2, 4, 5)
	samples, _, err = first2.Model(tr, rangeInputs(3, 5, 3), true)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	out, _, err = second2.Model(tr, samples, true)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, tensor.Shape{3, 5, 4}, out.Shape())
}

// Replaying a guide sample, which carries no replicate axis, into a
// model pass over particle-carrying inputs must broadcast the sample
// across the particles rather than fail.
func TestModelReplayBroadcastsOverParticles(t *testing.T) {
	l := testLayer(t, "layer0", 3, 2, 6)

	guide := pp.NewTrace(1)
	if _, err := l.Guide(guide); err != nil {
		t.Fatalf("%+v", err)
	}

	// the same minibatch tiled over 4 particles
	base := rangeInputs(5, 3).Data().([]float64)
	backing := make([]float64, 4*len(base))
	for s := 0; s < 4; s++ {
		copy(backing[s*len(base):], base)
	}
	inputs := tensor.New(tensor.WithShape(4, 5, 3), tensor.WithBacking(backing))

	model := pp.NewTrace(2)
	model.Replay(guide)
	_, dist, err := l.Model(model, inputs, false)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, tensor.Shape{4, 5, 2}, dist.Shape())

	// identical inputs conditioned on the shared inducing sample give
	// identical per-particle predictions
	mean := dist.Mean().Data().([]float64)
	per := 5 * 2
	for s := 1; s < 4; s++ {
		assert.Equal(t, mean[:per], mean[s*per:(s+1)*per], "particle %d diverged", s)
	}
}

// A white-noise kernel with unit variance, and jitter far below the
// ulp of the unit diagonal, makes the variance correction cancel
// exactly at an input coincident with an inducing location. The
// returned variance there must be exactly zero.
func TestModelVarianceZeroAtInducingLocation(t *testing.T) {
	conf := LayerConfig{InputDims: 1, OutputDims: 1, NumInducing: 2, Jitter: 1e-18}
	s, err := variational.NewStrategy(tensor.New(tensor.WithShape(1, 2, 1), tensor.WithBacking([]float64{-1, 1})))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	l, err := NewHiddenLayer("layer0", conf, s, kernel.White{Variance: 1}, nil)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	// first input coincides with the first inducing location
	inputs := tensor.New(tensor.WithShape(3, 1), tensor.WithBacking([]float64{-1, 0, 2}))
	_, dist, err := l.Model(pp.NewTrace(1), inputs, false)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	vars := dist.Variance().Data().([]float64)
	assert.Equal(t, 0.0, vars[0], "coincident input must have zero variance")
	assert.Equal(t, 1.0, vars[1])
	assert.Equal(t, 1.0, vars[2])
}

func TestModelRejectsBadRank(t *testing.T) {
	l := testLayer(t, "layer0", 3, 2, 6)

	var shapeErr InvalidInputShapeError
	_, _, err := l.Model(pp.NewTrace(1), rangeInputs(5), true)
	if !errors.As(err, &shapeErr) {
		t.Errorf("rank-1 input: want InvalidInputShapeError, got %v", err)
	}
	_, _, err = l.Model(pp.NewTrace(1), rangeInputs(2, 2, 5, 3), true)
	if !errors.As(err, &shapeErr) {
		t.Errorf("rank-4 input: want InvalidInputShapeError, got %v", err)
	}
}

func TestModelRejectsBadTrailingDim(t *testing.T) {
	l := testLayer(t, "layer0", 3, 2, 6)

	var shapeErr InvalidInputShapeError
	_, _, err := l.Model(pp.NewTrace(1), rangeInputs(5, 4), true)
	if !errors.As(err, &shapeErr) {
		t.Errorf("want InvalidInputShapeError, got %v", err)
	}
}

func TestModelDeterminism(t *testing.T) {
	inputs := rangeInputs(5, 3)

	l1 := testLayer(t, "layer0", 3, 2, 6)
	a, _, err := l1.Model(pp.NewTrace(77), inputs, true)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	l2 := testLayer(t, "layer0", 3, 2, 6)
	b, _, err := l2.Model(pp.NewTrace(77), inputs, true)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, a.Data(), b.Data(), "same seed and inputs must reproduce samples")
}

var clampCases = []struct {
	raw     float64
	want    float64
	wantErr bool
}{
	{0.5, 0.5, false},
	{0, 0, false},
	{-1e-12, 0, false},
	{-1e-9, 0, false},
	{-1e-3, 0, true},
	{-1, 0, true},
}

func TestClampVariance(t *testing.T) {
	for _, c := range clampCases {
		got, err := clampVariance(c.raw)
		if c.wantErr {
			var numErr NumericalInstabilityError
			if !errors.As(err, &numErr) {
				t.Errorf("clampVariance(%v): want NumericalInstabilityError, got %v", c.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("clampVariance(%v): unexpected error %v", c.raw, err)
			continue
		}
		if got != c.want {
			t.Errorf("clampVariance(%v) = %v, want %v", c.raw, got, c.want)
		}
	}
}

// Single hidden layer, one input dim, two output channels, five
// inducing points, minibatch of four: sampling yields (4 × 2) with no
// sample axis, and the predictive distribution's mean matches.
func TestEndToEndSingleLayer(t *testing.T) {
	assert := assert.New(t)
	inputs := rangeInputs(4, 1)

	l := testLayer(t, "layer0", 1, 2, 5)
	samples, _, err := l.Model(pp.NewTrace(11), inputs, true)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(tensor.Shape{4, 2}, samples.Shape())

	l2 := testLayer(t, "layer0", 1, 2, 5)
	_, dist, err := l2.Model(pp.NewTrace(12), inputs, false)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(tensor.Shape{4, 2}, dist.Mean().Shape())
}

func TestGuideRegistersSite(t *testing.T) {
	l := testLayer(t, "layer0", 3, 2, 6)
	tr := pp.NewTrace(1)

	u, err := l.Guide(tr)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	assert.Equal(t, tensor.Shape{2, 6}, u.Shape())

	r, ok := tr.At(l.Site())
	if !ok {
		t.Fatal("guide did not register its sample site")
	}
	assert.Equal(t, []pp.Plate{{Name: "layer0.channels", Size: 2, Dim: -2}}, r.Plates)
}

func TestNewHiddenLayerValidation(t *testing.T) {
	var dimErr DimensionMismatchError

	// strategy channels disagree with OutputDims
	_, err := NewHiddenLayer("bad", DefaultLayerConfig(3, 2, 6), spreadStrategy(t, 4, 6, 3), kernel.DefaultRBF(), nil)
	if !errors.As(err, &dimErr) {
		t.Errorf("want DimensionMismatchError, got %v", err)
	}

	// strategy dimensionality disagrees with InputDims
	_, err = NewHiddenLayer("bad", DefaultLayerConfig(3, 2, 6), spreadStrategy(t, 2, 6, 5), kernel.DefaultRBF(), nil)
	if !errors.As(err, &dimErr) {
		t.Errorf("want DimensionMismatchError, got %v", err)
	}

	// unusable config
	if _, err := NewHiddenLayer("bad", LayerConfig{}, spreadStrategy(t, 2, 6, 3), kernel.DefaultRBF(), nil); err == nil {
		t.Error("zero config should be rejected")
	}
}
