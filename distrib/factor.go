package distrib

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// ErrNotPositiveDefinite is returned when a covariance stack cannot be
// factored even after jitter escalation.
var ErrNotPositiveDefinite = errors.New("covariance matrix is not positive definite")

// jitterTries is how many times the diagonal jitter is escalated (×10)
// before Cholesky gives up.
const jitterTries = 3

// Factor is a per-channel Cholesky factorization of a (channels × k × k)
// covariance stack. It supports the fast inverse-multiply and
// inverse-quadratic-form operations the predictive equations need,
// without ever forming an explicit inverse.
type Factor struct {
	k      int
	jitter float64 // jitter actually applied, after any escalation
	chols  []mat.Cholesky
}

// Cholesky factors cov, a rank-3 (channels × k × k) tensor, adding
// jitter to each diagonal for numerical stability. If factorization
// fails the jitter is escalated ×10 up to two more times; failure after
// that returns ErrNotPositiveDefinite (wrapped with the channel).
func Cholesky(cov *tensor.Dense, jitter float64) (*Factor, error) {
	shape := cov.Shape()
	if len(shape) != 3 || shape[1] != shape[2] {
		return nil, errors.Errorf("Cholesky expects a (channels × k × k) tensor, got %v", shape)
	}
	channels, k := shape[0], shape[1]
	data := cov.Data().([]float64)

	f := &Factor{k: k, chols: make([]mat.Cholesky, channels)}
	eps := jitter
	for try := 0; try < jitterTries; try++ {
		ok := true
		for c := 0; c < channels; c++ {
			sym := jitteredSym(data[c*k*k:(c+1)*k*k], k, eps)
			if !f.chols[c].Factorize(sym) {
				ok = false
				break
			}
		}
		if ok {
			f.jitter = eps
			return f, nil
		}
		eps *= 10
	}
	return nil, errors.Wrapf(ErrNotPositiveDefinite, "after escalating jitter to %g", eps/10)
}

// FromLower builds a Factor directly from a (channels × k × k) stack of
// lower-triangular scale matrices, i.e. covariance = L Lᵀ per channel.
// Used by the Cholesky-parameterized variational distribution, whose
// scale is a free parameter rather than a factored covariance.
func FromLower(lowers *tensor.Dense) (*Factor, error) {
	shape := lowers.Shape()
	if len(shape) != 3 || shape[1] != shape[2] {
		return nil, errors.Errorf("FromLower expects a (channels × k × k) tensor, got %v", shape)
	}
	channels, k := shape[0], shape[1]
	data := lowers.Data().([]float64)

	f := &Factor{k: k, chols: make([]mat.Cholesky, channels)}
	for c := 0; c < channels; c++ {
		u := mat.NewTriDense(k, mat.Upper, nil)
		for i := 0; i < k; i++ {
			if data[c*k*k+i*k+i] <= 0 {
				return nil, errors.Wrapf(ErrNotPositiveDefinite, "channel %d has a non-positive scale diagonal", c)
			}
			for j := i; j < k; j++ {
				// Uᵀ = L: u[i][j] = L[j][i]
				u.SetTri(i, j, data[c*k*k+j*k+i])
			}
		}
		f.chols[c].SetFromU(u)
	}
	return f, nil
}

func jitteredSym(data []float64, k int, eps float64) *mat.SymDense {
	backing := make([]float64, k*k)
	copy(backing, data)
	for i := 0; i < k; i++ {
		backing[i*k+i] += eps
	}
	return mat.NewSymDense(k, backing)
}

// Channels returns the number of independent factorizations held.
func (f *Factor) Channels() int { return len(f.chols) }

// Dim returns k, the side length of each factored matrix.
func (f *Factor) Dim() int { return f.k }

// Jitter returns the jitter that was actually applied.
func (f *Factor) Jitter() float64 { return f.jitter }

// SolveVec computes K⁻¹b for the given channel via triangular solves.
func (f *Factor) SolveVec(channel int, b []float64) ([]float64, error) {
	var dst mat.VecDense
	if err := f.chols[channel].SolveVecTo(&dst, mat.NewVecDense(f.k, b)); err != nil {
		return nil, errors.Wrapf(err, "solve on channel %d", channel)
	}
	out := make([]float64, f.k)
	for i := range out {
		out[i] = dst.AtVec(i)
	}
	return out, nil
}

// InvQuad computes vᵀK⁻¹v for the given channel.
func (f *Factor) InvQuad(channel int, v []float64) (float64, error) {
	solved, err := f.SolveVec(channel, v)
	if err != nil {
		return 0, err
	}
	var total float64
	for i := range v {
		total += v[i] * solved[i]
	}
	return total, nil
}

// LogDet returns log|K| for the given channel.
func (f *Factor) LogDet(channel int) float64 {
	return f.chols[channel].LogDet()
}

// Lower returns the lower-triangular factor L (K = LLᵀ) for the channel.
func (f *Factor) Lower(channel int) *mat.TriDense {
	var l mat.TriDense
	f.chols[channel].LTo(&l)
	return &l
}
