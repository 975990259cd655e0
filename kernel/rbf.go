package kernel

import "math"

// RBF is the squared-exponential covariance function
//
//	k(x, y) = σ² exp(-‖x-y‖² / 2ℓ²)
type RBF struct {
	Variance    float64 // σ², output scale
	Lengthscale float64 // ℓ
}

// DefaultRBF returns a unit-variance, unit-lengthscale RBF kernel.
func DefaultRBF() RBF {
	return RBF{Variance: 1, Lengthscale: 1}
}

func (k RBF) Cov(x, y []float64) float64 {
	var sq float64
	for i := range x {
		d := x[i] - y[i]
		sq += d * d
	}
	return k.Variance * math.Exp(-sq/(2*k.Lengthscale*k.Lengthscale))
}

// Linear is the dot-product covariance function k(x, y) = σ²(x·y) + c.
type Linear struct {
	Variance float64
	Offset   float64
}

func (k Linear) Cov(x, y []float64) float64 {
	var dot float64
	for i := range x {
		dot += x[i] * y[i]
	}
	return k.Variance*dot + k.Offset
}

// White is the white-noise covariance function: σ² when the two
// locations are identical, 0 otherwise. Useful summed with another
// kernel to model per-point noise.
type White struct {
	Variance float64
}

func (k White) Cov(x, y []float64) float64 {
	for i := range x {
		if x[i] != y[i] {
			return 0
		}
	}
	return k.Variance
}

// Sum composes kernels additively.
type Sum []Kernel

func (ks Sum) Cov(x, y []float64) float64 {
	var total float64
	for _, k := range ks {
		total += k.Cov(x, y)
	}
	return total
}
