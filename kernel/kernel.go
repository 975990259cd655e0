// Package kernel provides the covariance and mean functions that make up a GP prior.
package kernel

// Kernel is a covariance function over pairs of input locations.
//
// Implementations must be symmetric (Cov(x, y) == Cov(y, x)) and
// positive semi-definite over any finite set of locations.
type Kernel interface {
	Cov(x, y []float64) float64
}

// Mean is a prior mean function over input locations.
type Mean interface {
	Mean(x []float64) float64
}

// Zero is the zero mean function. It is the default for hidden layers.
type Zero struct{}

func (Zero) Mean(_ []float64) float64 { return 0 }

// Constant is a constant mean function.
type Constant struct {
	C float64
}

func (c Constant) Mean(_ []float64) float64 { return c.C }
