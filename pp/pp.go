// Package pp is a minimal probabilistic-programming runtime: named
// sample sites, plate independence scopes, log-probability scaling, and
// an execution trace that supports replaying guide samples into a model
// pass. It is deliberately small: just enough machinery for stochastic
// variational inference over a deep GP.
package pp

import (
	rng "github.com/leesper/go_rng"
	"gorgonia.org/tensor"
)

// Site identifies a random sample site. It is an explicit value rather
// than a composed string so that uniqueness does not hinge on prefix
// conventions; two sites are the same site iff they compare equal.
type Site struct {
	Component string // the owning model component, e.g. a layer name
	Variable  string // the random variable at that component
}

// NewSite builds a site identifier.
func NewSite(component, variable string) Site {
	return Site{Component: component, Variable: variable}
}

func (s Site) String() string { return s.Component + "." + s.Variable }

// Plate is an independence scope: Size random variables along axis Dim
// (negative dims count from the trailing axis) are conditionally
// independent given their parents.
type Plate struct {
	Name string
	Size int
	Dim  int
}

// Dist is what a trace needs from a sampleable distribution.
type Dist interface {
	Rsample(g *rng.GaussianGenerator, n int) (*tensor.Dense, error)
	LogProb(x *tensor.Dense) (float64, error)
}

// ObsDist is what a trace needs to score an observation.
type ObsDist interface {
	LogProb(x *tensor.Dense) (float64, error)
}
