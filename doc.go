// Package deepgp implements deep Gaussian process models built from
// sparse variational GP layers, trained by stochastic variational
// inference over a recorded trace.
//
// A HiddenLayer propagates a Gaussian belief through one
// inducing-point GP: it conditions on sampled inducing values,
// computes a diagonal predictive Gaussian over its outputs, and either
// hands that distribution on or draws Monte Carlo samples from it for
// the next layer. A DeepGP stacks hidden layers and scores
// observations against the terminal layer's predictive distribution,
// rescaled for minibatching.
package deepgp
