package deepgp

import (
	"fmt"

	"gorgonia.org/tensor"
)

// InvalidInputShapeError reports an input tensor whose rank or trailing
// dimension does not match what a layer accepts.
type InvalidInputShapeError struct {
	Shape     tensor.Shape
	InputDims int
}

func (e InvalidInputShapeError) Error() string {
	return fmt.Sprintf("invalid input shape %v: want (n × %d) or (p × n × %d)", e.Shape, e.InputDims, e.InputDims)
}

// NumericalInstabilityError reports a numeric failure that aborts the
// current pass: the inducing covariance would not factor even after
// jitter, or a predictive variance came out materially negative. The
// caller retries the whole step (typically with more jitter); nothing
// inside the pass is recoverable.
type NumericalInstabilityError struct {
	Op    string
	Cause error
}

func (e NumericalInstabilityError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("numerical instability in %s", e.Op)
	}
	return fmt.Sprintf("numerical instability in %s: %v", e.Op, e.Cause)
}

func (e NumericalInstabilityError) Unwrap() error { return e.Cause }

// DimensionMismatchError reports inconsistent bookkeeping between
// components, e.g. a layer whose output width does not feed the next
// layer's input width.
type DimensionMismatchError struct {
	What      string
	Got, Want int
}

func (e DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: %s is %d, want %d", e.What, e.Got, e.Want)
}
