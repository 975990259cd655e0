package deepgp

import (
	"github.com/lrast/deepgp/distrib"
	"github.com/lrast/deepgp/likelihood"
	"github.com/lrast/deepgp/pp"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// DeepGP is a stack of hidden GP layers feeding forward into a terminal
// GP layer whose predictive distribution is scored against observations
// through a likelihood. The terminal layer's machinery is embedded; the
// DeepGP is itself the outermost layer of the stack.
type DeepGP struct {
	*HiddenLayer // terminal layer

	modelName    string
	hidden       []*HiddenLayer
	lik          likelihood.Likelihood
	totalNumData int
	obsSite      pp.Site
}

// New builds a deep GP from its hidden layers (input to output order),
// the terminal layer, and the observation likelihood. totalNumData is
// the full dataset size, used to rescale minibatch log-likelihoods.
func New(name string, hidden []*HiddenLayer, terminal *HiddenLayer, lik likelihood.Likelihood, totalNumData int) (*DeepGP, error) {
	if terminal == nil {
		return nil, errors.New("a deep GP needs a terminal layer")
	}
	if lik == nil {
		return nil, errors.New("a deep GP needs a likelihood")
	}
	if totalNumData < 1 {
		return nil, errors.Errorf("totalNumData must be at least 1, got %d", totalNumData)
	}
	all := append(append([]*HiddenLayer{}, hidden...), terminal)
	for i := 1; i < len(all); i++ {
		if all[i].InputDims() != all[i-1].OutputDims() {
			return nil, DimensionMismatchError{
				What: all[i].Name() + " input width",
				Got:  all[i].InputDims(),
				Want: all[i-1].OutputDims(),
			}
		}
	}
	return &DeepGP{
		HiddenLayer:  terminal,
		modelName:    name,
		hidden:       hidden,
		lik:          lik,
		totalNumData: totalNumData,
		obsSite:      pp.NewSite(name, "output_value"),
	}, nil
}

// Name returns the model's name (the terminal layer keeps its own).
func (d *DeepGP) Name() string { return d.modelName }

// ObservationSite identifies the model's observation sample site.
func (d *DeepGP) ObservationSite() pp.Site { return d.obsSite }

// TotalNumData returns the full dataset size the model was built with.
func (d *DeepGP) TotalNumData() int { return d.totalNumData }

// Layers returns every layer, hidden first, terminal last.
func (d *DeepGP) Layers() []*HiddenLayer {
	return append(append([]*HiddenLayer{}, d.hidden...), d.HiddenLayer)
}

// Guide registers each layer's variational sample in stacking order,
// terminal layer last.
func (d *DeepGP) Guide(t *pp.Trace, _, _ *tensor.Dense) error {
	for _, h := range d.hidden {
		if _, err := h.Guide(t); err != nil {
			return err
		}
	}
	_, err := d.HiddenLayer.Guide(t)
	return err
}

// Model runs the generative pass: inputs propagate through the hidden
// layers as Monte Carlo samples, the terminal layer produces a
// predictive distribution, and outputs are scored against it under the
// minibatch-compensation scale totalNumData/minibatch, inside a
// per-example data plate.
func (d *DeepGP) Model(t *pp.Trace, inputs, outputs *tensor.Dense) error {
	x, pf, err := d.propagate(t, inputs)
	if err != nil {
		return err
	}

	nb := x.Shape()[len(x.Shape())-2]
	scale := float64(d.totalNumData) / float64(nb)
	obs := &QuadratureDist{Likelihood: d.lik, F: pf}
	plate := pp.Plate{Name: d.modelName + ".data", Size: nb, Dim: -2}
	return t.WithPlate(plate, func() error {
		return t.WithScale(scale, func() error {
			return t.Observe(d.obsSite, obs, outputs)
		})
	})
}

// Predict runs the generative stack without an observation site and
// returns the terminal layer's predictive distribution over outputs.
func (d *DeepGP) Predict(t *pp.Trace, inputs *tensor.Dense) (*distrib.DiagNormal, error) {
	_, pf, err := d.propagate(t, inputs)
	return pf, err
}

func (d *DeepGP) propagate(t *pp.Trace, inputs *tensor.Dense) (*tensor.Dense, *distrib.DiagNormal, error) {
	x := inputs
	for _, h := range d.hidden {
		samples, _, err := h.Model(t, x, true)
		if err != nil {
			return nil, nil, err
		}
		x = samples
	}
	_, pf, err := d.HiddenLayer.Model(t, x, false)
	if err != nil {
		return nil, nil, err
	}
	return x, pf, nil
}
