package pp

import (
	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Record is one registered sample site in a trace.
type Record struct {
	Site     Site
	Value    *tensor.Dense
	LogProb  float64 // unscaled
	Scale    float64 // log-prob scale in effect at registration
	Observed bool
	Plates   []Plate // enclosing independence scopes, outermost first
}

// Trace records the sample sites of one guide or model execution. It
// owns the Gaussian noise source, so a trace built from a fixed seed
// reproduces its draws exactly.
//
// A Trace is not safe for concurrent use; guide and model passes run
// sequentially.
type Trace struct {
	g      *rng.GaussianGenerator
	scale  float64
	plates []Plate

	records []*Record
	index   map[Site]int
	replay  map[Site]*tensor.Dense
}

// NewTrace returns an empty trace whose random draws are driven by seed.
func NewTrace(seed int64) *Trace {
	return &Trace{
		g:     rng.NewGaussianGenerator(seed),
		scale: 1,
		index: make(map[Site]int),
	}
}

// Gaussian exposes the trace's noise source for samplers that draw
// outside of a registered site (e.g. predictive Monte Carlo samples).
func (t *Trace) Gaussian() *rng.GaussianGenerator { return t.g }

// WithPlate runs fn inside the given independence scope.
func (t *Trace) WithPlate(p Plate, fn func() error) error {
	t.plates = append(t.plates, p)
	defer func() { t.plates = t.plates[:len(t.plates)-1] }()
	return fn()
}

// WithScale runs fn with site log-probs reweighted by scale. Scales
// nest multiplicatively.
func (t *Trace) WithScale(scale float64, fn func() error) error {
	prev := t.scale
	t.scale *= scale
	defer func() { t.scale = prev }()
	return fn()
}

// Sample registers a latent site. The value is drawn from d with n
// replicates, unless a replayed value was primed for the site, in
// which case that value is used and scored instead. Registering the
// same site twice in one trace is an error.
func (t *Trace) Sample(site Site, d Dist, n int) (*tensor.Dense, error) {
	if _, ok := t.index[site]; ok {
		return nil, errors.Errorf("duplicate sample site %v", site)
	}

	value, ok := t.replay[site]
	if !ok {
		var err error
		if value, err = d.Rsample(t.g, n); err != nil {
			return nil, errors.Wrapf(err, "sampling site %v", site)
		}
	}
	lp, err := d.LogProb(value)
	if err != nil {
		return nil, errors.Wrapf(err, "scoring site %v", site)
	}
	t.record(&Record{Site: site, Value: value, LogProb: lp, Scale: t.scale, Plates: t.platesCopy()})
	return value, nil
}

// Observe registers an observed site, scoring obs under d.
func (t *Trace) Observe(site Site, d ObsDist, obs *tensor.Dense) error {
	if _, ok := t.index[site]; ok {
		return errors.Errorf("duplicate sample site %v", site)
	}
	lp, err := d.LogProb(obs)
	if err != nil {
		return errors.Wrapf(err, "scoring observation %v", site)
	}
	t.record(&Record{Site: site, Value: obs, LogProb: lp, Scale: t.scale, Observed: true, Plates: t.platesCopy()})
	return nil
}

// Replay primes this trace so that sites sampled by guide are not
// redrawn here but take the guide's values. This is how a model pass is
// conditioned on a guide pass during variational inference.
func (t *Trace) Replay(guide *Trace) {
	if t.replay == nil {
		t.replay = make(map[Site]*tensor.Dense)
	}
	for _, r := range guide.records {
		if !r.Observed {
			t.replay[r.Site] = r.Value
		}
	}
}

// At returns the record for site, if registered.
func (t *Trace) At(site Site) (*Record, bool) {
	i, ok := t.index[site]
	if !ok {
		return nil, false
	}
	return t.records[i], true
}

// Records returns the registered sites in registration order.
func (t *Trace) Records() []*Record { return t.records }

// LogJoint is the sum of scaled site log-probabilities.
func (t *Trace) LogJoint() float64 {
	var total float64
	for _, r := range t.records {
		total += r.Scale * r.LogProb
	}
	return total
}

func (t *Trace) record(r *Record) {
	t.index[r.Site] = len(t.records)
	t.records = append(t.records, r)
}

func (t *Trace) platesCopy() []Plate {
	if len(t.plates) == 0 {
		return nil
	}
	out := make([]Plate, len(t.plates))
	copy(out, t.plates)
	return out
}
