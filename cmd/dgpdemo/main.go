// dgpdemo builds a two-layer deep GP over a synthetic regression set,
// runs one guide pass and one replayed model pass, and reports the
// trace diagnostics. It exercises the full generative stack without any
// training loop.
package main

import (
	"flag"
	"log"
	"math"
	"os"

	"github.com/lrast/deepgp"
	"github.com/lrast/deepgp/kernel"
	"github.com/lrast/deepgp/likelihood"
	"github.com/lrast/deepgp/pp"
	"github.com/lrast/deepgp/variational"
	"gorgonia.org/tensor"
)

var (
	seed    = flag.Int64("seed", 42, "random seed for both traces")
	dotFile = flag.String("dot", "", "write the model structure as graphviz dot to this file")
)

// gridStrategy spreads m inducing points per channel evenly over
// [-1, 1]^d (same grid on each coordinate).
func gridStrategy(channels, m, d int) *variational.Strategy {
	backing := make([]float64, channels*m*d)
	for c := 0; c < channels; c++ {
		for i := 0; i < m; i++ {
			z := -1 + 2*float64(i)/float64(m-1)
			for k := 0; k < d; k++ {
				backing[(c*m+i)*d+k] = z
			}
		}
	}
	s, err := variational.NewStrategy(tensor.New(tensor.WithShape(channels, m, d), tensor.WithBacking(backing)))
	if err != nil {
		log.Fatalf("building strategy: %v", err)
	}
	return s
}

func main() {
	flag.Parse()

	const (
		minibatch    = 16
		totalNumData = 1600
		numInducing  = 8
	)

	// y = sin(2πx) + small wiggle, one input dim, one output dim
	xback := make([]float64, minibatch)
	yback := make([]float64, minibatch)
	for i := range xback {
		x := -1 + 2*float64(i)/float64(minibatch-1)
		xback[i] = x
		yback[i] = math.Sin(2*math.Pi*x) + 0.1*math.Sin(11*x)
	}
	inputs := tensor.New(tensor.WithShape(minibatch, 1), tensor.WithBacking(xback))
	outputs := tensor.New(tensor.WithShape(minibatch, 1), tensor.WithBacking(yback))

	hidden, err := deepgp.NewHiddenLayer(
		"hidden0",
		deepgp.DefaultLayerConfig(1, 2, numInducing),
		gridStrategy(2, numInducing, 1),
		kernel.DefaultRBF(),
		nil,
	)
	if err != nil {
		log.Fatalf("hidden layer: %v", err)
	}
	terminal, err := deepgp.NewHiddenLayer(
		"terminal",
		deepgp.DefaultLayerConfig(2, 1, numInducing),
		gridStrategy(1, numInducing, 2),
		kernel.DefaultRBF(),
		nil,
	)
	if err != nil {
		log.Fatalf("terminal layer: %v", err)
	}

	model, err := deepgp.New("demo", []*deepgp.HiddenLayer{hidden}, terminal, likelihood.Gaussian{Noise: 0.05}, totalNumData)
	if err != nil {
		log.Fatalf("deep GP: %v", err)
	}

	guide := pp.NewTrace(*seed)
	if err := model.Guide(guide, inputs, outputs); err != nil {
		log.Fatalf("guide pass: %v", err)
	}
	log.Printf("guide: %d sites, log q = %.4f", len(guide.Records()), guide.LogJoint())

	mt := pp.NewTrace(*seed + 1)
	mt.Replay(guide)
	if err := model.Model(mt, inputs, outputs); err != nil {
		log.Fatalf("model pass: %v", err)
	}
	log.Printf("model: %d sites, log p = %.4f", len(mt.Records()), mt.LogJoint())
	log.Printf("ELBO estimate: %.4f", mt.LogJoint()-guide.LogJoint())

	if r, ok := mt.At(model.ObservationSite()); ok {
		log.Printf("observation site scale: %.1f (dataset %d / minibatch %d)", r.Scale, totalNumData, minibatch)
	}

	pt := pp.NewTrace(*seed + 2)
	pf, err := model.Predict(pt, inputs)
	if err != nil {
		log.Fatalf("predict: %v", err)
	}
	mu := pf.Mean().Data().([]float64)
	va := pf.Variance().Data().([]float64)
	for i := 0; i < minibatch; i++ {
		log.Printf("x=%+.2f  y=%+.3f  f=%+.3f ± %.3f", xback[i], yback[i], mu[i], math.Sqrt(va[i]))
	}

	if *dotFile != "" {
		if err := os.WriteFile(*dotFile, []byte(model.ToDot()), 0644); err != nil {
			log.Fatalf("writing dot: %v", err)
		}
		log.Printf("wrote %s", *dotFile)
	}
}
