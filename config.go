package deepgp

// DefaultJitter is added to the inducing covariance diagonal before
// factorization when a layer config does not set its own.
const DefaultJitter = 1e-6

// LayerConfig configures one sparse variational GP layer.
type LayerConfig struct {
	InputDims   int // dimensionality of incoming values
	OutputDims  int // independent output channels, one GP each
	NumInducing int // inducing locations per channel

	Jitter float64 // diagonal stabilizer for the inducing covariance
}

// DefaultLayerConfig returns a valid config with the default jitter.
func DefaultLayerConfig(inputDims, outputDims, numInducing int) LayerConfig {
	return LayerConfig{
		InputDims:   inputDims,
		OutputDims:  outputDims,
		NumInducing: numInducing,
		Jitter:      DefaultJitter,
	}
}

func (c LayerConfig) IsValid() bool {
	return c.InputDims >= 1 &&
		c.OutputDims >= 1 &&
		c.NumInducing >= 1 &&
		c.Jitter > 0
}
