package filter

import (
	"encoding/binary"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

type weightKey struct {
	radius, sigma float64
}

var weightCache, _ = lru.New[weightKey, []float32](64)

// MaxBlurRadius bounds the kernel to 2*MaxBlurRadius+1 taps. Larger radii
// are valid and blur as much as MaxBlurRadius does.
const MaxBlurRadius = 256

// DefaultSigma is the sigma used for a radius when none is set.
func DefaultSigma(radius float64) float64 {
	return radius / 2
}

// GaussianWeights returns the normalised one dimensional kernel for radius.
// The kernel has 2*ceil(radius)+1 taps; sigma <= 0 selects DefaultSigma.
// A radius of zero (or NaN) yields the identity kernel and radii beyond
// MaxBlurRadius are clamped to it. The returned slice is shared and must not
// be modified.
func GaussianWeights(radius, sigma float64) []float32 {
	if !(radius > 0) {
		return []float32{1}
	}
	radius = min(radius, MaxBlurRadius)
	if !(sigma > 0) || math.IsInf(sigma, 1) {
		sigma = DefaultSigma(radius)
	}
	key := weightKey{radius: radius, sigma: sigma}
	if w, ok := weightCache.Get(key); ok {
		return w
	}

	half := int(math.Ceil(radius))
	weights := make([]float32, 2*half+1)
	twoSigmaSq := 2 * sigma * sigma
	var sum float64
	values := make([]float64, len(weights))
	for i := range values {
		x := float64(i - half)
		values[i] = math.Exp(-(x * x) / twoSigmaSq)
		sum += values[i]
	}
	for i, v := range values {
		weights[i] = float32(v / sum)
	}

	weightCache.Add(key, weights)
	return weights
}

func float32Bytes(values ...float32) []byte {
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}
