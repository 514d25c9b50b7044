package filter

import (
	"errors"
	"fmt"
	"math"

	"github.com/rm-hull/gpu-filter-graph/internal/gpu"
)

const (
	KernelBlurHorizontal = "gaussian_blur_horizontal"
	KernelBlurVertical   = "gaussian_blur_vertical"
)

// GaussianBlur is a separable blur: a horizontal pass feeding a vertical
// one. Only the vertical pass is visible as a Provider.
type GaussianBlur struct {
	horizontal *Node
	vertical   *Node
	radius     float64
	sigma      float64
}

// NewGaussianBlur blurs the output of p with the given radius in texels.
func NewGaussianBlur(ctx *Context, p Provider, radius float64) (*GaussianBlur, error) {
	if radius < 0 || math.IsNaN(radius) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("filter: invalid blur radius %g", radius)
	}
	if p == nil {
		return nil, errors.New("filter: gaussian blur needs an input")
	}
	b := &GaussianBlur{radius: radius}
	params := b.params()

	var err error
	b.horizontal, err = NewNode(ctx, KernelBlurHorizontal,
		WithLabel("gaussian blur (horizontal)"),
		WithInputs(p),
		WithParams(params))
	if err != nil {
		return nil, err
	}
	b.vertical, err = NewNode(ctx, KernelBlurVertical,
		WithLabel("gaussian blur (vertical)"),
		WithInputs(b.horizontal),
		WithParams(params))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (b *GaussianBlur) params() []byte {
	return float32Bytes(GaussianWeights(b.radius, b.sigma)...)
}

func (b *GaussianBlur) Texture(s *Session) (gpu.Texture, error) {
	return b.vertical.Texture(s)
}

func (b *GaussianBlur) Generation() uint64 { return b.vertical.Generation() }

func (b *GaussianBlur) Inputs() []Provider { return b.horizontal.Inputs() }

func (b *GaussianBlur) State() State { return b.vertical.State() }

func (b *GaussianBlur) Radius() float64 { return b.radius }

// Sigma returns the effective sigma.
func (b *GaussianBlur) Sigma() float64 {
	if b.sigma <= 0 {
		return DefaultSigma(min(b.radius, MaxBlurRadius))
	}
	return b.sigma
}

// SetInput replaces the blurred provider. Only index 0 exists.
func (b *GaussianBlur) SetInput(index int, p Provider) error {
	if index != 0 {
		return fmt.Errorf("filter: gaussian blur has no input %d", index)
	}
	if err := checkAcyclic(p, b); err != nil {
		return err
	}
	return b.horizontal.SetInput(0, p)
}

// SetRadius changes the radius and reports whether the kernel weights
// changed. Negative values are treated as zero; NaN and infinite radii are
// ignored.
func (b *GaussianBlur) SetRadius(radius float64) bool {
	if math.IsNaN(radius) || math.IsInf(radius, 0) {
		return false
	}
	b.radius = max(radius, 0)
	return b.update()
}

// SetSigma overrides the sigma derived from the radius; zero or less
// restores the default. NaN and infinite values are ignored.
func (b *GaussianBlur) SetSigma(sigma float64) bool {
	if math.IsNaN(sigma) || math.IsInf(sigma, 0) {
		return false
	}
	b.sigma = max(sigma, 0)
	return b.update()
}

func (b *GaussianBlur) update() bool {
	params := b.params()
	h := b.horizontal.SetParams(params)
	v := b.vertical.SetParams(params)
	return h || v
}
