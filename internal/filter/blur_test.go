package filter

import (
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rm-hull/gpu-filter-graph/internal/texture"
)

func TestGaussianWeights(t *testing.T) {
	t.Run("zero radius is identity", func(t *testing.T) {
		assert.Equal(t, []float32{1}, GaussianWeights(0, 0))
		assert.Equal(t, []float32{1}, GaussianWeights(0, 3))
	})

	for _, tc := range []struct {
		radius, sigma float64
		taps          int
	}{
		{1, 0, 3},
		{2.5, 0, 7},
		{4, 1, 9},
		{10, 0, 21},
	} {
		w := GaussianWeights(tc.radius, tc.sigma)
		require.Len(t, w, tc.taps)

		var sum float64
		for i := range w {
			sum += float64(w[i])
			assert.InDelta(t, w[i], w[len(w)-1-i], 1e-7, "kernel must be symmetric")
		}
		assert.InDelta(t, 1.0, sum, 1e-5)
		assert.GreaterOrEqual(t, w[len(w)/2], w[0], "centre tap must dominate")
	}

	t.Run("larger radius is wider", func(t *testing.T) {
		narrow := GaussianWeights(2, 0)
		wide := GaussianWeights(6, 0)
		assert.Greater(t, len(wide), len(narrow))
		assert.Less(t, wide[len(wide)/2], narrow[len(narrow)/2])
	})

	t.Run("default sigma", func(t *testing.T) {
		assert.Equal(t, GaussianWeights(4, DefaultSigma(4)), GaussianWeights(4, 0))
	})

	t.Run("huge radius is capped", func(t *testing.T) {
		w := GaussianWeights(1e15, 0)
		assert.Len(t, w, 2*MaxBlurRadius+1)
		assert.Equal(t, GaussianWeights(MaxBlurRadius, 0), w)
	})

	t.Run("non-finite input", func(t *testing.T) {
		assert.Equal(t, []float32{1}, GaussianWeights(math.NaN(), 0))
		assert.Len(t, GaussianWeights(math.Inf(1), 0), 2*MaxBlurRadius+1)
		assert.Equal(t, GaussianWeights(3, 0), GaussianWeights(3, math.NaN()))
	})
}

func TestGaussianBlurUniformImageIsInvariant(t *testing.T) {
	env := newTestEnv(t)
	c := color.NRGBA{37, 140, 201, 255}
	src := env.source(t, solid(20, 15, c))

	for _, radius := range []float64{0, 1, 2.5, 5, 8} {
		for _, sigma := range []float64{0, 0.5, 3} {
			blur, err := NewGaussianBlur(env.ctx, src, radius)
			require.NoError(t, err)
			blur.SetSigma(sigma)

			img := env.render(t, blur)
			assert.Equal(t, texture.Hash(solid(20, 15, c)), texture.Hash(img),
				"radius=%g sigma=%g", radius, sigma)
		}
	}
}

func TestGaussianBlurSpreadsAnImpulse(t *testing.T) {
	env := newTestEnv(t)
	img := solid(9, 9, color.NRGBA{0, 0, 0, 255})
	img.SetNRGBA(4, 4, color.NRGBA{255, 255, 255, 255})

	blur, err := NewGaussianBlur(env.ctx, env.source(t, img), 2)
	require.NoError(t, err)
	out := env.render(t, blur)

	centre := out.NRGBAAt(4, 4).R
	assert.Less(t, centre, uint8(255))
	assert.Greater(t, out.NRGBAAt(5, 4).R, uint8(0))
	assert.Greater(t, out.NRGBAAt(4, 5).R, uint8(0))
	assert.Equal(t, uint8(0), out.NRGBAAt(0, 0).R)
	assert.Equal(t, out.NRGBAAt(3, 4), out.NRGBAAt(5, 4))
}

func TestGaussianBlurRadiusChangeInvalidates(t *testing.T) {
	env := newTestEnv(t)
	blur, err := NewGaussianBlur(env.ctx, env.source(t, gradient(16, 16)), 1)
	require.NoError(t, err)

	before := texture.Hash(env.render(t, blur))
	assert.Equal(t, int64(2), env.dispatches())

	assert.False(t, blur.SetRadius(1))
	assert.Equal(t, before, texture.Hash(env.render(t, blur)))
	assert.Equal(t, int64(2), env.dispatches())

	assert.True(t, blur.SetRadius(4))
	assert.Equal(t, StateInvalidated, blur.State())
	after := texture.Hash(env.render(t, blur))
	assert.NotEqual(t, before, after)
	assert.Equal(t, int64(4), env.dispatches())

	assert.True(t, blur.SetSigma(0.5))
	assert.NotEqual(t, after, texture.Hash(env.render(t, blur)))
	assert.InDelta(t, 0.5, blur.Sigma(), 1e-9)

	assert.True(t, blur.SetSigma(0))
	assert.InDelta(t, 2.0, blur.Sigma(), 1e-9)
}

func TestGaussianBlurSetRadiusClampsNegative(t *testing.T) {
	env := newTestEnv(t)
	blur, err := NewGaussianBlur(env.ctx, env.source(t, gradient(4, 4)), 2)
	require.NoError(t, err)

	assert.True(t, blur.SetRadius(-3))
	assert.Zero(t, blur.Radius())

	_, err = NewGaussianBlur(env.ctx, env.source(t, gradient(4, 4)), -1)
	assert.Error(t, err)
	_, err = NewGaussianBlur(env.ctx, nil, 1)
	assert.Error(t, err)
}

func TestGaussianBlurUpstreamChange(t *testing.T) {
	env := newTestEnv(t)
	src := env.source(t, gradient(8, 8))
	blur, err := NewGaussianBlur(env.ctx, src, 2)
	require.NoError(t, err)

	before := texture.Hash(env.render(t, blur))
	src.SetTexture(env.upload(t, solid(8, 8, color.NRGBA{1, 2, 3, 255})))
	after := env.render(t, blur)
	assert.NotEqual(t, before, texture.Hash(after))
	assert.Equal(t, color.NRGBA{1, 2, 3, 255}, after.NRGBAAt(3, 3))
}

func TestGaussianBlurSetInput(t *testing.T) {
	env := newTestEnv(t)
	src := env.source(t, gradient(8, 8))
	blur, err := NewGaussianBlur(env.ctx, src, 2)
	require.NoError(t, err)
	diff, err := NewDiffFilter(env.ctx, blur, src, Offset{})
	require.NoError(t, err)

	assert.ErrorIs(t, blur.SetInput(0, blur), ErrCycle)
	assert.ErrorIs(t, blur.SetInput(0, diff), ErrCycle)
	assert.Error(t, blur.SetInput(1, src))

	other := env.source(t, solid(8, 8, color.White))
	require.NoError(t, blur.SetInput(0, other))
	assert.Equal(t, []Provider{other}, blur.Inputs())
}

func TestGaussianBlurHugeRadius(t *testing.T) {
	env := newTestEnv(t)
	c := color.NRGBA{90, 30, 160, 255}
	blur, err := NewGaussianBlur(env.ctx, env.source(t, solid(12, 9, c)), 1e15)
	require.NoError(t, err)
	assert.Equal(t, 1e15, blur.Radius())
	assert.InDelta(t, DefaultSigma(MaxBlurRadius), blur.Sigma(), 1e-9)

	out := env.render(t, blur)
	for y := range 9 {
		for x := range 12 {
			got := out.NRGBAAt(x, y)
			require.InDelta(t, c.R, got.R, 1, "texel %d,%d", x, y)
			require.InDelta(t, c.G, got.G, 1, "texel %d,%d", x, y)
			require.InDelta(t, c.B, got.B, 1, "texel %d,%d", x, y)
			require.InDelta(t, c.A, got.A, 1, "texel %d,%d", x, y)
		}
	}
}

func TestGaussianBlurRejectsNonFinite(t *testing.T) {
	env := newTestEnv(t)
	src := env.source(t, gradient(4, 4))

	for _, radius := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := NewGaussianBlur(env.ctx, src, radius)
		assert.Error(t, err, "radius %g", radius)
	}

	blur, err := NewGaussianBlur(env.ctx, src, 2)
	require.NoError(t, err)
	env.render(t, blur)

	assert.False(t, blur.SetRadius(math.NaN()))
	assert.False(t, blur.SetRadius(math.Inf(1)))
	assert.False(t, blur.SetSigma(math.Inf(1)))
	assert.False(t, blur.SetSigma(math.NaN()))
	assert.Equal(t, 2.0, blur.Radius())

	env.render(t, blur)
	assert.Equal(t, int64(2), env.dispatches(), "ignored updates keep the cache")
}
