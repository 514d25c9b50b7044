package software

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rm-hull/gpu-filter-graph/internal/gpu"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 5, 3))
	for y := range 3 {
		for x := range 5 {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 50), uint8(y * 100), 7, 255})
		}
	}
	return img
}

// encode records one dispatch of function from in to a same sized output.
func encode(t *testing.T, d *Device, cb gpu.CommandBuffer, function string, in gpu.Texture, grid gpu.Size) gpu.Texture {
	t.Helper()
	p, err := d.NewPipelineState(function)
	require.NoError(t, err)
	out, err := d.NewTexture(gpu.Descriptor(in))
	require.NoError(t, err)

	enc, err := cb.ComputeEncoder()
	require.NoError(t, err)
	enc.SetLabel(function)
	enc.SetPipelineState(p)
	enc.SetTexture(in, 0)
	enc.SetTexture(out, 1)
	enc.Dispatch(grid, gpu.Size{Width: 1, Height: 1, Depth: 1})
	require.NoError(t, enc.EndEncoding())
	return out
}

func TestUploadDownload(t *testing.T) {
	d := NewDevice()
	img := testImage()

	tex, err := d.Upload(img)
	require.NoError(t, err)
	assert.Equal(t, 5, tex.Width())
	assert.Equal(t, 3, tex.Height())
	assert.Equal(t, gpu.FormatRGBA8Unorm, tex.Format())

	out, err := d.Download(tex)
	require.NoError(t, err)
	assert.Equal(t, img.Pix, out.Pix)

	_, err = d.Upload(nil)
	assert.ErrorIs(t, err, gpu.ErrComputeFailure)
}

func TestNewTextureValidates(t *testing.T) {
	d := NewDevice()
	_, err := d.NewTexture(gpu.TextureDescriptor{Width: 0, Height: 4, Depth: 1, Format: gpu.FormatRGBA8Unorm})
	assert.ErrorIs(t, err, gpu.ErrComputeFailure)
	_, err = d.NewTexture(gpu.TextureDescriptor{Width: 4, Height: 4, Depth: 2, Format: gpu.FormatRGBA8Unorm})
	assert.ErrorIs(t, err, gpu.ErrComputeFailure)

	a, err := d.NewTexture(gpu.TextureDescriptor{Width: 4, Height: 4, Depth: 1, Format: gpu.FormatRGBA8Unorm})
	require.NoError(t, err)
	b, err := d.NewTexture(gpu.TextureDescriptor{Width: 4, Height: 4, Depth: 1, Format: gpu.FormatRGBA8Unorm})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestKernelNotFound(t *testing.T) {
	d := NewDevice()
	_, err := d.NewPipelineState("nope")
	assert.ErrorIs(t, err, gpu.ErrKernelNotFound)

	_, err = d.NewPipelineState(KernelDiff)
	assert.NoError(t, err)
}

func TestCommandBufferLifecycle(t *testing.T) {
	d := NewDevice(WithWorkers(2))
	in, err := d.Upload(testImage())
	require.NoError(t, err)

	cb, err := d.NewCommandBuffer()
	require.NoError(t, err)
	assert.ErrorIs(t, cb.WaitUntilCompleted(), gpu.ErrComputeFailure)

	out := encode(t, d, cb, KernelGreyscale, in, gpu.Size{Width: 5, Height: 3, Depth: 1})
	require.NoError(t, cb.Commit())
	assert.ErrorIs(t, cb.Commit(), gpu.ErrComputeFailure)
	require.NoError(t, cb.WaitUntilCompleted())
	require.NoError(t, cb.WaitUntilCompleted())

	_, err = cb.ComputeEncoder()
	assert.ErrorIs(t, err, gpu.ErrComputeFailure)

	img, err := d.Download(out)
	require.NoError(t, err)
	assert.Equal(t, uint8(255), img.NRGBAAt(0, 0).R)

	stats := d.Stats()
	assert.Equal(t, int64(1), stats.CommandBuffers)
	assert.Equal(t, int64(1), stats.Dispatches)
	assert.Equal(t, int64(2), stats.Textures)
}

func TestOneEncoderAtATime(t *testing.T) {
	d := NewDevice()
	cb, err := d.NewCommandBuffer()
	require.NoError(t, err)

	enc, err := cb.ComputeEncoder()
	require.NoError(t, err)
	_, err = cb.ComputeEncoder()
	assert.ErrorIs(t, err, gpu.ErrComputeFailure)
	assert.ErrorIs(t, cb.Commit(), gpu.ErrComputeFailure)

	require.NoError(t, enc.EndEncoding())
	assert.ErrorIs(t, enc.EndEncoding(), gpu.ErrComputeFailure)
	require.NoError(t, cb.Commit())
	require.NoError(t, cb.WaitUntilCompleted())
}

func TestDispatchWithoutPipeline(t *testing.T) {
	d := NewDevice()
	cb, err := d.NewCommandBuffer()
	require.NoError(t, err)
	enc, err := cb.ComputeEncoder()
	require.NoError(t, err)
	enc.Dispatch(gpu.Size{Width: 1, Height: 1, Depth: 1}, gpu.Size{Width: 1, Height: 1, Depth: 1})
	assert.ErrorIs(t, enc.EndEncoding(), gpu.ErrComputeFailure)
}

func TestGridMustCoverOutput(t *testing.T) {
	d := NewDevice()
	in, err := d.Upload(testImage())
	require.NoError(t, err)

	cb, err := d.NewCommandBuffer()
	require.NoError(t, err)
	encode(t, d, cb, KernelGreyscale, in, gpu.Size{Width: 4, Height: 3, Depth: 1})
	require.NoError(t, cb.Commit())
	err = cb.WaitUntilCompleted()
	assert.ErrorIs(t, err, gpu.ErrComputeFailure)
	assert.ErrorContains(t, err, "does not cover")
}

func TestLostDevice(t *testing.T) {
	d := NewDevice()
	in, err := d.Upload(testImage())
	require.NoError(t, err)
	cb, err := d.NewCommandBuffer()
	require.NoError(t, err)
	encode(t, d, cb, KernelGreyscale, in, gpu.Size{Width: 5, Height: 3, Depth: 1})

	d.Lose()
	require.NoError(t, cb.Commit())
	assert.ErrorIs(t, cb.WaitUntilCompleted(), gpu.ErrDeviceLost)
	assert.Zero(t, d.Stats().Dispatches)

	_, err = d.NewCommandBuffer()
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
	_, err = d.Download(in)
	assert.ErrorIs(t, err, gpu.ErrDeviceLost)
}

func TestRegisterKernel(t *testing.T) {
	var seen *Invocation
	d := NewDevice()
	d.Register("inspect", func(inv *Invocation) error {
		seen = inv
		return nil
	})

	p, err := d.NewPipelineState("inspect")
	require.NoError(t, err)
	buf, err := d.NewBuffer([]byte{0, 0, 128, 63, 0, 0, 0, 64})
	require.NoError(t, err)

	cb, err := d.NewCommandBuffer()
	require.NoError(t, err)
	enc, err := cb.ComputeEncoder()
	require.NoError(t, err)
	enc.SetLabel("inspect pass")
	enc.SetPipelineState(p)
	enc.SetBuffer(buf, 0)
	enc.Dispatch(gpu.Size{Width: 2, Height: 3, Depth: 1}, gpu.Size{Width: 4, Height: 4, Depth: 1})
	require.NoError(t, enc.EndEncoding())
	require.NoError(t, cb.Commit())
	require.NoError(t, cb.WaitUntilCompleted())

	require.NotNil(t, seen)
	assert.Equal(t, "inspect pass", seen.Label)
	values, err := seen.Float32s(0)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, values)
	_, err = seen.Texture(0)
	assert.Error(t, err)
}

func TestNearest(t *testing.T) {
	for _, tc := range []struct {
		v    float64
		want int
	}{
		{-0.6, 0},
		{0.4, 0},
		{2.5, 3},
		{4.6, 4},
		{1e19, 4},
		{math.MaxFloat64, 4},
		{math.Inf(1), 4},
		{-1e19, 0},
		{math.Inf(-1), 0},
		{math.NaN(), 0},
	} {
		assert.Equal(t, tc.want, nearest(tc.v, 4), "%g", tc.v)
	}
}

func TestOffsetBlendInfiniteOffset(t *testing.T) {
	d := NewDevice()
	white := image.NewNRGBA(image.Rect(0, 0, 5, 3))
	for i := range white.Pix {
		white.Pix[i] = 255
	}
	src, err := d.Upload(white)
	require.NoError(t, err)
	target := testImage()
	tgt, err := d.Upload(target)
	require.NoError(t, err)
	out, err := d.NewTexture(gpu.Descriptor(src))
	require.NoError(t, err)

	params := make([]byte, 8)
	binary.LittleEndian.PutUint32(params, math.Float32bits(float32(math.Inf(1))))
	buf, err := d.NewBuffer(params)
	require.NoError(t, err)
	p, err := d.NewPipelineState(KernelMultiply)
	require.NoError(t, err)

	cb, err := d.NewCommandBuffer()
	require.NoError(t, err)
	enc, err := cb.ComputeEncoder()
	require.NoError(t, err)
	enc.SetPipelineState(p)
	enc.SetTexture(src, 0)
	enc.SetTexture(tgt, 1)
	enc.SetTexture(out, 2)
	enc.SetBuffer(buf, 0)
	enc.Dispatch(gpu.Size{Width: 5, Height: 3, Depth: 1}, gpu.Size{Width: 1, Height: 1, Depth: 1})
	require.NoError(t, enc.EndEncoding())
	require.NoError(t, cb.Commit())
	require.NoError(t, cb.WaitUntilCompleted())

	img, err := d.Download(out)
	require.NoError(t, err)
	for y := range 3 {
		for x := range 5 {
			assert.Equal(t, target.NRGBAAt(4, y), img.NRGBAAt(x, y), "texel %d,%d", x, y)
		}
	}
}
