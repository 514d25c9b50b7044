package filter

import (
	"image"
	"image/color"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rm-hull/gpu-filter-graph/internal/gpu"
	"github.com/rm-hull/gpu-filter-graph/internal/gpu/software"
	"github.com/rm-hull/gpu-filter-graph/internal/texture"
)

// countingDevice wraps a device and counts every dispatch encoded through it.
type countingDevice struct {
	gpu.Device
	dispatches atomic.Int64
}

func (d *countingDevice) NewCommandBuffer() (gpu.CommandBuffer, error) {
	cb, err := d.Device.NewCommandBuffer()
	if err != nil {
		return nil, err
	}
	return &countingCommandBuffer{CommandBuffer: cb, d: d}, nil
}

type countingCommandBuffer struct {
	gpu.CommandBuffer
	d *countingDevice
}

func (cb *countingCommandBuffer) ComputeEncoder() (gpu.ComputeEncoder, error) {
	enc, err := cb.CommandBuffer.ComputeEncoder()
	if err != nil {
		return nil, err
	}
	return &countingEncoder{ComputeEncoder: enc, d: cb.d}, nil
}

type countingEncoder struct {
	gpu.ComputeEncoder
	d *countingDevice
}

func (e *countingEncoder) Dispatch(threadgroups, threadsPerGroup gpu.Size) {
	e.d.dispatches.Add(1)
	e.ComputeEncoder.Dispatch(threadgroups, threadsPerGroup)
}

type testEnv struct {
	device  *software.Device
	counter *countingDevice
	ctx     *Context
}

func newTestEnv(t *testing.T, opts ...software.Option) *testEnv {
	t.Helper()
	device := software.NewDevice(append([]software.Option{software.WithWorkers(4)}, opts...)...)
	counter := &countingDevice{Device: device}
	ctx, err := NewContext(counter)
	require.NoError(t, err)
	return &testEnv{device: device, counter: counter, ctx: ctx}
}

func (e *testEnv) dispatches() int64 {
	return e.counter.dispatches.Load()
}

func (e *testEnv) upload(t *testing.T, img image.Image) gpu.Texture {
	t.Helper()
	tex, err := e.device.Upload(img)
	require.NoError(t, err)
	return tex
}

func (e *testEnv) source(t *testing.T, img image.Image) *Source {
	t.Helper()
	return NewSource(e.upload(t, img))
}

func (e *testEnv) render(t *testing.T, p Provider) *image.NRGBA {
	t.Helper()
	img, err := RenderImage(e.ctx, p)
	require.NoError(t, err)
	return img
}

// gradient has a distinct colour at every texel.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / max(w-1, 1)),
				G: uint8(y * 255 / max(h-1, 1)),
				B: uint8((x*7 + y*13) % 256),
				A: 255,
			})
		}
	}
	return img
}

func solid(w, h int, c color.Color) *image.NRGBA {
	return texture.Solid(w, h, c)
}
