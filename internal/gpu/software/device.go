// Package software implements the gpu runtime on the CPU.
//
// Kernels are plain Go functions registered by name. A committed command
// buffer runs on its own goroutine, and each dispatch spreads its rows over
// a bounded number of workers.
package software

import (
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rm-hull/gpu-filter-graph/internal/gpu"
)

// Kernel executes one dispatch.
type Kernel func(inv *Invocation) error

// Stats counts the work a device has executed.
type Stats struct {
	CommandBuffers int64
	Dispatches     int64
	Textures       int64
}

// Device is a gpu.Device backed by CPU memory.
type Device struct {
	mu      sync.RWMutex
	kernels map[string]Kernel

	workers int
	logger  *slog.Logger

	nextID         atomic.Uint64
	lost           atomic.Bool
	commandBuffers atomic.Int64
	dispatches     atomic.Int64
	textures       atomic.Int64
}

type Option func(*Device)

// WithKernel registers (or replaces) a kernel under the given function name.
func WithKernel(function string, k Kernel) Option {
	return func(d *Device) {
		d.kernels[function] = k
	}
}

// WithWorkers sets how many rows a dispatch processes concurrently.
func WithWorkers(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDevice creates a device preloaded with the built-in kernel library.
func NewDevice(opts ...Option) *Device {
	d := &Device{
		kernels: Library(),
		workers: runtime.GOMAXPROCS(0),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) Name() string { return "software" }

// Register adds a kernel after construction.
func (d *Device) Register(function string, k Kernel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kernels[function] = k
}

// Lose simulates the device going away. Every later call fails.
func (d *Device) Lose() {
	d.lost.Store(true)
	d.logger.Warn("software device lost")
}

func (d *Device) Stats() Stats {
	return Stats{
		CommandBuffers: d.commandBuffers.Load(),
		Dispatches:     d.dispatches.Load(),
		Textures:       d.textures.Load(),
	}
}

func (d *Device) check() error {
	if d.lost.Load() {
		return fmt.Errorf("%w: %w", gpu.ErrComputeFailure, gpu.ErrDeviceLost)
	}
	return nil
}

func (d *Device) kernel(function string) (Kernel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	k, ok := d.kernels[function]
	return k, ok
}

func (d *Device) NewPipelineState(function string) (gpu.PipelineState, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	k, ok := d.kernel(function)
	if !ok {
		return nil, fmt.Errorf("%w: %s", gpu.ErrKernelNotFound, function)
	}
	d.logger.Debug("compiled pipeline", "function", function)
	return &pipelineState{function: function, kernel: k}, nil
}

func (d *Device) NewTexture(desc gpu.TextureDescriptor) (gpu.Texture, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if err := desc.Validate(); err != nil {
		return nil, gpu.ComputeFailure("failed to allocate texture: %w", err)
	}
	if desc.Depth != 1 {
		return nil, gpu.ComputeFailure("unsupported texture depth %d", desc.Depth)
	}
	d.textures.Add(1)
	return &Texture{
		id:     d.nextID.Add(1),
		format: desc.Format,
		pix:    image.NewNRGBA(image.Rect(0, 0, desc.Width, desc.Height)),
	}, nil
}

func (d *Device) NewBuffer(data []byte) (gpu.Buffer, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return buffer(append([]byte(nil), data...)), nil
}

func (d *Device) NewCommandBuffer() (gpu.CommandBuffer, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	d.commandBuffers.Add(1)
	return &CommandBuffer{device: d, done: make(chan struct{})}, nil
}

func (d *Device) Upload(img image.Image) (gpu.Texture, error) {
	if img == nil {
		return nil, gpu.ComputeFailure("nil image")
	}
	b := img.Bounds()
	t, err := d.NewTexture(gpu.TextureDescriptor{
		Width:  b.Dx(),
		Height: b.Dy(),
		Depth:  1,
		Format: gpu.FormatRGBA8Unorm,
	})
	if err != nil {
		return nil, err
	}
	tex := t.(*Texture)
	draw.Draw(tex.pix, tex.pix.Bounds(), img, b.Min, draw.Src)
	return tex, nil
}

func (d *Device) Download(t gpu.Texture) (*image.NRGBA, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	tex, err := asTexture(t)
	if err != nil {
		return nil, err
	}
	out := image.NewNRGBA(tex.pix.Bounds())
	copy(out.Pix, tex.pix.Pix)
	return out, nil
}

// Texture is a CPU resident texture.
type Texture struct {
	id     uint64
	format gpu.PixelFormat
	pix    *image.NRGBA
}

func (t *Texture) ID() uint64 { return t.id }
func (t *Texture) Width() int { return t.pix.Rect.Dx() }
func (t *Texture) Height() int { return t.pix.Rect.Dy() }
func (t *Texture) Depth() int { return 1 }
func (t *Texture) Format() gpu.PixelFormat { return t.format }
func (t *Texture) String() string { return fmt.Sprintf("texture#%d(%dx%d)", t.id, t.Width(), t.Height()) }
func (t *Texture) Pix() *image.NRGBA { return t.pix }
func (t *Texture) Bounds() image.Rectangle { return t.pix.Rect }

func asTexture(t gpu.Texture) (*Texture, error) {
	tex, ok := t.(*Texture)
	if !ok || tex == nil {
		return nil, gpu.ComputeFailure("texture %v does not belong to the software device", t)
	}
	return tex, nil
}

type buffer []byte

func (b buffer) Len() int { return len(b) }

type pipelineState struct {
	function string
	kernel   Kernel
}

func (p *pipelineState) Function() string { return p.function }
