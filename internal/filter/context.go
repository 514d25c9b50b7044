// Package filter executes directed graphs of image filters on a GPU device.
//
// Every filter is a Provider: asked for its texture within a Session, it pulls
// the textures of its inputs, encodes its own compute pass into the session's
// command buffer when its cached output is stale, and returns the output
// handle. Composite filters wire several passes together and are Providers
// themselves, so graphs nest freely. A Session is submitted exactly once; the
// returned textures are only readable after Submit succeeds.
package filter

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rm-hull/gpu-filter-graph/internal/gpu"
)

// Context holds state shared by every node of every graph: the device and
// a cache of compiled pipeline states keyed by kernel function name.
type Context struct {
	device gpu.Device
	logger *slog.Logger

	mu        sync.RWMutex
	pipelines map[string]gpu.PipelineState

	sessions atomic.Uint64
	compiles atomic.Int64
}

type ContextOption func(*Context)

// WithLogger sets the logger for the context and all nodes created from it.
// By default nothing is logged.
func WithLogger(l *slog.Logger) ContextOption {
	return func(c *Context) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewContext creates a context for device. Create one per process and share it.
func NewContext(device gpu.Device, opts ...ContextOption) (*Context, error) {
	if device == nil {
		return nil, errors.New("filter: device is required")
	}
	c := &Context{
		device:    device,
		logger:    slog.New(slog.DiscardHandler),
		pipelines: make(map[string]gpu.PipelineState),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger.Info("filter context created", "device", device.Name())
	return c, nil
}

func (c *Context) Device() gpu.Device { return c.device }

func (c *Context) Logger() *slog.Logger { return c.logger }

// Compiles returns how many pipeline states have been compiled so far.
func (c *Context) Compiles() int64 { return c.compiles.Load() }

// Pipeline returns the pipeline state for function, compiling it on first
// use. Lookups run concurrently; a compile holds the write lock so each
// function is compiled once. Failures are not cached.
func (c *Context) Pipeline(function string) (gpu.PipelineState, error) {
	c.mu.RLock()
	p, ok := c.pipelines[function]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pipelines[function]; ok {
		return p, nil
	}
	p, err := c.device.NewPipelineState(function)
	if err != nil {
		return nil, fmt.Errorf("filter: failed to compile %q: %w", function, err)
	}
	c.pipelines[function] = p
	c.compiles.Add(1)
	c.logger.Debug("pipeline compiled", "function", function)
	return p, nil
}

// NewSession starts an execution pass with a fresh command buffer. Outputs
// encoded into a session that is dropped without Submit are never reused.
func (c *Context) NewSession() (*Session, error) {
	cb, err := c.device.NewCommandBuffer()
	if err != nil {
		return nil, fmt.Errorf("filter: failed to create command buffer: %w", err)
	}
	return &Session{
		ctx: c,
		id:  c.sessions.Add(1),
		cb:  cb,
	}, nil
}

// Render runs one execution pass for p and returns its output once the
// device has finished. No texture is returned when any part of the pass fails.
func Render(c *Context, p Provider) (gpu.Texture, error) {
	s, err := c.NewSession()
	if err != nil {
		return nil, err
	}
	tex, err := p.Texture(s)
	if err != nil {
		s.fail(err)
		_ = s.Submit()
		return nil, err
	}
	if err := s.Submit(); err != nil {
		return nil, err
	}
	return tex, nil
}

// RenderImage is Render followed by a read back of the output.
func RenderImage(c *Context, p Provider) (*image.NRGBA, error) {
	tex, err := Render(c, p)
	if err != nil {
		return nil, err
	}
	img, err := c.device.Download(tex)
	if err != nil {
		return nil, fmt.Errorf("filter: failed to read back %d: %w", tex.ID(), err)
	}
	return img, nil
}
