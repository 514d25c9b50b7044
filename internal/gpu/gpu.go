// Package gpu describes the GPU runtime the filter graph runs on: a device
// that compiles named compute kernels, allocates textures and uniform buffers,
// and records work into command buffers that are committed once.
//
// Nothing in this package executes work. See the software sub-package for a
// CPU implementation.
package gpu

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrKernelNotFound is returned when a named compute function is missing
	// from the device's shader library.
	ErrKernelNotFound = errors.New("kernel not found")

	// ErrComputeFailure is returned when work could not be encoded or executed.
	ErrComputeFailure = errors.New("compute failure")

	// ErrDeviceLost is returned by every call on a device that has gone away.
	// It is always reported wrapped in ErrComputeFailure as well.
	ErrDeviceLost = errors.New("device lost")

	// ErrResourceLoad is returned when a named image resource is missing or
	// cannot be decoded.
	ErrResourceLoad = errors.New("resource load failed")
)

// ComputeFailure wraps err so that it matches both ErrComputeFailure and err.
func ComputeFailure(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrComputeFailure, fmt.Errorf(format, args...))
}

// PixelFormat identifies the layout of a texel.
type PixelFormat int

const (
	FormatInvalid PixelFormat = iota
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatR8Unorm
)

func (f PixelFormat) String() string {
	switch f {
	case FormatRGBA8Unorm:
		return "rgba8unorm"
	case FormatBGRA8Unorm:
		return "bgra8unorm"
	case FormatR8Unorm:
		return "r8unorm"
	default:
		return "invalid"
	}
}

// Size is a three dimensional extent used for dispatch grids.
type Size struct {
	Width, Height, Depth int
}

// TextureDescriptor describes a texture to allocate.
type TextureDescriptor struct {
	Width  int
	Height int
	Depth  int
	Format PixelFormat
}

// Validate reports whether the descriptor can be allocated.
func (d TextureDescriptor) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("invalid texture size: %dx%d", d.Width, d.Height)
	}
	if d.Depth < 1 {
		return fmt.Errorf("invalid texture depth: %d", d.Depth)
	}
	if d.Format == FormatInvalid {
		return errors.New("invalid pixel format")
	}
	return nil
}

// Texture is an opaque GPU-resident image. Its metadata never changes.
type Texture interface {
	ID() uint64
	Width() int
	Height() int
	Depth() int
	Format() PixelFormat
}

// Descriptor returns the descriptor a texture was allocated with.
func Descriptor(t Texture) TextureDescriptor {
	return TextureDescriptor{
		Width:  t.Width(),
		Height: t.Height(),
		Depth:  t.Depth(),
		Format: t.Format(),
	}
}

// Buffer holds scalar uniforms uploaded for a dispatch.
type Buffer interface {
	Len() int
}

// PipelineState is a compiled handle to one kernel function.
type PipelineState interface {
	Function() string
}

// ComputeEncoder records a single dispatch.
type ComputeEncoder interface {
	SetLabel(label string)
	SetPipelineState(p PipelineState)
	SetTexture(t Texture, index int)
	SetBuffer(b Buffer, index int)
	Dispatch(threadgroups, threadsPerGroup Size)
	EndEncoding() error
}

// CommandBuffer is a batch of encoded work. It may be committed once.
type CommandBuffer interface {
	ComputeEncoder() (ComputeEncoder, error)
	Commit() error
	WaitUntilCompleted() error
}

// Device is the entry point into the GPU runtime.
type Device interface {
	Name() string
	NewPipelineState(function string) (PipelineState, error)
	NewTexture(desc TextureDescriptor) (Texture, error)
	NewBuffer(data []byte) (Buffer, error)
	NewCommandBuffer() (CommandBuffer, error)

	// Upload copies img into a new RGBA8 texture.
	Upload(img image.Image) (Texture, error)

	// Download reads a texture back. Callers must only download textures
	// whose producing command buffer has completed.
	Download(t Texture) (*image.NRGBA, error)
}

// Threadgroups returns the number of threadgroups of the given size needed
// to cover a width x height extent.
func Threadgroups(width, height int, group Size) Size {
	return Size{
		Width:  (width + group.Width - 1) / group.Width,
		Height: (height + group.Height - 1) / group.Height,
		Depth:  1,
	}
}
