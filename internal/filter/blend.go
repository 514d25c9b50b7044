package filter

import (
	"fmt"
	"math"

	"github.com/rm-hull/gpu-filter-graph/internal/gpu"
)

const (
	KernelDiff           = "diff"
	KernelMultiply       = "multiply"
	KernelFinalComposite = "final_composite"
)

// Offset shifts the sampling coordinates of a target texture, in texels.
// Fractional offsets round to the nearest texel and samples beyond the
// texture are clamped to its edge.
type Offset struct {
	X, Y float64
}

func (o Offset) valid() error {
	for _, v := range []float64{o.X, o.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("filter: offset must be finite, got (%g, %g)", o.X, o.Y)
		}
	}
	return nil
}

func (o Offset) params() []byte {
	return float32Bytes(float32(o.X), float32(o.Y))
}

// offsetPass is a single node whose only parameter is a target offset.
type offsetPass struct {
	node   *Node
	offset Offset
}

func newOffsetPass(ctx *Context, function, label string, offset Offset, inputs ...Provider) (offsetPass, error) {
	if err := offset.valid(); err != nil {
		return offsetPass{}, err
	}
	for i, p := range inputs {
		if p == nil {
			return offsetPass{}, fmt.Errorf("filter: %s: input %d is nil", label, i)
		}
	}
	n, err := NewNode(ctx, function,
		WithLabel(label),
		WithInputs(inputs...),
		WithParams(offset.params()))
	if err != nil {
		return offsetPass{}, err
	}
	return offsetPass{node: n, offset: offset}, nil
}

func (f *offsetPass) Texture(s *Session) (gpu.Texture, error) { return f.node.Texture(s) }

func (f *offsetPass) Generation() uint64 { return f.node.Generation() }

func (f *offsetPass) Inputs() []Provider { return f.node.Inputs() }

func (f *offsetPass) State() State { return f.node.State() }

func (f *offsetPass) Offset() Offset { return f.offset }

// SetOffset moves the target and reports whether anything changed. Offsets
// with a NaN or infinite component are ignored.
func (f *offsetPass) SetOffset(o Offset) bool {
	if o.valid() != nil {
		return false
	}
	f.offset = o
	return f.node.SetParams(o.params())
}

func (f *offsetPass) setInput(self Provider, index int, p Provider) error {
	if index < 0 || index >= len(f.node.inputs) {
		return fmt.Errorf("filter: %s has no input %d", f.node.label, index)
	}
	if err := checkAcyclic(p, self); err != nil {
		return err
	}
	return f.node.SetInput(index, p)
}

// DiffFilter computes the per-channel absolute difference between source
// and the offset target.
type DiffFilter struct {
	offsetPass
}

func NewDiffFilter(ctx *Context, source, target Provider, offset Offset) (*DiffFilter, error) {
	pass, err := newOffsetPass(ctx, KernelDiff, "diff", offset, source, target)
	if err != nil {
		return nil, err
	}
	return &DiffFilter{pass}, nil
}

// SetInput rebinds the source (0) or target (1).
func (f *DiffFilter) SetInput(index int, p Provider) error {
	return f.setInput(f, index, p)
}

// MultiplyFilter multiplies source by the offset target, per channel.
type MultiplyFilter struct {
	offsetPass
}

func NewMultiplyFilter(ctx *Context, source, target Provider, offset Offset) (*MultiplyFilter, error) {
	pass, err := newOffsetPass(ctx, KernelMultiply, "multiply", offset, source, target)
	if err != nil {
		return nil, err
	}
	return &MultiplyFilter{pass}, nil
}

// SetInput rebinds the source (0) or target (1).
func (f *MultiplyFilter) SetInput(index int, p Provider) error {
	return f.setInput(f, index, p)
}

// Binding indices of the final compositor's inputs.
const (
	FinalMix = iota
	FinalBoundary
	FinalSource
	FinalTarget
	FinalMask
)

// FinalInputs are the five providers blended by FinalFilter.
type FinalInputs struct {
	Mix      Provider
	Boundary Provider
	Source   Provider
	Target   Provider
	Mask     Provider
}

// FinalFilter wires mix, boundary, source, target and mask into one
// dispatch of the external final_composite kernel, in that binding order.
// How the kernel blends them is up to the kernel.
type FinalFilter struct {
	offsetPass
}

func NewFinalFilter(ctx *Context, in FinalInputs, offset Offset) (*FinalFilter, error) {
	pass, err := newOffsetPass(ctx, KernelFinalComposite, "final composite", offset,
		in.Mix, in.Boundary, in.Source, in.Target, in.Mask)
	if err != nil {
		return nil, err
	}
	return &FinalFilter{pass}, nil
}

// SetInput rebinds one of FinalMix, FinalBoundary, FinalSource, FinalTarget
// or FinalMask.
func (f *FinalFilter) SetInput(index int, p Provider) error {
	return f.setInput(f, index, p)
}
