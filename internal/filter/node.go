package filter

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/rm-hull/gpu-filter-graph/internal/gpu"
)

// State is the lifecycle state of a Node.
type State int

const (
	StateUninitialized State = iota
	StateConfigured
	StateEncoded
	StateCached
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateEncoded:
		return "encoded"
	case StateCached:
		return "cached"
	case StateInvalidated:
		return "invalidated"
	default:
		return "uninitialized"
	}
}

// DefaultThreadgroupSize is the threadgroup used when a node does not set one.
var DefaultThreadgroupSize = gpu.Size{Width: 16, Height: 16, Depth: 1}

// stamp identifies the output an input produced when it was last pulled.
type stamp struct {
	id  uint64
	gen uint64
}

// Node wraps exactly one compute dispatch. Its inputs are bound to texture
// indices 0..n-1 in order, its output follows at index n, and its scalar
// parameters are uploaded to buffer index 0.
type Node struct {
	ctx      *Context
	function string
	label    string
	pipeline gpu.PipelineState
	group    gpu.Size

	inputs []Provider
	params []byte
	size   *gpu.TextureDescriptor

	output  gpu.Texture
	seen    []stamp
	session *Session
	gen     uint64
	dirty   bool
	state   State
}

type NodeOption func(*Node)

func WithLabel(label string) NodeOption {
	return func(n *Node) { n.label = label }
}

// WithInputs binds providers to input indices 0..len(ps)-1.
func WithInputs(ps ...Provider) NodeOption {
	return func(n *Node) { n.inputs = append([]Provider(nil), ps...) }
}

func WithParams(b []byte) NodeOption {
	return func(n *Node) { n.params = bytes.Clone(b) }
}

// WithOutputSize fixes the output extent instead of matching the first input.
func WithOutputSize(width, height int) NodeOption {
	return func(n *Node) {
		n.size = &gpu.TextureDescriptor{Width: width, Height: height, Depth: 1}
	}
}

func WithThreadgroupSize(size gpu.Size) NodeOption {
	return func(n *Node) { n.group = size }
}

// NewNode resolves function through the context's pipeline cache. It fails
// with an error wrapping gpu.ErrKernelNotFound when the kernel is missing.
func NewNode(ctx *Context, function string, opts ...NodeOption) (*Node, error) {
	if ctx == nil {
		return nil, errors.New("filter: context is required")
	}
	n := &Node{
		ctx:      ctx,
		function: function,
		label:    function,
		group:    DefaultThreadgroupSize,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.group.Width <= 0 || n.group.Height <= 0 {
		return nil, fmt.Errorf("filter: invalid threadgroup size %v", n.group)
	}
	if n.size != nil {
		if err := (gpu.TextureDescriptor{Width: n.size.Width, Height: n.size.Height, Depth: 1, Format: gpu.FormatRGBA8Unorm}).Validate(); err != nil {
			return nil, fmt.Errorf("filter: %s: %w", n.label, err)
		}
	}
	for i, p := range n.inputs {
		if p == nil {
			return nil, fmt.Errorf("filter: %s: input %d is nil", n.label, i)
		}
		if err := checkComparable(p); err != nil {
			return nil, fmt.Errorf("%s: %w", n.label, err)
		}
	}

	pipeline, err := ctx.Pipeline(function)
	if err != nil {
		return nil, err
	}
	n.pipeline = pipeline
	n.state = StateConfigured
	return n, nil
}

func (n *Node) Label() string { return n.label }

func (n *Node) Function() string { return n.function }

func (n *Node) State() State { return n.state }

// Generation changes every time the node encodes a new output.
func (n *Node) Generation() uint64 { return n.gen }

func (n *Node) Inputs() []Provider { return slices.Clone(n.inputs) }

// Params returns a copy of the scalar parameters.
func (n *Node) Params() []byte { return bytes.Clone(n.params) }

// SetParams replaces the scalar parameters and reports whether they changed.
// A change invalidates the cached output.
func (n *Node) SetParams(b []byte) bool {
	if bytes.Equal(n.params, b) {
		return false
	}
	n.params = bytes.Clone(b)
	n.invalidate()
	return true
}

// SetInput binds p at index, which may be one past the last bound input.
// Rebinding to a different provider invalidates the cached output.
func (n *Node) SetInput(index int, p Provider) error {
	if index < 0 || index > len(n.inputs) {
		return fmt.Errorf("filter: %s: input index %d out of range", n.label, index)
	}
	if err := checkAcyclic(p, n); err != nil {
		return fmt.Errorf("%s: %w", n.label, err)
	}
	if index == len(n.inputs) {
		n.inputs = append(n.inputs, p)
	} else if n.inputs[index] == p {
		return nil
	} else {
		n.inputs[index] = p
	}
	n.invalidate()
	return nil
}

// Invalidate drops the cached output so the next pull re-encodes.
func (n *Node) Invalidate() { n.invalidate() }

func (n *Node) invalidate() {
	n.dirty = true
	if n.state != StateUninitialized {
		n.state = StateInvalidated
	}
}

// Texture implements Provider. The pass is encoded only when a parameter,
// an input binding or an upstream output changed since the last encode.
func (n *Node) Texture(s *Session) (gpu.Texture, error) {
	if n.state == StateUninitialized {
		return nil, s.fail(fmt.Errorf("filter: node %q is not initialized", n.function))
	}
	if err := s.usable(); err != nil {
		return nil, err
	}
	if n.state == StateInvalidated {
		n.state = StateConfigured
	}
	inputs, stamps, err := n.pull(s, n.inputs)
	if err != nil {
		return nil, s.fail(err)
	}
	return n.render(s, inputs, stamps)
}

// OutputTexture encodes the pass for explicitly given input textures. Calls
// repeated with the same textures and parameters return the cached output.
func (n *Node) OutputTexture(s *Session, inputs ...gpu.Texture) (gpu.Texture, error) {
	if n.state == StateUninitialized {
		return nil, s.fail(fmt.Errorf("filter: node %q is not initialized", n.function))
	}
	if err := s.usable(); err != nil {
		return nil, err
	}
	stamps := make([]stamp, len(inputs))
	for i, t := range inputs {
		if t == nil {
			return nil, s.fail(fmt.Errorf("filter: %s: input texture %d is nil", n.label, i))
		}
		stamps[i] = stamp{id: t.ID()}
	}
	return n.render(s, inputs, stamps)
}

// Encode pulls the providers' textures and always encodes the dispatch,
// bypassing the cache. It never submits.
func (n *Node) Encode(s *Session, providers ...Provider) error {
	if n.state == StateUninitialized {
		return s.fail(fmt.Errorf("filter: node %q is not initialized", n.function))
	}
	inputs, stamps, err := n.pull(s, providers)
	if err != nil {
		return s.fail(err)
	}
	if err := n.dispatch(s, inputs); err != nil {
		return err
	}
	n.encoded(s, stamps)
	return nil
}

func (n *Node) pull(s *Session, providers []Provider) ([]gpu.Texture, []stamp, error) {
	inputs := make([]gpu.Texture, len(providers))
	stamps := make([]stamp, len(providers))
	for i, p := range providers {
		t, err := p.Texture(s)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: input %d: %w", n.label, i, err)
		}
		if t == nil {
			return nil, nil, gpu.ComputeFailure("%s: input %d yielded no texture", n.label, i)
		}
		inputs[i] = t
		stamps[i] = stamp{id: t.ID()}
		if v, ok := p.(Versioned); ok {
			stamps[i].gen = v.Generation()
		}
	}
	return inputs, stamps, nil
}

func (n *Node) render(s *Session, inputs []gpu.Texture, stamps []stamp) (gpu.Texture, error) {
	if !n.dirty && n.output != nil && n.session.holds(s) && slices.Equal(stamps, n.seen) {
		n.state = StateCached
		return n.output, nil
	}
	if err := n.dispatch(s, inputs); err != nil {
		return nil, err
	}
	n.encoded(s, stamps)
	return n.output, nil
}

func (n *Node) encoded(s *Session, stamps []stamp) {
	n.session = s
	n.seen = stamps
	n.dirty = false
	n.gen = nextGeneration()
	n.state = StateEncoded
}

func (n *Node) outputDescriptor(inputs []gpu.Texture) (gpu.TextureDescriptor, error) {
	if n.size != nil {
		desc := *n.size
		desc.Format = gpu.FormatRGBA8Unorm
		if len(inputs) > 0 {
			desc.Format = inputs[0].Format()
		}
		return desc, nil
	}
	if len(inputs) == 0 {
		return gpu.TextureDescriptor{}, fmt.Errorf("filter: %s has neither inputs nor an output size", n.label)
	}
	return gpu.Descriptor(inputs[0]), nil
}

func (n *Node) dispatch(s *Session, inputs []gpu.Texture) error {
	if err := s.usable(); err != nil {
		return err
	}
	desc, err := n.outputDescriptor(inputs)
	if err != nil {
		return s.fail(err)
	}
	device := n.ctx.device

	// Every encode writes a fresh texture, so handles returned by earlier
	// passes keep their contents. Inputs may change size between passes; the
	// output follows them.
	if n.output != nil && gpu.Descriptor(n.output) != desc {
		n.ctx.logger.Debug("resizing output",
			"label", n.label,
			"from", fmt.Sprintf("%dx%d", n.output.Width(), n.output.Height()),
			"to", fmt.Sprintf("%dx%d", desc.Width, desc.Height))
	}
	output, err := device.NewTexture(desc)
	if err != nil {
		return s.fail(fmt.Errorf("filter: %s: failed to allocate output: %w", n.label, err))
	}

	var params gpu.Buffer
	if len(n.params) > 0 {
		params, err = device.NewBuffer(n.params)
		if err != nil {
			return s.fail(fmt.Errorf("filter: %s: failed to upload parameters: %w", n.label, err))
		}
	}

	err = s.encode(n, func(enc gpu.ComputeEncoder) {
		enc.SetLabel(n.label)
		enc.SetPipelineState(n.pipeline)
		for i, t := range inputs {
			enc.SetTexture(t, i)
		}
		enc.SetTexture(output, len(inputs))
		if params != nil {
			enc.SetBuffer(params, 0)
		}
		enc.Dispatch(gpu.Threadgroups(desc.Width, desc.Height, n.group), n.group)
	})
	if err != nil {
		return err
	}
	n.output = output
	n.ctx.logger.Debug("encoded pass",
		"session", s.id,
		"label", n.label,
		"function", n.function,
		"size", fmt.Sprintf("%dx%d", desc.Width, desc.Height))
	return nil
}
