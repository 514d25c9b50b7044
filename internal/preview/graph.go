// Package preview keeps one demo graph alive and re-renders it whenever a
// control changes, the way a slider-driven view would.
package preview

import (
	"fmt"
	"image"
	"sync"

	"github.com/rm-hull/gpu-filter-graph/internal/filter"
	"github.com/rm-hull/gpu-filter-graph/internal/gpu"
)

// Params are the values of the three controls.
type Params struct {
	Radius float64
	X      float64
	Y      float64
}

// Output selects which node of the graph to render.
type Output string

const (
	OutputDiff     Output = "diff"
	OutputMask     Output = "mask"
	OutputMultiply Output = "multiply"
)

func ParseOutput(s string) (Output, error) {
	switch o := Output(s); o {
	case OutputDiff, OutputMask, OutputMultiply:
		return o, nil
	case "":
		return OutputMask, nil
	default:
		return "", fmt.Errorf("unknown output %q", s)
	}
}

// Graph is
//
//	diff     = |source - target(x, y)|
//	mask     = blur(diff, radius)
//	multiply = source * target(x, y)
//
// Passes are serialised; Graph is safe for concurrent use.
type Graph struct {
	mu     sync.Mutex
	ctx    *filter.Context
	params Params

	source   *filter.Source
	target   *filter.Source
	diff     *filter.DiffFilter
	mask     *filter.GaussianBlur
	multiply *filter.MultiplyFilter
}

func NewGraph(ctx *filter.Context, source, target gpu.Texture, params Params) (*Graph, error) {
	g := &Graph{
		ctx:    ctx,
		params: params,
		source: filter.NewSource(source),
		target: filter.NewSource(target),
	}
	offset := filter.Offset{X: params.X, Y: params.Y}

	var err error
	if g.diff, err = filter.NewDiffFilter(ctx, g.source, g.target, offset); err != nil {
		return nil, fmt.Errorf("failed to create diff filter: %w", err)
	}
	if g.mask, err = filter.NewGaussianBlur(ctx, g.diff, params.Radius); err != nil {
		return nil, fmt.Errorf("failed to create blur filter: %w", err)
	}
	if g.multiply, err = filter.NewMultiplyFilter(ctx, g.source, g.target, offset); err != nil {
		return nil, fmt.Errorf("failed to create multiply filter: %w", err)
	}
	return g, nil
}

func (g *Graph) Params() Params {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.params
}

// Update applies control values and reports whether any cached output was
// invalidated.
func (g *Graph) Update(p Params) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.update(p)
}

func (g *Graph) update(p Params) bool {
	if p.Radius < 0 {
		p.Radius = 0
	}
	g.params = p
	offset := filter.Offset{X: p.X, Y: p.Y}
	changed := g.mask.SetRadius(p.Radius)
	changed = g.diff.SetOffset(offset) || changed
	changed = g.multiply.SetOffset(offset) || changed
	return changed
}

// SetSources swaps the input textures.
func (g *Graph) SetSources(source, target gpu.Texture) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.source.SetTexture(source)
	g.target.SetTexture(target)
}

// Render applies p and reads back the selected output.
func (g *Graph) Render(p Params, out Output) (*image.NRGBA, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.update(p)
	var provider filter.Provider
	switch out {
	case OutputDiff:
		provider = g.diff
	case OutputMultiply:
		provider = g.multiply
	default:
		provider = g.mask
	}
	return filter.RenderImage(g.ctx, provider)
}
