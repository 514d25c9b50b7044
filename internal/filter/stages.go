package filter

import (
	"image/color"
)

const (
	KernelGreyscale    = "greyscale"
	KernelReplaceColor = "replace_color"
	KernelResample     = "resample"
)

// NewGreyscale converts the input to white with its luminance as alpha.
// Fully transparent texels stay transparent.
func NewGreyscale(ctx *Context, p Provider) (*Node, error) {
	return NewNode(ctx, KernelGreyscale, WithLabel("greyscale"), WithInputs(p))
}

// NewReplaceColor fades texels within tolerance of c towards transparency:
// an exact match becomes fully transparent, one at the edge of the
// tolerance stays opaque.
func NewReplaceColor(ctx *Context, p Provider, c color.Color, tolerance float64) (*Node, error) {
	return NewNode(ctx, KernelReplaceColor,
		WithLabel("replace color"),
		WithInputs(p),
		WithParams(ReplaceColorParams(c, tolerance)))
}

// ReplaceColorParams encodes the parameters of the replace_color kernel.
func ReplaceColorParams(c color.Color, tolerance float64) []byte {
	r, g, b, _ := c.RGBA()
	return float32Bytes(float32(r>>8), float32(g>>8), float32(b>>8), float32(tolerance))
}

// NewResample scales the input to a fixed width x height with Catmull-Rom.
func NewResample(ctx *Context, p Provider, width, height int) (*Node, error) {
	return NewNode(ctx, KernelResample,
		WithLabel("resample"),
		WithInputs(p),
		WithOutputSize(width, height))
}
