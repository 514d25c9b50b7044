package software

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// Names of the kernels in the built-in library.
const (
	KernelBlurHorizontal = "gaussian_blur_horizontal"
	KernelBlurVertical   = "gaussian_blur_vertical"
	KernelDiff           = "diff"
	KernelMultiply       = "multiply"
	KernelGreyscale      = "greyscale"
	KernelReplaceColor   = "replace_color"
	KernelResample       = "resample"
)

// Library returns a fresh copy of the built-in kernels. The final compositor
// is deliberately absent: its blend arithmetic lives with the caller.
func Library() map[string]Kernel {
	return map[string]Kernel{
		KernelBlurHorizontal: convolve(1, 0),
		KernelBlurVertical:   convolve(0, 1),
		KernelDiff:           offsetBlend(diffTexel),
		KernelMultiply:       offsetBlend(multiplyTexel),
		KernelGreyscale:      greyscale,
		KernelReplaceColor:   replaceColor,
		KernelResample:       resample,
	}
}

func parallelRows(workers, height int, fn func(y int) error) error {
	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for y := range height {
		g.Go(func() error {
			return fn(y)
		})
	}
	return g.Wait()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// nearest rounds v to the nearest texel in [0, hi]. The clamp happens in
// floating point so offsets beyond the int range, or infinite ones, still
// land on the correct edge. NaN maps to 0.
func nearest(v float64, hi int) int {
	v = math.Floor(v + 0.5)
	switch {
	case v >= float64(hi):
		return hi
	case v > 0:
		return int(v)
	default:
		return 0
	}
}

func toByte(v float64) uint8 {
	return uint8(clampInt(int(math.Round(v)), 0, 255))
}

// inOut fetches the textures bound at 0 and 1 and checks the grid covers the output.
func inOut(inv *Invocation) (*Texture, *Texture, error) {
	in, err := inv.Texture(0)
	if err != nil {
		return nil, nil, err
	}
	out, err := inv.Texture(1)
	if err != nil {
		return nil, nil, err
	}
	if !inv.Covers(out) {
		return nil, nil, fmt.Errorf("dispatch grid %v x %v does not cover %s", inv.Threadgroups, inv.ThreadsPerGroup, out)
	}
	return in, out, nil
}

// convolve applies a one dimensional kernel along (dx, dy), clamping samples
// to the edge. Buffer 0 holds the normalised weights.
func convolve(dx, dy int) Kernel {
	return func(inv *Invocation) error {
		in, out, err := inOut(inv)
		if err != nil {
			return err
		}
		weights, err := inv.Float32s(0)
		if err != nil {
			return err
		}
		if len(weights) == 0 || len(weights)%2 == 0 {
			return fmt.Errorf("blur needs an odd number of weights, got %d", len(weights))
		}
		half := len(weights) / 2
		src, dst := in.pix, out.pix
		sw, sh := in.Width(), in.Height()

		return inv.Rows(out.Height(), func(y int) error {
			for x := range out.Width() {
				var r, g, b, a float64
				for k, w := range weights {
					sx := clampInt(x+(k-half)*dx, 0, sw-1)
					sy := clampInt(y+(k-half)*dy, 0, sh-1)
					i := src.PixOffset(sx, sy)
					r += float64(src.Pix[i+0]) * float64(w)
					g += float64(src.Pix[i+1]) * float64(w)
					b += float64(src.Pix[i+2]) * float64(w)
					a += float64(src.Pix[i+3]) * float64(w)
				}
				o := dst.PixOffset(x, y)
				dst.Pix[o+0] = toByte(r)
				dst.Pix[o+1] = toByte(g)
				dst.Pix[o+2] = toByte(b)
				dst.Pix[o+3] = toByte(a)
			}
			return nil
		})
	}
}

type texelFunc func(s, t uint8) uint8

func diffTexel(s, t uint8) uint8 {
	if s > t {
		return s - t
	}
	return t - s
}

func multiplyTexel(s, t uint8) uint8 {
	return toByte(float64(s) * float64(t) / 255)
}

// offsetBlend combines the source at 0 with the target at 1 sampled at an
// offset (buffer 0: dx, dy in texels). Samples outside the target are clamped
// to its edge. The output is bound at 2.
func offsetBlend(fn texelFunc) Kernel {
	return func(inv *Invocation) error {
		src, err := inv.Texture(0)
		if err != nil {
			return err
		}
		tgt, err := inv.Texture(1)
		if err != nil {
			return err
		}
		out, err := inv.Texture(2)
		if err != nil {
			return err
		}
		if !inv.Covers(out) {
			return fmt.Errorf("dispatch grid does not cover %s", out)
		}
		params, err := inv.Float32s(0)
		if err != nil {
			return err
		}
		var dx, dy float64
		if len(params) >= 2 {
			dx, dy = float64(params[0]), float64(params[1])
		}
		sw, sh := src.Width(), src.Height()
		tw, th := tgt.Width(), tgt.Height()

		return inv.Rows(out.Height(), func(y int) error {
			sy := clampInt(y, 0, sh-1)
			ty := nearest(float64(y)+dy, th-1)
			for x := range out.Width() {
				sx := clampInt(x, 0, sw-1)
				tx := nearest(float64(x)+dx, tw-1)
				si := src.pix.PixOffset(sx, sy)
				ti := tgt.pix.PixOffset(tx, ty)
				o := out.pix.PixOffset(x, y)
				for c := range 4 {
					out.pix.Pix[o+c] = fn(src.pix.Pix[si+c], tgt.pix.Pix[ti+c])
				}
			}
			return nil
		})
	}
}

// greyscale keeps fully transparent texels transparent and turns the rest
// into white with the luminance as alpha.
func greyscale(inv *Invocation) error {
	in, out, err := inOut(inv)
	if err != nil {
		return err
	}
	return inv.Rows(out.Height(), func(y int) error {
		for x := range out.Width() {
			i := in.pix.PixOffset(clampInt(x, 0, in.Width()-1), clampInt(y, 0, in.Height()-1))
			o := out.pix.PixOffset(x, y)
			p := in.pix.Pix[i : i+4 : i+4]
			if p[3] == 0 {
				copy(out.pix.Pix[o:o+4], []uint8{0, 0, 0, 0})
				continue
			}
			lum := toByte(0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2]))
			copy(out.pix.Pix[o:o+4], []uint8{255, 255, 255, lum})
		}
		return nil
	})
}

// replaceColor fades texels close to a colour towards transparency.
// Buffer 0 holds r, g, b (0-255) and the tolerance.
func replaceColor(inv *Invocation) error {
	in, out, err := inOut(inv)
	if err != nil {
		return err
	}
	params, err := inv.Float32s(0)
	if err != nil {
		return err
	}
	if len(params) < 4 {
		return errors.New("replace_color needs r, g, b and tolerance")
	}
	rr, rg, rb, tolerance := float64(params[0]), float64(params[1]), float64(params[2]), float64(params[3])

	return inv.Rows(out.Height(), func(y int) error {
		for x := range out.Width() {
			i := in.pix.PixOffset(clampInt(x, 0, in.Width()-1), clampInt(y, 0, in.Height()-1))
			o := out.pix.PixOffset(x, y)
			r, g, b, a := float64(in.pix.Pix[i]), float64(in.pix.Pix[i+1]), float64(in.pix.Pix[i+2]), float64(in.pix.Pix[i+3])
			dist := math.Sqrt((rr-r)*(rr-r) + (rg-g)*(rg-g) + (rb-b)*(rb-b))
			if dist < tolerance {
				a = dist / tolerance * a
			}
			copy(out.pix.Pix[o:o+4], []uint8{uint8(r), uint8(g), uint8(b), toByte(a)})
		}
		return nil
	})
}

// resample scales the input onto the output extent with Catmull-Rom.
func resample(inv *Invocation) error {
	in, out, err := inOut(inv)
	if err != nil {
		return err
	}
	clear(out.pix.Pix)
	draw.CatmullRom.Scale(out.pix, out.pix.Bounds(), in.pix, in.pix.Bounds(), draw.Src, nil)
	return nil
}
