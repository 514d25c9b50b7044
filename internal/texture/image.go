package texture

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/cespare/xxhash/v2"
)

// Hash fingerprints the pixels and bounds of img. Images that look the same
// hash the same regardless of their concrete type.
func Hash(img image.Image) uint64 {
	n := ToNRGBA(img)
	d := xxhash.New()
	var hdr [16]byte
	binary.LittleEndian.PutUint64(hdr[0:], uint64(n.Rect.Dx()))
	binary.LittleEndian.PutUint64(hdr[8:], uint64(n.Rect.Dy()))
	_, _ = d.Write(hdr[:])
	w := n.Rect.Dx() * 4
	for y := range n.Rect.Dy() {
		off := y * n.Stride
		_, _ = d.Write(n.Pix[off : off+w])
	}
	return d.Sum64()
}

// ETag formats Hash as an HTTP entity tag.
func ETag(img image.Image) string {
	return fmt.Sprintf(`"%016x"`, Hash(img))
}

// ToNRGBA returns img as an *image.NRGBA anchored at the origin.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// Solid returns a width x height image filled with c.
func Solid(width, height int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}
