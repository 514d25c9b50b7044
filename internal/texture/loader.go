// Package texture moves images between files and the GPU: it loads named
// resources into textures, encodes read-back images and fingerprints them.
package texture

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/anthonynsimon/bild/transform"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/rm-hull/gpu-filter-graph/internal/gpu"
)

// Loader resolves named image resources from a file system.
type Loader struct {
	FS fs.FS
}

// NewLoader serves resources from a directory on disk.
func NewLoader(dir string) *Loader {
	return &Loader{FS: os.DirFS(dir)}
}

// Load decodes the resource name.ext and uploads it to dev. With flip set
// the image is mirrored vertically first, for runtimes whose texture origin
// is bottom-left. Failures wrap gpu.ErrResourceLoad, or gpu.ErrComputeFailure
// if the upload itself failed.
func (l *Loader) Load(dev gpu.Device, name, ext string, flip bool) (gpu.Texture, error) {
	file := name
	if ext != "" {
		file = name + "." + strings.TrimPrefix(ext, ".")
	}
	img, err := l.Image(file)
	if err != nil {
		return nil, err
	}
	if flip {
		img = transform.FlipV(img)
	}
	tex, err := dev.Upload(img)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", file, err)
	}
	return tex, nil
}

// Image decodes a resource without uploading it.
func (l *Loader) Image(file string) (image.Image, error) {
	if l == nil || l.FS == nil {
		return nil, fmt.Errorf("%w: no resource file system", gpu.ErrResourceLoad)
	}
	f, err := l.FS.Open(path.Clean(file))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gpu.ErrResourceLoad, err)
	}
	defer func() {
		_ = f.Close()
	}()
	img, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", gpu.ErrResourceLoad, file, err)
	}
	return img, nil
}

// Decode reads any registered image format.
func Decode(r io.Reader) (image.Image, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty %s image", format)
	}
	return img, nil
}

// Encode writes img as PNG.
func Encode(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
