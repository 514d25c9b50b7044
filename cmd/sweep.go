package cmd

import (
	"errors"
	"fmt"
	"image"
	"log"
	"os"

	"github.com/rm-hull/gpu-filter-graph/internal/config"
	"github.com/rm-hull/gpu-filter-graph/internal/filter"
	"github.com/rm-hull/gpu-filter-graph/internal/texture"
)

// Sweep renders a blur of the source at every radius in [from, to] and
// writes the frames as an animated PNG. The same graph is reused for every
// frame; only the radius changes between passes.
func Sweep(cfg *config.Config, source, out string, from, to, step, frameDelay float64, flip bool) error {
	if step <= 0 {
		return errors.New("step must be positive")
	}
	if from < 0 || to < from {
		return fmt.Errorf("invalid radius range %g..%g", from, to)
	}

	e, err := newEngine(cfg)
	if err != nil {
		return err
	}
	tex, err := e.load(firstNonEmpty(source, cfg.Source), flip)
	if err != nil {
		return err
	}
	blur, err := filter.NewGaussianBlur(e.ctx, filter.NewSource(tex), from)
	if err != nil {
		return err
	}

	var frames []image.Image
	for radius := from; radius <= to; radius += step {
		blur.SetRadius(radius)
		img, err := filter.RenderImage(e.ctx, blur)
		if err != nil {
			return fmt.Errorf("failed to render radius %g: %w", radius, err)
		}
		frames = append(frames, img)
	}
	log.Printf("Rendered %d frames", len(frames))

	apngBytes, err := texture.Animate(frames, frameDelay)
	if err != nil {
		return fmt.Errorf("failed to encode animation: %w", err)
	}
	return writeAtomic(out, func(f *os.File) error {
		_, err := f.Write(apngBytes)
		return err
	})
}
