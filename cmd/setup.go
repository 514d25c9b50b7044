package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rm-hull/gpu-filter-graph/internal/config"
	"github.com/rm-hull/gpu-filter-graph/internal/filter"
	"github.com/rm-hull/gpu-filter-graph/internal/gpu"
	"github.com/rm-hull/gpu-filter-graph/internal/gpu/software"
	"github.com/rm-hull/gpu-filter-graph/internal/texture"
)

// engine bundles what every command needs to execute a graph.
type engine struct {
	device *software.Device
	ctx    *filter.Context
	loader *texture.Loader
}

func newEngine(cfg *config.Config) (*engine, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	device := software.NewDevice(
		software.WithWorkers(cfg.Workers),
		software.WithLogger(logger),
	)
	ctx, err := filter.NewContext(device, filter.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &engine{
		device: device,
		ctx:    ctx,
		loader: texture.NewLoader(cfg.ResourceDir),
	}, nil
}

// load resolves a resource file name such as "source.png".
func (e *engine) load(file string, flip bool) (gpu.Texture, error) {
	ext := filepath.Ext(file)
	name := strings.TrimSuffix(file, ext)
	tex, err := e.loader.Load(e.device, name, ext, flip)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", file, err)
	}
	return tex, nil
}

// writeAtomic writes data via a temporary file in the same directory so
// readers never observe a partial file.
func writeAtomic(filename string, write func(f *os.File) error) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create path: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, "render-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	cleanupTemp := true
	defer func() {
		_ = tmpFile.Close()
		if cleanupTemp {
			_ = os.Remove(tmpFile.Name())
		}
	}()

	if err := write(tmpFile); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file before rename: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), filename); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	cleanupTemp = false
	return nil
}
