package internal

import (
	"errors"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rm-hull/gpu-filter-graph/internal/filter"
	"github.com/rm-hull/gpu-filter-graph/internal/texture"
)

// Preset builds a chain of filters over src, a width x height image.
type Preset func(ctx *filter.Context, src filter.Provider, width, height int) (filter.Provider, error)

// Presets are the chains a batch can apply by name.
var Presets = map[string]Preset{
	"precipitation": func(ctx *filter.Context, src filter.Provider, w, h int) (filter.Provider, error) {
		return chain(ctx, src, w, h, false)
	},
	"cloud": func(ctx *filter.Context, src filter.Provider, w, h int) (filter.Provider, error) {
		return chain(ctx, src, w, h, true)
	},
	// NoOp
	"copy": func(_ *filter.Context, src filter.Provider, _, _ int) (filter.Provider, error) {
		return src, nil
	},
}

// chain fades out white, optionally converts to greyscale, softens with a
// small blur and smooths the result with a Catmull-Rom resample.
func chain(ctx *filter.Context, src filter.Provider, w, h int, grey bool) (filter.Provider, error) {
	replaced, err := filter.NewReplaceColor(ctx, src, color.White, 50)
	if err != nil {
		return nil, err
	}
	var p filter.Provider = replaced
	if grey {
		if p, err = filter.NewGreyscale(ctx, p); err != nil {
			return nil, err
		}
	}
	blur, err := filter.NewGaussianBlur(ctx, p, 2)
	if err != nil {
		return nil, err
	}
	blur.SetSigma(1.0)
	return filter.NewResample(ctx, blur, w, h)
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// Processor runs a preset over every image in a directory on a pool of
// workers. All workers share one filter context, so each kernel is compiled
// once per process; every file gets its own graph.
type Processor struct {
	startTime time.Time
	endTime   time.Time
	inDir     string
	outDir    string
	poolSize  int
	jobs      chan string
	results   chan error
	files     []string
	ctx       *filter.Context
	loader    *texture.Loader
	preset    Preset
}

func NewProcessor(ctx *filter.Context, inDir, outDir string, poolSize int, preset string) (*Processor, error) {
	if poolSize < 1 {
		return nil, errors.New("pool size must be at least 1")
	}
	fn, ok := Presets[preset]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q", preset)
	}
	startTime := time.Now()

	entries, err := os.ReadDir(inDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", inDir, err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(entry.Name()))) {
			continue
		}
		files = append(files, entry.Name())
	}

	log.Printf("Directory %s contains %d images", inDir, len(files))
	if len(files) == 0 {
		return nil, errors.New("no files to process")
	}

	return &Processor{
		startTime: startTime,
		inDir:     inDir,
		outDir:    outDir,
		poolSize:  poolSize,
		jobs:      make(chan string),
		results:   make(chan error),
		files:     files,
		ctx:       ctx,
		loader:    texture.NewLoader(inDir),
		preset:    fn,
	}, nil
}

func (p *Processor) Files() []string { return p.files }

// DispatchJobs sends files to the jobs channel for processing by workers.
func (p *Processor) DispatchJobs() {
	go func() {
		for _, file := range p.files {
			p.jobs <- file
		}
		close(p.jobs)
	}()
}

func (p *Processor) StartWorkers() {
	log.Printf("Starting processing files with pool size: %d", p.poolSize)

	for i := range p.poolSize {
		go p.worker(i)
	}
}

func (p *Processor) worker(i int) {
	log.Printf("Worker %d started", i)
	for file := range p.jobs {
		p.results <- p.processFile(file)
	}
	log.Printf("Worker %d finished", i)
}

func (p *Processor) processFile(file string) error {
	filename := filepath.Join(p.outDir, strings.TrimSuffix(file, filepath.Ext(file))+".png")

	// if the file already exists, skip processing
	if _, err := os.Stat(filename); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	tex, err := p.loader.Load(p.ctx.Device(), file, "", false)
	if err != nil {
		return err
	}
	provider, err := p.preset(p.ctx, filter.NewSource(tex), tex.Width(), tex.Height())
	if err != nil {
		return fmt.Errorf("failed to build graph for %s: %w", file, err)
	}
	img, err := filter.RenderImage(p.ctx, provider)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", file, err)
	}

	if err := os.MkdirAll(p.outDir, 0755); err != nil {
		return fmt.Errorf("failed to create path: %w", err)
	}
	tmpFile, err := os.CreateTemp(p.outDir, "batch-*.tmp")
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

	if err := texture.Encode(tmpFile, img); err != nil {
		return fmt.Errorf("failed to write processed image to temporary file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file before rename: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), filename); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	cleanupTemp = false // Successfully renamed, don't delete
	return nil
}

func (p *Processor) Wait() []error {
	waitFor := len(p.files)
	log.Printf("Waiting for %d files to be processed", waitFor)

	errs := make([]error, 0, 10)
	for range waitFor {
		if err := <-p.results; err != nil {
			errs = append(errs, err)
		}
	}
	p.endTime = time.Now()
	elapsed := p.endTime.Sub(p.startTime)
	log.Printf("All files processed in %s (errors=%d)", elapsed, len(errs))
	return errs
}

// Run processes every file and joins any errors.
func (p *Processor) Run() error {
	p.StartWorkers()
	p.DispatchJobs()
	return errors.Join(p.Wait()...)
}
