package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rm-hull/gpu-filter-graph/internal"
	"github.com/rm-hull/gpu-filter-graph/internal/config"
)

// Batch applies a preset to every image in inDir, writing PNGs to outDir.
// With a cron schedule it keeps running and processes new files on every
// tick until interrupted.
func Batch(cfg *config.Config, preset, inDir, outDir, schedule string) error {
	if _, ok := internal.Presets[preset]; !ok {
		return fmt.Errorf("unknown preset %q", preset)
	}
	e, err := newEngine(cfg)
	if err != nil {
		return err
	}
	poolSize := cfg.Workers
	if poolSize < 1 {
		poolSize = runtime.GOMAXPROCS(0)
	}
	newProcessor := func() (*internal.Processor, error) {
		return internal.NewProcessor(e.ctx, inDir, outDir, poolSize, preset)
	}

	if schedule == "" {
		processor, err := newProcessor()
		if err != nil {
			return err
		}
		return processor.Run()
	}

	c, err := internal.StartCron(schedule, newProcessor)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	defer c.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Println("Shutting down batch scheduler")
	return nil
}
