package cmd

import (
	"fmt"
	"image"
	"log"
	"net/http"

	"github.com/Depado/ginprom"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	healthcheck "github.com/tavsec/gin-healthcheck"
	"github.com/tavsec/gin-healthcheck/checks"
	hc_config "github.com/tavsec/gin-healthcheck/config"

	"github.com/rm-hull/gpu-filter-graph/internal"
	"github.com/rm-hull/gpu-filter-graph/internal/config"
	"github.com/rm-hull/gpu-filter-graph/internal/gpu"
	"github.com/rm-hull/gpu-filter-graph/internal/gpu/software"
	"github.com/rm-hull/gpu-filter-graph/internal/preview"
	"github.com/rm-hull/gpu-filter-graph/internal/texture"
)

// deviceCheck fails the health check once the device is gone.
type deviceCheck struct {
	device *software.Device
}

func (c deviceCheck) Pass() bool {
	_, err := c.device.NewCommandBuffer()
	return err == nil
}

func (c deviceCheck) Name() string { return "gpu-device" }

// reloader swaps the preview sources whenever their files change on disk.
func (e *engine) reloader(g *preview.Graph, source, target string) func() error {
	var last [2]uint64
	return func() error {
		var imgs [2]image.Image
		var hashes [2]uint64
		for i, file := range []string{source, target} {
			img, err := e.loader.Image(file)
			if err != nil {
				log.Printf("Failed to reload %s: %v", file, err)
				return err
			}
			imgs[i] = img
			hashes[i] = texture.Hash(img)
		}
		if hashes == last {
			return nil
		}

		var texs [2]gpu.Texture
		for i, img := range imgs {
			tex, err := e.device.Upload(img)
			if err != nil {
				log.Printf("Failed to upload reloaded resource: %v", err)
				return err
			}
			texs[i] = tex
		}
		g.SetSources(texs[0], texs[1])
		last = hashes
		log.Printf("Reloaded %s and %s", source, target)
		return nil
	}
}

func ApiServer(cfg *config.Config, params preview.Params, port int, debug bool) {
	internal.ShowVersion()
	if debug {
		internal.ProcessInfo()
		internal.EnvironmentVars("FILTERGRAPH_")
	}

	e, err := newEngine(cfg)
	if err != nil {
		log.Fatal(err)
	}
	source, err := e.load(cfg.Source, false)
	if err != nil {
		log.Fatal(err)
	}
	target, err := e.load(cfg.Target, false)
	if err != nil {
		log.Fatal(err)
	}
	graph, err := preview.NewGraph(e.ctx, source, target, params)
	if err != nil {
		log.Fatalf("failed to build preview graph: %v", err)
	}

	if cfg.ReloadInterval > 0 {
		sched, err := internal.NewReloader(cfg.ReloadInterval, e.reloader(graph, cfg.Source, cfg.Target))
		if err != nil {
			log.Fatal(err)
		}
		defer func() {
			_ = sched.Shutdown()
		}()
		log.Printf("Reloading %s and %s every %s", cfg.Source, cfg.Target, cfg.ReloadInterval)
	}

	r := gin.New()

	prometheus := ginprom.New(
		ginprom.Engine(r),
		ginprom.Path("/metrics"),
		ginprom.Ignore("/healthz"),
	)

	r.Use(
		gin.Recovery(),
		gin.LoggerWithWriter(gin.DefaultWriter, "/healthz", "/metrics"),
		prometheus.Instrument(),
	)

	if debug {
		log.Println("WARNING: pprof endpoints are enabled and exposed. Do not run with this flag in production.")
		pprof.Register(r)
	}

	err = healthcheck.New(r, hc_config.DefaultConfig(), []checks.Check{deviceCheck{device: e.device}})
	if err != nil {
		log.Fatalf("failed to initialize healthcheck: %v", err)
	}

	r.GET("/v1/preview", preview.Handler(graph))
	r.GET("/v1/preview/params", preview.ParamsHandler(graph))
	r.Static("/v1/resources", cfg.ResourceDir)

	addr := fmt.Sprintf(":%d", port)
	log.Printf("Starting preview server on port %d...", port)
	if err := r.Run(addr); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Preview server failed to start on port %d: %v", port, err)
	}
}
