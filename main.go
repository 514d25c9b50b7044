package main

import (
	"log"

	"github.com/earthboundkid/versioninfo/v2"
	"github.com/spf13/cobra"

	"github.com/rm-hull/gpu-filter-graph/cmd"
	"github.com/rm-hull/gpu-filter-graph/internal/config"
	"github.com/rm-hull/gpu-filter-graph/internal/preview"
)

func main() {
	var port int
	var debug bool
	var params preview.Params
	var renderOpts cmd.RenderOptions
	var sweepSource, sweepOut string
	var sweepFrom, sweepTo, sweepStep, sweepDelay float64
	var sweepFlip bool
	var batchPreset, batchIn, batchOut, batchSchedule string

	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:     "filter-graph",
		Long:    `GPU image filter graphs: blur, diff, multiply and friends`,
		Version: versioninfo.Short(),
	}
	rootCmd.PersistentFlags().StringVar(&cfg.ResourceDir, "resources", cfg.ResourceDir, "Path to resource folder")

	apiServerCmd := &cobra.Command{
		Use:   "api-server [--port <port>] [--radius <r>] [--x <dx>] [--y <dy>] [--debug]",
		Short: "Start HTTP preview server",
		Run: func(_ *cobra.Command, _ []string) {
			cmd.ApiServer(cfg, params, port, debug)
		},
	}
	apiServerCmd.Flags().IntVar(&port, "port", 8080, "Port to run HTTP server on")
	apiServerCmd.Flags().Float64Var(&params.Radius, "radius", 4, "Initial blur radius")
	apiServerCmd.Flags().Float64Var(&params.X, "x", 0, "Initial horizontal target offset")
	apiServerCmd.Flags().Float64Var(&params.Y, "y", 0, "Initial vertical target offset")
	apiServerCmd.Flags().StringVar(&cfg.Source, "source", cfg.Source, "Source resource")
	apiServerCmd.Flags().StringVar(&cfg.Target, "target", cfg.Target, "Target resource")
	apiServerCmd.Flags().DurationVar(&cfg.ReloadInterval, "reload", cfg.ReloadInterval, "Re-read source and target at this interval (0 disables)")
	apiServerCmd.Flags().BoolVar(&debug, "debug", false, "Enable debugging (pprof) - WARNING: do not enable in production")

	renderCmd := &cobra.Command{
		Use:   "render --op <op> --out <file>",
		Short: "Render one filter pass to a PNG",
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmd.Render(cfg, renderOpts)
		},
	}
	renderCmd.Flags().StringVar(&renderOpts.Op, "op", "blur", "Operation, one of blur, diff, multiply, mask, greyscale, replace-white, resample")
	renderCmd.Flags().StringVar(&renderOpts.Source, "source", "", "Source resource (defaults to FILTERGRAPH_SOURCE)")
	renderCmd.Flags().StringVar(&renderOpts.Target, "target", "", "Target resource (defaults to FILTERGRAPH_TARGET)")
	renderCmd.Flags().StringVar(&renderOpts.Out, "out", "out.png", "Output file")
	renderCmd.Flags().Float64Var(&renderOpts.Radius, "radius", 4, "Blur radius")
	renderCmd.Flags().Float64Var(&renderOpts.Sigma, "sigma", 0, "Blur sigma (0 derives it from the radius)")
	renderCmd.Flags().Float64Var(&renderOpts.X, "x", 0, "Horizontal target offset")
	renderCmd.Flags().Float64Var(&renderOpts.Y, "y", 0, "Vertical target offset")
	renderCmd.Flags().IntVar(&renderOpts.Width, "width", 256, "Output width for resample")
	renderCmd.Flags().IntVar(&renderOpts.Height, "height", 256, "Output height for resample")
	renderCmd.Flags().Float64Var(&renderOpts.Tolerance, "tolerance", 50, "Colour distance for replace-white")
	renderCmd.Flags().BoolVar(&renderOpts.Flip, "flip", false, "Flip resources vertically on load")

	sweepCmd := &cobra.Command{
		Use:   "sweep --out <file.png>",
		Short: "Render a blur radius sweep as an animated PNG",
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmd.Sweep(cfg, sweepSource, sweepOut, sweepFrom, sweepTo, sweepStep, sweepDelay, sweepFlip)
		},
	}
	sweepCmd.Flags().StringVar(&sweepSource, "source", "", "Source resource (defaults to FILTERGRAPH_SOURCE)")
	sweepCmd.Flags().StringVar(&sweepOut, "out", "sweep.png", "Output file")
	sweepCmd.Flags().Float64Var(&sweepFrom, "from", 0, "First radius")
	sweepCmd.Flags().Float64Var(&sweepTo, "to", 10, "Last radius")
	sweepCmd.Flags().Float64Var(&sweepStep, "step", 1, "Radius increment")
	sweepCmd.Flags().Float64Var(&sweepDelay, "delay", 0.2, "Seconds per frame")
	sweepCmd.Flags().BoolVar(&sweepFlip, "flip", false, "Flip the source vertically on load")

	batchCmd := &cobra.Command{
		Use:   "batch --preset <name> --in <dir> --out <dir> [--schedule <cron>]",
		Short: "Apply a filter preset to every image in a folder",
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmd.Batch(cfg, batchPreset, batchIn, batchOut, batchSchedule)
		},
	}
	batchCmd.Flags().StringVar(&batchPreset, "preset", "precipitation", "Preset, one of precipitation, cloud, copy")
	batchCmd.Flags().StringVar(&batchIn, "in", "./data/in", "Input folder")
	batchCmd.Flags().StringVar(&batchOut, "out", "./data/out", "Output folder")
	batchCmd.Flags().StringVar(&batchSchedule, "schedule", "", "Cron schedule; process once and exit when empty")
	batchCmd.Flags().IntVar(&cfg.Workers, "workers", cfg.Workers, "Worker pool size (0 uses every CPU)")

	rootCmd.AddCommand(apiServerCmd, renderCmd, sweepCmd, batchCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
