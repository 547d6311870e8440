// Command lanesim runs a headless multi-lane traffic simulation and prints
// a JSON report of per-vehicle statistics to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/lanesim/internal/config"
	"github.com/banshee-data/lanesim/internal/fsutil"
	"github.com/banshee-data/lanesim/internal/monitoring"
	"github.com/banshee-data/lanesim/internal/report"
	"github.com/banshee-data/lanesim/internal/scenario"
	"github.com/banshee-data/lanesim/internal/stats"
	"github.com/banshee-data/lanesim/internal/units"
	"github.com/banshee-data/lanesim/internal/version"
)

// fileSystem backs config reads and report writes; tests swap it.
var fileSystem fsutil.FileSystem = fsutil.OSFileSystem{}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("lanesim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath  = fs.String("config", "", "Path to a JSON scenario config (defaults built in)")
		seed        = fs.Uint64("seed", 0, "Random seed, overrides the config")
		workers     = fs.Int("workers", 0, "Goroutines for the decision pass, overrides the config")
		realtime    = fs.Float64("realtime", 0, "Wall-clock speed-up factor, 0 runs flat out; overrides the config")
		reportUnits = fs.String("units", "", "Report speed units: "+units.GetValidUnitsString())
		verbose     = fs.Bool("verbose", false, "Enable debug logging")
		outputDir   = fs.String("output-dir", "", "Also write the report to <dir>/<run_id>.json")
		showVersion = fs.Bool("version", false, "Print version and exit")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return nil
	}
	monitoring.SetVerbose(*verbose)

	cfg := config.EmptySimConfig()
	if *configPath != "" {
		loaded, err := config.LoadSimConfigFS(fileSystem, *configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			cfg.Seed = seed
		case "workers":
			cfg.Workers = workers
		case "realtime":
			cfg.Realtime = realtime
		case "units":
			cfg.ReportUnits = reportUnits
		}
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	collector := stats.NewCollector()
	s, zones, err := scenario.Build(cfg, collector)
	if err != nil {
		return fmt.Errorf("failed to build scenario: %w", err)
	}
	collector.Start(s.Snapshots())

	monitoring.Logf("lanesim %s: seed %d, %d lanes, %d vehicles, course %.0f-%.0f m",
		version.Version, cfg.GetSeed(), cfg.GetLaneCount(), s.Len(), cfg.GetCourseStart(), s.CourseEnd())

	res, err := scenario.Run(ctx, s, zones, scenario.RunOptionsFromConfig(cfg))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if err != nil {
		monitoring.Logf("run interrupted at t=%.2fs, reporting partial results", res.SimTime)
	}

	rep := report.Build(report.Meta{
		RunID:   s.RunID,
		Version: version.Version,
		Seed:    cfg.GetSeed(),
		Units:   cfg.GetReportUnits(),
	}, res, collector.Results())

	if *outputDir != "" {
		path, err := rep.WriteFile(fileSystem, *outputDir)
		if err != nil {
			return err
		}
		monitoring.Logf("report written to %s", path)
	}
	return rep.Encode(stdout)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("lanesim: %v", err)
	}
}
