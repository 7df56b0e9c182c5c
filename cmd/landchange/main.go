package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/verdantlabs/landchange/internal/api"
	"github.com/verdantlabs/landchange/internal/config"
	"github.com/verdantlabs/landchange/internal/engine"
	"github.com/verdantlabs/landchange/internal/models"
	"github.com/verdantlabs/landchange/internal/observability"
	"github.com/verdantlabs/landchange/internal/render"
	"github.com/verdantlabs/landchange/internal/report"
	"github.com/verdantlabs/landchange/internal/services"
	"github.com/verdantlabs/landchange/internal/utils"
)

type options struct {
	configPath  string
	startYear   int
	endYear     int
	roi         string
	threshold   float64
	archive     string
	destination string
	outDir      string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.IntVar(&opts.startYear, "start", 0, "Start year")
	flag.IntVar(&opts.endYear, "end", 0, "End year")
	flag.StringVar(&opts.roi, "roi", "", `Region of interest as [[lat, lon], ...]`)
	flag.Float64Var(&opts.threshold, "threshold", 0, "NDVI increase marking a pixel as changed (default from config)")
	flag.StringVar(&opts.archive, "archive", "", "Archive backend: http or memory (default from config)")
	flag.StringVar(&opts.destination, "export", "", "Submit the change mask for export to this destination")
	flag.StringVar(&opts.outDir, "out", "", "Write mask.tif, PNG quicklooks, report.html and summary.xlsx to this directory")
	flag.Parse()

	thresholdSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "threshold" {
			thresholdSet = true
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, thresholdSet, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, api.UserMessage(err))
		fmt.Fprintf(os.Stderr, "detail: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, thresholdSet bool, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.archive != "" {
		cfg.Archive.Mode = strings.ToLower(opts.archive)
	}

	logger := utils.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.JSON)

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	components, err := services.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}

	req := models.RunRequest{ROIText: opts.roi, StartYear: opts.startYear, EndYear: opts.endYear}
	if thresholdSet {
		req.Threshold = &opts.threshold
	}

	var (
		result models.RunResult
		task   models.ExportTask
	)
	if opts.destination != "" {
		result, task, err = components.Service.DetectAndExport(ctx, req, opts.destination)
	} else {
		result, err = components.Service.Detect(ctx, req)
	}
	if err != nil {
		return err
	}

	printSummary(out, result)
	if opts.destination != "" {
		fmt.Fprintf(out, "%s (task %s, %s)\n", engine.ExportMessage(task.Destination), task.ID, task.State)
	}
	if opts.outDir != "" {
		if err := writeOutputs(opts.outDir, result); err != nil {
			logger.Error("write outputs failed", slog.String("dir", opts.outDir), slog.Any("error", err))
			return err
		}
		fmt.Fprintf(out, "Wrote outputs to %s\n", opts.outDir)
	}
	return nil
}

func printSummary(w io.Writer, result models.RunResult) {
	s := result.Summary
	fmt.Fprintf(w, "Run %s: %d -> %d, threshold %.3f\n", result.RunID, result.StartYear, result.EndYear, result.Threshold)
	if warning := api.ReversedYearsWarning(result); warning != "" {
		fmt.Fprintln(w, warning)
	}
	fmt.Fprintf(w, "Changed:   %d\n", s.Changed)
	fmt.Fprintf(w, "Unchanged: %d\n", s.Unchanged)
	fmt.Fprintf(w, "Masked:    %d\n", s.Masked)
	fmt.Fprintf(w, "Changed fraction: %.4f\n", s.ChangedFraction)
	fmt.Fprintf(w, "NDVI %d: mean %.3f median %.3f p10 %.3f p90 %.3f (%d px)\n",
		result.StartYear, s.Start.Mean, s.Start.Median, s.Start.P10, s.Start.P90, s.Start.Defined)
	fmt.Fprintf(w, "NDVI %d: mean %.3f median %.3f p10 %.3f p90 %.3f (%d px)\n",
		result.EndYear, s.End.Mean, s.End.Median, s.End.P10, s.End.P90, s.End.Defined)
}

func writeOutputs(dir string, result models.RunResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tiff, err := engine.EncodeMaskGeoTIFF(result.Mask)
	if err != nil {
		return fmt.Errorf("encode mask: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "mask.tif"), tiff, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "report.html"), report.HTML(result, api.ReversedYearsWarning(result)), 0o644); err != nil {
		return err
	}
	var workbook bytes.Buffer
	if err := report.WriteWorkbook(&workbook, result); err != nil {
		return fmt.Errorf("summary workbook: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "summary.xlsx"), workbook.Bytes(), 0o644); err != nil {
		return err
	}
	for _, layer := range result.Layers {
		png, err := render.QuicklookLayer(layer)
		if err != nil {
			return fmt.Errorf("quicklook %q: %w", layer.Name, err)
		}
		name := strings.ToLower(strings.ReplaceAll(layer.Name, " ", "_")) + ".png"
		if err := os.WriteFile(filepath.Join(dir, name), png, 0o644); err != nil {
			return err
		}
	}
	return nil
}
