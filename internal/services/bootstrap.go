package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/verdantlabs/landchange/internal/acquisition"
	"github.com/verdantlabs/landchange/internal/config"
	"github.com/verdantlabs/landchange/internal/engine"
	"github.com/verdantlabs/landchange/internal/models"
	"github.com/verdantlabs/landchange/internal/repo"
	"github.com/verdantlabs/landchange/internal/validation"
)

const syntheticGridSize = 64

// Archive is an authenticated archive session able to serve composites and
// accept exports.
type Archive interface {
	engine.ArchiveSession
	engine.ExportSubmitter
}

// Components holds the wired detection stack.
type Components struct {
	Archive   Archive
	Validator *validation.Validator
	Pipeline  *engine.Pipeline
	Exporter  *engine.Exporter
	Service   *ChangeService
}

// Bootstrap authenticates against the configured archive once and wires the
// pipeline, exporter and service on top of that session.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	archive, err := connectArchive(ctx, cfg.Archive, logger)
	if err != nil {
		return nil, err
	}

	validator := validation.New(cfg.Analysis.MinYear, cfg.Analysis.MaxYear,
		validation.WithOrderedYears(cfg.Analysis.RequireOrderedYears))

	bands := append([]string{cfg.Analysis.NIRBand, cfg.Analysis.RedBand}, cfg.Display.VisualBands...)
	builder := acquisition.NewBuilder(cfg.Archive.Collection,
		models.CloudMaskPolicy{QABand: cfg.Analysis.CloudQABand, CloudBit: cfg.Analysis.CloudBit},
		bands...)

	threshold := cfg.Analysis.Threshold
	pipeline := engine.NewPipeline(logger, archive, validator, builder, engine.Options{
		NIRBand:    cfg.Analysis.NIRBand,
		RedBand:    cfg.Analysis.RedBand,
		Threshold:  &threshold,
		ImageStyle: models.LayerStyle{Bands: cfg.Display.VisualBands, Min: cfg.Display.Min, Max: cfg.Display.Max},
		MaskStyle:  models.LayerStyle{Palette: cfg.Display.ChangePalette},
		Zoom:       cfg.Display.Zoom,
		RunTimeout: cfg.Analysis.RunTimeout,
	})
	exporter := engine.NewExporter(logger, archive, engine.ExportOptions{
		Description: cfg.Export.Description,
		Scale:       cfg.Export.Scale,
		Destination: cfg.Export.Destination,
		FilePrefix:  cfg.Export.FilePrefix,
	})

	return &Components{
		Archive:   archive,
		Validator: validator,
		Pipeline:  pipeline,
		Exporter:  exporter,
		Service:   NewChangeService(logger, pipeline, exporter),
	}, nil
}

func connectArchive(ctx context.Context, cfg config.ArchiveConfig, logger *slog.Logger) (Archive, error) {
	switch cfg.Mode {
	case config.ArchiveModeMemory:
		logger.Warn("using synthetic in-memory archive; results are not real imagery")
		return repo.NewSyntheticArchive(syntheticGridSize, syntheticGridSize).Authenticate(ctx)
	case config.ArchiveModeHTTP, "":
		start := time.Now()
		session, err := repo.NewArchiveClient(cfg).Authenticate(ctx)
		if err != nil {
			return nil, fmt.Errorf("authenticate with archive: %w", err)
		}
		logger.Info("authenticated with imagery archive",
			slog.String("base_url", cfg.BaseURL),
			slog.Duration("elapsed", time.Since(start)),
		)
		return session, nil
	default:
		return nil, fmt.Errorf("unknown archive mode %q", cfg.Mode)
	}
}
