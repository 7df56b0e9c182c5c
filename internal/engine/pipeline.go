package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/verdantlabs/landchange/internal/acquisition"
	"github.com/verdantlabs/landchange/internal/models"
	"github.com/verdantlabs/landchange/internal/render"
	"github.com/verdantlabs/landchange/internal/validation"
)

// ArchiveSession executes composite requests against an authenticated archive.
type ArchiveSession interface {
	FetchComposite(ctx context.Context, req models.ImageRequest) (models.Raster, error)
}

// Options tunes the detection pipeline. A nil Threshold selects
// DefaultThreshold; zero is a valid threshold.
type Options struct {
	NIRBand    string
	RedBand    string
	Threshold  *float64
	ImageStyle models.LayerStyle
	MaskStyle  models.LayerStyle
	Zoom       int
	RunTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.NIRBand == "" {
		o.NIRBand = "B5"
	}
	if o.RedBand == "" {
		o.RedBand = "B4"
	}
	if o.Threshold == nil {
		threshold := DefaultThreshold
		o.Threshold = &threshold
	}
	if len(o.ImageStyle.Bands) == 0 {
		o.ImageStyle = models.LayerStyle{Bands: []string{"B4", "B3", "B2"}, Min: 0, Max: 3000}
	}
	if len(o.MaskStyle.Palette) == 0 {
		o.MaskStyle = models.LayerStyle{Palette: []string{"red"}}
	}
	if o.Zoom == 0 {
		o.Zoom = 8
	}
	return o
}

// Pipeline runs one change detection: validate, fetch both composites,
// compute NDVI, classify and assemble the map layers.
type Pipeline struct {
	logger    *slog.Logger
	session   ArchiveSession
	validator *validation.Validator
	builder   *acquisition.Builder
	opts      Options
	tracer    trace.Tracer
	now       func() time.Time
}

// NewPipeline constructs a pipeline bound to an authenticated archive session.
func NewPipeline(logger *slog.Logger, session ArchiveSession, validator *validation.Validator, builder *acquisition.Builder, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:    logger,
		session:   session,
		validator: validator,
		builder:   builder,
		opts:      opts.withDefaults(),
		tracer:    otel.Tracer("landchange/engine"),
		now:       time.Now,
	}
}

// Threshold returns the configured default threshold.
func (p *Pipeline) Threshold() float64 {
	return *p.opts.Threshold
}

// Run executes a detection run. Geometry and year problems are reported before
// any archive call is made.
func (p *Pipeline) Run(ctx context.Context, req models.RunRequest) (models.RunResult, error) {
	if p.session == nil {
		return models.RunResult{}, fmt.Errorf("archive session not configured")
	}

	ctx, span := p.tracer.Start(ctx, "engine.Run", trace.WithAttributes(
		attribute.Int("landchange.start_year", req.StartYear),
		attribute.Int("landchange.end_year", req.EndYear),
	))
	defer span.End()

	result, err := p.run(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.RunResult{}, err
	}
	span.SetAttributes(
		attribute.String("landchange.run_id", result.RunID),
		attribute.Int("landchange.changed", result.Summary.Changed),
		attribute.Int("landchange.masked", result.Summary.Masked),
	)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, req models.RunRequest) (models.RunResult, error) {
	roi, err := p.validator.Validate(req.ROIText, req.StartYear, req.EndYear)
	if err != nil {
		return models.RunResult{}, err
	}

	threshold := *p.opts.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if err := ValidateThreshold(threshold); err != nil {
		return models.RunResult{}, err
	}

	runID := uuid.NewString()
	logger := p.logger.With(slog.String("run_id", runID))

	reversed := req.EndYear < req.StartYear
	if reversed {
		logger.Warn("end year precedes start year; change is measured from start to end as given",
			slog.Int("start_year", req.StartYear),
			slog.Int("end_year", req.EndYear),
		)
	}

	if p.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RunTimeout)
		defer cancel()
	}

	startImage, endImage, err := p.fetchPair(ctx, roi, req.StartYear, req.EndYear)
	if err != nil {
		return models.RunResult{}, err
	}

	startIndex, err := NDVI(startImage, p.opts.NIRBand, p.opts.RedBand)
	if err != nil {
		return models.RunResult{}, fmt.Errorf("start year %d: %w", req.StartYear, err)
	}
	endIndex, err := NDVI(endImage, p.opts.NIRBand, p.opts.RedBand)
	if err != nil {
		return models.RunResult{}, fmt.Errorf("end year %d: %w", req.EndYear, err)
	}

	mask, err := DetectChange(startIndex, endIndex, threshold)
	if err != nil {
		return models.RunResult{}, err
	}
	summary := Summarize(startIndex, endIndex, mask)

	result := models.RunResult{
		RunID:         runID,
		ROI:           roi,
		StartYear:     req.StartYear,
		EndYear:       req.EndYear,
		YearsReversed: reversed,
		Threshold:     threshold,
		StartImage:    startImage,
		EndImage:      endImage,
		StartIndex:    startIndex,
		EndIndex:      endIndex,
		Mask:          mask,
		Summary:       summary,
		CreatedAt:     p.now().UTC(),
	}

	m := render.NewMap(roi.Centroid(), p.opts.Zoom)
	m.AddImage(ImageLayerName(req.StartYear), &result.StartImage, p.opts.ImageStyle)
	m.AddImage(ImageLayerName(req.EndYear), &result.EndImage, p.opts.ImageStyle)
	m.AddMask(ChangeLayerName, &result.Mask, p.opts.MaskStyle)
	result.Layers = m.Layers()
	result.View = models.MapView{Center: m.Center, Zoom: m.Zoom}

	logger.Info("change detection complete",
		slog.Int("changed", summary.Changed),
		slog.Int("unchanged", summary.Unchanged),
		slog.Int("masked", summary.Masked),
		slog.Float64("changed_fraction", summary.ChangedFraction),
		slog.Float64("threshold", threshold),
	)
	return result, nil
}

// fetchPair requests both yearly composites concurrently. The first failure
// cancels the other request and is the error reported.
func (p *Pipeline) fetchPair(ctx context.Context, roi models.ROI, startYear, endYear int) (models.Raster, models.Raster, error) {
	g, ctx := errgroup.WithContext(ctx)

	var startImage, endImage models.Raster
	g.Go(func() error {
		var err error
		startImage, err = p.fetchYear(ctx, roi, startYear)
		return err
	})
	g.Go(func() error {
		var err error
		endImage, err = p.fetchYear(ctx, roi, endYear)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Raster{}, models.Raster{}, err
	}
	return startImage, endImage, nil
}

func (p *Pipeline) fetchYear(ctx context.Context, roi models.ROI, year int) (models.Raster, error) {
	ctx, span := p.tracer.Start(ctx, "engine.FetchComposite", trace.WithAttributes(attribute.Int("landchange.year", year)))
	defer span.End()

	req := p.builder.BuildComposite(year, roi)
	start := time.Now()
	image, err := p.session.FetchComposite(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.Raster{}, fmt.Errorf("composite for %d: %w", year, err)
	}
	p.logger.Debug("composite fetched",
		slog.Int("year", year),
		slog.Int("width", image.Width),
		slog.Int("height", image.Height),
		slog.Duration("elapsed", time.Since(start)),
	)
	return image, nil
}

// ChangeLayerName is the display name of the change mask layer.
const ChangeLayerName = "Change Detection"

// ImageLayerName is the display name of a yearly composite layer.
func ImageLayerName(year int) string {
	return fmt.Sprintf("%d Image", year)
}

// ValidateThreshold rejects thresholds that cannot classify anything sensibly.
// NDVI differences live in [-2, 2].
func ValidateThreshold(threshold float64) error {
	if threshold != threshold || threshold < -2 || threshold > 2 {
		return fmt.Errorf("threshold %v outside [-2, 2]: %w", threshold, ErrInvalidThreshold)
	}
	return nil
}

// ErrInvalidThreshold reports an unusable classification threshold.
var ErrInvalidThreshold = errors.New("invalid threshold")
