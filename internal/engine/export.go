package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/verdantlabs/landchange/internal/models"
	"github.com/verdantlabs/landchange/internal/render"
	"github.com/verdantlabs/landchange/pkg/geotiff"
)

// ExportSubmitter hands an export job to the archive.
type ExportSubmitter interface {
	SubmitExport(ctx context.Context, req models.ExportRequest) (models.ExportTask, error)
}

// ExportOptions controls how change masks are exported.
type ExportOptions struct {
	Description string
	Scale       float64
	Destination string
	FilePrefix  string
}

// Exporter encodes change masks as GeoTIFF and submits them for export.
// Submission is fire-and-forget; the returned task is only an acknowledgement.
type Exporter struct {
	logger    *slog.Logger
	submitter ExportSubmitter
	opts      ExportOptions
}

// NewExporter constructs an Exporter.
func NewExporter(logger *slog.Logger, submitter ExportSubmitter, opts ExportOptions) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Description == "" {
		opts.Description = "change_detection"
	}
	if opts.Scale <= 0 {
		opts.Scale = 30
	}
	if opts.FilePrefix == "" {
		opts.FilePrefix = opts.Description
	}
	return &Exporter{logger: logger, submitter: submitter, opts: opts}
}

// Export submits the result's change mask. An empty destination falls back to
// the configured one.
func (e *Exporter) Export(ctx context.Context, result models.RunResult, destination string) (models.ExportTask, error) {
	if e.submitter == nil {
		return models.ExportTask{}, fmt.Errorf("export submitter not configured")
	}
	if destination == "" {
		destination = e.opts.Destination
	}
	if destination == "" {
		return models.ExportTask{}, fmt.Errorf("export destination is required")
	}

	payload, err := EncodeMaskGeoTIFF(result.Mask)
	if err != nil {
		return models.ExportTask{}, err
	}

	task, err := e.submitter.SubmitExport(ctx, models.ExportRequest{
		Description: e.opts.Description,
		Scale:       e.opts.Scale,
		Region:      result.ROI,
		Destination: destination,
		FilePrefix:  e.opts.FilePrefix,
		Format:      "GeoTIFF",
		Payload:     payload,
	})
	if err != nil {
		return models.ExportTask{}, fmt.Errorf("submit export: %w", err)
	}

	e.logger.Info(ExportMessage(destination),
		slog.String("run_id", result.RunID),
		slog.String("task_id", task.ID),
		slog.String("state", string(task.State)),
	)
	return task, nil
}

// ExportMessage is the user-facing acknowledgement for a submitted export.
func ExportMessage(destination string) string {
	return fmt.Sprintf("Exported map to %s", destination)
}

// EncodeMaskGeoTIFF writes the mask as a single-band GeoTIFF, 255 for
// changed pixels and 0 elsewhere.
func EncodeMaskGeoTIFF(mask models.ChangeMask) ([]byte, error) {
	if mask.Width <= 0 || mask.Height <= 0 {
		return nil, fmt.Errorf("export: empty change mask")
	}
	t := mask.Transform
	tags := map[uint16]interface{}{}
	if t.PixelWidth > 0 && t.PixelHeight > 0 {
		tags = geotiff.GeographicTags(t.OriginLon, t.OriginLat, t.PixelWidth, t.PixelHeight)
	}
	var buf bytes.Buffer
	if err := geotiff.Encode(&buf, render.MaskGray(mask), tags); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return buf.Bytes(), nil
}
