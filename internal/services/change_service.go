package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/verdantlabs/landchange/internal/api"
	"github.com/verdantlabs/landchange/internal/engine"
	landchangev1 "github.com/verdantlabs/landchange/internal/grpc/generated"
	"github.com/verdantlabs/landchange/internal/metrics"
	"github.com/verdantlabs/landchange/internal/models"
	"github.com/verdantlabs/landchange/internal/utils"
)

// Runner executes a detection run.
type Runner interface {
	Run(ctx context.Context, req models.RunRequest) (models.RunResult, error)
}

// MaskExporter submits a run's change mask for export.
type MaskExporter interface {
	Export(ctx context.Context, result models.RunResult, destination string) (models.ExportTask, error)
}

// ChangeService implements the gRPC ChangeDetection service and backs the
// HTTP API and CLI.
type ChangeService struct {
	landchangev1.UnimplementedChangeDetectionServer

	logger    *slog.Logger
	pipeline  Runner
	exporter  MaskExporter
	latencies *utils.LatencyTracker
}

// NewChangeService constructs the change detection service facade.
func NewChangeService(logger *slog.Logger, pipeline Runner, exporter MaskExporter) *ChangeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeService{
		logger:    logger,
		pipeline:  pipeline,
		exporter:  exporter,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Detect runs a detection and records run metrics.
func (s *ChangeService) Detect(ctx context.Context, req models.RunRequest) (models.RunResult, error) {
	if s.pipeline == nil {
		return models.RunResult{}, fmt.Errorf("pipeline not configured")
	}

	start := time.Now()
	result, err := s.pipeline.Run(ctx, req)
	duration := time.Since(start)
	if err != nil {
		outcome := metrics.Outcome(err)
		if outcome == metrics.OutcomeInvalid {
			s.logger.Info("run rejected", slog.Any("error", err))
		} else {
			s.logger.Error("change detection failed", slog.Any("error", err))
		}
		metrics.ObserveRun(duration, outcome, 0)
		return models.RunResult{}, err
	}

	s.latencies.Observe(duration)
	metrics.ObserveRun(duration, metrics.OutcomeSuccess, result.Summary.ChangedFraction)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("run latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}
	return result, nil
}

// Export submits an already computed result for export.
func (s *ChangeService) Export(ctx context.Context, result models.RunResult, destination string) (models.ExportTask, error) {
	if s.exporter == nil {
		return models.ExportTask{}, fmt.Errorf("exporter not configured")
	}
	task, err := s.exporter.Export(ctx, result, destination)
	metrics.ObserveExport(err)
	if err != nil {
		s.logger.Error("export failed", slog.String("run_id", result.RunID), slog.Any("error", err))
		return models.ExportTask{}, err
	}
	return task, nil
}

// DetectAndExport runs a detection and submits its mask for export.
func (s *ChangeService) DetectAndExport(ctx context.Context, req models.RunRequest, destination string) (models.RunResult, models.ExportTask, error) {
	result, err := s.Detect(ctx, req)
	if err != nil {
		return models.RunResult{}, models.ExportTask{}, err
	}
	task, err := s.Export(ctx, result, destination)
	if err != nil {
		return result, models.ExportTask{}, err
	}
	return result, task, nil
}

// DetectChange handles the gRPC DetectChange call. A destination in the
// request also triggers an export.
func (s *ChangeService) DetectChange(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, runReq, err := decodeRequest(in)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("DetectChange called", slog.Int("start_year", runReq.StartYear), slog.Int("end_year", runReq.EndYear))

	if req.Destination != "" {
		return s.detectAndExport(ctx, req, runReq)
	}
	result, err := s.Detect(ctx, runReq)
	if err != nil {
		return nil, api.ToStatusError(err)
	}
	return s.encodeRun(result, nil, req.IncludeQuicklooks)
}

// SubmitExport handles the gRPC SubmitExport call. Without a destination the
// configured default is used.
func (s *ChangeService) SubmitExport(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, runReq, err := decodeRequest(in)
	if err != nil {
		return nil, err
	}
	return s.detectAndExport(ctx, req, runReq)
}

func (s *ChangeService) detectAndExport(ctx context.Context, req api.DetectRequest, runReq models.RunRequest) (*structpb.Struct, error) {
	result, task, err := s.DetectAndExport(ctx, runReq, req.Destination)
	if err != nil {
		return nil, api.ToStatusError(err)
	}
	return s.encodeRun(result, api.NewExportView(task, engine.ExportMessage(task.Destination)), req.IncludeQuicklooks)
}

func (s *ChangeService) encodeRun(result models.RunResult, export *api.ExportView, quicklooks bool) (*structpb.Struct, error) {
	view, err := api.NewRunView(result, quicklooks)
	if err != nil {
		s.logger.Error("render run result failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to render result")
	}
	view.Export = export
	out, err := api.ToProtoStruct(view)
	if err != nil {
		s.logger.Error("encode run result failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode result")
	}
	return out, nil
}

func decodeRequest(in *structpb.Struct) (api.DetectRequest, models.RunRequest, error) {
	if in == nil {
		return api.DetectRequest{}, models.RunRequest{}, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	req, err := api.FromProtoDetectRequest(in)
	if err != nil {
		return api.DetectRequest{}, models.RunRequest{}, status.Error(codes.InvalidArgument, err.Error())
	}
	runReq, err := req.RunRequest()
	if err != nil {
		return api.DetectRequest{}, models.RunRequest{}, api.ToStatusError(err)
	}
	return req, runReq, nil
}

// LatencyP95 returns the current p95 run latency.
func (s *ChangeService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}
