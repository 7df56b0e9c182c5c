package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/verdantlabs/landchange/internal/engine"
	"github.com/verdantlabs/landchange/internal/models"
	"github.com/verdantlabs/landchange/internal/report"
)

const maxRequestBytes = 1 << 20

// ChangeDetector is the service surface the HTTP API drives.
type ChangeDetector interface {
	Detect(ctx context.Context, req models.RunRequest) (models.RunResult, error)
	DetectAndExport(ctx context.Context, req models.RunRequest, destination string) (models.RunResult, models.ExportTask, error)
}

// YearRangeFunc reports the selectable year range.
type YearRangeFunc func() (int, int)

// HTTPHandler serves the JSON API used by web clients.
type HTTPHandler struct {
	logger    *slog.Logger
	detector  ChangeDetector
	yearRange YearRangeFunc
	router    *chi.Mux
}

// NewHTTPHandler builds the chi router.
func NewHTTPHandler(logger *slog.Logger, detector ChangeDetector, yearRange YearRangeFunc) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HTTPHandler{
		logger:    logger,
		detector:  detector,
		yearRange: yearRange,
		router:    chi.NewRouter(),
	}
	h.router.Use(middleware.RequestID)
	h.router.Use(middleware.RealIP)
	h.router.Use(h.logRequests)
	h.router.Use(middleware.Recoverer)

	h.router.Get("/healthz", h.handleHealth)
	h.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/years", h.handleYears)
		r.Post("/detect", h.handleDetect)
		r.Post("/export", h.handleExport)
		r.Post("/report", h.handleReport)
	})
	return h
}

// ServeHTTP implements http.Handler.
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "SERVING"})
}

func (h *HTTPHandler) handleYears(w http.ResponseWriter, _ *http.Request) {
	if h.yearRange == nil {
		writeJSON(w, http.StatusNotFound, ErrorView{Error: "year range not configured", Code: "not_found"})
		return
	}
	first, last := h.yearRange()
	years := make([]int, 0, last-first+1)
	for y := first; y <= last; y++ {
		years = append(years, y)
	}
	writeJSON(w, http.StatusOK, map[string]any{"min": first, "max": last, "years": years})
}

func (h *HTTPHandler) handleDetect(w http.ResponseWriter, r *http.Request) {
	req, runReq, ok := h.decode(w, r)
	if !ok {
		return
	}
	if req.Destination != "" {
		h.detectAndExport(w, r, req, runReq)
		return
	}
	result, err := h.detector.Detect(r.Context(), runReq)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeRun(w, result, nil, req.IncludeQuicklooks)
}

func (h *HTTPHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	req, runReq, ok := h.decode(w, r)
	if !ok {
		return
	}
	h.detectAndExport(w, r, req, runReq)
}

// handleReport runs a detection and returns a human-readable report. The
// format query parameter selects html (default), markdown or xlsx.
func (h *HTTPHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "html"
	}
	if format != "html" && format != "markdown" && format != "xlsx" {
		writeJSON(w, http.StatusBadRequest, ErrorView{Error: fmt.Sprintf("Unsupported report format %q.", format), Code: "invalid_argument"})
		return
	}
	_, runReq, ok := h.decode(w, r)
	if !ok {
		return
	}
	result, err := h.detector.Detect(r.Context(), runReq)
	if err != nil {
		h.writeError(w, err)
		return
	}

	warning := ReversedYearsWarning(result)
	switch format {
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write(report.Markdown(result, warning))
	case "xlsx":
		var buf bytes.Buffer
		if err := report.WriteWorkbook(&buf, result); err != nil {
			h.logger.Error("render workbook failed", slog.Any("error", err))
			writeJSON(w, http.StatusInternalServerError, ErrorView{Error: "Failed to render report.", Code: "internal"})
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.RunID+".xlsx"))
		_, _ = w.Write(buf.Bytes())
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(report.HTML(result, warning))
	}
}

func (h *HTTPHandler) detectAndExport(w http.ResponseWriter, r *http.Request, req DetectRequest, runReq models.RunRequest) {
	result, task, err := h.detector.DetectAndExport(r.Context(), runReq, req.Destination)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeRun(w, result, NewExportView(task, engine.ExportMessage(task.Destination)), req.IncludeQuicklooks)
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request) (DetectRequest, models.RunRequest, bool) {
	var req DetectRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorView{Error: fmt.Sprintf("Malformed request: %v.", err), Code: "invalid_argument"})
		return DetectRequest{}, models.RunRequest{}, false
	}
	runReq, err := req.RunRequest()
	if err != nil {
		h.writeError(w, err)
		return DetectRequest{}, models.RunRequest{}, false
	}
	return req, runReq, true
}

func (h *HTTPHandler) writeRun(w http.ResponseWriter, result models.RunResult, export *ExportView, quicklooks bool) {
	view, err := NewRunView(result, quicklooks)
	if err != nil {
		h.logger.Error("render run result failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, ErrorView{Error: "Failed to render result.", Code: "internal"})
		return
	}
	view.Export = export
	writeJSON(w, http.StatusOK, view)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := errorCode(err)
	writeJSON(w, HTTPStatus(err), ErrorView{Error: UserMessage(err), Code: codeName(code.String())})
}

func (h *HTTPHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		slog.Default().Debug("write response failed", slog.Any("error", err))
	}
}

// codeName converts a gRPC code name such as "InvalidArgument" to snake case.
func codeName(name string) string {
	out := make([]byte, 0, len(name)+4)
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
