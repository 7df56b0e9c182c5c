package repo

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/verdantlabs/landchange/internal/config"
	"github.com/verdantlabs/landchange/internal/models"
)

const maxArchiveBodyBytes = 32 << 20

// ArchiveServer serves the archive wire protocol on top of a MemoryArchive.
// It backs the local development stack and end-to-end client tests.
type ArchiveServer struct {
	logger    *slog.Logger
	archive   *MemoryArchive
	keyID     string
	keySecret string

	mu     sync.RWMutex
	tokens map[string]struct{}
}

// NewArchiveServer returns a server accepting the given service-account key.
func NewArchiveServer(logger *slog.Logger, archive *MemoryArchive, keyID, keySecret string) *ArchiveServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveServer{
		logger:    logger,
		archive:   archive,
		keyID:     keyID,
		keySecret: keySecret,
		tokens:    make(map[string]struct{}),
	}
}

// Handler routes the protocol paths configured in cfg.
func (s *ArchiveServer) Handler(cfg config.ArchiveConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post(cfg.TokenPath, s.handleToken)
	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post(cfg.CompositePath, s.handleComposite)
		r.Post(cfg.ExportPath, s.handleExport)
	})
	return r
}

func (s *ArchiveServer) handleToken(w http.ResponseWriter, r *http.Request) {
	var body TokenRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if !equalSecret(body.KeyID, s.keyID) || !equalSecret(body.KeySecret, s.keySecret) {
		s.logger.Warn("rejected archive credentials", slog.String("key_id", body.KeyID))
		writeArchiveError(w, http.StatusUnauthorized, "invalid service-account key")
		return
	}
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = struct{}{}
	s.mu.Unlock()
	writeArchiveJSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresIn: 3600})
}

func (s *ArchiveServer) handleComposite(w http.ResponseWriter, r *http.Request) {
	var body CompositeRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := DecodeCompositeRequest(body)
	if err != nil {
		resp := ErrorResponse{Error: err.Error()}
		if errors.Is(err, models.ErrInvalidGeometry) {
			resp.Field = RegionField
		}
		writeArchiveJSON(w, http.StatusBadRequest, resp)
		return
	}
	raster, err := s.archive.FetchComposite(r.Context(), req)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, models.ErrNoMatchingImages) {
			status = http.StatusNotFound
		}
		writeArchiveError(w, status, err.Error())
		return
	}
	s.logger.Info("composite served",
		slog.Int("year", req.Year),
		slog.Int("width", raster.Width),
		slog.Int("height", raster.Height),
	)
	writeArchiveJSON(w, http.StatusOK, EncodeComposite(raster, s.archive.ImageCount(req)))
}

func (s *ArchiveServer) handleExport(w http.ResponseWriter, r *http.Request) {
	var body ExportBody
	if !decodeBody(w, r, &body) {
		return
	}
	task, err := s.archive.SubmitExport(r.Context(), DecodeExport(body))
	if err != nil {
		writeArchiveError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.logger.Info("export accepted",
		slog.String("task_id", task.ID),
		slog.String("destination", task.Destination),
		slog.Int("payload_bytes", len(body.Payload)),
	)
	writeArchiveJSON(w, http.StatusOK, ExportResponse{TaskID: task.ID, State: string(task.State), SubmittedAt: task.SubmittedAt})
}

func (s *ArchiveServer) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.RLock()
		_, known := s.tokens[token]
		s.mu.RUnlock()
		if !ok || !known {
			writeArchiveError(w, http.StatusUnauthorized, "missing or unknown bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxArchiveBodyBytes)).Decode(out); err != nil {
		writeArchiveError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func equalSecret(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func writeArchiveError(w http.ResponseWriter, status int, msg string) {
	writeArchiveJSON(w, status, ErrorResponse{Error: msg})
}

func writeArchiveJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
