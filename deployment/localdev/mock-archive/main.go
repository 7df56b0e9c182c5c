package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/verdantlabs/landchange/internal/config"
	"github.com/verdantlabs/landchange/internal/repo"
	"github.com/verdantlabs/landchange/internal/utils"
)

func main() {
	var (
		addr     string
		gridSize int
	)
	flag.StringVar(&addr, "addr", ":8080", "Listen address")
	flag.IntVar(&gridSize, "grid", 64, "Synthetic scene width and height in pixels")
	flag.Parse()

	// The archive paths and service-account key come from the same config the
	// engine reads, so both sides agree on the protocol.
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON).With(slog.String("component", "mock-archive"))

	if cfg.Archive.KeyID == "" || cfg.Archive.KeySecret == "" {
		logger.Warn("no service-account key configured; set LANDCHANGE_ARCHIVE_KEY_ID and LANDCHANGE_ARCHIVE_KEY_SECRET")
	}

	archive := repo.NewSyntheticArchive(gridSize, gridSize)
	srv := &http.Server{
		Addr:              addr,
		Handler:           repo.NewArchiveServer(logger, archive, cfg.Archive.KeyID, cfg.Archive.KeySecret).Handler(cfg.Archive),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", slog.String("address", addr), slog.Int("grid", gridSize))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", slog.Any("error", err))
	}
	logger.Info("stopped", slog.Int("exports_received", len(archive.Exports())))
}
