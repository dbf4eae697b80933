package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openpit/exchange/internal/config"
	"github.com/openpit/exchange/internal/engine"
	"github.com/openpit/exchange/internal/fanout"
	"github.com/openpit/exchange/internal/handler"
	"github.com/openpit/exchange/internal/ledger"
	"github.com/openpit/exchange/internal/session"
	"github.com/openpit/exchange/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Game record sink: JSONL file when configured, memory otherwise.
	var recorder store.Recorder
	if cfg.RecordPath != "" {
		f, err := os.OpenFile(cfg.RecordPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.Error("failed to open record file", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer f.Close()
		recorder = store.NewFileRecorder(f, logger)
	} else {
		recorder = store.NewMemoryRecorder()
	}
	defer recorder.Close()

	// Stores and ledger.
	orderStore := store.NewOrderStore()
	tradeStore := store.NewTradeStore()
	participants := ledger.New()

	// Engine and fanout.
	matcher := engine.NewMatcher(cfg.Rules, participants, orderStore, tradeStore, recorder, logger)
	hub := fanout.NewHub()

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mgr := session.NewManager(cfg.Rules, participants, matcher, hub, orderStore, tradeStore, recorder, logger, seed)

	// Router.
	router := handler.NewRouter(mgr, hub, logger)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop the HTTP server, then tear the session down
	// so its timer goroutine stops and the final records flush.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	mgr.Reset()

	logger.Info("server stopped")
}
