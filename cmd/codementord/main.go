package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/felixgeelhaar/codementor/internal/config"
	"github.com/felixgeelhaar/codementor/internal/daemon"
	"github.com/felixgeelhaar/codementor/internal/metrics"
	"github.com/felixgeelhaar/codementor/internal/progress"
	"github.com/felixgeelhaar/codementor/internal/queue"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	pidFileName = "codementord.pid"
)

func main() {
	if err := run(); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Ensure ~/.codementor directory exists
	dir, err := config.EnsureCodementorDir()
	if err != nil {
		return fmt.Errorf("ensure codementor dir: %w", err)
	}

	// Load configuration: file first, environment on top
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	envCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load env config: %w", err)
	}
	cfg.Merge(envCfg)

	thresholds, err := cfg.Difficulty.Thresholds()
	if err != nil {
		return err
	}

	// Setup logging
	logFile, err := setupLogging(dir, parseLogLevel(cfg.Daemon.LogLevel))
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	// Write PID file
	pidPath := filepath.Join(dir, pidFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStorage(ctx, cfg, dir)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.NewMetrics()
	opts := []progress.Option{
		progress.WithMetrics(m),
		progress.WithLogger(slog.Default()),
		progress.WithConcurrencyLimit(cfg.Queue.Workers * 4),
	}

	// Queue is optional; without it the daemon only serves HTTP
	var conn *queue.Connection
	if cfg.Queue.Enabled {
		conn, err = queue.NewConnection(cfg.Queue.URL)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer conn.Close()
		opts = append(opts, progress.WithPublisher(queue.NewProducer(conn, queue.WithProducerMetrics(m))))
	}

	svc := progress.NewService(store.profiles, thresholds, opts...)

	var consumer *queue.Consumer
	if conn != nil {
		qcfg := queue.DefaultConsumerConfig()
		qcfg.Workers = cfg.Queue.Workers
		qcfg.Metrics = m
		consumer = queue.NewConsumer(conn, queue.RecordHandler(svc), qcfg)
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
	}

	server, err := daemon.NewServer(daemon.ServerConfig{
		Config:         cfg,
		Progress:       svc,
		Analytics:      store.analytics,
		Metrics:        m,
		Version:        Version,
		AllowedOrigins: envCfg.AllowedOrigins,
		RateLimit:      envCfg.RateLimit,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		slog.Info("received signal, shutting down", "signal", sig.String())

		if consumer != nil {
			consumer.Stop()
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		close(done)
	}()

	slog.Info("codementor daemon starting",
		"addr", server.Addr(),
		"storage", cfg.Storage.Driver,
		"queue", cfg.Queue.Enabled,
		"version", Version)

	if err := server.Start(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	slog.Info("daemon stopped")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogging(dir string, level slog.Level) (*os.File, error) {
	logPath := filepath.Join(dir, "logs", "codementord.log")

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	// JSON to the file, text to stderr for foreground mode
	slog.SetDefault(slog.New(&multiHandler{
		handlers: []slog.Handler{
			slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level}),
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
		},
	}))

	return logFile, nil
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

// multiHandler logs to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			errs = append(errs, handler.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
