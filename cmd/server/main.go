package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/perfect-stream/backend/internal/config"
	"github.com/perfect-stream/backend/internal/metrics"
	"github.com/perfect-stream/backend/internal/scheduler"
	"github.com/perfect-stream/backend/internal/server"
	"github.com/perfect-stream/backend/internal/session"
	"github.com/perfect-stream/backend/internal/worker"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string
	port       int
	mode       string

	rootCmd = &cobra.Command{
		Use:          "perfect-server",
		Short:        "Stream perfect numbers over HTTP, SSE and WebSocket",
		SilenceUsage: true,
		RunE:         run,
	}
)

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "config.yaml", "Path to config file")
	rootCmd.Flags().IntVar(&port, "port", 0, "Override server port")
	rootCmd.Flags().StringVar(&mode, "mode", "", "Override default producer mode (inprocess or external)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if mode != "" {
		cfg.Stream.Mode = mode
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		logger.Warn("setting GOMAXPROCS", "error", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	deps := server.Deps{
		Store:     session.NewStore(),
		InProcess: scheduler.New(scheduler.WithLogger(logger), scheduler.WithMetrics(m)),
		Metrics:   m,
		Gatherer:  reg,
		Logger:    logger,
	}
	if cfg.Worker.Command != "" {
		deps.External = worker.NewSupervisor(worker.Config{
			Command:      cfg.Worker.Command,
			Args:         cfg.Worker.Args,
			Env:          cfg.Worker.Env,
			KillGrace:    cfg.Worker.KillGrace,
			MaxLineBytes: cfg.Worker.MaxLineBytes,
		}, logger, m)
	}

	srv := server.NewServer(cfg, deps)
	httpServer := server.NewHTTPServer(cfg.Server.Host, cfg.Server.Port, srv.Handler())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr, "mode", cfg.Stream.Mode)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Open streams hold their connections; closing them cancels each
	// session's context, which in turn stops any worker process.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown timed out, closing streams", "error", err)
		return httpServer.Close()
	}
	return nil
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
