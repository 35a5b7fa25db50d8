package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/docflow/internal/adapters/http"
	"github.com/kirillkom/docflow/internal/bootstrap"
	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/observability/logging"
	"github.com/kirillkom/docflow/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logging.Setup("api", cfg.LogLevel, nil)
	if cfg.JWTSecret == "" {
		slog.Warn("jwt_secret_missing", "effect", "every /v1 request will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Observer: httpMetrics.Pipeline()})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// The in-process queue has no separate worker binary to drain it.
	var workers sync.WaitGroup
	if cfg.QueueProvider == config.QueueInProcess {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := app.RunWorker(ctx, "api", nil); err != nil {
				slog.Error("inprocess_worker_stopped", "error", err)
			}
		}()
	}

	router := httpadapter.NewRouter(cfg, httpadapter.Deps{
		Uploader:  app.Uploader,
		Documents: app.Documents,
		Validator: app.Validator,
		Reviews:   app.Reviews,
		Exporter:  app.Exporter,
		Metrics:   httpMetrics,
	}).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
	workers.Wait()
}
