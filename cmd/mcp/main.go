package main

import (
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/docflow/internal/adapters/mcp"
	"github.com/kirillkom/docflow/internal/bootstrap"
	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/core/validation"
	"github.com/kirillkom/docflow/internal/observability/logging"
)

const version = "1.0.0"

// Stdout carries the protocol, so logs go to stderr.
func main() {
	cfg := config.Load()
	logging.Setup("mcp", cfg.LogLevel, os.Stderr)

	classifier, err := bootstrap.NewClassifier(cfg)
	if err != nil {
		slog.Error("classifier_init_failed", "error", err)
		os.Exit(1)
	}
	fallback := bootstrap.NewLLMClassifier(cfg, bootstrap.NewExecutor(cfg))

	tools := mcpadapter.NewTools(classifier, fallback, validation.NewEngine())
	if err := server.ServeStdio(mcpadapter.NewServer(tools, version)); err != nil {
		slog.Error("mcp_server_stopped", "error", err)
		os.Exit(1)
	}
}
