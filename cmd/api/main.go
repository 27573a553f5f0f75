package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/docvault/api"
	httpadapter "github.com/kirillkom/docvault/internal/adapters/http"
	"github.com/kirillkom/docvault/internal/bootstrap"
	"github.com/kirillkom/docvault/internal/config"
	"github.com/kirillkom/docvault/internal/infrastructure/ruleseed"
	"github.com/kirillkom/docvault/internal/observability/logging"
	"github.com/kirillkom/docvault/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	if err := config.LoadEnvFile(os.Getenv("ENV_FILE")); err != nil {
		slog.Error("env_file_load_failed", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := logging.New(os.Stdout, serviceName, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Observers{
		Rules:    httpMetrics,
		Search:   httpMetrics,
		Breakers: httpMetrics.ObserveBreakerState,
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if cfg.RulesSeedPath != "" {
		if err := seedRules(ctx, app, cfg.RulesSeedPath, logger); err != nil {
			logger.Error("rule_seed_failed", "path", cfg.RulesSeedPath, "error", err)
			os.Exit(1)
		}
	}

	var contract []byte
	if cfg.APIValidateRequests {
		contract = api.OpenAPI
	}
	router, err := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Ingestor:  app.IngestUC,
		Documents: app.DocumentsUC,
		Rules:     app.Rules,
		Batch:     app.Rules,
		Source:    app.DocumentsUC,
		Search:    app.Search,
		Metrics:   httpMetrics,
		Logger:    logger,
		Contract:  contract,
	})
	if err != nil {
		logger.Error("router_init_failed", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr, "repository", cfg.RepositoryDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}

func seedRules(ctx context.Context, app *bootstrap.App, path string, logger *slog.Logger) error {
	file, err := ruleseed.Load(path)
	if err != nil {
		return err
	}
	_, err = ruleseed.Apply(ctx, app.Rules, file, logger)
	return err
}
