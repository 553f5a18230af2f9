package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fluxbatch/internal/batch"
	"fluxbatch/internal/flux"
	"fluxbatch/internal/history"
	"fluxbatch/internal/http/handlers"
	"fluxbatch/internal/http/httpapi"
	"fluxbatch/internal/infra"
	"fluxbatch/internal/retry"
	"fluxbatch/internal/storage"
)

func policyFromConfig(cfg *infra.Config) retry.Policy {
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.MaxAttempts
	policy.BaseBackoff = cfg.BaseBackoff
	policy.MaxBackoff = cfg.MaxBackoff
	return policy
}

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fileStore, err := storage.NewFileStore(cfg.OutputDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("fluxd: failed to configure storage")
	}

	var repo *history.Repo
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("fluxd: db connection failed")
		}
		defer pool.Close()
		repo = history.NewRepo(infra.NewSQLRunner(pool, logger))
	} else {
		logger.Warn().Msg("fluxd: DATABASE_URL not set, history store disabled")
	}

	if cfg.FluxAPIKey == "" {
		logger.Warn().Msg("fluxd: FLUX_API_KEY not set, runs must supply a credential")
	}

	client := flux.NewClient(flux.Options{
		BaseURL:      cfg.FluxBaseURL,
		APIKey:       cfg.FluxAPIKey,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		PollInterval: cfg.PollInterval,
		Logger:       &logger,
	})

	var historyWriter storage.HistoryWriter
	if repo != nil {
		historyWriter = repo
	}
	recorder := storage.NewRecorder(fileStore, historyWriter, logger)

	controller, err := batch.NewController(client, recorder, batch.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Policy:         policyFromConfig(cfg),
		RequestTimeout: cfg.RequestTimeout,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("fluxd: failed to configure controller")
	}

	app := &handlers.App{
		Controller:   controller,
		History:      repo,
		Files:        fileStore,
		Logger:       logger,
		DefaultModel: cfg.FluxModel,
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, logger))

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("fluxd: listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("fluxd: server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("fluxd: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("fluxd: shutdown failed")
	}
}
