package main

import (
	"bufio"
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fluxbatch/internal/batch"
	"fluxbatch/internal/domain"
	"fluxbatch/internal/flux"
	"fluxbatch/internal/history"
	"fluxbatch/internal/infra"
	"fluxbatch/internal/retry"
	"fluxbatch/internal/storage"
)

// fluxgen runs one batch from the command line: a prompts file in, artifacts
// on disk out. It exits non-zero when any job fails.
func main() {
	var (
		promptsPath = flag.String("prompts", "", "path to a file with one prompt per line (required)")
		name        = flag.String("name", "", "batch name (defaults to a timestamped one)")
		model       = flag.String("model", "", "generation model")
		width       = flag.Int("width", 0, "image width, multiple of 32")
		height      = flag.Int("height", 0, "image height, multiple of 32")
		steps       = flag.Int("steps", 0, "diffusion steps, 1-150")
		guidance    = flag.Float64("guidance", 0, "guidance scale, (0, 20]")
		seed        = flag.Int64("seed", -1, "seed, -1 for random")
		format      = flag.String("format", "", "output format, jpeg or png")
		outDir      = flag.String("out", "", "output directory (overrides OUTPUT_DIR)")
	)
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if *promptsPath == "" {
		logger.Fatal().Msg("fluxgen: -prompts is required")
	}
	prompts, err := readPrompts(*promptsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("fluxgen: failed to read prompts")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *outDir != "" {
		cfg.OutputDir = *outDir
	}
	fileStore, err := storage.NewFileStore(cfg.OutputDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("fluxgen: failed to configure storage")
	}

	var historyWriter storage.HistoryWriter
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("fluxgen: db connection failed")
		}
		defer pool.Close()
		historyWriter = history.NewRepo(infra.NewSQLRunner(pool, logger))
	}

	client := flux.NewClient(flux.Options{
		BaseURL:      cfg.FluxBaseURL,
		APIKey:       cfg.FluxAPIKey,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		PollInterval: cfg.PollInterval,
		Logger:       &logger,
	})

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.MaxAttempts
	policy.BaseBackoff = cfg.BaseBackoff
	policy.MaxBackoff = cfg.MaxBackoff

	controller, err := batch.NewController(client, storage.NewRecorder(fileStore, historyWriter, logger), batch.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Policy:         policy,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("fluxgen: failed to configure controller")
	}

	params := buildParams(cfg, *model, *width, *height, *steps, *guidance, *seed, *format)
	run, err := controller.Start(batch.BatchRequest{
		Name:    *name,
		Prompts: prompts,
		Params:  params,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("fluxgen: invalid batch")
	}

	go func() {
		<-ctx.Done()
		logger.Info().Msg("fluxgen: interrupt received, cancelling run")
		run.Cancel()
	}()

	for ev := range run.Events() {
		event := logger.Info()
		if ev.Error != "" {
			event = logger.Warn().Str("error", ev.Error)
		}
		event.
			Str("job_id", ev.JobID).
			Str("state", string(ev.NewState)).
			Int("attempt", ev.Attempt).
			Msg("fluxgen: progress")
	}

	snapshot, err := controller.Status(run.ID())
	if err != nil {
		logger.Fatal().Err(err).Msg("fluxgen: run vanished")
	}
	logger.Info().
		Int("succeeded", snapshot.Counters.Succeeded).
		Int("failed", snapshot.Counters.Failed).
		Int("cancelled", snapshot.Counters.Cancelled).
		Msg("fluxgen: run completed")

	if snapshot.Counters.Failed > 0 {
		os.Exit(1)
	}
}

func buildParams(cfg *infra.Config, model string, width, height, steps int, guidance float64, seed int64, format string) domain.GenerationParams {
	params := domain.DefaultParams()
	params.Model = cfg.FluxModel
	if model != "" {
		params.Model = model
	}
	if width > 0 {
		params.Width = width
	}
	if height > 0 {
		params.Height = height
	}
	if steps > 0 {
		params.Steps = steps
	}
	if guidance > 0 {
		params.Guidance = guidance
	}
	if seed >= 0 {
		params.Seed = &seed
	}
	if format != "" {
		params.OutputFormat = format
	}
	return params
}

func readPrompts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var prompts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		prompts = append(prompts, line)
	}
	return prompts, scanner.Err()
}
