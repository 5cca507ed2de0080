package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dtfyu3/rus-asr-bot-express/internal/analytics"
	"github.com/dtfyu3/rus-asr-bot-express/internal/asr"
	"github.com/dtfyu3/rus-asr-bot-express/internal/bot"
	"github.com/dtfyu3/rus-asr-bot-express/internal/config"
	"github.com/dtfyu3/rus-asr-bot-express/internal/dedup"
	"github.com/dtfyu3/rus-asr-bot-express/internal/download"
	"github.com/dtfyu3/rus-asr-bot-express/internal/metrics"
	"github.com/dtfyu3/rus-asr-bot-express/internal/prefs"
	"github.com/dtfyu3/rus-asr-bot-express/internal/server"
	"github.com/dtfyu3/rus-asr-bot-express/internal/staging"
	"github.com/dtfyu3/rus-asr-bot-express/internal/telegram"
	"github.com/dtfyu3/rus-asr-bot-express/internal/transcode"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "rus-asr-bot"
	serviceVersion    = "1.0.0"

	dedupStateFile = "last_update_id.txt"
	prefsFile      = "user_models.json"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Local development reads secrets from .env; absence is fine
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.String("staging_dir", cfg.Staging.Dir),
		slog.Int64("max_file_size", cfg.Staging.MaxFileSize),
		slog.String("default_model", cfg.ASR.DefaultModel),
		slog.Bool("analytics_enabled", cfg.Analytics.Endpoint != ""),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	stagingDir, err := staging.NewDir(cfg.Staging.Dir, logger)
	if err != nil {
		logger.Error("Failed to prepare staging directory", slog.String("error", err.Error()))
		os.Exit(1)
	}

	janitor := staging.NewJanitor(
		stagingDir,
		cfg.Staging.GetJanitorInterval(),
		cfg.Staging.GetRetention(),
		logger,
		appMetrics.RecordJanitorDeletion,
	)
	go janitor.Run(ctx)

	stateDir := filepath.Dir(strings.TrimRight(cfg.Staging.Dir, string(filepath.Separator)))
	tracker := dedup.NewTracker(filepath.Join(stateDir, dedupStateFile), logger)
	prefStore := prefs.NewStore(filepath.Join(stateDir, prefsFile), cfg.ASR.DefaultModel, logger)

	tgClient, err := telegram.NewClient(telegram.Config{
		Token:       cfg.Telegram.BotToken,
		APIBaseURL:  cfg.Telegram.APIBaseURL,
		FileBaseURL: cfg.Telegram.FileBaseURL,
		Timeout:     cfg.Staging.GetDownloadTimeout(),
	}, logger)
	if err != nil {
		logger.Error("Failed to create Telegram client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.Telegram.RegisterWebhook {
		webhookURL := strings.TrimRight(cfg.Telegram.WebhookBaseURL, "/") + server.WebhookPath
		setupCtx, setupCancel := context.WithTimeout(ctx, 30*time.Second)
		if err := tgClient.SetWebhook(setupCtx, webhookURL, cfg.Telegram.SecretToken); err != nil {
			logger.Warn("Failed to register webhook, continuing anyway",
				slog.String("url", webhookURL),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("Webhook registered", slog.String("url", webhookURL))
		}
		setupCancel()
	}

	retriever := download.NewRetriever(tgClient, stagingDir, cfg.Staging.MaxFileSize, logger)
	converter := transcode.NewConverter(logger)
	dispatcher := asr.NewDispatcher(asr.Config{
		FastEndpoint:    cfg.ASR.Endpoints[asr.ModelFast],
		PreciseEndpoint: cfg.ASR.Endpoints[asr.ModelPrecise],
		DefaultModel:    cfg.ASR.DefaultModel,
		Timeout:         cfg.ASR.GetTimeoutDuration(),
	}, prefStore, logger)

	gate := bot.NewGate()
	handler := bot.NewHandler(
		gate, tgClient, retriever, converter, dispatcher,
		prefStore, stagingDir,
		bot.Timeouts{
			Download:   cfg.Staging.GetDownloadTimeout(),
			Convert:    cfg.Staging.GetConversionTimeout(),
			Transcribe: cfg.ASR.GetTimeoutDuration(),
		},
		appMetrics, logger,
	)

	analyticsClient := analytics.NewClient(cfg.Analytics.Endpoint, cfg.Analytics.GetTimeoutDuration(), logger)

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:        cfg.Server.Port,
		BindAddress: cfg.Server.BindAddress,
		SecretToken: cfg.Telegram.SecretToken,
	}, tracker, handler, gate, analyticsClient, appMetrics, logger)

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop the janitor and any in-flight background work
	cancel()

	stats := tracker.GetStats()
	logger.Info("Final update statistics",
		slog.Int64("last_update_id", stats.LastUpdateID),
		slog.Uint64("accepted", stats.Accepted),
		slog.Uint64("duplicates", stats.Duplicates),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
