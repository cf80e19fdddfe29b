package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Burnaviour/realtime-translator/internal/capture"
	"github.com/Burnaviour/realtime-translator/internal/config"
	"github.com/Burnaviour/realtime-translator/internal/glossary"
	"github.com/Burnaviour/realtime-translator/internal/history"
	"github.com/Burnaviour/realtime-translator/internal/metrics"
	"github.com/Burnaviour/realtime-translator/internal/overlay"
	"github.com/Burnaviour/realtime-translator/internal/pipeline"
	"github.com/Burnaviour/realtime-translator/internal/segment"
	"github.com/Burnaviour/realtime-translator/internal/transcription"
	"github.com/Burnaviour/realtime-translator/internal/translation"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "realtime-translator"
	serviceVersion    = "1.0.0"
)

// promptHints bias the speech model toward gaming vocabulary.
var promptHints = map[string]string{
	"en": "In-game voice chat with tactical callouts and slang.",
	"ru": "Игровой голосовой чат, команды и коллауты.",
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load .env if present so API keys can live outside the config file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	applyEnvOverrides(cfg)

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("game_listen_address", cfg.Game.ListenAddress),
		slog.String("mic_listen_address", cfg.Mic.ListenAddress),
		slog.String("game_language", cfg.Game.Language),
		slog.String("mic_language", cfg.Mic.Language),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Bool("preview_enabled", cfg.Preview.Enabled),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("translation_engine", cfg.Translation.Engine),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()

	// Initialize transcription client shared by both pipelines
	transcriber, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Model:         cfg.Transcription.Model,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
		SampleRate:    cfg.Audio.SampleRate,
		PromptHints:   promptHints,
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Game audio is translated into the operator's language; mic audio goes
	// the other way.
	gameTranslator, err := newTranslator(cfg.Translation, cfg.Game.Language, cfg.Mic.Language)
	if err != nil {
		logger.Error("Failed to create game translator", slog.String("error", err.Error()))
		os.Exit(1)
	}
	micTranslator, err := newTranslator(cfg.Translation, cfg.Mic.Language, cfg.Game.Language)
	if err != nil {
		logger.Error("Failed to create mic translator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	gameRewriter, micRewriter, err := newRewriters(cfg.Glossary)
	if err != nil {
		logger.Error("Failed to load glossary", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize utterance history (if enabled)
	var recorder pipeline.Recorder
	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.Path, logger)
		if err != nil {
			logger.Error("Failed to open history database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		recorder = store
	}

	// Initialize overlay hub and HTTP server (if enabled)
	var (
		sink          pipeline.Sink
		overlayServer *overlay.Server
	)
	if cfg.Overlay.Enabled {
		hub := overlay.NewHub(logger, appMetrics)
		sink = hub

		var hist overlay.HistorySource
		if store != nil {
			hist = store
		}
		overlayServer = overlay.NewServer(overlay.ServerConfig{
			Address: cfg.Overlay.Address,
			Port:    cfg.Overlay.Port,
			Enabled: cfg.Overlay.Enabled,
		}, logger, hub, transcriber, hist, appMetrics)
	}

	orch := pipeline.NewOrchestrator(logger, pipeline.OrchestratorConfig{}, appMetrics, recorder)

	gameSource := newSource(cfg, cfg.Game, capture.SourceGame, logger, appMetrics)
	if err := orch.AddPipeline(pipeline.Pipeline{
		Config:      sourceConfig(pipeline.SourceGame, cfg, cfg.Game),
		Source:      gameSource,
		Transcriber: transcriber,
		Translator:  gameTranslator,
		Rewriter:    gameRewriter,
		Sink:        sink,
	}); err != nil {
		logger.Error("Failed to add game pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	micSource := newSource(cfg, cfg.Mic, capture.SourceMic, logger, appMetrics)
	if err := orch.AddPipeline(pipeline.Pipeline{
		Config:      sourceConfig(pipeline.SourceMic, cfg, cfg.Mic),
		Source:      micSource,
		Transcriber: transcriber,
		Translator:  micTranslator,
		Rewriter:    micRewriter,
		Sink:        sink,
	}); err != nil {
		logger.Error("Failed to add mic pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start overlay server first so clients can connect before audio flows
	if overlayServer != nil {
		if err := overlayServer.Start(); err != nil {
			logger.Error("Failed to start overlay server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	if err := orch.Start(); err != nil {
		logger.Error("Failed to start pipelines", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop pipelines first so no new utterances reach the overlay or history
	orch.Stop()

	if overlayServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := overlayServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping overlay server", slog.String("error", err.Error()))
		}
	}

	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("Error closing history database", slog.String("error", err.Error()))
		}
	}

	transcriber.Close()

	stats := transcriber.GetStats()
	logger.Info("Final transcription statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
		slog.Float64("success_rate", stats.SuccessRate),
		slog.Duration("avg_response_time", stats.AvgResponseTime),
	)

	logger.Info("Service stopped")
}

// applyEnvOverrides lets API keys come from the environment instead of the
// config file.
func applyEnvOverrides(cfg *config.Config) {
	if key := os.Getenv("TRANSCRIPTION_API_KEY"); key != "" {
		cfg.Transcription.APIKey = key
	}
	if key := os.Getenv("TRANSLATION_API_KEY"); key != "" {
		cfg.Translation.APIKey = key
	}
	if cfg.Translation.APIKey == "" {
		cfg.Translation.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// newSource builds the UDP capture source for one direction.
func newSource(cfg *config.Config, src config.SourceConfig, frameSource uint8,
	logger *slog.Logger, m *metrics.Metrics) *capture.UDPSource {

	var filter *capture.BandPass
	if src.BandPassEnabled {
		filter = capture.NewBandPass(src.BandPassLow, src.BandPassHigh, cfg.Audio.SampleRate)
	}

	return capture.NewUDPSource(capture.UDPConfig{
		ListenAddress: src.ListenAddress,
		Source:        frameSource,
		BlockSize:     cfg.Audio.BlockSize,
		QueueSize:     cfg.Audio.QueueSize,
		Filter:        filter,
	}, logger, m)
}

// sourceConfig maps file configuration onto pipeline parameters.
func sourceConfig(kind pipeline.SourceKind, cfg *config.Config, src config.SourceConfig) pipeline.SourceConfig {
	return pipeline.SourceConfig{
		Kind:                 kind,
		Language:             src.Language,
		Segment:              segmentConfig(cfg, src),
		StrictLanguageFilter: src.StrictLanguageFilter,
		LanguageConfidence:   src.LanguageConfidence,
	}
}

func segmentConfig(cfg *config.Config, src config.SourceConfig) segment.Config {
	return segment.Config{
		SampleRate:         cfg.Audio.SampleRate,
		MinUtterance:       src.GetMinUtteranceDuration(),
		MaxUtterance:       src.GetMaxUtteranceDuration(),
		SilenceRMS:         src.SilenceRMS,
		SpeechRMS:          src.EffectiveNoiseGate(),
		SilenceTrigger:     src.SilenceTrigger,
		PreviewEnabled:     cfg.Preview.Enabled,
		PreviewMinDuration: cfg.Preview.GetMinDuration(),
		PreviewInterval:    cfg.Preview.GetInterval(),
		Filtered:           src.BandPassEnabled,
	}
}

// newTranslator builds the configured translation engine for one direction.
func newTranslator(cfg config.TranslationConfig, sourceLang, targetLang string) (pipeline.Translator, error) {
	tc := translation.Config{
		Endpoint:   cfg.Endpoint,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Timeout:    cfg.GetTimeoutDuration(),
		SourceLang: sourceLang,
		TargetLang: targetLang,
	}

	switch cfg.Engine {
	case "http":
		return translation.NewHTTPClient(tc)
	case "openai":
		return translation.NewOpenAIClient(tc)
	default:
		return nil, fmt.Errorf("unknown translation engine %q", cfg.Engine)
	}
}

// newRewriters builds the post-translation text rewriters. Game audio is
// translated into the operator's language and gets the gaming glossary; mic
// translations optionally get transliterated for Latin-only overlays.
func newRewriters(cfg config.GlossaryConfig) (game, mic pipeline.Rewriter, err error) {
	if cfg.Enabled {
		var g *glossary.Glossary
		if cfg.RulesFile != "" {
			g, err = glossary.LoadFile(cfg.RulesFile)
			if err != nil {
				return nil, nil, err
			}
		} else {
			g = glossary.Default()
		}
		game = g
	}

	if cfg.TransliterateMic {
		mic = glossary.Transliterator{}
	}

	return game, mic, nil
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
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
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
