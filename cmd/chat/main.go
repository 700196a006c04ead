// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main runs the help desk chat service. It answers user messages from
// the local knowledge base and escalates unresolved problems to ServiceNow.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/your-org/helpdesk-assistant/internal/api"
	"github.com/your-org/helpdesk-assistant/internal/cache"
	"github.com/your-org/helpdesk-assistant/internal/chat"
	"github.com/your-org/helpdesk-assistant/internal/config"
	"github.com/your-org/helpdesk-assistant/internal/feedback"
	"github.com/your-org/helpdesk-assistant/internal/health"
	"github.com/your-org/helpdesk-assistant/internal/keywords"
	"github.com/your-org/helpdesk-assistant/internal/knowledge"
	"github.com/your-org/helpdesk-assistant/internal/metrics"
	"github.com/your-org/helpdesk-assistant/internal/openai"
	"github.com/your-org/helpdesk-assistant/internal/resolver"
	"github.com/your-org/helpdesk-assistant/internal/servicenow"
	"github.com/your-org/helpdesk-assistant/internal/translate"
)

const (
	serviceName    = "helpdesk-chat"
	serviceVersion = "1.0.0"
	// HealthCheckTimeout bounds one /health evaluation
	HealthCheckTimeout = 5 * time.Second
)

// application owns every long-lived component of the service
type application struct {
	cfg      *config.Config
	store    *knowledge.Store
	server   *api.Server
	cache    cache.Cache
	feedback *feedback.Logger
	health   *health.Manager
	logger   *zap.Logger
}

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, level, err := initializeLogger(cfg)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	masked := cfg.MaskSensitiveValues()
	logger.Info("Configuration loaded successfully",
		zap.String("service", serviceName),
		zap.String("environment", os.Getenv("ENVIRONMENT")),
		zap.String("docs_dir", masked.Knowledge.DocsDir),
		zap.String("resolver_strategy", masked.Resolver.Strategy),
		zap.String("keyword_extractor", masked.Resolver.Extractor),
		zap.Float64("similarity_threshold", masked.Resolver.SimilarityThreshold),
		zap.Bool("translation_enabled", masked.Translation.Enabled),
		zap.String("servicenow_instance", masked.ServiceNow.Instance),
		zap.String("servicenow_password", masked.ServiceNow.Password),
		zap.String("openai_api_key", masked.OpenAI.APIKey),
		zap.String("cache_storage", masked.Cache.StorageType),
		zap.String("feedback_storage", masked.Feedback.StorageType),
	)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize service", zap.Error(err))
	}
	defer app.Close()

	watchConfig(logger, level)

	if err := app.Run(ctx); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
	logger.Info("Server stopped")
}

// initializeLogger creates a logger based on configuration settings. The
// returned level can be changed at runtime.
func initializeLogger(cfg *config.Config) (*zap.Logger, zap.AtomicLevel, error) {
	var zapConfig zap.Config

	if cfg.Logging.Format == "json" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Logging.Level))

	if cfg.Logging.Output == "file" {
		zapConfig.OutputPaths = []string{"helpdesk.log"}
		zapConfig.ErrorOutputPaths = []string{"helpdesk.log"}
	} else {
		zapConfig.OutputPaths = []string{"stdout"}
		zapConfig.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, zapConfig.Level, err
	}
	return logger.With(zap.String("service", serviceName)), zapConfig.Level, nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// watchConfig applies log level changes from the config file without a restart.
// Other settings need a restart.
func watchConfig(logger *zap.Logger, level zap.AtomicLevel) {
	err := config.WatchConfig(os.Getenv("CONFIG_PATH"), logger, func(cfg *config.Config) {
		next := parseLevel(cfg.Logging.Level)
		if next != level.Level() {
			level.SetLevel(next)
			logger.Info("Log level changed", zap.String("level", next.String()))
		}
	})
	if errors.Is(err, config.ErrNoConfigFile) {
		logger.Debug("No config file to watch")
		return
	}
	if err != nil {
		logger.Warn("Config hot reload disabled", zap.Error(err))
	}
}

// newApplication wires every component. The knowledge base is loaded once
// before returning; a missing or empty directory leaves the service degraded, not down.
func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	logger.Info("Initializing service dependencies")
	m := metrics.Get()

	store := knowledge.NewStore(cfg.Knowledge.DocsDir, logger)
	store.OnReload(func(corpus *knowledge.Corpus, report knowledge.LoadReport, err error) {
		if err != nil {
			m.RecordReload(0, err)
			return
		}
		m.RecordReload(corpus.Len(), nil)
	})
	if _, _, err := store.Reload(ctx); err != nil {
		logger.Warn("Initial knowledge base load failed, serving with an empty corpus", zap.Error(err))
	}

	sharedCache, err := cache.New(cache.Config{
		StorageType: cache.StorageType(cfg.Cache.StorageType),
		RedisURL:    cfg.Cache.RedisURL,
		KeyPrefix:   cfg.Cache.KeyPrefix,
		DefaultTTL:  time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
		MaxEntries:  cfg.Cache.MaxEntries,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	var llm *openai.Client
	if cfg.OpenAI.APIKey != "" {
		clientConfig := openai.DefaultClientConfig(cfg.OpenAI.APIKey)
		clientConfig.BaseURL = cfg.OpenAI.Endpoint
		if cfg.OpenAI.ChatModel != "" {
			clientConfig.ChatModel = cfg.OpenAI.ChatModel
		}
		if cfg.OpenAI.EmbeddingModel != "" {
			clientConfig.EmbeddingModel = cfg.OpenAI.EmbeddingModel
		}
		if cfg.OpenAI.TimeoutSeconds > 0 {
			clientConfig.Timeout = time.Duration(cfg.OpenAI.TimeoutSeconds) * time.Second
		}
		clientConfig.MaxRetries = cfg.OpenAI.MaxRetries
		llm, err = openai.NewClient(clientConfig, logger)
		if err != nil {
			_ = sharedCache.Close()
			return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
		}
	}

	res, err := buildResolver(cfg, store, sharedCache, llm, logger)
	if err != nil {
		_ = sharedCache.Close()
		return nil, err
	}

	translator := buildTranslator(cfg, sharedCache, llm, logger)

	tickets := servicenow.NewClient(servicenow.Config{
		InstanceURL: cfg.ServiceNow.Instance,
		Username:    cfg.ServiceNow.Username,
		Password:    cfg.ServiceNow.Password,
		Category:    cfg.ServiceNow.Category,
		Timeout:     time.Duration(cfg.ServiceNow.TimeoutSeconds) * time.Second,
		MaxRetries:  cfg.ServiceNow.MaxRetries,
		MaxWait:     time.Duration(cfg.ServiceNow.MaxWaitSeconds) * time.Second,
	}, logger)
	if !tickets.Configured() {
		logger.Warn("ServiceNow is not configured; unresolved problems will not be escalated")
	}

	fb, err := feedback.NewLogger(feedback.Config{
		StorageType: cfg.Feedback.StorageType,
		FilePath:    cfg.Feedback.FilePath,
		DBPath:      cfg.Feedback.DBPath,
	}, logger)
	if err != nil {
		_ = sharedCache.Close()
		return nil, fmt.Errorf("failed to initialize feedback logger: %w", err)
	}

	service, err := chat.NewService(chat.Dependencies{
		Corpus:         store,
		Resolver:       res,
		Translator:     translator,
		Tickets:        tickets,
		Feedback:       fb,
		Metrics:        m,
		TargetLanguage: cfg.Translation.TargetLanguage,
		Logger:         logger,
	})
	if err != nil {
		_ = fb.Close()
		_ = sharedCache.Close()
		return nil, err
	}

	healthManager := health.NewManager(serviceName, serviceVersion, logger)
	healthManager.SetTimeout(HealthCheckTimeout)
	setupHealthChecks(healthManager, cfg, store, sharedCache, fb, tickets, llm)

	server, err := api.NewServer(api.Dependencies{
		Chat:           service,
		Tickets:        tickets,
		Translator:     translator,
		TargetLanguage: cfg.Translation.TargetLanguage,
		Knowledge:      store,
		Feedback:       fb,
		Health:         healthManager,
		Metrics:        m,
		AdminToken:     cfg.Server.AdminToken,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		Logger:         logger,
	})
	if err != nil {
		_ = fb.Close()
		_ = sharedCache.Close()
		return nil, err
	}

	logger.Info("Service dependencies initialized successfully",
		zap.String("resolver", res.Name()),
		zap.Int("records", store.Current().Len()),
		zap.Bool("servicenow_configured", tickets.Configured()),
		zap.Bool("llm_enabled", llm != nil))

	return &application{
		cfg:      cfg,
		store:    store,
		server:   server,
		cache:    sharedCache,
		feedback: fb,
		health:   healthManager,
		logger:   logger,
	}, nil
}

// buildResolver selects the keyword extractor and resolution strategy
func buildResolver(cfg *config.Config, store *knowledge.Store, c cache.Cache, llm *openai.Client, logger *zap.Logger) (resolver.Resolver, error) {
	deps := keywords.Dependencies{
		Cache: c,
		Vocabulary: func() keywords.Vocabulary {
			return store.Current()
		},
		LLM:    keywords.DefaultLLMConfig(),
		Logger: logger,
	}
	if llm != nil {
		deps.Completer = llm
	}

	extractor, err := keywords.New(cfg.Resolver.Extractor, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword extractor: %w", err)
	}

	keyword := resolver.NewKeywordResolver(extractor, cfg.Resolver.KeywordLimit, logger)

	var embedder resolver.Embedder
	if llm != nil {
		embedder = llm
	}
	res, err := resolver.New(resolver.Options{
		Strategy:     cfg.Resolver.Strategy,
		KeywordLimit: cfg.Resolver.KeywordLimit,
		Semantic: resolver.SemanticConfig{
			Threshold:  float32(cfg.Resolver.SimilarityThreshold),
			PersistDir: cfg.Resolver.PersistDir,
			Compress:   cfg.Resolver.Compress,
		},
	}, keyword, embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resolver: %w", err)
	}
	return res, nil
}

// buildTranslator returns the LLM translator behind the cache, or a detector-only
// translator when translation is disabled or no model is available
func buildTranslator(cfg *config.Config, c cache.Cache, llm *openai.Client, logger *zap.Logger) translate.Translator {
	if !cfg.Translation.Enabled || llm == nil {
		if cfg.Translation.Enabled {
			logger.Warn("Translation enabled but no OpenAI API key configured; messages are used as written")
		}
		return translate.NoopTranslator{Detector: translate.WhatlangDetector{}}
	}

	translator := translate.NewLLMTranslator(llm, translate.WhatlangDetector{}, translate.LLMConfig{
		Temperature:     float32(cfg.Translation.Temperature),
		Timeout:         cfg.Translation.Timeout(),
		AlwaysTranslate: cfg.Translation.AlwaysTranslate,
	}, logger)
	return translate.NewCachedTranslator(translator, c, cfg.Translation.CacheTTL(), logger)
}

// setupHealthChecks registers the dependency checks served on /health
func setupHealthChecks(
	manager *health.Manager,
	cfg *config.Config,
	store *knowledge.Store,
	c cache.Cache,
	fb *feedback.Logger,
	tickets *servicenow.Client,
	llm *openai.Client,
) {
	manager.AddChecker("knowledge", health.KnowledgeChecker(store))
	manager.AddChecker("feedback", health.DatabaseHealthChecker(cfg.Feedback.StorageType, fb.Ping))

	if cfg.Cache.StorageType == string(cache.RedisStorageType) {
		manager.AddChecker("cache", health.ExternalServiceHealthChecker("redis", c.Ping))
	}

	if tickets.Configured() {
		manager.AddChecker("servicenow", health.CircuitBreakerChecker(tickets.BreakerStats))
	} else {
		manager.AddChecker("servicenow", health.StaticChecker(health.StatusHealthy, "not configured"))
	}

	if llm != nil {
		manager.AddChecker("openai", health.ExternalServiceHealthChecker("openai", llm.Ping))
	}
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests
func (a *application) Run(ctx context.Context) error {
	if a.cfg.Knowledge.Watch {
		watcher := knowledge.NewWatcher(a.store, a.cfg.Knowledge.ReloadDebounce(), a.logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				a.logger.Error("Knowledge watcher stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:         a.cfg.Server.Addr(),
		Handler:      a.server.Handler(),
		ReadTimeout:  time.Duration(a.cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(a.cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting chat service",
			zap.String("addr", srv.Addr),
			zap.String("docs_dir", a.cfg.Knowledge.DocsDir))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down chat service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(a.cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// Close releases storage handles
func (a *application) Close() {
	if err := a.feedback.Close(); err != nil {
		a.logger.Warn("Failed to close feedback logger", zap.Error(err))
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("Failed to close cache", zap.Error(err))
	}
}
