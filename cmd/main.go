package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"comparoo/internal/adapters/ai"
	"comparoo/internal/adapters/cache"
	"comparoo/internal/adapters/config"
	"comparoo/internal/adapters/errors/noop"
	"comparoo/internal/adapters/errors/sentry"
	"comparoo/internal/adapters/kafka"
	"comparoo/internal/adapters/redis"
	"comparoo/internal/adapters/search"
	"comparoo/internal/adapters/web"
	"comparoo/internal/agents"
	"comparoo/internal/api"
	"comparoo/internal/api/health"
	"comparoo/internal/consumers"
	domain "comparoo/internal/domain/comparison"
	"comparoo/internal/events"
	"comparoo/internal/metrics"
	"comparoo/internal/services/comparison"
	"comparoo/internal/tools"
	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// consumerGrace is added to the workflow timeout so results still publish after a timed out run
const consumerGrace = 15 * time.Second

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := initLogger(cfg); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Init()

	checks := make(map[string]health.Checker)
	store, closeCache := initCache(ctx, cfg, checks, log)
	defer closeCache()
	prometheus.MustRegister(metrics.NewCacheCollector(store))

	provider, err := initProvider(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize chat provider: %v", err)
	}

	orchestrator, err := initOrchestrator(cfg, provider, store, log)
	if err != nil {
		log.Fatalf("Failed to initialize workflow: %v", err)
	}

	var wg sync.WaitGroup
	producer := startConsumer(ctx, &wg, cfg, orchestrator, log)
	if producer != nil {
		checks["kafka"] = producer
	}
	server := startServer(cfg, checks, log)

	log.Info("System initialized successfully")

	waitForShutdown(cancel, &wg, server, producer, errorTracker, log)
}

// loadConfig loads application configuration from environment
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// initLogger initializes structured logging
func initLogger(cfg *config.Config) error {
	return logger.Init(cfg.App.LogLevel, cfg.App.Env)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// initCache connects Redis, or falls back to the in-process cache when the
// backend is memory or Redis is unreachable.
func initCache(ctx context.Context, cfg *config.Config, checks map[string]health.Checker, log *logger.Logger) (domain.AdminCache, func()) {
	if strings.EqualFold(cfg.Cache.Backend, "redis") {
		client, err := redis.NewClient(cfg.Redis)
		if err == nil {
			checks["redis"] = client
			log.Infow("cache_backend_ready", "backend", "redis", "addr", cfg.Redis.Addr())
			return client, func() {
				if err := client.Close(); err != nil {
					log.Warnw("redis_close_failed", "error", err)
				}
			}
		}
		log.Warnw("redis_unavailable_using_memory_cache", "addr", cfg.Redis.Addr(), "error", err)
	}

	mem := cache.NewMemoryCache()
	mem.StartJanitor(ctx, time.Minute)
	log.Infow("cache_backend_ready", "backend", "memory")
	return mem, func() {}
}

// initProvider builds the OpenRouter chat provider with its limiter and retry policy
func initProvider(cfg *config.Config) (ai.ChatProvider, error) {
	return ai.NewOpenRouterProvider(ai.OpenRouterConfig{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		Model:           cfg.LLM.Model,
		ProviderOrder:   cfg.LLM.ProviderOrder,
		AllowFallbacks:  cfg.LLM.AllowFallbacks,
		ReasoningEffort: cfg.LLM.ReasoningEffort,
		Referer:         cfg.LLM.Referer,
		Title:           cfg.LLM.Title,
		Timeout:         cfg.LLM.Timeout,
		Retry:           ai.DefaultRetryPolicy(cfg.LLM.MaxAttempts()),
		Limiter:         ai.NewTokenBucketLimiter(ai.ProviderOpenRouter, float64(cfg.LLM.RequestsPerMin), 0),
	})
}

// initOrchestrator wires tools, the tool-calling loop and the workflow stages
func initOrchestrator(cfg *config.Config, provider ai.ChatProvider, store domain.Cache, log *logger.Logger) (*comparison.Orchestrator, error) {
	searcher, err := search.NewSearcher(cfg.Search)
	if err != nil {
		return nil, err
	}
	loader := web.NewLoader(cfg.Images)
	executor := tools.NewDefaultExecutor(searcher, loader)
	loop := agents.NewToolCallLoop(provider, executor, cfg.LLM.Model)

	log.Infow("workflow_configured",
		"model", cfg.LLM.Model,
		"max_calls", cfg.Workflow.MaxCallsPerComparison,
		"timeout", cfg.Workflow.Timeout,
		"research_concurrency", cfg.Workflow.ResearchConcurrency,
	)

	return comparison.NewOrchestrator(comparison.Dependencies{
		Loop:     loop,
		Cache:    store,
		Scraper:  loader,
		Workflow: cfg.Workflow,
		CacheCfg: cfg.Cache,
		Images:   cfg.Images,
	}), nil
}

// startServer serves probes and metrics in the background
func startServer(cfg *config.Config, checks map[string]health.Checker, log *logger.Logger) *api.Server {
	server := api.NewServer(api.ServerConfig{
		Addr:        cfg.Metrics.Addr,
		ServiceName: cfg.App.Name,
		Version:     version,
	}, health.New(cfg.App.Name, checks))

	go func() {
		if err := server.Start(); err != nil {
			log.Errorw("http_server_failed", "error", err)
		}
	}()
	return server
}

// startConsumer runs the Kafka request consumer; it returns the producer to close on shutdown
func startConsumer(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, orchestrator *comparison.Orchestrator, log *logger.Logger) *kafka.Producer {
	if !cfg.Kafka.Enabled {
		log.Warn("Kafka disabled: no comparison requests will be consumed")
		return nil
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
	publisher := events.NewPublisher(producer, events.Topics{
		Progress: topicOr(cfg.Kafka.ProgressTopic, kafka.TopicComparisonProgress),
		Results:  topicOr(cfg.Kafka.ResultTopic, kafka.TopicComparisonResults),
	})
	reader := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topic:   topicOr(cfg.Kafka.RequestTopic, kafka.TopicComparisonRequests),
	})
	consumer := consumers.NewCompareConsumer(reader, orchestrator, publisher, cfg.Workflow.Timeout+consumerGrace)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Start(ctx); err != nil {
			log.Errorw("compare_consumer_stopped", "error", err)
		}
	}()
	return producer
}

func topicOr(topic, fallback string) string {
	if topic == "" {
		return fallback
	}
	return topic
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func waitForShutdown(
	cancel context.CancelFunc,
	wg *sync.WaitGroup,
	server *api.Server,
	producer *kafka.Producer,
	errorTracker errors.Tracker,
	log *logger.Logger,
) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	cancel()
	wg.Wait()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()

	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Warnf("Failed to close Kafka producer: %v", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Failed to stop HTTP server: %v", err)
	}
	if errorTracker != nil {
		if err := errorTracker.Flush(shutdownCtx); err != nil {
			log.Warnf("Failed to flush error tracker: %v", err)
		}
	}

	log.Info("Shutdown complete")
}
