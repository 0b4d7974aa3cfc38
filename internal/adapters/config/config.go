package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"comparoo/pkg/errors"
)

type Config struct {
	App           AppConfig
	LLM           LLMConfig
	Workflow      WorkflowConfig
	Cache         CacheConfig
	Images        ImageConfig
	Search        SearchConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Metrics       MetricsConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"comparoo"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

// LLMConfig points the chat adapter at OpenRouter's OpenAI-compatible API
type LLMConfig struct {
	APIKey          string        `envconfig:"OPENROUTER_API_KEY" required:"true"`
	BaseURL         string        `envconfig:"OPENROUTER_BASE_URL" default:"https://openrouter.ai/api/v1"`
	Model           string        `envconfig:"OPENROUTER_MODEL" default:"z-ai/glm-4.6"`
	ProviderOrder   []string      `envconfig:"OPENROUTER_PROVIDER_ORDER"`
	AllowFallbacks  bool          `envconfig:"OPENROUTER_ALLOW_FALLBACKS" default:"true"`
	ReasoningEffort string        `envconfig:"OPENROUTER_REASONING_EFFORT" default:"low"`
	Referer         string        `envconfig:"OPENROUTER_REFERER" default:"https://comparoo.com"`
	Title           string        `envconfig:"OPENROUTER_TITLE" default:"Comparoo"`
	Timeout         time.Duration `envconfig:"LLM_TIMEOUT" default:"25s"`
	MaxRetries      int           `envconfig:"LLM_MAX_RETRIES" default:"3"`
	RequestsPerMin  int           `envconfig:"LLM_REQUESTS_PER_MINUTE" default:"600"`
}

// MaxAttempts is the first call plus MaxRetries retries
func (c LLMConfig) MaxAttempts() int {
	return c.MaxRetries + 1
}

// WorkflowConfig bounds a single comparison run
type WorkflowConfig struct {
	MaxCallsPerComparison int           `envconfig:"MAX_CALLS_PER_COMPARISON" default:"24"`
	Timeout               time.Duration `envconfig:"WORKFLOW_TIMEOUT" default:"30s"`
	ResearchConcurrency   int           `envconfig:"RESEARCH_CONCURRENCY" default:"20"`
	DiscoverySearches     int           `envconfig:"DISCOVERY_SEARCH_BUDGET" default:"6"`
	ResearchSearches      int           `envconfig:"RESEARCH_SEARCH_BUDGET" default:"1"`
	ImageSearchEnabled    bool          `envconfig:"IMAGE_SEARCH_ENABLED" default:"false"`
}

type CacheConfig struct {
	Enabled       bool          `envconfig:"CACHE_ENABLED" default:"true"`
	Backend       string        `envconfig:"CACHE_BACKEND" default:"redis"`
	MetricsTTL    time.Duration `envconfig:"CACHE_METRICS_TTL" default:"2160h"`
	ProductTTL    time.Duration `envconfig:"CACHE_PRODUCT_TTL" default:"12h"`
	ComparisonTTL time.Duration `envconfig:"CACHE_COMPARISON_TTL" default:"24h"`
}

// ImageConfig controls image resolution and proxy rewriting
type ImageConfig struct {
	OwnDomain       string        `envconfig:"IMAGE_OWN_DOMAIN" default:"comparoo.com"`
	ProxyBase       string        `envconfig:"IMAGE_PROXY_BASE" default:"https://images.weserv.nl/"`
	PlaceholderBase string        `envconfig:"IMAGE_PLACEHOLDER_BASE" default:"https://cdn.comparoo.com/placeholder/"`
	ScrapeTimeout   time.Duration `envconfig:"IMAGE_SCRAPE_TIMEOUT" default:"2500ms"`
	UserAgent       string        `envconfig:"SCRAPER_USER_AGENT" default:"ComparooBot/1.0 (+https://comparoo.com)"`
}

// SearchConfig points web_search at an external search gateway
type SearchConfig struct {
	GatewayURL     string        `envconfig:"SEARCH_GATEWAY_URL"`
	APIKey         string        `envconfig:"SEARCH_GATEWAY_API_KEY"`
	ResultCount    int           `envconfig:"SEARCH_RESULT_COUNT" default:"8"`
	Timeout        time.Duration `envconfig:"SEARCH_TIMEOUT" default:"6s"`
	RequestsPerMin int           `envconfig:"SEARCH_REQUESTS_PER_MINUTE" default:"120"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled       bool     `envconfig:"KAFKA_ENABLED" default:"true"`
	Brokers       []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	GroupID       string   `envconfig:"KAFKA_GROUP_ID" default:"comparoo"`
	RequestTopic  string   `envconfig:"KAFKA_REQUEST_TOPIC" default:"comparisons.requests"`
	ProgressTopic string   `envconfig:"KAFKA_PROGRESS_TOPIC" default:"comparisons.progress"`
	ResultTopic   string   `envconfig:"KAFKA_RESULT_TOPIC" default:"comparisons.results"`
}

type MetricsConfig struct {
	Addr string `envconfig:"METRICS_ADDR" default:":9090"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the workflow cannot run with
func (c *Config) Validate() error {
	if c.Workflow.MaxCallsPerComparison < 1 {
		return errors.NewValidationError("MAX_CALLS_PER_COMPARISON", "must be positive", c.Workflow.MaxCallsPerComparison)
	}
	if c.Workflow.Timeout <= 0 {
		return errors.NewValidationError("WORKFLOW_TIMEOUT", "must be positive", c.Workflow.Timeout)
	}
	if c.Workflow.ResearchConcurrency < 1 {
		return errors.NewValidationError("RESEARCH_CONCURRENCY", "must be positive", c.Workflow.ResearchConcurrency)
	}
	if c.Workflow.DiscoverySearches < 0 || c.Workflow.ResearchSearches < 0 {
		return errors.NewValidationError("SEARCH_BUDGET", "must not be negative", nil)
	}
	switch strings.ToLower(c.Cache.Backend) {
	case "redis", "memory":
	default:
		return errors.NewValidationError("CACHE_BACKEND", "must be redis or memory", c.Cache.Backend)
	}
	if c.LLM.MaxRetries < 0 {
		return errors.NewValidationError("LLM_MAX_RETRIES", "must not be negative", c.LLM.MaxRetries)
	}
	return nil
}
