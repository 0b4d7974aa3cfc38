package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Workflow metrics
	Comparisons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comparoo_comparisons_total",
			Help: "Total number of comparison runs",
		},
		[]string{"outcome"}, // outcome: success|cached|validation|budget|timeout|provider|internal
	)

	ComparisonDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comparoo_comparison_duration_seconds",
			Help:    "End-to-end comparison duration in seconds",
			Buckets: []float64{0.05, 0.5, 2, 5, 10, 15, 20, 30, 45},
		},
		[]string{"cached"},
	)

	ComparisonCalls = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "comparoo_comparison_api_calls",
			Help:    "Budgeted calls consumed per comparison",
			Buckets: []float64{0, 2, 4, 8, 12, 16, 20, 24, 32},
		},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comparoo_stage_duration_seconds",
			Help:    "Workflow stage duration in seconds",
			Buckets: []float64{0.05, 0.25, 1, 2, 5, 10, 20, 30},
		},
		[]string{"stage"},
	)

	// Research metrics
	ResearchWorkers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comparoo_research_workers_total",
			Help: "Research worker outcomes",
		},
		[]string{"status"}, // status: cached|success|failed|timed_out
	)

	// Cache metrics
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comparoo_cache_lookups_total",
			Help: "Cache lookups by key kind and result",
		},
		[]string{"kind", "result"}, // result: hit|miss
	)

	// LLM metrics
	LLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comparoo_llm_calls_total",
			Help: "Total number of chat completion requests",
		},
		[]string{"model", "status"}, // status: success|error|retry
	)

	LLMLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comparoo_llm_latency_seconds",
			Help:    "Chat completion latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 25},
		},
		[]string{"model"},
	)

	LLMTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comparoo_llm_tokens_total",
			Help: "Total tokens used",
		},
		[]string{"model", "type"}, // type: input|output
	)

	// Tool metrics
	ToolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comparoo_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"}, // status: success|error|budget_exhausted
	)

	ToolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comparoo_tool_latency_seconds",
			Help:    "Tool execution latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"tool"},
	)

	// Messaging metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comparoo_kafka_messages_total",
			Help: "Kafka messages by topic and direction",
		},
		[]string{"topic", "direction", "status"}, // direction: produced|consumed
	)
)

var registerOnce sync.Once

// Init registers all metrics with Prometheus
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(Comparisons)
		prometheus.MustRegister(ComparisonDuration)
		prometheus.MustRegister(ComparisonCalls)
		prometheus.MustRegister(StageDuration)

		prometheus.MustRegister(ResearchWorkers)
		prometheus.MustRegister(CacheLookups)

		prometheus.MustRegister(LLMCalls)
		prometheus.MustRegister(LLMLatency)
		prometheus.MustRegister(LLMTokens)

		prometheus.MustRegister(ToolExecutions)
		prometheus.MustRegister(ToolLatency)

		prometheus.MustRegister(KafkaMessages)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordComparison records a finished comparison run
func RecordComparison(outcome string, cached bool, duration time.Duration, apiCalls int) {
	Comparisons.WithLabelValues(outcome).Inc()

	cachedLabel := "false"
	if cached {
		cachedLabel = "true"
	}
	ComparisonDuration.WithLabelValues(cachedLabel).Observe(duration.Seconds())

	if !cached {
		ComparisonCalls.Observe(float64(apiCalls))
	}
}

// RecordStage records one workflow stage
func RecordStage(stage string, duration time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordResearchWorker records a research worker outcome
func RecordResearchWorker(status string) {
	ResearchWorkers.WithLabelValues(status).Inc()
}

// RecordCacheLookup records a cache hit or miss
func RecordCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordLLMCall records a chat completion request
func RecordLLMCall(model string, latency time.Duration, inputTokens, outputTokens int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	LLMCalls.WithLabelValues(model, status).Inc()
	LLMLatency.WithLabelValues(model).Observe(latency.Seconds())

	if inputTokens > 0 {
		LLMTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		LLMTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// RecordLLMRetry records a retried chat completion attempt
func RecordLLMRetry(model string) {
	LLMCalls.WithLabelValues(model, "retry").Inc()
}

// RecordToolExecution records a tool execution
func RecordToolExecution(tool string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	ToolExecutions.WithLabelValues(tool, status).Inc()
	ToolLatency.WithLabelValues(tool).Observe(latency.Seconds())
}

// RecordToolBudgetExhausted records a search call refused for lack of budget
func RecordToolBudgetExhausted(tool string) {
	ToolExecutions.WithLabelValues(tool, "budget_exhausted").Inc()
}

// RecordKafkaMessage records a produced or consumed message
func RecordKafkaMessage(topic, direction string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	KafkaMessages.WithLabelValues(topic, direction, status).Inc()
}
