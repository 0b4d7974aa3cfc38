package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"comparoo/pkg/logger"
)

// Component health statuses
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Checker reports whether a dependency is reachable
type Checker interface {
	Health(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker
type CheckerFunc func(ctx context.Context) error

// Health implements Checker
func (f CheckerFunc) Health(ctx context.Context) error { return f(ctx) }

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	checks      map[string]Checker
	startTime   time.Time
	serviceName string
	timeout     time.Duration
}

// New creates a health handler over named dependency checks
func New(serviceName string, checks map[string]Checker) *Handler {
	return &Handler{
		log:         logger.Get().With("component", "health"),
		checks:      checks,
		startTime:   time.Now(),
		serviceName: serviceName,
		timeout:     5 * time.Second,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                     `json:"status"`
	Service   string                     `json:"service"`
	Uptime    string                     `json:"uptime"`
	Timestamp string                     `json:"timestamp"`
	Checks    map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Register mounts /live, /ready and /health on mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/live", h.HandleLiveness)
	mux.HandleFunc("/ready", h.HandleReadiness)
	mux.HandleFunc("/health", h.HandleHealth)
}

// HandleLiveness returns 200 OK if the process is running
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness returns 503 unless every dependency is healthy
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	status, healthy := h.run(r.Context())

	code := http.StatusOK
	if healthy < len(status.Checks) {
		status.Status = StatusUnhealthy
		code = http.StatusServiceUnavailable
		h.log.Warnw("readiness_check_failed", "checks", status.Checks)
	}
	writeJSON(w, code, status)
}

// HandleHealth reports degraded while at least one dependency still works
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status, healthy := h.run(r.Context())

	code := http.StatusOK
	switch {
	case len(status.Checks) > 0 && healthy == 0:
		status.Status = StatusUnhealthy
		code = http.StatusServiceUnavailable
	case healthy < len(status.Checks):
		status.Status = StatusDegraded
	}
	writeJSON(w, code, status)
}

func (h *Handler) run(ctx context.Context) (HealthStatus, int) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := HealthStatus{
		Status:    StatusHealthy,
		Service:   h.serviceName,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]ComponentHealth, len(names)),
	}
	healthy := 0
	for _, name := range names {
		c := h.check(ctx, name, h.checks[name])
		if c.Status == StatusHealthy {
			healthy++
		}
		status.Checks[name] = c
	}
	return status, healthy
}

func (h *Handler) check(ctx context.Context, name string, checker Checker) ComponentHealth {
	start := time.Now()
	err := checker.Health(ctx)
	elapsed := time.Since(start)

	if err != nil {
		h.log.Errorw("health_check_failed", "component", name, "error", err, "elapsed", elapsed)
		return ComponentHealth{Status: StatusUnhealthy, ResponseTime: elapsed.String(), Error: err.Error()}
	}
	return ComponentHealth{Status: StatusHealthy, ResponseTime: elapsed.String()}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
