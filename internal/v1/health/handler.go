// Package health serves the engine probe endpoints: a liveness check that
// only proves the process is running, and a readiness check that pings the
// engine's critical dependencies.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/huddlekit/huddle-server/internal/v1/logging"
)

// readinessTimeout bounds the whole readiness sweep, not each ping.
const readinessTimeout = 3 * time.Second

// A Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler manages the probe endpoints for one engine process.
type Handler struct {
	service string
	deps    []dependency
}

type dependency struct {
	name   string
	pinger Pinger
}

// NewHandler creates a probe handler for the named service.
func NewHandler(service string) *Handler {
	return &Handler{service: service}
}

// AddDependency registers a dependency for the readiness probe. Nil pingers
// are ignored so optional dependencies can be passed straight through.
func (h *Handler) AddDependency(name string, p Pinger) *Handler {
	if p != nil {
		h.deps = append(h.deps, dependency{name: name, pinger: p})
	}
	return h
}

// RegisterRoutes mounts the probes on the engine router.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
}

// LivenessResponse is the liveness probe body.
type LivenessResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse is the readiness probe body.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness returns 200 whenever the process can answer at all. It checks
// no dependencies, so a dead store never gets a healthy pod restarted.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Service:   h.service,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness pings every registered dependency and returns 503 if any of
// them is unreachable.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.deps))
	ready := true
	for _, dep := range h.deps {
		if err := dep.pinger.Ping(ctx); err != nil {
			logging.Error(ctx, "readiness check failed",
				zap.String("dependency", dep.name), zap.Error(err))
			checks[dep.name] = "unhealthy"
			ready = false
			continue
		}
		checks[dep.name] = "healthy"
	}

	status := "ready"
	code := http.StatusOK
	if !ready {
		status = "unavailable"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, ReadinessResponse{
		Status:    status,
		Service:   h.service,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
