package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// ReadinessCheck probes one backing dependency
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	checks []ReadinessCheck
	logger *slog.Logger
}

// NewHealthHandler creates a health handler over the given readiness checks
func NewHealthHandler(logger *slog.Logger, checks ...ReadinessCheck) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger}
}

// Live handles GET /healthz
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Ready handles GET /readyz: every backing dependency must answer within
// two seconds.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.logger.Warn("readiness check failed",
				slog.String("check", c.Name),
				slog.String("error", err.Error()),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(c.Name + " not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
