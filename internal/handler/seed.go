package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/credvault/internal/service"
)

// SeedHandler provisions demo data. Only routed when the seed feature flag
// is enabled; production deployments never expose it.
type SeedHandler struct {
	seed   *service.SeedService
	logger *slog.Logger
}

// NewSeedHandler creates a new seed handler
func NewSeedHandler(seed *service.SeedService, logger *slog.Logger) *SeedHandler {
	return &SeedHandler{seed: seed, logger: logger}
}

// ServeHTTP handles POST /api/seed
func (h *SeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.seed.Seed(r.Context()); err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "seeded"}, h.logger)
}
